//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ErrNoCommand is returned by Launch when argv is empty.
var ErrNoCommand = errors.New("no command specified")

// BuildEnviron computes the launched command's environment from an ordered
// directive list. The environment starts empty, mirroring the deny-by-default
// stance of the filesystem and network rules: nothing crosses the boundary
// unless declared.
//
// Directives apply in order with last-write-wins semantics. An Inherit
// directive whose name is absent from hostEnv is skipped silently and does
// not unset an earlier value for the same name.
//
// The result is in "NAME=VALUE" form, ordered by first declaration of each
// name, so the output is deterministic for a given input.
func BuildEnviron(directives []EnvDirective, hostEnv map[string]string) []string {
	values := make(map[string]string, len(directives))
	order := make([]string, 0, len(directives))

	for _, directive := range directives {
		value := directive.Value

		if directive.Inherit {
			hostValue, ok := hostEnv[directive.Name]
			if !ok {
				continue
			}

			value = hostValue
		}

		if _, seen := values[directive.Name]; !seen {
			order = append(order, directive.Name)
		}

		values[directive.Name] = value
	}

	environ := make([]string, 0, len(order))
	for _, name := range order {
		environ = append(environ, name+"="+values[name])
	}

	return environ
}

// Launch replaces the current process image with the target command, handing
// it the environment built from the directive list. On success it never
// returns: the in-memory pipeline state vanishes with the old image, while
// the confinement applied beforehand persists into the new image and every
// descendant it spawns.
//
// argv[0] is located via PATH if it is not a path itself. A target that
// cannot be found or executed yields an error and leaves no partial
// execution behind.
func Launch(argv []string, directives []EnvDirective, hostEnv map[string]string) error {
	if len(argv) == 0 {
		return ErrNoCommand
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("locating %q: %w", argv[0], err)
	}

	environ := BuildEnviron(directives, hostEnv)

	err = unix.Exec(binary, argv, environ)

	// Exec only returns on failure.
	return fmt.Errorf("executing %s: %w", binary, err)
}
