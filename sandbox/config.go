//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// NetworkDirection says which TCP operation a network declaration permits.
type NetworkDirection uint8

// Supported network directions.
const (
	// BindTCP permits binding a listening socket to the port.
	BindTCP NetworkDirection = iota + 1
	// ConnectTCP permits connecting to the port.
	ConnectTCP
)

// String returns the CLI-facing name of the direction.
func (d NetworkDirection) String() string {
	switch d {
	case BindTCP:
		return "bind-tcp"
	case ConnectTCP:
		return "connect-tcp"
	default:
		return fmt.Sprintf("NetworkDirection(%d)", uint8(d))
	}
}

// PathDecl declares an access level for a filesystem path. The path must be
// absolute; pattern expansion (~, relative paths) is the caller's concern.
type PathDecl struct {
	Path  string
	Level AccessLevel
}

// NetworkDecl declares a permitted TCP port for one direction.
type NetworkDecl struct {
	Port      uint16
	Direction NetworkDirection
}

// EnvDirective is one entry of the launched command's environment
// construction. Directives apply in declaration order to an initially empty
// environment; a later directive for the same name overrides an earlier one.
type EnvDirective struct {
	// Name of the environment variable. Must not be empty or contain '='.
	Name string
	// Value to assign when Inherit is false.
	Value string
	// Inherit copies the calling process's current value for Name. If the
	// caller has no such variable the directive is skipped silently.
	Inherit bool
}

// Config aggregates every declaration collected by the configuration layer.
// It is built once, validated by Build, and consumed exactly once.
type Config struct {
	// Paths are the filesystem grants, in declaration order. Overlapping or
	// nested declarations are all kept; the kernel unions the rights of every
	// rule that reaches a path.
	Paths []PathDecl

	// Networks are the TCP port grants.
	Networks []NetworkDecl

	// Env is the ordered environment directive list for the launched command.
	Env []EnvDirective

	// UnrestrictedFilesystem leaves filesystem access entirely unconfined.
	// Any path declarations are dropped with a diagnostic.
	UnrestrictedFilesystem bool

	// UnrestrictedNetwork leaves TCP access entirely unconfined. Any network
	// declarations are dropped with a diagnostic.
	UnrestrictedNetwork bool
}

// validateConfig is the input boundary of the package: everything downstream
// assumes the invariants checked here (absolute paths, known enum values,
// well-formed names). A violation is a caller bug and surfaces as an error
// from Build.
func validateConfig(cfg *Config) error {
	var errs []error

	for i, decl := range cfg.Paths {
		if strings.TrimSpace(decl.Path) == "" {
			errs = append(errs, fmt.Errorf("path declaration %d has an empty path", i))

			continue
		}

		if !filepath.IsAbs(decl.Path) {
			errs = append(errs, fmt.Errorf("path declaration %d: %q is not absolute", i, decl.Path))
		}

		if !decl.Level.valid() {
			errs = append(errs, fmt.Errorf("path declaration %d: unknown access level %d", i, decl.Level))
		}
	}

	for i, decl := range cfg.Networks {
		if decl.Port == 0 {
			errs = append(errs, fmt.Errorf("network declaration %d: port must be 1-65535", i))
		}

		if decl.Direction != BindTCP && decl.Direction != ConnectTCP {
			errs = append(errs, fmt.Errorf("network declaration %d: unknown direction %d", i, decl.Direction))
		}
	}

	for i, directive := range cfg.Env {
		if directive.Name == "" {
			errs = append(errs, fmt.Errorf("environment directive %d has an empty name", i))

			continue
		}

		if strings.Contains(directive.Name, "=") {
			errs = append(errs, fmt.Errorf("environment directive %d: name %q contains '='", i, directive.Name))
		}
	}

	return errors.Join(errs...)
}
