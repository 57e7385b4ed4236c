//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// systemLibraryDirs are granted read-execute alongside ldd-discovered
// libraries when they exist. The dynamic loader consults them (and
// /etc for ld.so.cache and nsswitch) regardless of what ldd prints.
var systemLibraryDirs = []string{
	"/lib",
	"/lib64",
	"/usr/lib",
	"/lib/x86_64-linux-gnu",
	"/usr/lib/x86_64-linux-gnu",
	"/etc",
}

// LibraryPaths runs ldd on the binary and returns the paths a dynamically
// linked executable needs at load time: each resolved library, its parent
// directory, and the standard loader search directories that exist.
func LibraryPaths(binary string) ([]string, error) {
	out, err := exec.Command("ldd", binary).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ldd %s: %w: %s", binary, err, strings.TrimSpace(string(exitErr.Stderr)))
		}

		return nil, fmt.Errorf("ldd %s: %w", binary, err)
	}

	paths := parseLddOutput(string(out))

	for _, dir := range systemLibraryDirs {
		info, statErr := os.Stat(dir)
		if statErr == nil && info.IsDir() {
			paths = append(paths, dir)
		}
	}

	slices.Sort(paths)

	return slices.Compact(paths), nil
}

// parseLddOutput extracts library paths from ldd output. Two line shapes
// carry a path:
//
//	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x...)
//	/lib64/ld-linux-x86-64.so.2 (0x...)
//
// Entries without a filesystem path (linux-vdso.so.1) are skipped. The
// parent directory of every library is included as well.
func parseLddOutput(out string) []string {
	var paths []string

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var libPath string

		arrow := slices.Index(fields, "=>")
		switch {
		case arrow >= 0 && arrow+1 < len(fields) && strings.HasPrefix(fields[arrow+1], "/"):
			libPath = fields[arrow+1]
		case arrow < 0 && strings.HasPrefix(fields[0], "/"):
			// Loader line: the path is the first and only token before
			// the load address.
			libPath = fields[0]
		default:
			continue
		}

		paths = append(paths, libPath, filepath.Dir(libPath))
	}

	return paths
}
