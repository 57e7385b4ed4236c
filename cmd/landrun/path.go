//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPathPattern is returned when an empty path pattern is provided.
var ErrEmptyPathPattern = errors.New("empty path pattern")

// Home directory resolution errors.
var (
	ErrHomeNotFound = errors.New("home directory not found")
	ErrHomeNotDir   = errors.New("home is not a directory")
)

// ResolvePath converts a path pattern to an absolute path.
//
// Resolution rules:
//   - ~ at start expands to homeDir
//   - Absolute paths (starting with /) resolve as-is
//   - Relative paths resolve against workDir
//   - Resulting paths are always cleaned (no .., .)
//   - Environment variables ($HOME, $USER, etc.) are NOT expanded (treated as literal)
func ResolvePath(pattern, homeDir, workDir string) (string, error) {
	if pattern == "" {
		return "", ErrEmptyPathPattern
	}

	var resolved string

	switch {
	case pattern == "~":
		// Lone tilde expands to home directory
		resolved = homeDir
	case strings.HasPrefix(pattern, "~/"):
		// Home directory prefix
		resolved = filepath.Join(homeDir, pattern[2:])
	case filepath.IsAbs(pattern):
		// Absolute path - use as-is
		resolved = pattern
	default:
		// Relative path - resolve against workDir
		resolved = filepath.Join(workDir, pattern)
	}

	// Clean the path (removes .., ., trailing slashes, etc.)
	resolved = filepath.Clean(resolved)

	return resolved, nil
}

// GetHomeDir resolves the user's home directory, preferring $HOME from the
// provided environment over os.UserHomeDir.
func GetHomeDir(env map[string]string) (string, error) {
	// Try env first (respect container overrides)
	if home := env["HOME"]; home != "" {
		info, err := os.Stat(home)
		if err != nil {
			return "", fmt.Errorf("%w: %s (from $HOME) does not exist: %w", ErrHomeNotFound, home, err)
		}

		if !info.IsDir() {
			return "", fmt.Errorf("%w: %s (from $HOME)", ErrHomeNotDir, home)
		}

		return home, nil
	}

	// Fall back to os.UserHomeDir()
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w (set $HOME environment variable)", ErrHomeNotFound, err)
	}

	// Verify the fallback home exists and is a directory
	info, err := os.Stat(home)
	if err != nil {
		return "", fmt.Errorf("%w: %s does not exist: %w", ErrHomeNotFound, home, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrHomeNotDir, home)
	}

	return home, nil
}
