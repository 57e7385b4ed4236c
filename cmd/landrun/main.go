//go:build linux

package main

import (
	"os"
	"strings"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, environToMap(os.Environ())))
}

func environToMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		env[name] = value
	}

	return env
}
