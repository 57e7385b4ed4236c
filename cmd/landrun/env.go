//go:build linux

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/landrun/sandbox"
)

// ErrInvalidEnvDirective is returned for malformed --env values.
var ErrInvalidEnvDirective = errors.New("invalid env directive")

// ParseEnvDirective parses a single --env value.
//
//	NAME        -> inherit NAME from the caller's environment
//	NAME=VALUE  -> set NAME to the literal VALUE (may be empty)
func ParseEnvDirective(raw string) (sandbox.EnvDirective, error) {
	name, value, hasValue := strings.Cut(raw, "=")
	if name == "" {
		return sandbox.EnvDirective{}, fmt.Errorf("%w: %q has no variable name", ErrInvalidEnvDirective, raw)
	}

	if !hasValue {
		return sandbox.EnvDirective{Name: name, Inherit: true}, nil
	}

	return sandbox.EnvDirective{Name: name, Value: value}, nil
}

// ParseEnvDirectives parses all --env values in order.
func ParseEnvDirectives(raw []string) ([]sandbox.EnvDirective, error) {
	directives := make([]sandbox.EnvDirective, 0, len(raw))

	for _, r := range raw {
		directive, err := ParseEnvDirective(r)
		if err != nil {
			return nil, err
		}

		directives = append(directives, directive)
	}

	return directives, nil
}
