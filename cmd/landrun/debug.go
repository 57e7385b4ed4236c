//go:build linux

package main

import (
	"fmt"
	"io"

	"github.com/calvinalkan/landrun/sandbox"
)

// DebugLogger provides structured debug output for sandbox startup.
// It is disabled by default (when output is nil) and outputs to stderr when enabled.
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger creates a new debug logger.
// If output is nil, the logger is disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled returns true if debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d.output != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// debugCapabilities outputs the detected kernel Landlock support.
func debugCapabilities(debug *DebugLogger, caps sandbox.CapabilitySet) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Kernel Capabilities")

	if caps.ABI == 0 {
		debug.Logf("  Landlock: not supported")

		return
	}

	debug.Logf("  Landlock ABI: v%d", caps.ABI)
	debug.Logf("  Filesystem rights: %s", caps.SupportedFS)
	debug.Logf("  TCP port rules: %t", caps.NetworkSupported)
}

// debugRuleset outputs the built ruleset: handled categories, every path and
// network rule, and any degradation diagnostics.
func debugRuleset(debug *DebugLogger, ruleset *sandbox.Ruleset) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Ruleset")
	debug.Logf("  Filesystem confined: %t", ruleset.ConfinesFilesystem())
	debug.Logf("  Network confined: %t", ruleset.ConfinesNetwork())

	for _, rule := range ruleset.PathRules() {
		target := "file"
		if rule.IsDir {
			target = "dir"
		}

		debug.Logf("  %s (%s, %s) [%s]", rule.Path, rule.Level, target, rule.Access)
	}

	for _, rule := range ruleset.NetworkRules() {
		debug.Logf("  tcp port %d (%s)", rule.Port, rule.Direction)
	}

	diagnostics := ruleset.Diagnostics()
	if len(diagnostics) > 0 {
		debug.Section("Diagnostics")

		for _, diag := range diagnostics {
			debug.Logf("  %s", diag)
		}
	}
}

// debugEnviron outputs the environment the launched command will receive.
func debugEnviron(debug *DebugLogger, environ []string) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Environment")

	if len(environ) == 0 {
		debug.Logf("  (empty)")

		return
	}

	for _, kv := range environ {
		debug.Logf("  %s", kv)
	}
}
