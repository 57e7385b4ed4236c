//go:build linux

package main

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/landrun/sandbox"
)

const checkLongHelp = `Probe the running kernel for Landlock support.

Reports the Landlock ABI version and which confinement features are
available. Exits 0 when Landlock is usable, 1 otherwise.`

// CheckCmd creates the check command.
func CheckCmd() *Command {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.BoolP("quiet", "q", false, "Suppress output, only set the exit code")

	return &Command{
		Flags: flags,
		Usage: "check [flags]",
		Short: "Report kernel Landlock support",
		Long:  checkLongHelp,
		Exec: func(_ context.Context, _ io.Reader, stdout, _ io.Writer, _ []string) error {
			caps := sandbox.Detect()

			quiet, _ := flags.GetBool("quiet")
			if !quiet {
				printCapabilities(stdout, caps)
			}

			if caps.ABI == 0 {
				return ErrSilentExit
			}

			return nil
		},
	}
}

func printCapabilities(output io.Writer, caps sandbox.CapabilitySet) {
	if caps.ABI == 0 {
		fprintln(output, "Landlock: not supported by the running kernel")

		return
	}

	fprintf(output, "Landlock: supported, ABI v%d\n", caps.ABI)
	fprintf(output, "Filesystem rights: %s\n", caps.SupportedFS)

	if caps.NetworkSupported {
		fprintln(output, "TCP port rules: supported")
	} else {
		fprintln(output, "TCP port rules: not supported (requires ABI v4)")
	}
}
