//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns exit code.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	// Create fresh global flags for this invocation
	globalFlags := flag.NewFlagSet("landrun", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagVersion := globalFlags.BoolP("version", "v", false, "Show version and exit")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.String("config", "", "Use specified config `file`")

	err := globalFlags.Parse(args[1:])
	if err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printGlobalOptions(stderr)

		return 1
	}

	// Handle --version early, before loading config
	if *flagVersion {
		if commit == "none" && date == "unknown" {
			fprintf(stdout, "landrun %s (built from source)\n", version)
		} else {
			fprintf(stdout, "landrun %s (%s, %s)\n", version, commit, date)
		}

		return 0
	}

	ctx := context.Background()

	// Load config (handles --cwd resolution internally)
	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		Env:             env,
	})
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	// Create all commands
	commands := []*Command{
		RunCmd(&cfg, env),
		CheckCmd(),
	}

	commandMap := make(map[string]*Command, len(commands)*2)
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases {
			commandMap[alias] = cmd
		}
	}

	commandAndArgs := globalFlags.Args()

	// Show help: explicit --help or bare `landrun` with no args
	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(stdout, commands)

		return 0
	}

	// Dispatch to command
	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		// No command found - treat as implicit "run"
		cmd = commandMap["run"]
		// Don't consume cmdName, pass all args to run
	} else {
		commandAndArgs = commandAndArgs[1:]
	}

	// No supervision loop: a successful `run` replaces this process via
	// execve, so there is nothing left to receive a signal for.
	return cmd.Run(ctx, stdin, stdout, stderr, commandAndArgs)
}

func fprintln(output io.Writer, a ...any) {
	_, _ = fmt.Fprintln(output, a...)
}

func fprintf(output io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(output, format, a...)
}

// ANSI color codes for terminal output.
const (
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

// fprintError prints an error message with optional red coloring for TTY.
func fprintError(output io.Writer, err error) {
	if IsTerminal() {
		fprintln(output, colorRed+"error:"+colorReset, err)
	} else {
		fprintln(output, "error:", err)
	}
}

const globalOptionsHelp = `  -h, --help             Show help
  -v, --version          Show version and exit
  -C, --cwd <dir>        Run as if started in <dir>
      --config <file>    Use specified config file`

func printGlobalOptions(output io.Writer) {
	fprintln(output, "Usage: landrun [flags] <command> [args]")
	fprintln(output)
	fprintln(output, "Global flags:")
	fprintln(output, globalOptionsHelp)
	fprintln(output)
	fprintln(output, "Run 'landrun --help' for a list of commands.")
}

func printUsage(output io.Writer, commands []*Command) {
	fprintln(output, "landrun - single-shot Landlock sandbox launcher")
	fprintln(output)
	fprintln(output, "Usage: landrun [flags] <command> [args]")
	fprintln(output)
	fprintln(output, "Flags:")
	fprintln(output, globalOptionsHelp)
	fprintln(output)
	fprintln(output, "Commands:")

	for _, cmd := range commands {
		fprintln(output, cmd.HelpLine())
	}

	fprintln(output)
	fprintln(output, "Run 'landrun <command> --help' for more information on a command.")
}

// isTerminal is a function variable that returns true if stdin is a terminal.
// It can be overridden in tests to control TTY behavior.
var isTerminal = func() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return (stat.Mode() & os.ModeCharDevice) != 0
}

// IsTerminal returns true if stdin is a terminal.
func IsTerminal() bool {
	return isTerminal()
}
