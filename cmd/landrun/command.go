//go:build linux

package main

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// ErrSilentExit signals a non-zero exit without an additional error message;
// the command already produced whatever output it wanted.
var ErrSilentExit = errors.New("silent exit")

// ExitCodeError carries an explicit process exit code through the command
// error path.
type ExitCodeError struct {
	Code int
}

// NewExitCodeError wraps an exit code as an error.
func NewExitCodeError(code int) error {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	return "exit code " + strconv.Itoa(e.Code)
}

// Command is a single CLI subcommand.
type Command struct {
	Flags   *flag.FlagSet
	Usage   string
	Short   string
	Long    string
	Aliases []string
	Exec    func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error
}

// Name returns the command name (the first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the one-line summary used in the global usage listing.
func (c *Command) HelpLine() string {
	return "  " + padRight(c.Name(), 10) + c.Short
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}

	return s + strings.Repeat(" ", width-len(s))
}

// Run parses the command's flags and executes it, mapping errors to an exit
// code.
func (c *Command) Run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	c.Flags.Usage = func() {}
	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)
	if err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		c.printHelp(stderr)

		return 1
	}

	help, _ := c.Flags.GetBool("help")
	if help {
		c.printHelp(stdout)

		return 0
	}

	err = c.Exec(ctx, stdin, stdout, stderr, c.Flags.Args())
	if err == nil {
		return 0
	}

	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, ErrSilentExit) {
		return 1
	}

	fprintError(stderr, err)

	return 1
}

func (c *Command) printHelp(output io.Writer) {
	fprintln(output, c.Long)
	fprintln(output)
	fprintln(output, "Usage: landrun "+c.Usage)
	fprintln(output)
	fprintln(output, "Flags:")
	fprintf(output, "%s", c.Flags.FlagUsages())
}
