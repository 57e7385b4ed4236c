//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/landrun/sandbox"
)

// ErrNoCommand is returned when `run` is invoked without a command to launch.
var ErrNoCommand = errors.New("no command specified")

// ErrInvalidPort is returned for TCP port values outside 1-65535.
var ErrInvalidPort = errors.New("invalid port")

const runLongHelp = `Launch a command inside a Landlock sandbox.

Filesystem and TCP network access are denied by default: only paths and
ports explicitly allowed below are reachable. The sandbox is applied to
this process and inherited by the launched command; it cannot be lifted
afterwards.

The launched command's environment is also built from scratch: only
variables named via --env are present.

Access levels:
  --ro    read files and list directories
  --rox   read and execute
  --rw    read, write, create and remove
  --rwx   read, write and execute

When the kernel does not support Landlock at all, run fails instead of
launching the command unprotected (pass both --unrestricted-filesystem
and --unrestricted-network to override). TCP rules require Landlock ABI
v4; on older kernels declared ports are an error unless
--unrestricted-network is set.`

// RunCmd creates the run command (also the implicit default command).
func RunCmd(cfg *Config, env map[string]string) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.SetInterspersed(false)

	flags.BoolP("help", "h", false, "Show help")
	flags.StringArray("ro", nil, "Allow read-only access to `path`")
	flags.StringArray("rox", nil, "Allow read and execute access to `path`")
	flags.StringArray("rw", nil, "Allow read-write access to `path`")
	flags.StringArray("rwx", nil, "Allow read, write and execute access to `path`")
	flags.StringArray("bind-tcp", nil, "Allow binding to TCP `port`")
	flags.StringArray("connect-tcp", nil, "Allow connecting to TCP `port`")
	flags.StringArray("env", nil, "Pass environment `var` (NAME inherits, NAME=VALUE sets)")
	flags.Bool("unrestricted-filesystem", false, "Leave filesystem access unconfined")
	flags.Bool("unrestricted-network", false, "Leave TCP network access unconfined")
	flags.Bool("add-exec", false, "Also grant read-execute on the resolved command binary")
	flags.Bool("ldd", false, "Also grant read-execute on the command's shared libraries")
	flags.Bool("debug", false, "Print sandbox startup details to stderr")
	flags.Bool("dry-run", false, "Print the resolved ruleset without enforcing or launching")

	return &Command{
		Flags: flags,
		Usage: "run [flags] <command> [args]",
		Short: "Run a command under Landlock confinement (default)",
		Long:  runLongHelp,
		Exec: func(_ context.Context, _ io.Reader, stdout, stderr io.Writer, args []string) error {
			return runExec(cfg, env, flags, stdout, stderr, args)
		},
	}
}

func runExec(cfg *Config, env map[string]string, flags *flag.FlagSet, stdout, stderr io.Writer, args []string) error {
	debugEnabled, _ := flags.GetBool("debug")

	debugOutput := io.Writer(nil)
	if debugEnabled {
		debugOutput = stderr
	}

	debug := NewDebugLogger(debugOutput)

	if len(args) == 0 {
		return ErrNoCommand
	}

	err := applyRunFlags(cfg, flags)
	if err != nil {
		return err
	}

	decls, err := collectPathDecls(cfg, env)
	if err != nil {
		return err
	}

	addExec, _ := flags.GetBool("add-exec")
	useLdd, _ := flags.GetBool("ldd")

	if addExec || useLdd {
		binary, lookErr := exec.LookPath(args[0])
		if lookErr != nil {
			return fmt.Errorf("locating %q: %w", args[0], lookErr)
		}

		if addExec {
			decls = append(decls, sandbox.PathDecl{Path: binary, Level: sandbox.ReadExecute})
		}

		if useLdd {
			libs, lddErr := LibraryPaths(binary)
			if lddErr != nil {
				return fmt.Errorf("detecting library dependencies: %w", lddErr)
			}

			for _, lib := range libs {
				decls = append(decls, sandbox.PathDecl{Path: lib, Level: sandbox.ReadExecute})
			}
		}
	}

	networks := collectNetworkDecls(cfg)

	directives, err := ParseEnvDirectives(cfg.Env)
	if err != nil {
		return err
	}

	sandboxCfg := &sandbox.Config{
		Paths:                  decls,
		Networks:               networks,
		Env:                    directives,
		UnrestrictedFilesystem: boolValue(cfg.Filesystem.Unrestricted),
		UnrestrictedNetwork:    boolValue(cfg.Network.Unrestricted),
	}

	caps := sandbox.Detect()
	debugCapabilities(debug, caps)

	ruleset, err := sandbox.Build(sandboxCfg, caps)
	if err != nil {
		return fmt.Errorf("building rules: %w", err)
	}

	debugRuleset(debug, ruleset)
	debugEnviron(debug, sandbox.BuildEnviron(directives, env))

	dryRun, _ := flags.GetBool("dry-run")
	if dryRun {
		printRuleset(stdout, caps, ruleset)
		ruleset.Close()

		return nil
	}

	err = ruleset.Apply()
	if err != nil {
		return fmt.Errorf("enforcing sandbox: %w", err)
	}

	// Only reached when exec itself fails; on success the process image
	// is replaced.
	return fmt.Errorf("launching command: %w", sandbox.Launch(args, directives, env))
}

// applyRunFlags layers CLI flag values on top of the loaded config. Path and
// port lists append; unrestricted switches override only when set.
func applyRunFlags(cfg *Config, flags *flag.FlagSet) error {
	appendStrings := func(dst *[]string, name string) {
		values, _ := flags.GetStringArray(name)
		*dst = append(*dst, values...)
	}

	appendStrings(&cfg.Filesystem.Ro, "ro")
	appendStrings(&cfg.Filesystem.Rox, "rox")
	appendStrings(&cfg.Filesystem.Rw, "rw")
	appendStrings(&cfg.Filesystem.Rwx, "rwx")
	appendStrings(&cfg.Env, "env")

	bindPorts, err := parsePortFlag(flags, "bind-tcp")
	if err != nil {
		return err
	}

	cfg.Network.BindTCP = append(cfg.Network.BindTCP, bindPorts...)

	connectPorts, err := parsePortFlag(flags, "connect-tcp")
	if err != nil {
		return err
	}

	cfg.Network.ConnectTCP = append(cfg.Network.ConnectTCP, connectPorts...)

	if flags.Changed("unrestricted-filesystem") {
		value, _ := flags.GetBool("unrestricted-filesystem")
		cfg.Filesystem.Unrestricted = &value
	}

	if flags.Changed("unrestricted-network") {
		value, _ := flags.GetBool("unrestricted-network")
		cfg.Network.Unrestricted = &value
	}

	return nil
}

func parsePortFlag(flags *flag.FlagSet, name string) ([]uint16, error) {
	raw, _ := flags.GetStringArray(name)
	ports := make([]uint16, 0, len(raw))

	for _, r := range raw {
		port, err := parsePort(r)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}

		ports = append(ports, port)
	}

	return ports, nil
}

func parsePort(raw string) (uint16, error) {
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q must be 1-65535", ErrInvalidPort, raw)
	}

	if port == 0 {
		return 0, fmt.Errorf("%w: port 0 cannot be allowed", ErrInvalidPort)
	}

	return uint16(port), nil
}

// collectPathDecls resolves every configured path pattern to an absolute
// path declaration, in level order ro, rox, rw, rwx.
func collectPathDecls(cfg *Config, env map[string]string) ([]sandbox.PathDecl, error) {
	groups := []struct {
		patterns []string
		level    sandbox.AccessLevel
	}{
		{cfg.Filesystem.Ro, sandbox.ReadOnly},
		{cfg.Filesystem.Rox, sandbox.ReadExecute},
		{cfg.Filesystem.Rw, sandbox.ReadWrite},
		{cfg.Filesystem.Rwx, sandbox.ReadWriteExecute},
	}

	total := 0
	for _, group := range groups {
		total += len(group.patterns)
	}

	if total == 0 {
		return nil, nil
	}

	homeDir, err := GetHomeDir(env)
	if err != nil {
		return nil, err
	}

	decls := make([]sandbox.PathDecl, 0, total)

	for _, group := range groups {
		for _, pattern := range group.patterns {
			resolved, err := ResolvePath(pattern, homeDir, cfg.EffectiveCwd)
			if err != nil {
				return nil, err
			}

			decls = append(decls, sandbox.PathDecl{Path: resolved, Level: group.level})
		}
	}

	return decls, nil
}

func collectNetworkDecls(cfg *Config) []sandbox.NetworkDecl {
	decls := make([]sandbox.NetworkDecl, 0, len(cfg.Network.BindTCP)+len(cfg.Network.ConnectTCP))

	for _, port := range cfg.Network.BindTCP {
		decls = append(decls, sandbox.NetworkDecl{Port: port, Direction: sandbox.BindTCP})
	}

	for _, port := range cfg.Network.ConnectTCP {
		decls = append(decls, sandbox.NetworkDecl{Port: port, Direction: sandbox.ConnectTCP})
	}

	return decls
}

// printRuleset writes the --dry-run report.
func printRuleset(output io.Writer, caps sandbox.CapabilitySet, ruleset *sandbox.Ruleset) {
	if caps.ABI == 0 {
		fprintln(output, "landlock: not supported")
	} else {
		fprintf(output, "landlock: ABI v%d\n", caps.ABI)
	}

	fprintf(output, "filesystem confined: %t\n", ruleset.ConfinesFilesystem())
	fprintf(output, "network confined: %t\n", ruleset.ConfinesNetwork())

	for _, rule := range ruleset.PathRules() {
		fprintf(output, "path %s %s [%s]\n", rule.Level, rule.Path, rule.Access)
	}

	for _, rule := range ruleset.NetworkRules() {
		fprintf(output, "tcp %s %d\n", rule.Direction, rule.Port)
	}

	for _, diag := range ruleset.Diagnostics() {
		fprintf(output, "note: %s\n", diag)
	}
}

func boolValue(ptr *bool) bool {
	return ptr != nil && *ptr
}
