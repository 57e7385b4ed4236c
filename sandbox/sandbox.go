//go:build linux

// Package sandbox translates friendly permission grants (per-path access
// levels, per-port TCP grants) into a Landlock ruleset and applies it to the
// current process before it execs into a target command.
//
// # Pipeline
//
// The package is organized as a strictly sequential pipeline of explicit
// values; no stage depends on a later one and no global state exists:
//
//	caps := sandbox.Detect()                  // probe the kernel once
//	rs, err := sandbox.Build(cfg, caps)       // resolve + validate rules
//	err = rs.Apply()                          // irreversible self-restriction
//	err = sandbox.Launch(argv, cfg.Env, env)  // execve, never returns on success
//
// Ordering is load-bearing. Apply is a one-way door: once the process is
// restricted there is no way to widen rights again, for this process or any
// descendant. Build therefore resolves and validates everything up front and
// fails before Apply on any fatal condition, and Apply registers every rule
// before invoking self-restriction so a partially confined process cannot
// exist.
//
// # Fail-closed policy
//
// Ambiguity never degrades into permissiveness. A kernel without Landlock is
// fatal when confinement was requested (ErrCapabilityAbsent); TCP rules on a
// kernel that cannot enforce them are fatal unless the operator explicitly
// opts into an unconfined network (ErrNetworkUnsupported). Only individual
// rights missing from an older ABI are narrowed silently, because the result
// is still strictly safer than what was asked for; those narrowings are
// recorded as diagnostics on the Ruleset.
//
// # Platform
//
// Linux-only (see the build tag above). Landlock is an unprivileged
// mechanism: no capabilities, user namespaces or setuid helpers are involved.
// The kernel must be built with CONFIG_SECURITY_LANDLOCK and have landlock in
// the active LSM list; Detect reports ABI 0 otherwise.
package sandbox
