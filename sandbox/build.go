//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sys/unix"
)

// Static errors surfaced by Build.
var (
	// ErrCapabilityAbsent is returned when the kernel has no Landlock support
	// at all but the configuration asks for confinement. Launching anyway
	// would silently grant full access, so this fails closed.
	ErrCapabilityAbsent = errors.New("landlock is not supported by the running kernel")

	// ErrPathUnresolvable is returned when a declared path cannot be opened
	// for inspection (missing, or no ambient permission).
	ErrPathUnresolvable = errors.New("cannot resolve sandbox path")

	// ErrNetworkUnsupported is returned when TCP port declarations exist but
	// the kernel's Landlock ABI predates network rules. The operator must
	// either upgrade or explicitly opt into an unconfined network.
	ErrNetworkUnsupported = errors.New("landlock TCP port rules are not supported by the running kernel")
)

// PathRule is a resolved filesystem rule: a stable handle on the declared
// path plus the effective right set for everything beneath it.
type PathRule struct {
	// Path is the declared path, kept for diagnostics only. Enforcement uses
	// the handle, so renaming or replacing the path after Build has no effect
	// on what the rule covers.
	Path string

	// Level is the access level the declaration requested.
	Level AccessLevel

	// Access is the effective right set. It is always a subset of what the
	// probed CapabilitySet supports and may be a strict subset of what Level
	// nominally requests.
	Access AccessFSSet

	// IsDir reports whether the resolved handle is a directory.
	IsDir bool

	// fd is an O_PATH handle opened at build time. Owned by the Ruleset and
	// released when the ruleset is applied or closed.
	fd int
}

// NetworkRule is a resolved TCP port rule.
type NetworkRule struct {
	Port      uint16
	Direction NetworkDirection
}

// Ruleset is the validated output of Build and the single input to Apply.
// It declares up front which right categories it confines at all: a category
// with no handled rights stays entirely unconfined, which is different from
// "confined with an empty allow-list" (that would deny everything).
type Ruleset struct {
	handledFS  AccessFSSet
	handledNet AccessNetSet

	pathRules []PathRule
	netRules  []NetworkRule

	diagnostics []string
	consumed    bool
}

// ConfinesFilesystem reports whether the filesystem category is handled.
func (r *Ruleset) ConfinesFilesystem() bool { return r.handledFS != 0 }

// ConfinesNetwork reports whether the TCP network category is handled.
func (r *Ruleset) ConfinesNetwork() bool { return r.handledNet != 0 }

// PathRules returns a copy of the resolved filesystem rules.
func (r *Ruleset) PathRules() []PathRule { return slices.Clone(r.pathRules) }

// NetworkRules returns a copy of the resolved TCP port rules.
func (r *Ruleset) NetworkRules() []NetworkRule { return slices.Clone(r.netRules) }

// Diagnostics returns the non-fatal findings recorded while building:
// degraded rights, dropped declarations, skipped no-op rules.
func (r *Ruleset) Diagnostics() []string { return slices.Clone(r.diagnostics) }

// Close releases the path handles of a ruleset that will not be applied
// (e.g. after a dry run). Applying the ruleset releases them implicitly.
func (r *Ruleset) Close() {
	r.closeHandles()
}

func (r *Ruleset) closeHandles() {
	for i := range r.pathRules {
		if r.pathRules[i].fd >= 0 {
			_ = unix.Close(r.pathRules[i].fd)
			r.pathRules[i].fd = -1
		}
	}
}

// Build resolves the configuration against the probed capabilities into a
// Ruleset ready for enforcement.
//
// Path declarations are resolved to O_PATH handles now, not at enforcement
// time, closing the window between path resolution and rule application. A
// declaration whose effective right set degrades to empty is skipped with a
// diagnostic; every fatal condition (unresolvable path, absent subsystem,
// unsupported network rules without an override) aborts before anything is
// registered with the kernel.
//
// Adding declarations to a configuration can only ever enlarge what the
// resulting ruleset allows: rules are never merged, deduplicated or narrowed
// against each other.
func Build(cfg *Config, caps CapabilitySet) (*Ruleset, error) {
	err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}

	if caps.ABI == 0 && !(cfg.UnrestrictedFilesystem && cfg.UnrestrictedNetwork) {
		return nil, fmt.Errorf("%w: pass --unrestricted-filesystem and --unrestricted-network to launch without confinement", ErrCapabilityAbsent)
	}

	ruleset := &Ruleset{}

	err = buildFilesystem(ruleset, cfg, caps)
	if err != nil {
		ruleset.closeHandles()

		return nil, err
	}

	err = buildNetwork(ruleset, cfg, caps)
	if err != nil {
		ruleset.closeHandles()

		return nil, err
	}

	return ruleset, nil
}

func buildFilesystem(ruleset *Ruleset, cfg *Config, caps CapabilitySet) error {
	if cfg.UnrestrictedFilesystem {
		if len(cfg.Paths) > 0 {
			ruleset.diagnostics = append(ruleset.diagnostics,
				fmt.Sprintf("unrestricted filesystem: dropping %d path declaration(s)", len(cfg.Paths)))
		}

		return nil
	}

	// Handle every right the kernel supports, so anything not explicitly
	// granted below is denied.
	ruleset.handledFS = caps.SupportedFS

	for _, decl := range cfg.Paths {
		rule, err := resolvePathDecl(decl, caps)
		if err != nil {
			return err
		}

		if rule.Access == 0 {
			ruleset.diagnostics = append(ruleset.diagnostics,
				fmt.Sprintf("skipping %s: level %s grants no right supported at ABI v%d", decl.Path, decl.Level, caps.ABI))

			continue
		}

		if degraded := nominalAccess(decl.Level, rule.IsDir) &^ rule.Access; degraded != 0 {
			ruleset.diagnostics = append(ruleset.diagnostics,
				fmt.Sprintf("%s: rights unavailable at ABI v%d and narrowed away: %s", decl.Path, caps.ABI, degraded))
		}

		ruleset.pathRules = append(ruleset.pathRules, rule)
	}

	return nil
}

func buildNetwork(ruleset *Ruleset, cfg *Config, caps CapabilitySet) error {
	if cfg.UnrestrictedNetwork {
		if len(cfg.Networks) > 0 {
			ruleset.diagnostics = append(ruleset.diagnostics,
				fmt.Sprintf("unrestricted network: dropping %d port declaration(s)", len(cfg.Networks)))
		}

		return nil
	}

	if !caps.NetworkSupported {
		if len(cfg.Networks) > 0 {
			return fmt.Errorf("%w (kernel reports ABI v%d, need v%d): pass --unrestricted-network to launch without TCP confinement", ErrNetworkUnsupported, caps.ABI, networkABIVersion)
		}

		// Nothing was asked for and nothing can be handled; the network stays
		// unconfined because the category is never declared.
		ruleset.diagnostics = append(ruleset.diagnostics,
			fmt.Sprintf("TCP confinement unavailable at ABI v%d; network left unrestricted", caps.ABI))

		return nil
	}

	ruleset.handledNet = AccessNetBindTCP | AccessNetConnectTCP

	for _, decl := range cfg.Networks {
		ruleset.netRules = append(ruleset.netRules, NetworkRule{
			Port:      decl.Port,
			Direction: decl.Direction,
		})
	}

	return nil
}

// resolvePathDecl opens a stable handle on the declared path and computes its
// effective right set. The handle survives later renames of the path, so the
// rule keeps covering exactly the object that was inspected here.
func resolvePathDecl(decl PathDecl, caps CapabilitySet) (PathRule, error) {
	fd, err := unix.Open(decl.Path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return PathRule{}, fmt.Errorf("%w: opening %s: %w", ErrPathUnresolvable, decl.Path, err)
	}

	var stat unix.Stat_t

	err = unix.Fstat(fd, &stat)
	if err != nil {
		_ = unix.Close(fd)

		return PathRule{}, fmt.Errorf("%w: inspecting %s: %w", ErrPathUnresolvable, decl.Path, err)
	}

	isDir := stat.Mode&unix.S_IFMT == unix.S_IFDIR

	return PathRule{
		Path:   decl.Path,
		Level:  decl.Level,
		Access: Translate(decl.Level, caps, isDir),
		IsDir:  isDir,
		fd:     fd,
	}, nil
}

// nominalAccess is what a level would grant on the newest known kernel; the
// difference to the effective set is reported as a degradation diagnostic.
func nominalAccess(level AccessLevel, isDir bool) AccessFSSet {
	return Translate(level, CapabilitiesForABI(HighestKnownABI), isDir)
}
