//go:build linux

package sandbox

import (
	"errors"
	"fmt"

	ll "github.com/landlock-lsm/go-landlock/landlock/syscall"
	"golang.org/x/sys/unix"
)

// ErrRulesetConsumed is returned by Apply on a ruleset that was already
// applied. Enforcement is one-way: rights can only ever be narrowed, so a
// second attempt could never widen a failed first one and is refused outright.
var ErrRulesetConsumed = errors.New("ruleset has already been applied")

// Apply registers the ruleset with the kernel and restricts the current
// process. The restriction is irreversible for the rest of the process
// lifetime and is inherited by every descendant, including the image the
// process later execs into; there is no API to widen rights afterward.
//
// Registration is all-or-nothing from the caller's perspective: any failure
// while creating the kernel ruleset or adding an individual rule aborts
// before self-restriction, so the process is never left partially confined.
// If self-restriction itself fails the caller must treat the process as
// unconfined and must not launch the target.
//
// A ruleset that handles no right category at all is a successful no-op:
// the operator explicitly chose to confine nothing.
//
// Apply consumes the ruleset. All path handles are released on return,
// whatever the outcome.
func (r *Ruleset) Apply() error {
	if r.consumed {
		return ErrRulesetConsumed
	}

	r.consumed = true
	defer r.closeHandles()

	if r.handledFS == 0 && r.handledNet == 0 {
		return nil
	}

	attr := ll.RulesetAttr{
		HandledAccessFS:  uint64(r.handledFS),
		HandledAccessNet: uint64(r.handledNet),
	}

	rulesetFD, err := ll.LandlockCreateRuleset(&attr, 0)
	if err != nil {
		return fmt.Errorf("creating landlock ruleset: %w", err)
	}
	defer func() { _ = unix.Close(rulesetFD) }()

	for _, rule := range r.pathRules {
		err = ll.LandlockAddPathBeneathRule(rulesetFD, &ll.PathBeneathAttr{
			AllowedAccess: uint64(rule.Access),
			ParentFd:      rule.fd,
		}, 0)
		if err != nil {
			return fmt.Errorf("registering rule for %s: %w", rule.Path, err)
		}
	}

	for _, rule := range r.netRules {
		err = ll.LandlockAddNetPortRule(rulesetFD, &ll.NetPortAttr{
			AllowedAccess: uint64(netAccess(rule.Direction)),
			Port:          uint64(rule.Port),
		}, 0)
		if err != nil {
			return fmt.Errorf("registering rule for %s port %d: %w", rule.Direction, rule.Port, err)
		}
	}

	// Landlock requires no_new_privs (or CAP_SYS_ADMIN) before restriction.
	// Both calls must cover every OS thread of the process, not just the
	// calling one; the go-landlock syscall package handles that via psx.
	err = ll.AllThreadsPrctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("setting no_new_privs: %w", err)
	}

	err = ll.AllThreadsLandlockRestrictSelf(rulesetFD, 0)
	if err != nil {
		return fmt.Errorf("restricting self: %w", err)
	}

	return nil
}

func netAccess(direction NetworkDirection) AccessNetSet {
	if direction == BindTCP {
		return AccessNetBindTCP
	}

	return AccessNetConnectTCP
}
