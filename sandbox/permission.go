//go:build linux

package sandbox

import "fmt"

// AccessLevel is the friendly access level attached to a path declaration.
// Levels are cumulative: every level includes read access, and the execute
// variants add execution on top of their base level.
type AccessLevel uint8

// Supported access levels.
const (
	// ReadOnly grants reading files and, for directories, listing entries.
	ReadOnly AccessLevel = iota
	// ReadWrite adds writing, truncation, removal and creation of filesystem
	// objects beneath the path.
	ReadWrite
	// ReadExecute is ReadOnly plus executing files.
	ReadExecute
	// ReadWriteExecute is ReadWrite plus executing files.
	ReadWriteExecute
)

// String returns the short CLI-facing name of the level (ro/rw/rox/rwx).
func (l AccessLevel) String() string {
	switch l {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadExecute:
		return "rox"
	case ReadWriteExecute:
		return "rwx"
	default:
		return fmt.Sprintf("AccessLevel(%d)", uint8(l))
	}
}

func (l AccessLevel) valid() bool {
	return l <= ReadWriteExecute
}

// writeAccess is every right a ReadWrite grant nominally includes beyond
// reading. Truncate and Refer are version-gated and drop out via the
// SupportedFS intersection on older kernels.
const writeAccess = AccessFSWriteFile | AccessFSTruncate |
	AccessFSRemoveFile | AccessFSMakeReg | AccessFSMakeSym | AccessFSMakeFifo |
	AccessFSMakeSock | AccessFSMakeChar | AccessFSMakeBlock

// writeDirAccess is the additional write rights that only make sense on
// directories.
const writeDirAccess = AccessFSRemoveDir | AccessFSMakeDir | AccessFSRefer

// fileCompatibleAccess is the subset of rights the kernel accepts on a rule
// whose target is not a directory. Rules carrying directory-only rights on a
// plain file are rejected with EINVAL at registration time, so Translate
// narrows them away up front.
const fileCompatibleAccess = AccessFSReadFile | AccessFSWriteFile |
	AccessFSExecute | AccessFSTruncate | AccessFSIoctlDev

// Translate maps an access level to the concrete set of filesystem rights to
// grant on a path, given the probed kernel capabilities and whether the path
// is a directory.
//
// Every candidate right is intersected with caps.SupportedFS: rights the
// kernel cannot handle are dropped silently, never raised as an error. One
// configuration therefore runs unchanged across kernel versions, with
// reduced but still safe guarantees on older ones. The result can only grow
// with the capability set, never shrink.
func Translate(level AccessLevel, caps CapabilitySet, isDir bool) AccessFSSet {
	access := AccessFSReadFile
	if isDir {
		access |= AccessFSReadDir
	}

	if level == ReadWrite || level == ReadWriteExecute {
		access |= writeAccess
		if isDir {
			access |= writeDirAccess
		}
	}

	if level == ReadExecute || level == ReadWriteExecute {
		access |= AccessFSExecute
	}

	if !isDir {
		access &= fileCompatibleAccess
	}

	return access & caps.SupportedFS
}
