//go:build linux

package sandbox

import (
	"strings"

	ll "github.com/landlock-lsm/go-landlock/landlock/syscall"
)

// AccessFSSet is a set of Landlock filesystem access rights, one bit per
// right as defined by the kernel UAPI (and re-exported by the go-landlock
// syscall package).
type AccessFSSet uint64

// Individual filesystem access rights.
const (
	AccessFSExecute    AccessFSSet = ll.AccessFSExecute
	AccessFSWriteFile  AccessFSSet = ll.AccessFSWriteFile
	AccessFSReadFile   AccessFSSet = ll.AccessFSReadFile
	AccessFSReadDir    AccessFSSet = ll.AccessFSReadDir
	AccessFSRemoveDir  AccessFSSet = ll.AccessFSRemoveDir
	AccessFSRemoveFile AccessFSSet = ll.AccessFSRemoveFile
	AccessFSMakeChar   AccessFSSet = ll.AccessFSMakeChar
	AccessFSMakeDir    AccessFSSet = ll.AccessFSMakeDir
	AccessFSMakeReg    AccessFSSet = ll.AccessFSMakeReg
	AccessFSMakeSock   AccessFSSet = ll.AccessFSMakeSock
	AccessFSMakeFifo   AccessFSSet = ll.AccessFSMakeFifo
	AccessFSMakeBlock  AccessFSSet = ll.AccessFSMakeBlock
	AccessFSMakeSym    AccessFSSet = ll.AccessFSMakeSym
	AccessFSRefer      AccessFSSet = ll.AccessFSRefer
	AccessFSTruncate   AccessFSSet = ll.AccessFSTruncate
	AccessFSIoctlDev   AccessFSSet = ll.AccessFSIoctlDev
)

// AccessNetSet is a set of Landlock TCP network access rights.
type AccessNetSet uint64

// Individual network access rights.
const (
	AccessNetBindTCP    AccessNetSet = ll.AccessNetBindTCP
	AccessNetConnectTCP AccessNetSet = ll.AccessNetConnectTCP
)

var accessFSNames = []struct {
	bit  AccessFSSet
	name string
}{
	{AccessFSExecute, "execute"},
	{AccessFSWriteFile, "write_file"},
	{AccessFSReadFile, "read_file"},
	{AccessFSReadDir, "read_dir"},
	{AccessFSRemoveDir, "remove_dir"},
	{AccessFSRemoveFile, "remove_file"},
	{AccessFSMakeChar, "make_char"},
	{AccessFSMakeDir, "make_dir"},
	{AccessFSMakeReg, "make_reg"},
	{AccessFSMakeSock, "make_sock"},
	{AccessFSMakeFifo, "make_fifo"},
	{AccessFSMakeBlock, "make_block"},
	{AccessFSMakeSym, "make_sym"},
	{AccessFSRefer, "refer"},
	{AccessFSTruncate, "truncate"},
	{AccessFSIoctlDev, "ioctl_dev"},
}

// String returns the rights in the set as a comma-separated list of kernel
// UAPI-style names, e.g. "read_file,read_dir".
func (a AccessFSSet) String() string {
	if a == 0 {
		return "(none)"
	}

	names := make([]string, 0, len(accessFSNames))

	for _, entry := range accessFSNames {
		if a&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}

	return strings.Join(names, ",")
}

// CapabilitySet describes what the running kernel's Landlock subsystem can
// confine. It is probed once via Detect and threaded through the pipeline as
// an immutable value, which keeps rule building deterministic under test
// (tests fabricate synthetic sets instead of depending on kernel versions).
type CapabilitySet struct {
	// ABI is the negotiated Landlock ABI version. 0 means the subsystem is
	// absent or disabled; whether that is fatal depends on what the caller
	// asked to confine, so Detect never fails.
	ABI int

	// SupportedFS holds every filesystem right the kernel can handle at ABI.
	SupportedFS AccessFSSet

	// NetworkSupported reports whether TCP bind/connect rules are available
	// (ABI v4 and later).
	NetworkSupported bool
}

// HighestKnownABI is the newest Landlock ABI version this package knows how
// to drive. Kernels reporting a newer version are treated as this one.
const HighestKnownABI = 6

// abiSupportedFS maps an ABI version to the filesystem rights it handles.
// Later versions only ever add rights.
var abiSupportedFS = map[int]AccessFSSet{
	1: AccessFSExecute | AccessFSWriteFile | AccessFSReadFile | AccessFSReadDir |
		AccessFSRemoveDir | AccessFSRemoveFile | AccessFSMakeChar | AccessFSMakeDir |
		AccessFSMakeReg | AccessFSMakeSock | AccessFSMakeFifo | AccessFSMakeBlock |
		AccessFSMakeSym,
	2: AccessFSRefer,
	3: AccessFSTruncate,
	4: 0, // v4 adds TCP network rules, no new filesystem rights
	5: AccessFSIoctlDev,
	6: 0, // v6 adds IPC scoping, which this package does not drive
}

// networkABIVersion is the ABI version that introduced TCP port rules.
const networkABIVersion = 4

// CapabilitiesForABI returns the CapabilitySet a kernel with the given ABI
// version exposes. ABI values below 1 yield the zero set (subsystem absent);
// values above HighestKnownABI are clamped.
func CapabilitiesForABI(abi int) CapabilitySet {
	if abi < 1 {
		return CapabilitySet{}
	}

	if abi > HighestKnownABI {
		abi = HighestKnownABI
	}

	var supported AccessFSSet
	for v := 1; v <= abi; v++ {
		supported |= abiSupportedFS[v]
	}

	return CapabilitySet{
		ABI:              abi,
		SupportedFS:      supported,
		NetworkSupported: abi >= networkABIVersion,
	}
}

// Detect queries the running kernel once for its Landlock ABI version and
// derives the corresponding CapabilitySet. A kernel without Landlock (or with
// Landlock disabled at boot) yields the zero set; that result is purely
// informational here, the fail/continue decision belongs to Build.
func Detect() CapabilitySet {
	version, err := ll.LandlockGetABIVersion()
	if err != nil {
		return CapabilitySet{}
	}

	return CapabilitiesForABI(version)
}
