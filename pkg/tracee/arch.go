// Package tracee provides a thin accessor over a single traced process: it
// caches the register file taken at the most recent ptrace-stop and exposes
// syscall number/argument decoding, cross-process memory reads and the
// syscall-cancellation trick, across the x86 and x86_64 calling conventions.
package tracee

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PtraceRegs is the general-purpose register snapshot taken by
// PTRACE_GETREGS, aliased so the rest of this package need not import
// golang.org/x/sys/unix directly.
type PtraceRegs = unix.PtraceRegs

// Arch identifies the syscall calling convention in effect for a tracee.
// A freshly constructed Tracee starts UNKNOWN; Tracer.Attach sets it to the
// arch it is given when the tracee is attached. It is not re-derived from
// the traced image, including after an exec.
type Arch int

const (
	// UNKNOWN means no syscall arch has been determined yet; syscall number
	// and argument decoding are undefined until SetSyscallArch is called.
	UNKNOWN Arch = iota
	// X86 is the 32-bit (ia32) calling convention.
	X86
	// X86_64 is the native 64-bit calling convention.
	X86_64
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	default:
		return "UNKNOWN"
	}
}

// x8664ArgOrder and x86ArgOrder map argument index (0..5) to the general
// purpose register that
// carries it, per the native Linux syscall ABI for each architecture. See
// arch/x86/entry/entry_64.S (x86_64) and arch/x86/entry/entry_32.S (x86).
var x8664ArgOrder = [6]func(*PtraceRegs) uint64{
	func(r *PtraceRegs) uint64 { return r.Rdi },
	func(r *PtraceRegs) uint64 { return r.Rsi },
	func(r *PtraceRegs) uint64 { return r.Rdx },
	func(r *PtraceRegs) uint64 { return r.R10 },
	func(r *PtraceRegs) uint64 { return r.R8 },
	func(r *PtraceRegs) uint64 { return r.R9 },
}

var x86ArgOrder = [6]func(*PtraceRegs) uint64{
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rbx)) },
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rcx)) },
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rdx)) },
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rsi)) },
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rdi)) },
	func(r *PtraceRegs) uint64 { return uint64(uint32(r.Rbp)) },
}

// errUnknownArch is returned whenever a decode is attempted before the
// syscall arch has been established.
var errUnknownArch = fmt.Errorf("tracee: syscall arch is unknown")
