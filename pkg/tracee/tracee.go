package tracee

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Tracee is a thin accessor over a single traced process id. It owns a
// cached register snapshot taken at the most recent ptrace-stop; reading
// registers outside of a stop is undefined, per the invariant in the data
// model this package implements.
type Tracee struct {
	pid  int
	arch Arch
	regs PtraceRegs

	// haveRegs is false until the first successful RefreshRegs, so
	// GetSyscallNumber/GetSyscallArgument fail cleanly instead of reading
	// zeroed registers.
	haveRegs bool
}

// New constructs a Tracee for pid. It does not itself attach or read
// registers; the tracer calls RefreshRegs once the tracee is actually
// stopped.
func New(pid int) *Tracee {
	return &Tracee{pid: pid, arch: UNKNOWN}
}

// Pid returns the tracee's process id.
func (t *Tracee) Pid() int { return t.pid }

// IsAlive reports whether a null-signal probe to the tracee succeeds. A
// dead tracee has typically already delivered its terminal wait
// notification; this is used defensively by listeners that want to confirm
// liveness outside of that notification.
func (t *Tracee) IsAlive() bool {
	return unix.Kill(t.pid, 0) == nil
}

// RefreshRegs re-reads the general purpose registers via PTRACE_GETREGS.
// The tracer calls this exactly once per stop, before building the
// TraceEvent for that stop and dispatching it to listeners.
func (t *Tracee) RefreshRegs() error {
	var regs PtraceRegs
	if err := unix.PtraceGetRegs(t.pid, &regs); err != nil {
		return fmt.Errorf("ptrace getregs: %w", err)
	}
	t.regs = regs
	t.haveRegs = true
	return nil
}

// GetEventMsg returns the kernel-supplied auxiliary value for the current
// stop (e.g. the new child pid on a clone/fork/vfork stop, or the SECCOMP_RET
// data on a seccomp stop). It fails if the tracee is not currently stopped.
func (t *Tracee) GetEventMsg() (uint64, error) {
	msg, err := unix.PtraceGetEventMsg(t.pid)
	if err != nil {
		return 0, fmt.Errorf("ptrace geteventmsg: %w", err)
	}
	return msg, nil
}

// SetSyscallArch records the syscall calling convention in effect for this
// tracee. The tracer calls this once, from Attach, with the arch it was
// given; it does not call it again on exec.
func (t *Tracee) SetSyscallArch(arch Arch) { t.arch = arch }

// SyscallArch returns the previously recorded syscall calling convention.
func (t *Tracee) SyscallArch() Arch { return t.arch }

// GetSyscallNumber returns the syscall number from the cached registers.
// The kernel preserves the original accumulator value across syscall entry,
// so this reads correctly at both syscall-entry-stop and syscall-exit-stop.
func (t *Tracee) GetSyscallNumber() (uint64, error) {
	if t.arch == UNKNOWN {
		return 0, errUnknownArch
	}
	if !t.haveRegs {
		return 0, fmt.Errorf("tracee: no register snapshot taken yet")
	}
	return t.regs.Orig_rax, nil
}

// GetSyscallArgument returns the i'th syscall argument (i in 0..5) decoded
// per the calling convention of the tracee's syscall arch.
func (t *Tracee) GetSyscallArgument(i int) (uint64, error) {
	if t.arch == UNKNOWN {
		return 0, errUnknownArch
	}
	if !t.haveRegs {
		return 0, fmt.Errorf("tracee: no register snapshot taken yet")
	}
	if i < 0 || i > 5 {
		return 0, fmt.Errorf("tracee: argument index %d out of range", i)
	}
	switch t.arch {
	case X86_64:
		return x8664ArgOrder[i](&t.regs), nil
	case X86:
		return x86ArgOrder[i](&t.regs), nil
	default:
		return 0, errUnknownArch
	}
}

// CancelSyscall rewrites the pending syscall so the kernel short-circuits
// it: the syscall number slot is overwritten with an invalid number and the
// return-value register is set to returnValue. It must be called at a
// syscall-entry-stop, before the kernel would otherwise execute the call.
func (t *Tracee) CancelSyscall(returnValue uint64) error {
	if !t.haveRegs {
		return fmt.Errorf("tracee: no register snapshot taken yet")
	}
	regs := t.regs
	regs.Orig_rax = ^uint64(0) // no syscall has this number; kernel denies it
	regs.Rax = returnValue
	if err := unix.PtraceSetRegs(t.pid, &regs); err != nil {
		return fmt.Errorf("ptrace setregs: %w", err)
	}
	t.regs = regs
	return nil
}
