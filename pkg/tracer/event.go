// Package tracer implements the ptrace-stop state machine: given an
// attached tracee it resumes it, waits for ptrace-stops, classifies each
// stop into a TraceEvent, dispatches the event to a listener, and decides
// the resume mode from the listener's returned action.
package tracer

import (
	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/tracee"
)

// Kind classifies a single ptrace-stop.
type Kind int

const (
	// KindSyscallEntry is a syscall-entry-stop (PTRACE_SYSCALL before the
	// kernel runs the call).
	KindSyscallEntry Kind = iota
	// KindSyscallExit is a syscall-exit-stop.
	KindSyscallExit
	// KindSeccomp is a PTRACE_EVENT_SECCOMP stop; Message carries the
	// SECCOMP_RET_DATA value installed by the matching TRACE(code) rule.
	KindSeccomp
	// KindClone, KindFork and KindVfork are PTRACE_EVENT_{CLONE,FORK,VFORK}
	// stops; Message carries the new child's pid.
	KindClone
	KindFork
	KindVfork
	// KindExec is a PTRACE_EVENT_EXEC stop; Message is not read for it
	// and stays zero.
	KindExec
	// KindSignalDelivery is a group-stop or signal-delivery-stop carrying
	// a real signal the tracee was about to receive.
	KindSignalDelivery
	// KindExit is a PTRACE_EVENT_EXIT stop: the tracee is about to exit
	// with the status in Message.
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindSyscallEntry:
		return "syscall-entry"
	case KindSyscallExit:
		return "syscall-exit"
	case KindSeccomp:
		return "seccomp"
	case KindClone:
		return "clone"
	case KindFork:
		return "fork"
	case KindVfork:
		return "vfork"
	case KindExec:
		return "exec"
	case KindSignalDelivery:
		return "signal-delivery"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event describes a single classified ptrace-stop.
type Event struct {
	Kind Kind

	// Pid is the tracee that reported the stop.
	Pid int

	// Message is the auxiliary value from PTRACE_GETEVENTMSG: a new pid
	// for clone/fork/vfork, the SECCOMP_RET_DATA for seccomp, the wait
	// status for exit. Zero and unused for the remaining kinds.
	Message uint64

	// Signal is the pending signal for a signal-delivery-stop, or the
	// stop signal for a group-stop. Zero otherwise.
	Signal int

	// SyscallNumber and SyscallArgs are populated for KindSyscallEntry,
	// KindSyscallExit and KindSeccomp, read from the cached register
	// snapshot at the moment the stop was classified.
	SyscallNumber uint64
	SyscallArgs   [6]uint64
}

// Listener is the subset of the listener bus hooks the tracer dispatches
// to directly. The full hook set (including the execute-level hooks) is
// assembled by the executor package, which embeds this interface.
type Listener interface {
	OnPostExec(ev Event, t *tracee.Tracee) action.TraceAction
	OnPostClone(parentPid, childPid int) action.TraceAction
	OnTraceEvent(ev Event, t *tracee.Tracee) action.TraceAction
}
