package tracer

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/seccomp"
	"github.com/sio2box/jail/pkg/tracee"
)

// traceOpts are the PTRACE_SETOPTIONS bits the tracer installs on every
// tracee it attaches to: it wants to see seccomp stops, every flavor of
// fork, exec, and the early exit notification, and it wants SIGTRAP|0x80
// to distinguish syscall-stops from ordinary traps.
const traceOpts = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACESECCOMP |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_TRACEEXIT

// Tracer drives the ptrace-stop state machine across one or more tracees
// spawned from a single supervised child. It does not itself fork or wait
// on the top-level ExecuteEvent stream; the executor calls HandleStop
// whenever its own wait loop observes that a tracee is stopped.
type Tracer struct {
	listener Listener
	live     *registry

	// handlers maps a seccomp TRACE(code) user-data value to the Go
	// callback registered for it, so a KindSeccomp stop can be dispatched
	// straight to the rule that produced it instead of only through the
	// generic listener bus.
	handlers map[uint16]seccomp.TraceHandler

	// protoLimiter rate-limits diagnostic logging for ptrace protocol
	// errors (e.g. a stop that doesn't match any known classification),
	// so a tracee that spins through many bad stops cannot flood logs.
	protoLimiter *rate.Limiter
	onProtoError func(pid int, err error)
}

// New constructs a Tracer dispatching to listener. handlers may be nil;
// any KindSeccomp stop whose TRACE(code) has a registered handler is
// dispatched to it, and every other stop (including a KindSeccomp stop
// with no matching entry) goes through listener.OnTraceEvent as before.
// onProtoError, if non-nil, is called (rate-limited to once per 200ms)
// whenever a stop cannot be classified, a register refresh or attach of a
// tracee fails, or a registered TRACE handler returns an error.
func New(listener Listener, handlers map[uint16]seccomp.TraceHandler, onProtoError func(pid int, err error)) *Tracer {
	return &Tracer{
		listener:     listener,
		live:         newRegistry(),
		handlers:     handlers,
		protoLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		onProtoError: onProtoError,
	}
}

// Attach registers pid as a live tracee and sets the tracer's ptrace
// options on it. Called once for the initial child (after PTRACE_TRACEME
// and its first exec-stop) and again from HandleStop's clone/fork/vfork
// case for every new child.
func (tr *Tracer) Attach(pid int, arch tracee.Arch) (*tracee.Tracee, error) {
	if err := unix.PtraceSetOptions(pid, traceOpts); err != nil {
		return nil, fmt.Errorf("tracer: ptrace setoptions on pid %d: %w", pid, err)
	}
	t := tracee.New(pid)
	t.SetSyscallArch(arch)
	tr.live.insert(t)
	return t, nil
}

// Live reports the number of tracees the tracer still considers attached.
func (tr *Tracer) Live() int { return tr.live.len() }

// LivePids returns the attached pids in ascending order.
func (tr *Tracer) LivePids() []int { return tr.live.pids() }

// HandleStop processes exactly one ptrace-stop reported by pid: it
// refreshes the cached registers, classifies the stop, dispatches the
// resulting Event to the listener, and resumes the tracee in the mode the
// aggregated verdict demands. It returns the folded TraceAction so the
// executor can escalate to an ExecuteAction kill if needed.
func (tr *Tracer) HandleStop(pid int, status unix.WaitStatus) (action.TraceAction, error) {
	t, ok := tr.live.get(pid)
	if !ok {
		return action.TraceContinue, fmt.Errorf("tracer: stop reported for unknown pid %d", pid)
	}

	if err := t.RefreshRegs(); err != nil {
		tr.reportProtoError(pid, err)
	}

	ev, verdict, err := tr.classify(t, status)
	if err != nil {
		tr.reportProtoError(pid, err)
		return action.TraceContinue, err
	}

	switch ev.Kind {
	case KindExec:
		verdict = verdict.Max(tr.listener.OnPostExec(ev, t))
	case KindClone, KindFork, KindVfork:
		childPid := int(ev.Message)
		// The new child is not yet attached here; PTRACE_O_TRACE{CLONE,
		// FORK,VFORK} guarantees it is already ptrace-stopped and
		// waiting for its own first report, which the executor's wait
		// loop will deliver as a fresh HandleStop call after Attach.
		if _, attachErr := tr.Attach(childPid, t.SyscallArch()); attachErr != nil {
			tr.reportProtoError(childPid, attachErr)
		}
		verdict = verdict.Max(tr.listener.OnPostClone(pid, childPid))
	case KindSeccomp:
		if h, ok := tr.handlers[uint16(ev.Message)]; ok {
			v, herr := h(t)
			if herr != nil {
				tr.reportProtoError(pid, herr)
			}
			verdict = verdict.Max(v)
		} else {
			verdict = verdict.Max(tr.listener.OnTraceEvent(ev, t))
		}
	default:
		verdict = verdict.Max(tr.listener.OnTraceEvent(ev, t))
	}

	if ev.Kind == KindExit {
		tr.live.remove(pid)
	}

	return verdict, tr.resume(t, ev, verdict)
}

// classify turns a raw wait status into an Event plus the signal the
// kernel would otherwise inject on resume (default verdict CONTINUE).
func (tr *Tracer) classify(t *tracee.Tracee, status unix.WaitStatus) (Event, action.TraceAction, error) {
	ev := Event{Pid: t.Pid()}

	switch {
	case status.StopSignal() == unix.SIGTRAP|0x80:
		// SYSGOOD-tagged syscall stop; entry vs exit is ambiguous from
		// the status alone and no per-pid parity is tracked, so every
		// such stop is reported as KindSyscallEntry (KindSyscallExit is
		// never produced here). The listener bus sees it as a trace
		// event carrying the decoded syscall.
		ev.Kind = KindSyscallEntry
	case status.TrapCause() == unix.PTRACE_EVENT_SECCOMP:
		msg, err := t.GetEventMsg()
		if err != nil {
			return ev, action.TraceContinue, err
		}
		ev.Kind = KindSeccomp
		ev.Message = msg
	case status.TrapCause() == unix.PTRACE_EVENT_CLONE:
		msg, err := t.GetEventMsg()
		if err != nil {
			return ev, action.TraceContinue, err
		}
		ev.Kind, ev.Message = KindClone, msg
	case status.TrapCause() == unix.PTRACE_EVENT_FORK:
		msg, err := t.GetEventMsg()
		if err != nil {
			return ev, action.TraceContinue, err
		}
		ev.Kind, ev.Message = KindFork, msg
	case status.TrapCause() == unix.PTRACE_EVENT_VFORK:
		msg, err := t.GetEventMsg()
		if err != nil {
			return ev, action.TraceContinue, err
		}
		ev.Kind, ev.Message = KindVfork, msg
	case status.TrapCause() == unix.PTRACE_EVENT_EXEC:
		ev.Kind = KindExec
	case status.TrapCause() == unix.PTRACE_EVENT_EXIT:
		msg, err := t.GetEventMsg()
		if err != nil {
			return ev, action.TraceContinue, err
		}
		ev.Kind, ev.Message = KindExit, msg
	case status.Stopped():
		ev.Kind = KindSignalDelivery
		ev.Signal = int(status.StopSignal())
	default:
		return ev, action.TraceContinue, fmt.Errorf("tracer: pid %d reported unclassifiable stop %v", t.Pid(), status)
	}

	if ev.Kind == KindSyscallEntry || ev.Kind == KindSyscallExit || ev.Kind == KindSeccomp {
		if n, err := t.GetSyscallNumber(); err == nil {
			ev.SyscallNumber = n
			for i := range ev.SyscallArgs {
				if v, aerr := t.GetSyscallArgument(i); aerr == nil {
					ev.SyscallArgs[i] = v
				}
			}
		}
	}

	return ev, action.TraceContinue, nil
}

// resume continues the tracee per the aggregated verdict.
func (tr *Tracer) resume(t *tracee.Tracee, ev Event, verdict action.TraceAction) error {
	switch verdict {
	case action.TraceKill:
		_ = unix.PtraceDetach(t.Pid())
		if err := unix.Kill(t.Pid(), unix.SIGKILL); err != nil && err != unix.ESRCH {
			return fmt.Errorf("tracer: kill pid %d: %w", t.Pid(), err)
		}
		return nil
	case action.TraceContinueQuietly:
		return tr.ptraceResume(t, ev, 0)
	default:
		return tr.ptraceResume(t, ev, ev.Signal)
	}
}

func (tr *Tracer) ptraceResume(t *tracee.Tracee, ev Event, signal int) error {
	if ev.Kind == KindExit {
		return nil
	}
	if ev.Kind == KindSyscallEntry || ev.Kind == KindSyscallExit {
		return unix.PtraceSyscall(t.Pid(), signal)
	}
	return unix.PtraceCont(t.Pid(), signal)
}

func (tr *Tracer) reportProtoError(pid int, err error) {
	if tr.onProtoError == nil {
		return
	}
	if tr.protoLimiter.Allow() {
		tr.onProtoError(pid, err)
	}
}

