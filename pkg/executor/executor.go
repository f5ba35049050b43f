package executor

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ResourceConfiner is the capability-drop/cgroup-join step split across
// fork: JoinParent runs in the supervisor itself right after fork returns
// the child's pid (the cgroup library's file I/O has no business running
// in a freshly forked, not-yet-exec'd child), while DropCapabilitiesChild
// runs in the child between fork and the listener bus's on_post_fork_child
// hooks, and must never run after the seccomp filter is loaded. Defined
// here as a narrow interface so the executor does not need to depend on
// the confiner package's concrete type.
type ResourceConfiner interface {
	JoinParent(childPid int) error
	DropCapabilitiesChild() error
}

// Executor is the top-level supervisor described in spec.md §4.1: given a
// program, its argv and a listener list, execute() forks the child, walks
// it through the listener-driven setup, execs the target, and runs the
// parent wait loop until the child terminates.
type Executor struct {
	programName string
	args        []string
	listeners   []Listener
	confiner    ResourceConfiner

	childPid int32 // accessed via atomic so signal-path reads stay safe
	outcome  Outcome

	sigioFlag   int32
	sigalrmFlag int32
}

// New constructs an Executor. confiner may be nil if the caller's policy
// needs no capability drop or cgroup join.
func New(programName string, args []string, listeners []Listener, confiner ResourceConfiner) *Executor {
	return &Executor{programName: programName, args: args, listeners: listeners, confiner: confiner}
}

// Execute runs the supervised program to completion. It must be called at
// most once.
//
// It locks the calling goroutine to its OS thread for its entire duration
// and never unlocks it: every ptrace(2) call a tracer issues against a
// tracee must come from the exact OS thread that forked or PTRACE_ATTACHed
// it, and the fork below, the wait loop, and every ptrace call a listener
// makes while handling an ExecuteEvent all need to run on that one thread.
// Without the lock the Go scheduler is free to migrate this goroutine to a
// different M between the fork and any later ptrace call, which the kernel
// then rejects with ESRCH or EPERM. Letting the thread terminate with the
// goroutine when Execute returns is the documented, intended use of an
// unpaired LockOSThread.
func (e *Executor) Execute() (Outcome, error) {
	runtime.LockOSThread()

	for _, l := range e.listeners {
		if err := l.OnPreFork(); err != nil {
			return Outcome{}, fmt.Errorf("executor: on_pre_fork: %w", err)
		}
	}

	// A combined fork+exec primitive can't be used here: the child needs
	// to run its own setup (capability drop, per-listener hooks such as the
	// seccomp install) between the fork and the exec, so the two steps are
	// driven separately in forkAndRun.
	return e.forkAndRun()
}

// forkAndRun performs the raw fork and dispatches to the child or parent
// path, mirroring executeChild/executeParent from spec.md §4.1.
func (e *Executor) forkAndRun() (Outcome, error) {
	pid, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return Outcome{}, fmt.Errorf("executor: fork: %w", errno)
	}

	if pid == 0 {
		e.executeChild()
		// executeChild only returns on failure; the child must not
		// continue running the parent's Go runtime after a failed
		// exec attempt.
		os.Exit(127)
	}

	if e.confiner != nil {
		if err := e.confiner.JoinParent(int(pid)); err != nil {
			unix.Kill(int(pid), unix.SIGKILL)
			return Outcome{}, fmt.Errorf("executor: joining child to cgroup: %w", err)
		}
	}

	atomic.StoreInt32(&e.childPid, int32(pid))
	return e.executeParent(int(pid))
}

// executeChild runs entirely inside the forked child: the confiner's
// capability drop, listener setup, and finally execve. It never returns on
// success.
func (e *Executor) executeChild() {
	// The capability drop must run before any listener's
	// on_post_fork_child: it has to land before the seccomp filter is
	// installed, since once that filter is loaded a restrictive default
	// action would reject the prctl/capset calls it needs. The cgroup join
	// already happened on the parent side (see forkAndRun) and needs no
	// counterpart here.
	if e.confiner != nil {
		if err := e.confiner.DropCapabilitiesChild(); err != nil {
			fmt.Fprintf(os.Stderr, "executor: dropping capabilities failed: %v\n", err)
			return
		}
	}

	for _, l := range e.listeners {
		l.OnPostForkChild()
	}

	builder := newArgvBuilder(e.programName, e.args)
	defer builder.Release()

	err := unix.Exec(e.programName, builder.Argv(), os.Environ())
	fmt.Fprintf(os.Stderr, "executor: execve(%s, %v) failed: %v\n", e.programName, builder.Argv(), err)
}

// executeParent drives the parent wait loop. childPid is the original
// top-level child; the loop itself waits on the whole live tracee set
// (spec.md §4.2's "the supervisor tracks the set of live tracees and
// continues until all have exited or been killed"), since a traced process
// that forks or clones beneath the tracer grows that set past childPid.
func (e *Executor) executeParent(childPid int) (Outcome, error) {
	e.setupSignalHandling()

	for _, l := range e.listeners {
		l.OnPostForkParent(childPid)
	}

	rootExited := false

	for {
		verdict := e.checkSignals()
		if verdict == ExecuteKill {
			e.killChild()
		}

		ev, err := e.waitNonConsuming()
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			e.killChild()
			return Outcome{}, fmt.Errorf("executor: waitid: %w", err)
		}

		for _, l := range e.listeners {
			verdict = verdict.Max(l.OnExecuteEvent(ev))
		}

		if ev.Exited || ev.Killed {
			// waitNonConsuming only peeked (WNOWAIT); every listener
			// (notably the tracer bridge's PTRACE_EVENT_EXIT bookkeeping)
			// has now seen the notification, so reap the zombie.
			e.reap(ev.Pid)
			if ev.Pid == childPid {
				rootExited = true
				if ev.Exited {
					e.outcome.ExitStatus = ev.ExitStatus
				}
				if ev.Killed {
					e.outcome.ExitStatus = 128 + ev.Signal
					e.outcome.KillSignal = ev.Signal
				}
			}
		}

		if verdict == ExecuteKill {
			e.killChild()
		}

		if rootExited && e.traceesRemaining() == 0 {
			break
		}
	}

	for _, l := range e.listeners {
		l.OnPostExecute()
	}
	return e.outcome, nil
}

// traceesRemaining folds every listener's TraceeCount, treating "unknown"
// (no listener tracks tracee liveness, e.g. a policy-free run with no
// tracer bridge registered) as zero so the loop still terminates once the
// root child has exited.
func (e *Executor) traceesRemaining() int {
	remaining := 0
	for _, l := range e.listeners {
		if n, ok := l.TraceeCount(); ok && n > remaining {
			remaining = n
		}
	}
	return remaining
}

// reap consumes the zombie waitNonConsuming only peeked at via WNOWAIT.
// ECHILD/ESRCH mean another waiter (or this process's own prior reap) got
// there first, which is not an error here.
func (e *Executor) reap(pid int) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// setupSignalHandling installs the SIGIO/SIGALRM handling the supervisor
// uses for asynchronous notifications (e.g. an external watchdog raising
// SIGALRM on a wall-clock deadline). Go's signal.Notify is the
// async-signal-safe primitive that stands in for the raw sigaction
// handler + volatile-flag pattern: the runtime's own signal handler does
// the async-signal-safe part, and delivery into sigioCh/sigalrmCh is the
// "flag" checkSignals drains at the safe point.
func (e *Executor) setupSignalHandling() {
	atomic.StoreInt32(&e.sigioFlag, 0)
	atomic.StoreInt32(&e.sigalrmFlag, 0)

	sigioCh := make(chan os.Signal, 1)
	signal.Notify(sigioCh, unix.SIGIO)
	sigalrmCh := make(chan os.Signal, 1)
	signal.Notify(sigalrmCh, unix.SIGALRM)

	go func() {
		for range sigioCh {
			atomic.StoreInt32(&e.sigioFlag, 1)
		}
	}()
	go func() {
		for range sigalrmCh {
			atomic.StoreInt32(&e.sigalrmFlag, 1)
		}
	}()
}

// checkSignals drains the two asynchronous signal flags at the loop's
// safe point and folds the listeners' verdicts for whichever fired.
func (e *Executor) checkSignals() ExecuteAction {
	verdict := ExecuteContinue

	if atomic.CompareAndSwapInt32(&e.sigioFlag, 1, 0) {
		for _, l := range e.listeners {
			verdict = verdict.Max(l.OnSigioSignal())
		}
	}
	if atomic.CompareAndSwapInt32(&e.sigalrmFlag, 1, 0) {
		for _, l := range e.listeners {
			verdict = verdict.Max(l.OnSigalrmSignal())
		}
	}
	return verdict
}

// waitNonConsuming blocks for a state change in any tracee using WNOWAIT so
// the notification is not reaped here; classification never consumes the
// zombie, matching spec.md §4.1's non-consuming wait requirement. Retrying
// on EINTR is left to the caller so the caller can re-drain signal flags
// between attempts, per the documented race disclosure.
func (e *Executor) waitNonConsuming() (Event, error) {
	info, err := waitid()
	if err != nil {
		return Event{}, err
	}

	ev := Event{Pid: int(info.Pid)}
	switch info.Code {
	case unix.CLD_EXITED:
		ev.Exited = true
		ev.ExitStatus = int(info.Status)
	case unix.CLD_KILLED, unix.CLD_DUMPED:
		ev.Killed = true
		ev.Signal = int(info.Status)
	case unix.CLD_STOPPED:
		ev.Stopped = true
		ev.Signal = int(info.Status)
	case unix.CLD_TRAPPED:
		ev.Trapped = true
		ev.Signal = int(info.Status)
	}
	return ev, nil
}

// killChild sends SIGKILL, treating ESRCH (the child has already gone) as
// not an error.
func (e *Executor) killChild() {
	pid := int(atomic.LoadInt32(&e.childPid))
	if pid == 0 {
		return
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		fmt.Fprintf(os.Stderr, "executor: kill pid %d: %v\n", pid, err)
	}
	e.outcome.KillSignal = unix.SIGKILL
}
