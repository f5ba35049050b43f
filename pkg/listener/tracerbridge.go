package listener

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/executor"
	"github.com/sio2box/jail/pkg/seccomp"
	"github.com/sio2box/jail/pkg/tracee"
	"github.com/sio2box/jail/pkg/tracer"
)

// TracerBridge connects pkg/tracer to the executor's event loop: the
// traced child calls PTRACE_TRACEME (and, if a policy is configured,
// installs the compiled seccomp filter) before exec, and every "trapped"
// ExecuteEvent the executor's wait loop reports is turned into a
// tracer.HandleStop call for whichever pid it names. A TracerBridge must be
// registered after any listener whose own on_post_fork_child setup (e.g.
// I/O stream redirection) needs syscalls the seccomp policy's default
// action might not otherwise allow, since installing the filter is this
// listener's last setup step.
//
// The executor's own wait loop waits on the whole live tracee set, not
// just the top-level child, so a forked or cloned grandchild (attached via
// onPostClone, through Tracer.HandleStop) has its own stops dispatched
// here exactly the same way once it reports through its own pid.
type TracerBridge struct {
	BaseListener

	tr     *tracer.Tracer
	arch   tracee.Arch
	policy *seccomp.Policy

	attached bool
}

// NewTracerBridge builds a bridge dispatching trace-level hooks to tr. If
// policy is non-nil it is compiled and installed in the child before exec.
func NewTracerBridge(tr *tracer.Tracer, arch tracee.Arch, policy *seccomp.Policy) *TracerBridge {
	return &TracerBridge{tr: tr, arch: arch, policy: policy}
}

// OnPostForkChild implements executor.Listener. It must run after every
// other listener's on_post_fork_child (registration order), since it is
// the step that actually installs the seccomp filter restricting what the
// child can still do before exec.
func (b *TracerBridge) OnPostForkChild() {
	if err := unix.PtraceTraceme(); err != nil {
		fmt.Fprintf(os.Stderr, "tracerbridge: PTRACE_TRACEME: %v\n", err)
		os.Exit(127)
	}

	if b.policy == nil {
		return
	}
	prog, err := seccomp.BuildProgram(*b.policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracerbridge: compiling seccomp policy: %v\n", err)
		os.Exit(127)
	}
	if err := seccomp.Load(prog); err != nil {
		fmt.Fprintf(os.Stderr, "tracerbridge: installing seccomp filter: %v\n", err)
		os.Exit(127)
	}
}

// OnExecuteEvent implements executor.Listener. A Trapped event means the
// executor's waitid(WNOWAIT) call observed a ptrace-stop without
// consuming it; this re-collects the real status with a consuming wait4
// (matching the original implementation's own WNOWAIT-then-reap split)
// and feeds it to the tracer.
func (b *TracerBridge) OnExecuteEvent(ev executor.Event) executor.ExecuteAction {
	if !ev.Trapped {
		return executor.ExecuteContinue
	}

	if !b.attached {
		if _, err := b.tr.Attach(ev.Pid, b.arch); err != nil {
			fmt.Fprintf(os.Stderr, "tracerbridge: attach pid %d: %v\n", ev.Pid, err)
			return executor.ExecuteContinue
		}
		b.attached = true
	}

	var status unix.WaitStatus
	if _, err := unix.Wait4(ev.Pid, &status, unix.WUNTRACED, nil); err != nil {
		fmt.Fprintf(os.Stderr, "tracerbridge: wait4 pid %d: %v\n", ev.Pid, err)
		return executor.ExecuteContinue
	}

	verdict, err := b.tr.HandleStop(ev.Pid, status)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracerbridge: handling stop for pid %d: %v\n", ev.Pid, err)
	}
	if verdict == action.TraceKill {
		return executor.ExecuteKill
	}
	return executor.ExecuteContinue
}

// TraceeCount implements executor.Listener: it reports the tracer's own
// live-tracee count, which is how the executor's wait loop knows a
// process tree that grew past the original child via fork/clone beneath
// the tracer has fully terminated.
func (b *TracerBridge) TraceeCount() (int, bool) { return b.tr.Live(), true }
