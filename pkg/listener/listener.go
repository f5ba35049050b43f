// Package listener provides BaseListener, a no-op implementation of every
// executor.Listener hook. Concrete listeners embed it and override only
// the hooks they care about, the Go rendering of spec.md §9's "capability
// record" note: a listener type need not restate the full hook chain.
package listener

import (
	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/executor"
	"github.com/sio2box/jail/pkg/tracee"
	"github.com/sio2box/jail/pkg/tracer"
)

// BaseListener implements executor.Listener with the minimum verdict
// (CONTINUE) on every hook and no side effects. It is always embedded by
// value so a concrete listener satisfies the interface the moment it is
// declared, before any of its own methods are added.
type BaseListener struct{}

var _ executor.Listener = BaseListener{}

func (BaseListener) OnPreFork() error              { return nil }
func (BaseListener) OnPostForkChild()               {}
func (BaseListener) OnPostForkParent(childPid int) {}
func (BaseListener) OnPostExecute()                {}

func (BaseListener) OnExecuteEvent(ev executor.Event) executor.ExecuteAction {
	return executor.ExecuteContinue
}

func (BaseListener) OnSigioSignal() executor.ExecuteAction {
	return executor.ExecuteContinue
}

func (BaseListener) OnSigalrmSignal() executor.ExecuteAction {
	return executor.ExecuteContinue
}

func (BaseListener) TraceeCount() (int, bool) { return 0, false }

func (BaseListener) OnPostExec(ev tracer.Event, t *tracee.Tracee) action.TraceAction {
	return action.TraceContinue
}

func (BaseListener) OnPostClone(parentPid, childPid int) action.TraceAction {
	return action.TraceContinue
}

func (BaseListener) OnTraceEvent(ev tracer.Event, t *tracee.Tracee) action.TraceAction {
	return action.TraceContinue
}
