package executor

import "github.com/sio2box/jail/pkg/tracer"

// Listener is the full set of lifecycle hooks the engine dispatches to, in
// registration order; a concrete listener implements whichever subset it
// needs by embedding listener.BaseListener for the rest. The trace-level
// hooks (OnPostExec, OnPostClone, OnTraceEvent) are tracer.Listener's
// method set, embedded here so one interface covers both the execute-level
// and trace-level lifecycle.
type Listener interface {
	tracer.Listener

	OnPreFork() error
	OnPostForkChild()
	OnPostForkParent(childPid int)

	OnExecuteEvent(ev Event) ExecuteAction
	OnSigioSignal() ExecuteAction
	OnSigalrmSignal() ExecuteAction

	OnPostExecute()

	// TraceeCount reports how many tracees the listener still considers
	// live, and whether it tracks that at all. The parent wait loop folds
	// this across every listener to decide when a supervised process tree
	// that has grown past the original child (fork/clone beneath the
	// tracer) has fully terminated.
	TraceeCount() (count int, known bool)
}
