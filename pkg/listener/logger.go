package listener

import (
	"github.com/sirupsen/logrus"

	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/executor"
	"github.com/sio2box/jail/pkg/tracee"
	"github.com/sio2box/jail/pkg/tracer"
)

// LoggerListener logs every lifecycle hook at debug level. It is the
// simplest possible non-trivial listener and is typically registered
// first so its log lines bracket whatever the other listeners do.
type LoggerListener struct {
	BaseListener
	Log *logrus.Logger
}

// NewLoggerListener constructs a LoggerListener writing to log. If log is
// nil, logrus.StandardLogger() is used.
func NewLoggerListener(log *logrus.Logger) *LoggerListener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoggerListener{Log: log}
}

func (l *LoggerListener) OnPreFork() error {
	l.Log.Debug("execution stage on_pre_fork")
	return nil
}

func (l *LoggerListener) OnPostForkChild() {
	l.Log.Debug("execution stage on_post_fork_child")
}

func (l *LoggerListener) OnPostForkParent(childPid int) {
	l.Log.WithField("child_pid", childPid).Debug("execution stage on_post_fork_parent")
}

func (l *LoggerListener) OnExecuteEvent(ev executor.Event) executor.ExecuteAction {
	l.Log.WithFields(logrus.Fields{
		"pid":         ev.Pid,
		"exit_status": ev.ExitStatus,
		"signal":      ev.Signal,
		"exited":      ev.Exited,
		"killed":      ev.Killed,
		"stopped":     ev.Stopped,
		"trapped":     ev.Trapped,
	}).Debug("execution stage on_execute_event")
	return executor.ExecuteContinue
}

func (l *LoggerListener) OnPostExecute() {
	l.Log.Debug("execution stage on_post_execute")
}

func (l *LoggerListener) OnPostExec(ev tracer.Event, t *tracee.Tracee) action.TraceAction {
	l.Log.Debug("execution stage on_post_exec")
	return action.TraceContinue
}

func (l *LoggerListener) OnPostClone(parentPid, childPid int) action.TraceAction {
	l.Log.WithFields(logrus.Fields{"parent_pid": parentPid, "child_pid": childPid}).Debug("execution stage on_post_clone")
	return action.TraceContinue
}

func (l *LoggerListener) OnTraceEvent(ev tracer.Event, t *tracee.Tracee) action.TraceAction {
	l.Log.WithField("is_alive", t.IsAlive()).Debug("execution stage on_trace_event")
	return action.TraceContinue
}
