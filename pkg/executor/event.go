// Package executor is the top-level supervisor: it forks the child,
// drives it into a traced state, installs signal handling for
// asynchronous notifications, runs the parent wait loop, aggregates
// listener verdicts and initiates termination.
package executor

import "github.com/sio2box/jail/pkg/action"

// Event is the immutable record produced after each wait-notification
// about the child. Exactly one of Exited, Killed, Stopped, Trapped is
// true.
type Event struct {
	Pid int

	Exited  bool
	Killed  bool
	Stopped bool
	Trapped bool

	// ExitStatus is meaningful when Exited.
	ExitStatus int
	// Signal is meaningful when Killed, Stopped or Trapped.
	Signal int
}

// Outcome is what execute() reports once the child has fully terminated.
type Outcome struct {
	// ExitStatus mirrors the convention of the wait loop that produced
	// it: the numeric exit code on a normal exit, or 128+signal on a
	// fatal signal.
	ExitStatus int
	// KillSignal is non-zero if the child died from a signal, whether
	// sent by itself, another process, or this supervisor's own
	// killChild. killChild also sets it to SIGKILL whenever it runs, even
	// if the child had already gone (ESRCH).
	KillSignal int
}

// ExecuteAction re-exports action.ExecuteAction under the name this
// package's hooks return, so callers implementing Listener need not
// import the action package directly.
type ExecuteAction = action.ExecuteAction

const (
	ExecuteContinue = action.ExecuteContinue
	ExecuteKill     = action.ExecuteKill
)
