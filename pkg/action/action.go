// Package action defines the two small totally-ordered verdict enums
// listeners return to the executor and tracer: ExecuteAction and
// TraceAction. Aggregation across a listener set is always "take the
// strongest verdict seen"; once any listener returns KILL for an event, the
// decision is sticky for the remainder of that event.
package action

// ExecuteAction is the verdict a listener returns from an execute-level
// hook (onExecuteEvent, onSigioSignal, onSigalrmSignal).
type ExecuteAction int

const (
	// ExecuteContinue lets the supervisor keep running normally.
	ExecuteContinue ExecuteAction = iota
	// ExecuteKill requests the child be sent SIGKILL.
	ExecuteKill
)

// Max returns the stronger of two ExecuteActions.
func (a ExecuteAction) Max(b ExecuteAction) ExecuteAction {
	if b > a {
		return b
	}
	return a
}

func (a ExecuteAction) String() string {
	if a == ExecuteKill {
		return "KILL"
	}
	return "CONTINUE"
}

// TraceAction is the verdict a listener returns from a trace-level hook
// (onPostExec, onPostClone, onTraceEvent). It has an intermediate value,
// ContinueQuietly, that is not present in ExecuteAction: it resumes the
// tracee without re-injecting any pending signal.
type TraceAction int

const (
	// TraceContinue resumes the tracee, re-injecting any pending signal.
	TraceContinue TraceAction = iota
	// TraceContinueQuietly resumes the tracee without injecting the
	// pending signal, suppressing its delivery.
	TraceContinueQuietly
	// TraceKill detaches the tracee and sends it SIGKILL.
	TraceKill
)

// Max returns the stronger of two TraceActions.
func (a TraceAction) Max(b TraceAction) TraceAction {
	if b > a {
		return b
	}
	return a
}

func (a TraceAction) String() string {
	switch a {
	case TraceContinueQuietly:
		return "CONTINUE_QUIETLY"
	case TraceKill:
		return "KILL"
	default:
		return "CONTINUE"
	}
}
