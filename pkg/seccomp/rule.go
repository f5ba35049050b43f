// Package seccomp translates a declarative syscall policy into a classic
// BPF program installable via prctl(PR_SET_SECCOMP), plus a side table
// mapping TRACE(code) user-data values back to Go handlers.
package seccomp

import (
	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/tracee"
)

// Op is the relational operator an ArgMatcher tests an argument against.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpMaskedEqual
)

// ArgMatcher constrains one of the six syscall argument slots. A nil
// *ArgMatcher in a Rule's Args means "match any value", the seccomp
// analogue of gVisor's seccomp.MatchAny{}.
type ArgMatcher struct {
	Op    Op
	Value uint64
	// Mask is only consulted for OpMaskedEqual: the matcher tests
	// (argument & Mask) == Value.
	Mask uint64
}

// EqualTo builds the common case, mirroring gVisor's seccomp.EqualTo.
func EqualTo(v uint64) *ArgMatcher { return &ArgMatcher{Op: OpEqual, Value: v} }

// NotEqual builds an inequality matcher.
func NotEqual(v uint64) *ArgMatcher { return &ArgMatcher{Op: OpNotEqual, Value: v} }

// MaskedEqual builds a masked-equality matcher.
func MaskedEqual(mask, v uint64) *ArgMatcher { return &ArgMatcher{Op: OpMaskedEqual, Value: v, Mask: mask} }

// ActionKind is the severity-ordered seccomp action taxonomy.
type ActionKind int

const (
	ActionAllow ActionKind = iota
	ActionErrno
	ActionTrace
	ActionKill
)

// Action is a seccomp rule's consequence. Errno carries the errno value for
// ActionErrno; TraceCode carries the user-data value for ActionTrace that
// the kernel hands back via PTRACE_GETEVENTMSG on the resulting seccomp stop.
type Action struct {
	Kind      ActionKind
	Errno     uint16
	TraceCode uint16
}

// Allow, Kill are the two data-free actions.
var (
	Allow = Action{Kind: ActionAllow}
	Kill  = Action{Kind: ActionKill}
)

// Errno builds an ERRNO(n) action.
func Errno(n uint16) Action { return Action{Kind: ActionErrno, Errno: n} }

// Trace builds a TRACE(code) action. A handler for code, if any, is
// registered separately in Policy.Handlers.
func Trace(code uint16) Action { return Action{Kind: ActionTrace, TraceCode: code} }

// Rule pairs an ordered, per-argument matcher list with the action to take
// when every non-nil matcher in Args is satisfied. A Rule with an all-nil
// (or empty) Args slice matches unconditionally, the way gVisor's "{}"
// (zero Rules) entries do for a syscall with no argument constraints.
type Rule struct {
	Args   [6]*ArgMatcher
	Action Action
}

// TraceHandler is invoked by the tracer, in place of the listener bus, when
// a seccomp stop carries a TRACE(code) this handler is registered for. It
// receives the stopped
// tracee so it can inspect registers or memory before returning a verdict.
type TraceHandler func(t *tracee.Tracee) (action.TraceAction, error)

// SyscallRules maps an architecture-qualified syscall number to its
// ordered rule list, the same shape as gVisor's filter.allowedSyscalls.
type SyscallRules map[uintptr][]Rule

// Policy is a complete, architecture-scoped seccomp policy.
type Policy struct {
	// Arch identifies which architecture's syscall table Rules's keys are
	// drawn from; a policy only ever targets one architecture because the
	// compiled BPF program is specific to the data layout of one ABI.
	Arch tracee.Arch

	Rules SyscallRules

	// Default is applied when no syscall entry, or no rule within a
	// matching entry, matches.
	Default Action

	// Handlers maps TRACE(code) values appearing anywhere in Rules to the
	// Go callback that should run when the tracer observes that stop.
	Handlers map[uint16]TraceHandler
}
