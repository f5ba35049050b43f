package seccomp

import (
	"fmt"
	"sort"

	"github.com/mohae/deepcopy"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/tracee"
)

// seccomp_data offsets (see linux/seccomp.h struct seccomp_data). Classic
// BPF only loads 32-bit words, so a 64-bit argument is read as two loads
// against its low and high half.
const (
	offNr   = 0
	offArch = 4
	argBase = 16
)

// SECCOMP_RET_* action codes (linux/seccomp.h), plus the 16-bit data mask
// carried in the low half of TRACE and ERRNO return values.
const (
	retKillProcess = 0x80000000
	retTrace       = 0x7ff00000
	retErrno       = 0x00050000
	retAllow       = 0x7fff0000
	retDataMask    = 0x0000ffff
)

// AUDIT_ARCH_* values (linux/audit.h), used for the mandatory architecture
// guard every compiled program opens with.
const (
	auditArchI386  = 0x40000003
	auditArchX8664 = 0xc000003e
)

func auditArch(a tracee.Arch) (uint32, error) {
	switch a {
	case tracee.X86:
		return auditArchI386, nil
	case tracee.X86_64:
		return auditArchX8664, nil
	default:
		return 0, fmt.Errorf("seccomp: cannot compile a program for arch %s", a)
	}
}

// archSyscallCeiling is the highest syscall number assigned on each
// architecture's table at the time of writing; used only to reject a
// default-ALLOW policy that references a syscall number the architecture
// could never have, per the compiler's validation rule.
var archSyscallCeiling = map[tracee.Arch]uintptr{
	tracee.X86:    383,
	tracee.X86_64: 461,
}

func encodeAction(a Action) uint32 {
	switch a.Kind {
	case ActionKill:
		return retKillProcess
	case ActionErrno:
		return retErrno | (uint32(a.Errno) & retDataMask)
	case ActionTrace:
		return retTrace | (uint32(a.TraceCode) & retDataMask)
	default:
		return retAllow
	}
}

// validate enforces the single compiler invariant spec.md §4.3 calls out:
// a default-ALLOW policy must not silently ignore a rule targeting a
// syscall number the architecture doesn't have.
func validate(p Policy) error {
	if p.Default.Kind != ActionAllow {
		return nil
	}
	ceiling, ok := archSyscallCeiling[p.Arch]
	if !ok {
		return fmt.Errorf("seccomp: unknown architecture %s", p.Arch)
	}
	for nr := range p.Rules {
		if nr > ceiling {
			return fmt.Errorf("seccomp: policy has default ALLOW but rule for syscall %d exceeds the known %s syscall table (max %d)", nr, p.Arch, ceiling)
		}
	}
	return nil
}

// ClonePolicy returns a deep copy of p, for a caller that wants to derive
// a variant of a policy (for example per architecture) without mutating
// the original. BuildProgram does not call it; it compiles the Policy it
// is given.
func ClonePolicy(p Policy) Policy {
	return deepcopy.Copy(p).(Policy)
}

// BuildProgram compiles p into a SockFprog installable via
// prctl(PR_SET_SECCOMP). Rules are walked in the order p.Rules's syscall
// keys are iterated after a stable sort, and within each syscall, in the
// declared Rule slice order; the first full match short-circuits with its
// action, and no match anywhere falls through to p.Default.
func BuildProgram(p Policy) (*unix.SockFprog, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	arch, err := auditArch(p.Arch)
	if err != nil {
		return nil, err
	}

	b := newBuilder()

	b.emit(bpf.LoadAbsolute{Off: offArch, Size: 4})
	archOK := b.newLabel()
	b.jumpIf(bpf.JumpEqual, arch, archOK, "")
	b.emitRet(retKillProcess)
	b.markLabel(archOK)

	b.emit(bpf.LoadAbsolute{Off: offNr, Size: 4})

	nrs := make([]uintptr, 0, len(p.Rules))
	for nr := range p.Rules {
		nrs = append(nrs, nr)
	}
	sort.Slice(nrs, func(i, j int) bool { return nrs[i] < nrs[j] })

	for _, nr := range nrs {
		nextSyscall := b.newLabel()
		b.jumpIf(bpf.JumpEqual, uint32(nr), "", nextSyscall)

		rules := p.Rules[nr]
		if len(rules) == 0 {
			b.emitRet(encodeAction(Allow))
		} else {
			for _, rule := range rules {
				nextRule := b.newLabel()
				if err := b.emitRuleMatch(rule, nextRule); err != nil {
					return nil, err
				}
				b.emitRet(encodeAction(rule.Action))
				b.markLabel(nextRule)
				b.emit(bpf.LoadAbsolute{Off: offNr, Size: 4})
			}
		}
		b.markLabel(nextSyscall)
	}

	b.emitRet(encodeAction(p.Default))

	raw, err := b.assemble()
	if err != nil {
		return nil, err
	}

	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return &unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}, nil
}

// emitRuleMatch emits the per-argument comparison chain for rule. On any
// mismatch, control jumps to mismatchLabel; reaching the end of this
// method falls through to the rule's Ret (emitted by the caller). The
// accumulator register must hold the syscall number on entry, which the
// per-argument loads clobber, so it is freshly reloaded by the caller
// after each rule attempt.
func (b *builder) emitRuleMatch(rule Rule, mismatchLabel string) error {
	for i, m := range rule.Args {
		if m == nil {
			continue
		}
		off := uint32(argBase + 8*i)
		if err := b.emitArgCompare(off, *m, mismatchLabel); err != nil {
			return err
		}
	}
	return nil
}

// emitArgCompare emits the load/compare sequence for a single 64-bit
// argument, testing its low and high 32-bit halves in turn. Any relation
// other than equality/inequality/masked-equality is lowered using the
// standard two-word unsigned compare: the halves disagree on the high
// word decides the outcome, otherwise the low word does.
func (b *builder) emitArgCompare(off uint32, m ArgMatcher, mismatchLabel string) error {
	valLo := uint32(m.Value)
	valHi := uint32(m.Value >> 32)

	switch m.Op {
	case OpEqual:
		b.emit(bpf.LoadAbsolute{Off: off + 4, Size: 4})
		b.jumpIf(bpf.JumpEqual, valHi, "", mismatchLabel)
		b.emit(bpf.LoadAbsolute{Off: off, Size: 4})
		b.jumpIf(bpf.JumpEqual, valLo, "", mismatchLabel)
		return nil

	case OpNotEqual:
		// Match unless both halves equal the target: a word differing
		// already settles it, so only a tie on the high word needs the
		// low word checked too.
		matched := b.newLabel()
		b.emit(bpf.LoadAbsolute{Off: off + 4, Size: 4})
		b.jumpIf(bpf.JumpEqual, valHi, "", matched)
		b.emit(bpf.LoadAbsolute{Off: off, Size: 4})
		b.jumpIf(bpf.JumpEqual, valLo, mismatchLabel, "")
		b.markLabel(matched)
		return nil

	case OpMaskedEqual:
		maskLo := uint32(m.Mask)
		maskHi := uint32(m.Mask >> 32)
		b.emit(bpf.LoadAbsolute{Off: off + 4, Size: 4})
		b.emit(bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: maskHi})
		b.jumpIf(bpf.JumpEqual, valHi&maskHi, "", mismatchLabel)
		b.emit(bpf.LoadAbsolute{Off: off, Size: 4})
		b.emit(bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: maskLo})
		b.jumpIf(bpf.JumpEqual, valLo&maskLo, "", mismatchLabel)
		return nil

	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		// Unsigned two-word compare: if the high words differ, they
		// alone decide the relation; only on a tie does the low word
		// decide it. Classic BPF only has native greater-than and
		// greater-or-equal tests, so "<" and "<=" are each lowered as
		// the negation of one of those - an exact equivalence, not an
		// approximation, at both the high-word and tied low-word step.
		tieLabel := b.newLabel()
		doneLabel := b.newLabel()
		b.emit(bpf.LoadAbsolute{Off: off + 4, Size: 4})
		b.jumpIf(bpf.JumpEqual, valHi, tieLabel, "")
		if !b.jumpOnRelation(m.Op, valHi, doneLabel, mismatchLabel) {
			return fmt.Errorf("seccomp: unsupported relational operator %v", m.Op)
		}
		b.markLabel(tieLabel)
		b.emit(bpf.LoadAbsolute{Off: off, Size: 4})
		if !b.jumpOnRelation(m.Op, valLo, doneLabel, mismatchLabel) {
			return fmt.Errorf("seccomp: unsupported relational operator %v", m.Op)
		}
		b.markLabel(doneLabel)
		return nil

	default:
		return fmt.Errorf("seccomp: unknown operator %v", m.Op)
	}
}

// jumpOnRelation emits the single native test that exactly decides op
// against k for the word currently loaded into the accumulator. "<" and
// "<=" have no native BPF test and are expressed as the negation of ">="
// and ">" respectively, which is exact (not an approximation) because the
// tie between words that would make negation ambiguous is always handled
// by the caller before this is reached.
func (b *builder) jumpOnRelation(op Op, k uint32, trueLabel, falseLabel string) bool {
	switch op {
	case OpLessThan:
		b.jumpIf(bpf.JumpGreaterOrEqual, k, falseLabel, trueLabel)
	case OpLessOrEqual:
		b.jumpIf(bpf.JumpGreaterThan, k, falseLabel, trueLabel)
	case OpGreaterThan:
		b.jumpIf(bpf.JumpGreaterThan, k, trueLabel, falseLabel)
	case OpGreaterOrEqual:
		b.jumpIf(bpf.JumpGreaterOrEqual, k, trueLabel, falseLabel)
	default:
		return false
	}
	return true
}
