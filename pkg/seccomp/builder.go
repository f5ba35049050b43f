package seccomp

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// builder is a small two-pass symbolic assembler over golang.org/x/net/bpf:
// classic BPF jump instructions carry literal forward skip counts rather
// than labels, but computing those by hand while composing rule-by-rule
// control flow is error-prone, so callers emit symbolic jumps against
// named labels and builder.assemble resolves them once the whole program
// is known.
type builder struct {
	nodes     []node
	labels    map[string]int
	nextLabel int
}

type node struct {
	plain bpf.Instruction

	isJump     bool
	cond       bpf.JumpTest
	val        uint32
	trueLabel  string
	falseLabel string
}

func newBuilder() *builder {
	return &builder{labels: map[string]int{}}
}

// emit appends a non-jump instruction verbatim.
func (b *builder) emit(ins bpf.Instruction) {
	b.nodes = append(b.nodes, node{plain: ins})
}

func (b *builder) emitRet(k uint32) {
	b.emit(bpf.RetConstant{Val: k})
}

// newLabel allocates a fresh label name; it is not bound to a position
// until markLabel is called with it.
func (b *builder) newLabel() string {
	b.nextLabel++
	return fmt.Sprintf("L%d", b.nextLabel)
}

// markLabel binds name to the position of the next instruction emitted.
func (b *builder) markLabel(name string) {
	b.labels[name] = len(b.nodes)
}

// jumpIf emits a conditional jump comparing the current accumulator to
// val. An empty label means "fall through to the very next instruction".
func (b *builder) jumpIf(cond bpf.JumpTest, val uint32, trueLabel, falseLabel string) {
	b.nodes = append(b.nodes, node{isJump: true, cond: cond, val: val, trueLabel: trueLabel, falseLabel: falseLabel})
}

// assemble resolves every symbolic jump to a concrete skip count and hands
// the result to golang.org/x/net/bpf's own assembler.
func (b *builder) assemble() ([]bpf.RawInstruction, error) {
	instrs := make([]bpf.Instruction, len(b.nodes))
	for i, n := range b.nodes {
		if !n.isJump {
			instrs[i] = n.plain
			continue
		}
		tSkip, err := b.resolveSkip(i, n.trueLabel)
		if err != nil {
			return nil, err
		}
		fSkip, err := b.resolveSkip(i, n.falseLabel)
		if err != nil {
			return nil, err
		}
		instrs[i] = bpf.JumpIf{Cond: n.cond, Val: n.val, SkipTrue: tSkip, SkipFalse: fSkip}
	}
	return bpf.Assemble(instrs)
}

func (b *builder) resolveSkip(from int, label string) (uint8, error) {
	if label == "" {
		return 0, nil
	}
	target, ok := b.labels[label]
	if !ok {
		return 0, fmt.Errorf("seccomp: internal error: unresolved label %q", label)
	}
	skip := target - (from + 1)
	if skip < 0 {
		return 0, fmt.Errorf("seccomp: internal error: label %q resolves backward", label)
	}
	if skip > 255 {
		return 0, fmt.Errorf("seccomp: compiled program has a jump of %d instructions, exceeding BPF's 255-instruction limit", skip)
	}
	return uint8(skip), nil
}
