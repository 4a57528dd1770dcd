package absint

import (
	"sort"

	"github.com/chazu/pyrite/pkg/absval"
	"github.com/chazu/pyrite/pkg/pycode"
)

// Code returns the code object under analysis.
func (ai *Interpreter) Code() *pycode.Code { return ai.code }

// Instructions returns the decoded instruction stream with EXTENDED_ARG
// runs collapsed.
func (ai *Interpreter) Instructions() []pycode.Instr { return ai.instrs }

// HasState reports whether the opcode at pc was reached by the analysis.
func (ai *Interpreter) HasState(pc int) bool {
	_, ok := ai.states[pc]
	return ok
}

// GetStackInfo returns the operand stack before the opcode at pc executes,
// bottom first, or nil if pc was never reached.
func (ai *Interpreter) GetStackInfo(pc int) []ValueWithSource {
	s, ok := ai.states[pc]
	if !ok {
		return nil
	}
	return s.Stack()
}

// StackDepth returns the analysed stack depth before the opcode at pc, or
// -1 if unreached.
func (ai *Interpreter) StackDepth(pc int) int {
	s, ok := ai.states[pc]
	if !ok {
		return -1
	}
	return s.StackSize()
}

// GetLocalInfo returns the state of a local variable before the opcode at
// pc executes.
func (ai *Interpreter) GetLocalInfo(pc, local int) LocalInfo {
	s, ok := ai.states[pc]
	if !ok || local >= s.LocalCount() {
		return UndefinedLocal()
	}
	return s.Local(local)
}

// ResultSource returns the source created for the value the opcode at pc
// pushes, or nil if it pushes nothing tracked.
func (ai *Interpreter) ResultSource(pc int) *Source {
	return ai.results[pc]
}

// ShouldBox reports whether the result of the opcode at pc must be kept in
// its boxed representation. It is false only when the result has at least
// one recorded consumer and every recorded consumer supports unboxed input;
// the result's abstract kind is not consulted.
func (ai *Interpreter) ShouldBox(pc int) bool {
	src := ai.results[pc]
	if src == nil || len(src.consumers) == 0 {
		return true
	}
	for consumerPC := range src.consumers {
		cidx, ok := ai.at[consumerPC]
		if !ok || !pycode.SupportsUnboxing(ai.instrs[cidx].Op) {
			return true
		}
	}
	return false
}

// CanSkipLastiUpdate reports whether the emitted code may omit updating the
// frame's last-instruction marker before the opcode at pc. The host
// inspects the marker from arbitrary helpers, so the safe answer is always
// no.
func (ai *Interpreter) CanSkipLastiUpdate(pc int) bool {
	return false
}

// ReturnValue returns the merged abstract value of every return site.
func (ai *Interpreter) ReturnValue() *absval.AbstractValue {
	return ai.returnValue
}

// JumpTargets returns the sorted byte offsets that are the target of at
// least one branch; the driver binds a label at each.
func (ai *Interpreter) JumpTargets() []int {
	out := make([]int, 0, len(ai.jumpsTo))
	for pc := range ai.jumpsTo {
		out = append(out, pc)
	}
	sort.Ints(out)
	return out
}

// IsJumpTarget reports whether any branch targets the given offset.
func (ai *Interpreter) IsJumpTarget(pc int) bool {
	return ai.jumpsTo[pc]
}

// BlockStart returns the SETUP pc whose block ends (or whose handler
// starts) at the given offset.
func (ai *Interpreter) BlockStart(endOffset int) (int, bool) {
	start, ok := ai.blockStarts[endOffset]
	return start, ok
}

// BreakTarget returns the loop span the BREAK_LOOP at pc unwinds to.
func (ai *Interpreter) BreakTarget(pc int) (BlockSpan, bool) {
	span, ok := ai.breakTo[pc]
	return span, ok
}

// PopBlockSpan returns the span closed by the POP_BLOCK at pc.
func (ai *Interpreter) PopBlockSpan(pc int) (BlockSpan, bool) {
	span, ok := ai.popBlock[pc]
	return span, ok
}

// SourceArena exposes the arena owning every source created by this
// analysis; the instruction graph borrows it.
func (ai *Interpreter) SourceArena() *Arena { return &ai.arena }
