package absint

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/pyrite/pkg/absval"
	"github.com/chazu/pyrite/pkg/pycode"
)

var log = commonlog.GetLogger("pyrite.absint")

// BlockSpan describes one lexical protected region found by preprocessing.
type BlockSpan struct {
	Start  int  // pc of the SETUP_* opcode
	Target int  // handler entry or loop end, from the SETUP oparg
	IsLoop bool // true for SETUP_LOOP spans
}

// Interpreter performs the forward dataflow analysis over one code object.
// It walks the bytecode updating an abstract stack and locals per the opcode
// semantics; at branches the current state merges into the target's state,
// and changed targets requeue until a fixed point. The per-pc states feed
// the instruction graph and the IL driver.
type Interpreter struct {
	code   *pycode.Code
	instrs []pycode.Instr
	at     map[int]int // terminating byte offset -> index into instrs
	arena  Arena

	states      map[int]*State
	returnValue *absval.AbstractValue

	blockStarts map[int]int       // SETUP target offset -> SETUP pc
	breakTo     map[int]BlockSpan // BREAK_LOOP pc -> enclosing loop span
	popBlock    map[int]BlockSpan // POP_BLOCK pc -> span being popped
	jumpsTo     map[int]bool
	results     map[int]*Source // pc -> intermediate source of its pushed result

	interpreted bool
}

// New decodes the code object and prepares an interpreter. Decoding errors
// (unknown opcodes, truncated units) surface here.
func New(code *pycode.Code) (*Interpreter, error) {
	instrs, err := code.Instructions()
	if err != nil {
		return nil, err
	}
	at := make(map[int]int, len(instrs))
	for i, in := range instrs {
		at[in.Index] = i
	}
	// A jump may target the first unit of an EXTENDED_ARG run; resolve such
	// offsets to the terminating unit, where the state lives.
	next := 0
	for pc := 0; pc < len(code.Code); pc += pycode.CodeUnitSize {
		if _, ok := at[pc]; !ok {
			if next < len(instrs) {
				for next < len(instrs) && instrs[next].Index < pc {
					next++
				}
				if next < len(instrs) {
					at[pc] = next
				}
			}
		}
	}
	return &Interpreter{
		code:        code,
		instrs:      instrs,
		at:          at,
		states:      make(map[int]*State),
		returnValue: absval.Undefined,
		blockStarts: make(map[int]int),
		breakTo:     make(map[int]BlockSpan),
		popBlock:    make(map[int]BlockSpan),
		jumpsTo:     make(map[int]bool),
		results:     make(map[int]*Source),
	}, nil
}

// resolve maps a branch-target byte offset to an instruction list index.
func (ai *Interpreter) resolve(offset int) (int, error) {
	idx, ok := ai.at[offset]
	if !ok {
		return 0, fmt.Errorf("absint: branch to invalid offset %d in %q", offset, ai.code.Name)
	}
	return idx, nil
}

// preprocess scans the bytecode once: block spans for every SETUP_*, break
// targets for every BREAK_LOOP, matched spans for every POP_BLOCK, and the
// set of all jump targets.
func (ai *Interpreter) preprocess() error {
	var open []BlockSpan
	for _, in := range ai.instrs {
		switch in.Op {
		case pycode.OpSetupLoop, pycode.OpSetupExcept, pycode.OpSetupFinally:
			target, _ := in.JumpTarget()
			span := BlockSpan{Start: in.Index, Target: target, IsLoop: in.Op == pycode.OpSetupLoop}
			ai.blockStarts[target] = in.Index
			open = append(open, span)
		case pycode.OpPopBlock:
			if len(open) == 0 {
				return fmt.Errorf("absint: POP_BLOCK with empty block stack at %d in %q", in.Index, ai.code.Name)
			}
			ai.popBlock[in.Index] = open[len(open)-1]
			open = open[:len(open)-1]
		case pycode.OpBreakLoop:
			found := false
			for i := len(open) - 1; i >= 0; i-- {
				if open[i].IsLoop {
					ai.breakTo[in.Index] = open[i]
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("absint: BREAK_LOOP outside loop at %d in %q", in.Index, ai.code.Name)
			}
		}
		if target, ok := in.JumpTarget(); ok {
			ai.jumpsTo[target] = true
		}
	}
	return nil
}

// initialState builds the entry state: an empty stack, parameters bound to
// Any with frame sources, remaining locals definitely unassigned.
func (ai *Interpreter) initialState() *State {
	s := NewState(ai.code.NLocals())
	for i := 0; i < ai.code.ArgCount && i < ai.code.NLocals(); i++ {
		s.ReplaceLocal(i, LocalInfo{
			ValueInfo: ValueWithSource{
				Value:  absval.Any,
				Source: ai.arena.NewArgumentSource(i),
			},
		})
	}
	return &s
}

// updateStartState merges a successor state into the state recorded for
// offset. It reports whether the recorded state changed (or was unseen).
func (ai *Interpreter) updateStartState(state *State, offset int) (bool, error) {
	if existing, ok := ai.states[offset]; ok {
		return existing.Merge(state, &ai.arena)
	}
	clone := state.Clone()
	ai.states[offset] = &clone
	return true, nil
}

// Interpret runs the fixed-point analysis. It returns an error for
// malformed bytecode; the analyser never panics on bad input.
func (ai *Interpreter) Interpret() error {
	if ai.interpreted {
		return nil
	}
	if err := ai.preprocess(); err != nil {
		return err
	}
	if len(ai.instrs) == 0 {
		return fmt.Errorf("absint: empty code object %q", ai.code.Name)
	}

	entry := ai.initialState()
	ai.states[ai.instrs[0].Index] = entry

	queue := []int{ai.instrs[0].Index}
	for len(queue) > 0 {
		offset := queue[0]
		queue = queue[1:]
		requeue, err := ai.run(offset)
		if err != nil {
			return err
		}
		queue = append(queue, requeue...)
	}
	ai.interpreted = true
	log.Debugf("analysis of %q reached fixed point: %d states", ai.code.Name, len(ai.states))
	return nil
}

// run simulates from offset until an unconditional control transfer,
// returning the offsets whose start states changed and need requeueing.
func (ai *Interpreter) run(offset int) (requeue []int, err error) {
	idx, err := ai.resolve(offset)
	if err != nil {
		return nil, err
	}
	cur := ai.states[offset].Clone()

	branch := func(target int, state *State) error {
		t, err := ai.resolve(target)
		if err != nil {
			return err
		}
		changed, err := ai.updateStartState(state, ai.instrs[t].Index)
		if err != nil {
			return err
		}
		if changed {
			requeue = append(requeue, ai.instrs[t].Index)
		}
		return nil
	}

	for i := idx; i < len(ai.instrs); i++ {
		in := ai.instrs[i]
		if i != idx {
			changed, err := ai.updateStartState(&cur, in.Index)
			if err != nil {
				return nil, fmt.Errorf("%w (at %d in %q)", err, in.Index, ai.code.Name)
			}
			if !changed {
				return requeue, nil
			}
		}
		done, err := ai.step(in, &cur, branch)
		if err != nil {
			return nil, err
		}
		if done {
			return requeue, nil
		}
	}
	return nil, fmt.Errorf("absint: control fell off the end of %q", ai.code.Name)
}

// popN pops count operands for the opcode at pc, registering consumer
// positions bottom-first and marking escapes unless the opcode supports
// unboxed operands. The returned slice is bottom-first.
func (ai *Interpreter) popN(state *State, in pycode.Instr, count int) ([]ValueWithSource, error) {
	if state.StackSize() < count {
		return nil, fmt.Errorf("absint: stack underflow at %d (%v) in %q", in.Index, in.Op, ai.code.Name)
	}
	unboxable := pycode.SupportsUnboxing(in.Op)
	out := make([]ValueWithSource, count)
	for j := count - 1; j >= 0; j-- {
		var v ValueWithSource
		if unboxable {
			v = state.PopNoEscape()
		} else {
			v = state.Pop()
		}
		v.Source.AddConsumer(in.Index, j)
		out[j] = v
	}
	return out, nil
}

// pushResult pushes the opcode's result with a fresh intermediate source.
func (ai *Interpreter) pushResult(state *State, pc int, v *absval.AbstractValue) {
	src := ai.arena.NewIntermediateSource(pc)
	ai.results[pc] = src
	state.Push(ValueWithSource{Value: v, Source: src})
}

// step simulates one instruction. It returns done=true when control does
// not fall through to the next instruction.
func (ai *Interpreter) step(in pycode.Instr, cur *State, branch func(int, *State) error) (bool, error) {
	pc := in.Index
	switch in.Op {
	case pycode.OpNop:

	case pycode.OpPopTop:
		if _, err := ai.popN(cur, in, 1); err != nil {
			return false, err
		}

	case pycode.OpRotTwo:
		if cur.StackSize() < 2 {
			return false, ai.underflow(in)
		}
		a, b := cur.PopNoEscape(), cur.PopNoEscape()
		cur.Push(a)
		cur.Push(b)

	case pycode.OpRotThree:
		if cur.StackSize() < 3 {
			return false, ai.underflow(in)
		}
		a := cur.PopNoEscape()
		b := cur.PopNoEscape()
		c := cur.PopNoEscape()
		cur.Push(a)
		cur.Push(c)
		cur.Push(b)

	case pycode.OpDupTop:
		if cur.StackSize() < 1 {
			return false, ai.underflow(in)
		}
		cur.Push(cur.Peek(0))

	case pycode.OpDupTopTwo:
		if cur.StackSize() < 2 {
			return false, ai.underflow(in)
		}
		a, b := cur.Peek(1), cur.Peek(0)
		cur.Push(a)
		cur.Push(b)

	case pycode.OpUnaryPositive, pycode.OpUnaryNegative, pycode.OpUnaryNot, pycode.OpUnaryInvert:
		ops, err := ai.popN(cur, in, 1)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[0].Value.Unary(unaryOpFor(in.Op)))

	case pycode.OpBinaryPower, pycode.OpBinaryMultiply, pycode.OpBinaryModulo,
		pycode.OpBinaryAdd, pycode.OpBinarySubtract, pycode.OpBinarySubscr,
		pycode.OpBinaryFloorDivide, pycode.OpBinaryTrueDivide,
		pycode.OpBinaryLShift, pycode.OpBinaryRShift, pycode.OpBinaryAnd,
		pycode.OpBinaryXor, pycode.OpBinaryOr,
		pycode.OpInplacePower, pycode.OpInplaceMultiply, pycode.OpInplaceModulo,
		pycode.OpInplaceAdd, pycode.OpInplaceSubtract,
		pycode.OpInplaceFloorDivide, pycode.OpInplaceTrueDivide,
		pycode.OpInplaceLShift, pycode.OpInplaceRShift, pycode.OpInplaceAnd,
		pycode.OpInplaceXor, pycode.OpInplaceOr:
		ops, err := ai.popN(cur, in, 2)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[0].Value.Binary(binaryOpFor(in.Op), ops[1].Value))

	case pycode.OpCompareOp:
		ops, err := ai.popN(cur, in, 2)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[0].Value.Compare(ops[1].Value))

	case pycode.OpIsOp:
		if _, err := ai.popN(cur, in, 2); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, absval.Bool)

	case pycode.OpContainsOp:
		ops, err := ai.popN(cur, in, 2)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[1].Value.Contains())

	case pycode.OpStoreSubscr:
		if _, err := ai.popN(cur, in, 3); err != nil {
			return false, err
		}

	case pycode.OpDeleteSubscr:
		if _, err := ai.popN(cur, in, 2); err != nil {
			return false, err
		}

	case pycode.OpGetIter:
		ops, err := ai.popN(cur, in, 1)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[0].Value.Iter())

	case pycode.OpForIter:
		// Two successors: exhausted (iterator popped, jump taken) and
		// yielding (iterator stays, next value pushed, fall through).
		if cur.StackSize() < 1 {
			return false, ai.underflow(in)
		}
		target, _ := in.JumpTarget()
		exhausted := cur.Clone()
		iter := exhausted.Pop()
		iter.Source.AddConsumer(pc, 0)
		if err := branch(target, &exhausted); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, cur.Peek(0).Value.Next())

	case pycode.OpLoadConst:
		if int(in.Arg) >= len(ai.code.Consts) {
			return false, fmt.Errorf("absint: constant index %d out of range at %d in %q", in.Arg, pc, ai.code.Name)
		}
		src := ai.arena.NewConstSource(pc, int(in.Arg))
		ai.results[pc] = src
		cur.Push(ValueWithSource{Value: abstractConst(ai.code.Consts[in.Arg]), Source: src})

	case pycode.OpLoadFast:
		slot := int(in.Arg)
		if slot >= cur.LocalCount() {
			return false, fmt.Errorf("absint: local index %d out of range at %d in %q", slot, pc, ai.code.Name)
		}
		local := cur.Local(slot)
		v := local.ValueInfo
		src := ai.arena.MergeSources(v.Source, ai.arena.NewLocalSource(pc, slot))
		cur.Push(ValueWithSource{Value: v.Value, Source: src})

	case pycode.OpStoreFast:
		ops, err := ai.popN(cur, in, 1)
		if err != nil {
			return false, err
		}
		slot := int(in.Arg)
		if slot >= cur.LocalCount() {
			return false, fmt.Errorf("absint: local index %d out of range at %d in %q", slot, pc, ai.code.Name)
		}
		cur.ReplaceLocal(slot, LocalInfo{ValueInfo: ops[0]})

	case pycode.OpDeleteFast:
		slot := int(in.Arg)
		if slot >= cur.LocalCount() {
			return false, fmt.Errorf("absint: local index %d out of range at %d in %q", slot, pc, ai.code.Name)
		}
		cur.ReplaceLocal(slot, UndefinedLocal())

	case pycode.OpLoadGlobal, pycode.OpLoadName:
		src := ai.arena.NewBuiltinSource()
		ai.results[pc] = src
		cur.Push(ValueWithSource{Value: absval.Any, Source: src})

	case pycode.OpLoadAssertionError:
		src := ai.arena.NewBuiltinSource()
		ai.results[pc] = src
		cur.Push(ValueWithSource{Value: absval.For(absval.KindType), Source: src})

	case pycode.OpJumpForward, pycode.OpJumpAbsolute:
		target, _ := in.JumpTarget()
		return true, branch(target, cur)

	case pycode.OpPopJumpIfTrue, pycode.OpPopJumpIfFalse:
		if _, err := ai.popN(cur, in, 1); err != nil {
			return false, err
		}
		target, _ := in.JumpTarget()
		if err := branch(target, cur); err != nil {
			return false, err
		}

	case pycode.OpJumpIfTrueOrPop, pycode.OpJumpIfFalseOrPop:
		if cur.StackSize() < 1 {
			return false, ai.underflow(in)
		}
		target, _ := in.JumpTarget()
		taken := cur.Clone()
		if err := branch(target, &taken); err != nil {
			return false, err
		}
		if _, err := ai.popN(cur, in, 1); err != nil {
			return false, err
		}

	case pycode.OpSetupLoop:
		// Loop end becomes reachable through BREAK_LOOP; nothing to do here.

	case pycode.OpSetupExcept, pycode.OpSetupFinally:
		// The handler entry starts with the exception triple pushed
		// (type at top of stack).
		target, _ := in.JumpTarget()
		handler := cur.Clone()
		handler.Push(ValueWithSource{Value: absval.Any, Source: ai.arena.NewIntermediateSource(pc)})
		handler.Push(ValueWithSource{Value: absval.Any, Source: ai.arena.NewIntermediateSource(pc)})
		handler.Push(ValueWithSource{Value: absval.For(absval.KindType), Source: ai.arena.NewIntermediateSource(pc)})
		if err := branch(target, &handler); err != nil {
			return false, err
		}

	case pycode.OpPopBlock:
		span, ok := ai.popBlock[pc]
		if !ok {
			return false, fmt.Errorf("absint: unmatched POP_BLOCK at %d in %q", pc, ai.code.Name)
		}
		if !span.IsLoop {
			if setup, err := ai.setupOpAt(span.Start); err == nil && setup == pycode.OpSetupFinally {
				// Normal completion of a finally body: push the
				// no-exception marker triple consumed by END_FINALLY.
				cur.Push(ValueWithSource{Value: absval.None, Source: ai.arena.NewIntermediateSource(pc)})
				cur.Push(ValueWithSource{Value: absval.None, Source: ai.arena.NewIntermediateSource(pc)})
				cur.Push(ValueWithSource{Value: absval.None, Source: ai.arena.NewIntermediateSource(pc)})
			}
		}

	case pycode.OpPopExcept, pycode.OpEndFinally:
		if _, err := ai.popN(cur, in, 3); err != nil {
			return false, err
		}

	case pycode.OpBreakLoop:
		span, ok := ai.breakTo[pc]
		if !ok {
			return false, fmt.Errorf("absint: BREAK_LOOP outside loop at %d in %q", pc, ai.code.Name)
		}
		after := cur.Clone()
		if err := ai.trimToDepthAt(&after, span.Start); err != nil {
			return false, err
		}
		return true, branch(span.Target, &after)

	case pycode.OpContinueLoop:
		target := int(in.Arg)
		after := cur.Clone()
		if err := ai.trimToDepthAt(&after, target); err != nil {
			return false, err
		}
		return true, branch(target, &after)

	case pycode.OpRaiseVarargs:
		if int(in.Arg) > 2 {
			return false, fmt.Errorf("absint: RAISE_VARARGS with %d args at %d in %q", in.Arg, pc, ai.code.Name)
		}
		if _, err := ai.popN(cur, in, int(in.Arg)); err != nil {
			return false, err
		}
		return true, nil

	case pycode.OpBuildTuple, pycode.OpBuildList, pycode.OpBuildSet:
		if _, err := ai.popN(cur, in, int(in.Arg)); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, absval.For(buildKindFor(in.Op)))

	case pycode.OpBuildMap:
		if _, err := ai.popN(cur, in, 2*int(in.Arg)); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, absval.For(absval.KindDict))

	case pycode.OpBuildConstKeyMap:
		if _, err := ai.popN(cur, in, int(in.Arg)+1); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, absval.For(absval.KindDict))

	case pycode.OpBuildSlice:
		n := int(in.Arg)
		if n != 2 && n != 3 {
			return false, fmt.Errorf("absint: BUILD_SLICE with %d args at %d in %q", n, pc, ai.code.Name)
		}
		if _, err := ai.popN(cur, in, n); err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, absval.For(absval.KindSlice))

	case pycode.OpListAppend, pycode.OpSetAdd, pycode.OpListExtend,
		pycode.OpSetUpdate, pycode.OpDictUpdate, pycode.OpDictMerge:
		if in.Arg == 0 {
			return false, fmt.Errorf("absint: %v with zero oparg at %d in %q", in.Op, pc, ai.code.Name)
		}
		if _, err := ai.popN(cur, in, 1); err != nil {
			return false, err
		}
		if cur.StackSize() < int(in.Arg) {
			return false, ai.underflow(in)
		}
		// The container oparg slots down mutates in place; it is observed.
		cur.Peek(int(in.Arg) - 1).Source.Escape()

	case pycode.OpMapAdd:
		if in.Arg == 0 {
			return false, fmt.Errorf("absint: %v with zero oparg at %d in %q", in.Op, pc, ai.code.Name)
		}
		if _, err := ai.popN(cur, in, 2); err != nil {
			return false, err
		}
		if cur.StackSize() < int(in.Arg) {
			return false, ai.underflow(in)
		}
		cur.Peek(int(in.Arg) - 1).Source.Escape()

	case pycode.OpUnpackSequence:
		ops, err := ai.popN(cur, in, 1)
		if err != nil {
			return false, err
		}
		elem := unpackElement(ops[0].Value)
		for j := 0; j < int(in.Arg); j++ {
			cur.Push(ValueWithSource{Value: elem, Source: ai.arena.NewIntermediateSource(pc)})
		}

	case pycode.OpCallFunction:
		ops, err := ai.popN(cur, in, int(in.Arg)+1)
		if err != nil {
			return false, err
		}
		ai.pushResult(cur, pc, ops[0].Value.Call())

	case pycode.OpReturnValue:
		ops, err := ai.popN(cur, in, 1)
		if err != nil {
			return false, err
		}
		ai.returnValue = absval.Merge(ai.returnValue, ops[0].Value)
		return true, nil

	default:
		return false, fmt.Errorf("absint: unsupported opcode %v at %d in %q", in.Op, pc, ai.code.Name)
	}
	return false, nil
}

func (ai *Interpreter) underflow(in pycode.Instr) error {
	return fmt.Errorf("absint: stack underflow at %d (%v) in %q", in.Index, in.Op, ai.code.Name)
}

// setupOpAt returns the SETUP opcode at the given pc.
func (ai *Interpreter) setupOpAt(pc int) (pycode.Opcode, error) {
	idx, err := ai.resolve(pc)
	if err != nil {
		return 0, err
	}
	return ai.instrs[idx].Op, nil
}

// trimToDepthAt pops state down to the stack depth recorded at the given
// offset, escaping everything discarded.
func (ai *Interpreter) trimToDepthAt(state *State, offset int) error {
	ref, ok := ai.states[offset]
	if !ok {
		return fmt.Errorf("absint: branch through unanalyzed offset %d in %q", offset, ai.code.Name)
	}
	for state.StackSize() > ref.StackSize() {
		state.Pop()
	}
	return nil
}

func unaryOpFor(op pycode.Opcode) absval.UnaryOp {
	switch op {
	case pycode.OpUnaryPositive:
		return absval.OpPositive
	case pycode.OpUnaryNegative:
		return absval.OpNegative
	case pycode.OpUnaryInvert:
		return absval.OpInvert
	default:
		return absval.OpNot
	}
}

func binaryOpFor(op pycode.Opcode) absval.BinaryOp {
	switch op {
	case pycode.OpBinaryPower, pycode.OpInplacePower:
		return absval.OpPow
	case pycode.OpBinaryMultiply, pycode.OpInplaceMultiply:
		return absval.OpMul
	case pycode.OpBinaryModulo, pycode.OpInplaceModulo:
		return absval.OpMod
	case pycode.OpBinaryAdd, pycode.OpInplaceAdd:
		return absval.OpAdd
	case pycode.OpBinarySubtract, pycode.OpInplaceSubtract:
		return absval.OpSub
	case pycode.OpBinaryFloorDivide, pycode.OpInplaceFloorDivide:
		return absval.OpFloorDiv
	case pycode.OpBinaryTrueDivide, pycode.OpInplaceTrueDivide:
		return absval.OpTrueDiv
	case pycode.OpBinaryLShift, pycode.OpInplaceLShift:
		return absval.OpLShift
	case pycode.OpBinaryRShift, pycode.OpInplaceRShift:
		return absval.OpRShift
	case pycode.OpBinaryAnd, pycode.OpInplaceAnd:
		return absval.OpAnd
	case pycode.OpBinaryXor, pycode.OpInplaceXor:
		return absval.OpXor
	case pycode.OpBinaryOr, pycode.OpInplaceOr:
		return absval.OpOr
	default:
		return absval.OpSubscr
	}
}

func buildKindFor(op pycode.Opcode) absval.Kind {
	switch op {
	case pycode.OpBuildTuple:
		return absval.KindTuple
	case pycode.OpBuildSet:
		return absval.KindSet
	default:
		return absval.KindList
	}
}

func unpackElement(seq *absval.AbstractValue) *absval.AbstractValue {
	switch seq.Kind() {
	case absval.KindString:
		return absval.Str
	case absval.KindBytes, absval.KindByteArray:
		return absval.Integer
	}
	return absval.Any
}

// abstractConst maps a constant-pool entry to its abstract value.
func abstractConst(v any) *absval.AbstractValue {
	switch v.(type) {
	case nil:
		return absval.None
	case bool:
		return absval.Bool
	case int, int64, uint64:
		return absval.Integer
	case float64:
		return absval.Float
	case []any:
		return absval.For(absval.KindTuple)
	case complex128:
		return absval.For(absval.KindComplex)
	case string:
		return absval.Str
	case []byte:
		return absval.For(absval.KindBytes)
	case *pycode.Code:
		return absval.For(absval.KindCode)
	}
	return absval.Any
}
