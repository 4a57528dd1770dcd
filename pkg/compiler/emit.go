package compiler

import (
	"fmt"

	"github.com/chazu/pyrite/pkg/ilgen"
	"github.com/chazu/pyrite/pkg/pycode"
	"github.com/chazu/pyrite/pkg/pyruntime"
)

// binaryTokens maps boxed binary opcodes to their helper tokens. In-place
// variants share the plain helpers; the result simply replaces the left
// operand on the stack.
var binaryTokens = map[pycode.Opcode]pyruntime.Token{
	pycode.OpBinaryPower:        pyruntime.TokenPower,
	pycode.OpBinaryMultiply:     pyruntime.TokenMultiply,
	pycode.OpBinaryModulo:       pyruntime.TokenModulo,
	pycode.OpBinaryAdd:          pyruntime.TokenAdd,
	pycode.OpBinarySubtract:     pyruntime.TokenSubtract,
	pycode.OpBinarySubscr:       pyruntime.TokenSubscript,
	pycode.OpBinaryFloorDivide:  pyruntime.TokenFloorDivide,
	pycode.OpBinaryTrueDivide:   pyruntime.TokenTrueDivide,
	pycode.OpBinaryLShift:       pyruntime.TokenLShift,
	pycode.OpBinaryRShift:       pyruntime.TokenRShift,
	pycode.OpBinaryAnd:          pyruntime.TokenBitAnd,
	pycode.OpBinaryXor:          pyruntime.TokenBitXor,
	pycode.OpBinaryOr:           pyruntime.TokenBitOr,
	pycode.OpInplacePower:       pyruntime.TokenPower,
	pycode.OpInplaceMultiply:    pyruntime.TokenMultiply,
	pycode.OpInplaceModulo:      pyruntime.TokenModulo,
	pycode.OpInplaceAdd:         pyruntime.TokenAdd,
	pycode.OpInplaceSubtract:    pyruntime.TokenSubtract,
	pycode.OpInplaceFloorDivide: pyruntime.TokenFloorDivide,
	pycode.OpInplaceTrueDivide:  pyruntime.TokenTrueDivide,
	pycode.OpInplaceLShift:      pyruntime.TokenLShift,
	pycode.OpInplaceRShift:      pyruntime.TokenRShift,
	pycode.OpInplaceAnd:         pyruntime.TokenBitAnd,
	pycode.OpInplaceXor:         pyruntime.TokenBitXor,
	pycode.OpInplaceOr:          pyruntime.TokenBitOr,
}

var unaryTokens = map[pycode.Opcode]pyruntime.Token{
	pycode.OpUnaryNegative: pyruntime.TokenUnaryNegative,
	pycode.OpUnaryPositive: pyruntime.TokenUnaryPositive,
	pycode.OpUnaryInvert:   pyruntime.TokenUnaryInvert,
	pycode.OpUnaryNot:      pyruntime.TokenUnaryNot,
}

var buildTokens = map[pycode.Opcode]pyruntime.Token{
	pycode.OpBuildTuple: pyruntime.TokenBuildTuple,
	pycode.OpBuildList:  pyruntime.TokenBuildList,
	pycode.OpBuildSet:   pyruntime.TokenBuildSet,
}

// emitBody walks the bytecode in emission order, translating each opcode
// against the analyser's states and the instruction graph's escape
// decisions, then appends the raise-and-free chains and the epilogue.
func (c *Compiler) emitBody() error {
	c.retValue = c.gen.DefineLocal(ilgen.LocalType{Kind: ilgen.LKObject})
	c.excTmp = c.gen.DefineLocal(ilgen.LocalType{Kind: ilgen.LKObject})
	c.retLabel = c.gen.DefineLabel()
	c.rootHandler = &ExceptionHandler{TargetOffset: -1}
	c.handlers = append(c.handlers, c.rootHandler)

	for _, in := range c.ai.Instructions() {
		pc := in.Index
		if !c.ai.HasState(pc) {
			// Unreached by the analysis: dead code, nothing to emit.
			c.terminated = true
			continue
		}
		if c.ai.IsJumpTarget(pc) {
			if c.terminated {
				saved, ok := c.offsetStack[pc]
				if !ok {
					return fmt.Errorf("compiler: no recorded stack for join at %d in %q", pc, c.code.Name)
				}
				c.shadow = append([]StackKind{}, saved...)
			} else {
				c.canonicalize(0)
				if err := c.saveBranchState(pc, c.shadow); err != nil {
					return err
				}
			}
			c.gen.MarkLabel(c.offsetLabel(pc))
		} else if c.terminated {
			return fmt.Errorf("compiler: unreachable fall-through at %d in %q", pc, c.code.Name)
		}
		c.terminated = false

		if !c.ai.CanSkipLastiUpdate(pc) {
			c.gen.LdI4(int32(pc))
			c.mustCall(c.gen.EmitCall(pyruntime.TokenSetLasti))
		}
		if err := c.emitOpcode(in); err != nil {
			return err
		}
	}

	c.emitRaiseAndFreeChains()
	c.gen.MarkLabel(c.retLabel)
	c.gen.LdLoc(c.retValue)
	c.gen.Ret()
	return nil
}

// emitOpcode translates one instruction.
func (c *Compiler) emitOpcode(in pycode.Instr) error {
	pc := in.Index
	escaped := !c.noUnbox && c.graph.Escaped(pc)

	switch in.Op {
	case pycode.OpNop:

	case pycode.OpPopTop:
		c.gen.Pop()
		c.pop()

	case pycode.OpRotTwo:
		b := c.pop()
		a := c.pop()
		c.gen.StLoc(c.tempObj(0)) // b
		c.gen.StLoc(c.tempObj(1)) // a
		c.gen.LdLoc(c.tempObj(0))
		c.gen.LdLoc(c.tempObj(1))
		c.push(b)
		c.push(a)

	case pycode.OpRotThree:
		cKind := c.pop()
		bKind := c.pop()
		aKind := c.pop()
		c.gen.StLoc(c.tempObj(0)) // c
		c.gen.StLoc(c.tempObj(1)) // b
		c.gen.StLoc(c.tempObj(2)) // a
		c.gen.LdLoc(c.tempObj(0))
		c.gen.LdLoc(c.tempObj(2))
		c.gen.LdLoc(c.tempObj(1))
		c.push(cKind)
		c.push(aKind)
		c.push(bKind)

	case pycode.OpDupTop:
		c.gen.Dup()
		c.push(c.peek(0))

	case pycode.OpDupTopTwo:
		b := c.pop()
		a := c.pop()
		c.gen.StLoc(c.tempObj(0))
		c.gen.StLoc(c.tempObj(1))
		c.gen.LdLoc(c.tempObj(1))
		c.gen.LdLoc(c.tempObj(0))
		c.gen.LdLoc(c.tempObj(1))
		c.gen.LdLoc(c.tempObj(0))
		c.push(a)
		c.push(b)
		c.push(a)
		c.push(b)

	case pycode.OpUnaryPositive, pycode.OpUnaryNegative, pycode.OpUnaryNot, pycode.OpUnaryInvert:
		c.emitUnary(pc, in.Op, escaped)

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
		c.emitBinary(pc, in.Op, escaped)

	case pycode.OpCompareOp:
		c.emitCompare(pc, in.Arg, escaped)

	case pycode.OpIsOp:
		c.prepareBoxed(2)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenIs))
		c.popN(2)
		if in.Arg == 1 {
			c.gen.Not()
		}
		c.mustCall(c.gen.EmitCall(pyruntime.TokenBoxBool))
		c.push(StackKindObject)

	case pycode.OpContainsOp:
		c.prepareBoxed(2)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenContains))
		c.popN(2)
		// -1 signals an error; 0 and 1 are answers and must survive.
		ok := c.gen.DefineLabel()
		c.gen.Dup()
		c.gen.LdI4(-1)
		c.gen.Branch(ilgen.BranchNotEqual, ok)
		c.gen.Pop()
		c.branchRaise()
		c.gen.MarkLabel(ok)
		if in.Arg == 1 {
			c.gen.Not()
		}
		c.mustCall(c.gen.EmitCall(pyruntime.TokenBoxBool))
		c.push(StackKindObject)

	case pycode.OpStoreSubscr:
		c.prepareBoxed(3)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenStoreSubscr))
		c.popN(3)
		c.intErrorCheck()

	case pycode.OpDeleteSubscr:
		c.prepareBoxed(2)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenDeleteSubscr))
		c.popN(2)
		c.intErrorCheck()

	case pycode.OpGetIter:
		c.prepareBoxed(1)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenGetIter))
		c.popN(1)
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpForIter:
		return c.emitForIter(in)

	case pycode.OpLoadConst:
		c.emitLoadConst(in, escaped)

	case pycode.OpLoadFast:
		slot := int(in.Arg)
		c.gen.LdI8(int64(slot))
		c.gen.LdPtr(c.code.Varnames[slot])
		c.mustCall(c.gen.EmitCall(pyruntime.TokenLoadFast))
		c.push(StackKindObject)
		if c.ai.GetLocalInfo(pc, slot).MaybeUndefined {
			c.errorCheck()
		}

	case pycode.OpStoreFast:
		c.prepareBoxed(1)
		c.gen.LdI8(int64(in.Arg))
		c.mustCall(c.gen.EmitCall(pyruntime.TokenStoreFast))
		c.popN(1)

	case pycode.OpDeleteFast:
		slot := int(in.Arg)
		c.gen.LdI8(int64(slot))
		c.gen.LdPtr(c.code.Varnames[slot])
		c.mustCall(c.gen.EmitCall(pyruntime.TokenDeleteFast))
		c.intErrorCheck()

	case pycode.OpLoadGlobal, pycode.OpLoadName:
		c.gen.LdPtr(c.code.Names[in.Arg])
		c.mustCall(c.gen.EmitCall(pyruntime.TokenLoadGlobal))
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpLoadAssertionError:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenLoadAssertionError))
		c.push(StackKindObject)

	case pycode.OpJumpForward, pycode.OpJumpAbsolute:
		target, _ := in.JumpTarget()
		c.canonicalize(0)
		if err := c.saveBranchState(target, c.shadow); err != nil {
			return err
		}
		c.gen.Branch(ilgen.BranchAlways, c.offsetLabel(target))
		c.terminated = true

	case pycode.OpPopJumpIfTrue, pycode.OpPopJumpIfFalse:
		return c.emitPopJump(in, escaped)

	case pycode.OpJumpIfTrueOrPop, pycode.OpJumpIfFalseOrPop:
		return c.emitJumpOrPop(in)

	case pycode.OpSetupLoop:
		target, _ := in.JumpTarget()
		c.canonicalize(0)
		c.blockStack = append(c.blockStack, BlockInfo{
			Kind:       BlockLoop,
			EndOffset:  target,
			EntryDepth: len(c.shadow),
		})

	case pycode.OpSetupExcept, pycode.OpSetupFinally:
		return c.emitSetupHandler(in)

	case pycode.OpPopBlock:
		return c.emitPopBlock(pc)

	case pycode.OpPopExcept:
		c.gen.Pop()
		c.gen.Pop()
		c.gen.Pop()
		c.popN(3)
		if n := len(c.blockStack); n > 0 && c.blockStack[n-1].Kind == BlockHandler {
			c.blockStack[n-1].Handler.state = handlerPostHandler
			c.blockStack = c.blockStack[:n-1]
		}

	case pycode.OpEndFinally:
		if n := len(c.blockStack); n > 0 && c.blockStack[n-1].Kind == BlockHandler {
			c.blockStack[n-1].Handler.state = handlerPostHandler
			c.blockStack = c.blockStack[:n-1]
		}
		c.mustCall(c.gen.EmitCall(pyruntime.TokenEndFinally))
		c.popN(3)
		c.intErrorCheck()

	case pycode.OpBreakLoop:
		li := c.innermostLoop()
		if li < 0 {
			return fmt.Errorf("compiler: BREAK_LOOP outside loop at %d in %q", pc, c.code.Name)
		}
		block := c.blockStack[li]
		for len(c.shadow) > block.EntryDepth {
			c.gen.Pop()
			c.pop()
		}
		if err := c.saveBranchState(block.EndOffset, c.shadow); err != nil {
			return err
		}
		c.gen.Branch(ilgen.BranchAlways, c.offsetLabel(block.EndOffset))
		c.terminated = true

	case pycode.OpContinueLoop:
		target := int(in.Arg)
		depth := c.ai.StackDepth(target)
		if depth < 0 {
			return fmt.Errorf("compiler: CONTINUE_LOOP to unreached %d in %q", target, c.code.Name)
		}
		for len(c.shadow) > depth {
			c.gen.Pop()
			c.pop()
		}
		c.canonicalize(0)
		if err := c.saveBranchState(target, c.shadow); err != nil {
			return err
		}
		c.gen.Branch(ilgen.BranchAlways, c.offsetLabel(target))
		c.terminated = true

	case pycode.OpRaiseVarargs:
		switch in.Arg {
		case 0:
			c.mustCall(c.gen.EmitCall(pyruntime.TokenReraise))
		case 1:
			c.prepareBoxed(1)
			c.mustCall(c.gen.EmitCall(pyruntime.TokenRaise))
			c.popN(1)
		case 2:
			c.prepareBoxed(2)
			c.gen.Pop() // cause; chaining through it is not modelled
			c.popN(1)
			c.mustCall(c.gen.EmitCall(pyruntime.TokenRaise))
			c.popN(1)
		default:
			return fmt.Errorf("compiler: RAISE_VARARGS with %d args at %d in %q", in.Arg, pc, c.code.Name)
		}
		c.intErrorCheck()
		c.terminated = true

	case pycode.OpBuildTuple, pycode.OpBuildList, pycode.OpBuildSet:
		n := int(in.Arg)
		c.prepareBoxed(n)
		c.mustCall(c.gen.EmitCallN(buildTokens[in.Op], n))
		c.popN(n)
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpBuildMap:
		n := 2 * int(in.Arg)
		c.prepareBoxed(n)
		c.mustCall(c.gen.EmitCallN(pyruntime.TokenBuildMap, n))
		c.popN(n)
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpBuildConstKeyMap:
		n := int(in.Arg) + 1
		c.prepareBoxed(n)
		c.mustCall(c.gen.EmitCallN(pyruntime.TokenBuildConstKeyMap, n))
		c.popN(n)
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpBuildSlice:
		n := int(in.Arg)
		c.prepareBoxed(n)
		c.mustCall(c.gen.EmitCallN(pyruntime.TokenBuildSlice, n))
		c.popN(n)
		c.push(StackKindObject)

	case pycode.OpListAppend:
		c.emitInPlaceGrow(in, pyruntime.TokenListAppend, 1)
	case pycode.OpListExtend:
		c.emitInPlaceGrow(in, pyruntime.TokenListExtend, 1)
	case pycode.OpSetAdd:
		c.emitInPlaceGrow(in, pyruntime.TokenSetAdd, 1)
	case pycode.OpSetUpdate:
		c.emitInPlaceGrow(in, pyruntime.TokenSetUpdate, 1)
	case pycode.OpDictUpdate:
		c.emitInPlaceGrow(in, pyruntime.TokenDictUpdate, 1)
	case pycode.OpDictMerge:
		c.emitInPlaceGrow(in, pyruntime.TokenDictMerge, 1)
	case pycode.OpMapAdd:
		c.emitInPlaceGrow(in, pyruntime.TokenMapAdd, 2)

	case pycode.OpUnpackSequence:
		c.emitUnpackSequence(int(in.Arg))

	case pycode.OpCallFunction:
		n := int(in.Arg) + 1
		c.prepareBoxed(n)
		c.mustCall(c.gen.EmitCallN(pyruntime.TokenCall, n))
		c.popN(n)
		c.push(StackKindObject)
		c.errorCheck()

	case pycode.OpReturnValue:
		c.prepareBoxed(1)
		c.gen.StLoc(c.retValue)
		c.popN(1)
		c.gen.Branch(ilgen.BranchAlways, c.retLabel)
		c.terminated = true

	default:
		return fmt.Errorf("compiler: unsupported opcode %v at %d in %q", in.Op, pc, c.code.Name)
	}
	return nil
}

// emitLoadConst pushes a constant in the representation the instruction
// graph selected.
func (c *Compiler) emitLoadConst(in pycode.Instr, escaped bool) {
	obj := c.constCache[in.Arg]
	if escaped {
		switch v := obj.(type) {
		case *pyruntime.IntObject:
			if v.IsSmall() {
				c.gen.LdI8(v.Small)
				c.push(StackKindInt)
				return
			}
		case *pyruntime.FloatObject:
			c.gen.LdR8(v.Value)
			c.push(StackKindFloat)
			return
		case *pyruntime.BoolObject:
			if v.Value {
				c.gen.LdI4(1)
			} else {
				c.gen.LdI4(0)
			}
			c.push(StackKindBool)
			return
		}
	}
	c.gen.LdPtr(obj)
	c.push(StackKindObject)
}

// emitUnary translates the unary opcodes.
func (c *Compiler) emitUnary(pc int, op pycode.Opcode, escaped bool) {
	if escaped {
		wants := c.operandKinds(pc, 1)
		c.prepareUnboxedAs(wants)
		switch op {
		case pycode.OpUnaryNegative:
			c.gen.Neg()
			c.popN(1)
			c.push(wants[0])
		case pycode.OpUnaryPositive:
			c.popN(1)
			c.push(wants[0])
		case pycode.OpUnaryNot:
			c.gen.Not()
			c.popN(1)
			c.push(StackKindBool)
		case pycode.OpUnaryInvert:
			c.gen.LdI8(-1)
			c.gen.Xor()
			c.popN(1)
			c.push(StackKindInt)
		}
		return
	}
	c.prepareBoxed(1)
	c.mustCall(c.gen.EmitCall(unaryTokens[op]))
	c.popN(1)
	c.push(StackKindObject)
	if op != pycode.OpUnaryNot {
		c.errorCheck()
	}
}

// emitBinary translates the binary and in-place opcodes, choosing the
// unboxed machine strategy when the instruction graph escaped the opcode.
func (c *Compiler) emitBinary(pc int, op pycode.Opcode, escaped bool) {
	if !escaped {
		c.prepareBoxed(2)
		c.mustCall(c.gen.EmitCall(binaryTokens[op]))
		c.popN(2)
		c.push(StackKindObject)
		c.errorCheck()
		return
	}

	wants := c.operandKinds(pc, 2)
	isFloat := wants[0] == StackKindFloat || wants[1] == StackKindFloat
	switch op {
	case pycode.OpBinaryTrueDivide, pycode.OpInplaceTrueDivide,
		pycode.OpBinaryFloorDivide, pycode.OpInplaceFloorDivide,
		pycode.OpBinaryModulo, pycode.OpInplaceModulo:
		if isFloat {
			// Mixed operands widen so the float intrinsics see floats.
			wants[0] = StackKindFloat
			wants[1] = StackKindFloat
		}
	case pycode.OpBinaryAnd, pycode.OpInplaceAnd,
		pycode.OpBinaryOr, pycode.OpInplaceOr,
		pycode.OpBinaryXor, pycode.OpInplaceXor:
		wants[0] = StackKindInt
		wants[1] = StackKindInt
		isFloat = false
	}
	c.prepareUnboxedAs(wants)

	switch op {
	case pycode.OpBinaryAdd, pycode.OpInplaceAdd:
		c.gen.Add()
		c.finishMachineBinary(isFloat)
	case pycode.OpBinarySubtract, pycode.OpInplaceSubtract:
		c.gen.Sub()
		c.finishMachineBinary(isFloat)
	case pycode.OpBinaryMultiply, pycode.OpInplaceMultiply:
		c.gen.Mul()
		c.finishMachineBinary(isFloat)
	case pycode.OpBinaryAnd, pycode.OpInplaceAnd:
		c.gen.And()
		c.finishMachineBinary(false)
	case pycode.OpBinaryOr, pycode.OpInplaceOr:
		c.gen.Or()
		c.finishMachineBinary(false)
	case pycode.OpBinaryXor, pycode.OpInplaceXor:
		c.gen.Xor()
		c.finishMachineBinary(false)
	case pycode.OpBinaryTrueDivide, pycode.OpInplaceTrueDivide:
		c.guardZeroDivisor(isFloat)
		if isFloat {
			c.gen.Div()
		} else {
			c.mustCall(c.gen.EmitCall(pyruntime.TokenIntTrueDivide))
		}
		c.popN(2)
		c.push(StackKindFloat)
	case pycode.OpBinaryFloorDivide, pycode.OpInplaceFloorDivide:
		c.guardZeroDivisor(isFloat)
		if isFloat {
			c.mustCall(c.gen.EmitCall(pyruntime.TokenFloatFloorDivide))
		} else {
			c.mustCall(c.gen.EmitCall(pyruntime.TokenIntFloorDivide))
		}
		c.finishMachineBinary(isFloat)
	case pycode.OpBinaryModulo, pycode.OpInplaceModulo:
		c.guardZeroDivisor(isFloat)
		if isFloat {
			c.mustCall(c.gen.EmitCall(pyruntime.TokenFloatModulo))
		} else {
			c.mustCall(c.gen.EmitCall(pyruntime.TokenIntModulo))
		}
		c.finishMachineBinary(isFloat)
	}
}

func (c *Compiler) finishMachineBinary(isFloat bool) {
	c.popN(2)
	if isFloat {
		c.push(StackKindFloat)
	} else {
		c.push(StackKindInt)
	}
}

// guardZeroDivisor raises ZeroDivisionError before a division whose
// machine divisor is zero.
func (c *Compiler) guardZeroDivisor(isFloat bool) {
	ok := c.gen.DefineLabel()
	c.gen.Dup()
	if isFloat {
		c.gen.LdR8(0)
	} else {
		c.gen.LdI8(0)
	}
	c.gen.Branch(ilgen.BranchNotEqual, ok)
	c.mustCall(c.gen.EmitCall(pyruntime.TokenZeroDivisionError))
	c.branchRaise()
	c.gen.MarkLabel(ok)
}

// emitCompare translates COMPARE_OP.
func (c *Compiler) emitCompare(pc int, oparg uint32, escaped bool) {
	if escaped {
		c.prepareUnboxedAs(c.operandKinds(pc, 2))
		c.gen.Compare(compareBranchKind(pycode.Compare(oparg)))
		c.popN(2)
		c.push(StackKindBool)
		return
	}
	c.prepareBoxed(2)
	c.gen.LdI4(int32(oparg))
	c.mustCall(c.gen.EmitCall(pyruntime.TokenRichCompare))
	c.popN(2)
	c.push(StackKindObject)
	c.errorCheck()
}

func compareBranchKind(cmp pycode.Compare) ilgen.BranchKind {
	switch cmp {
	case pycode.CmpLt:
		return ilgen.BranchLess
	case pycode.CmpLe:
		return ilgen.BranchLessEqual
	case pycode.CmpEq:
		return ilgen.BranchEqual
	case pycode.CmpNe:
		return ilgen.BranchNotEqual
	case pycode.CmpGt:
		return ilgen.BranchGreater
	default:
		return ilgen.BranchGreaterEqual
	}
}

// emitPopJump translates POP_JUMP_IF_TRUE/FALSE.
func (c *Compiler) emitPopJump(in pycode.Instr, escaped bool) error {
	target, _ := in.JumpTarget()
	kind := ilgen.BranchTrue
	if in.Op == pycode.OpPopJumpIfFalse {
		kind = ilgen.BranchFalse
	}
	if escaped {
		c.canonicalize(1)
		c.pop()
		if err := c.saveBranchState(target, c.shadow); err != nil {
			return err
		}
		c.gen.Branch(kind, c.offsetLabel(target))
		return nil
	}
	c.canonicalize(0)
	c.prepareBoxed(1)
	c.mustCall(c.gen.EmitCall(pyruntime.TokenIsTruthy))
	c.pop()
	if err := c.saveBranchState(target, c.shadow); err != nil {
		return err
	}
	c.gen.Branch(kind, c.offsetLabel(target))
	return nil
}

// emitJumpOrPop translates JUMP_IF_TRUE_OR_POP/JUMP_IF_FALSE_OR_POP.
func (c *Compiler) emitJumpOrPop(in pycode.Instr) error {
	target, _ := in.JumpTarget()
	kind := ilgen.BranchTrue
	if in.Op == pycode.OpJumpIfFalseOrPop {
		kind = ilgen.BranchFalse
	}
	c.canonicalize(1)
	c.prepareBoxed(1)
	c.gen.Dup()
	c.mustCall(c.gen.EmitCall(pyruntime.TokenIsTruthy))
	if err := c.saveBranchState(target, c.shadow); err != nil {
		return err
	}
	c.gen.Branch(kind, c.offsetLabel(target))
	c.gen.Pop()
	c.pop()
	return nil
}

// emitForIter translates FOR_ITER: advance the iterator, distinguishing a
// yielded value, exhaustion, and error.
func (c *Compiler) emitForIter(in pycode.Instr) error {
	target, _ := in.JumpTarget()
	c.canonicalize(0)

	haveValue := c.gen.DefineLabel()
	c.gen.Dup()
	c.mustCall(c.gen.EmitCall(pyruntime.TokenIterNext))
	c.gen.Dup()
	c.gen.LdNull()
	c.gen.Branch(ilgen.BranchNotEqual, haveValue)

	// nil from the iterator: either exhaustion or a raised error.
	c.gen.Pop()
	c.excOccurredCheck()
	c.gen.Pop() // the iterator itself
	iterKind := c.pop()
	if err := c.saveBranchState(target, c.shadow); err != nil {
		return err
	}
	c.gen.Branch(ilgen.BranchAlways, c.offsetLabel(target))
	c.push(iterKind)

	c.gen.MarkLabel(haveValue)
	c.push(StackKindObject)
	return nil
}

// emitSetupHandler translates SETUP_EXCEPT/SETUP_FINALLY: allocate the
// handler, push the try block, and record the handler entry stack (the
// state at setup plus the exception triple).
func (c *Compiler) emitSetupHandler(in pycode.Instr) error {
	target, _ := in.JumpTarget()
	c.canonicalize(0)
	h := &ExceptionHandler{
		Parent:       c.currentHandler(),
		TargetOffset: target,
		EntryDepth:   len(c.shadow),
		IsFinally:    in.Op == pycode.OpSetupFinally,
		state:        handlerTryBody,
	}
	c.handlers = append(c.handlers, h)
	c.blockStack = append(c.blockStack, BlockInfo{
		Kind:       BlockTry,
		EndOffset:  target,
		EntryDepth: len(c.shadow),
		Handler:    h,
		IsFinally:  h.IsFinally,
	})
	entry := append(append([]StackKind{}, c.shadow...), StackKindObject, StackKindObject, StackKindObject)
	return c.saveBranchState(target, entry)
}

// emitPopBlock pops the innermost block. A try block transforms into its
// handler block: the handler body that follows is emitted under the
// enclosing protected region, and a finally body entered normally sees
// the no-exception marker triple.
func (c *Compiler) emitPopBlock(pc int) error {
	n := len(c.blockStack)
	if n == 0 {
		return fmt.Errorf("compiler: POP_BLOCK with empty block stack at %d in %q", pc, c.code.Name)
	}
	b := c.blockStack[n-1]
	c.blockStack = c.blockStack[:n-1]
	switch b.Kind {
	case BlockLoop:
	case BlockTry:
		b.Handler.state = handlerInHandler
		c.blockStack = append(c.blockStack, BlockInfo{
			Kind:       BlockHandler,
			EndOffset:  b.EndOffset,
			EntryDepth: b.EntryDepth,
			Handler:    b.Handler,
			IsFinally:  b.IsFinally,
		})
		if b.IsFinally {
			c.gen.LdPtr(pyruntime.None)
			c.gen.LdPtr(pyruntime.None)
			c.gen.LdPtr(pyruntime.None)
			c.push(StackKindObject)
			c.push(StackKindObject)
			c.push(StackKindObject)
		}
	default:
		return fmt.Errorf("compiler: POP_BLOCK on handler block at %d in %q", pc, c.code.Name)
	}
	return nil
}

// emitInPlaceGrow translates the comprehension-style opcodes that mutate
// a container sitting oparg slots below the popped operands.
func (c *Compiler) emitInPlaceGrow(in pycode.Instr, token pyruntime.Token, popCount int) {
	c.prepareBoxed(popCount)
	// Pop the operands, then any entries between them and the container.
	for i := 0; i < popCount; i++ {
		c.gen.StLoc(c.tempObj(i))
	}
	between := int(in.Arg) - 1
	for i := 0; i < between; i++ {
		c.gen.StLoc(c.tempObj(popCount + i))
	}
	c.gen.Dup() // the container
	if popCount == 2 {
		// MAP_ADD operands: key below value.
		c.gen.LdLoc(c.tempObj(1))
		c.gen.LdLoc(c.tempObj(0))
	} else {
		c.gen.LdLoc(c.tempObj(0))
	}
	c.mustCall(c.gen.EmitCall(token))
	// Park the status, restore the spilled entries so the stack matches
	// the shadow again, then run the error check.
	status := c.tempObj(popCount + between)
	c.gen.StLoc(status)
	for i := between - 1; i >= 0; i-- {
		c.gen.LdLoc(c.tempObj(popCount + i))
	}
	c.popN(popCount)
	c.gen.LdLoc(status)
	c.intErrorCheck()
}

// emitUnpackSequence translates UNPACK_SEQUENCE through the dedicated
// unpack buffer local.
func (c *Compiler) emitUnpackSequence(n int) {
	c.prepareBoxed(1)
	c.gen.LdI8(int64(n))
	c.mustCall(c.gen.EmitCall(pyruntime.TokenUnpackSequence))
	c.popN(1)
	c.push(StackKindObject)
	c.errorCheck()

	buf, ok := c.seqLocals[n]
	if !ok {
		buf = c.gen.DefineLocal(ilgen.LocalType{Kind: ilgen.LKValue, Size: n})
		c.seqLocals[n] = buf
	}
	c.gen.StLoc(buf)
	c.popN(1)
	for j := n - 1; j >= 0; j-- {
		c.gen.LdLoc(buf)
		c.gen.LdI8(int64(j))
		c.mustCall(c.gen.EmitCall(pyruntime.TokenTupleGet))
		c.push(StackKindObject)
	}
}
