// Package ilgen is the IL emission layer: a façade interface the driver
// emits through, an in-memory IL generator, and a backend contract for
// lowering the finished stream into an executable method.
package ilgen

import (
	"fmt"

	"github.com/chazu/pyrite/pkg/pyruntime"
)

// Label identifies a branch target within one generator.
type Label int

// Local identifies a machine-typed local slot within one generator.
type Local int

// LocalKind enumerates the machine types a local can hold.
type LocalKind uint8

const (
	LKInt32 LocalKind = iota
	LKUInt32
	LKInt64
	LKFloat64
	LKObject  // boxed object pointer
	LKPointer // opaque pointer (frame, thread state, name constants)
	LKValue   // stack-allocated value class (fixed-size slot buffer)
)

// LocalType is a machine type plus, for value-class locals, the number of
// slots the value occupies.
type LocalType struct {
	Kind LocalKind
	Size int
}

// BranchKind selects the condition of a branch or comparison.
type BranchKind uint8

const (
	BranchAlways BranchKind = iota
	BranchTrue
	BranchFalse
	BranchEqual
	BranchNotEqual
	BranchLess
	BranchLessEqual
	BranchGreater
	BranchGreaterEqual
	BranchLessEqualUnsigned
)

// Generator is the IL emission façade the driver talks through. A
// generator accumulates an IL stream; Compile hands it to a backend that
// lowers it into an executable JITMethod.
type Generator interface {
	DefineLabel() Label
	MarkLabel(l Label)
	DefineLocal(t LocalType) Local

	LdI4(v int32)
	LdU4(v uint32)
	LdI8(v int64)
	LdR8(v float64)
	LdNull()
	LdPtr(p any)
	LoadFrame()
	LoadThreadState()

	LdLoc(l Local)
	StLoc(l Local)

	Dup()
	Pop()

	Add()
	Sub()
	Mul()
	Div()
	Mod()
	Neg()
	Not()
	LShift()
	RShift()
	And()
	Or()
	Xor()
	ConvR8()
	Compare(kind BranchKind)

	Branch(kind BranchKind, target Label)

	// EmitCall emits a call to a registered helper using its declared
	// arity; EmitCallN pins the operand count for variadic helpers.
	EmitCall(token pyruntime.Token) error
	EmitCallN(token pyruntime.Token, n int) error

	Ret()

	// ILLen returns the number of IL instructions emitted so far.
	ILLen() int

	Compile(info *JitInfo, backend Backend, budget int) (*JITMethod, error)
}

// JitInfo carries per-compile metadata into the backend.
type JitInfo struct {
	Module string
	Name   string
	Debug  bool
}

// Backend lowers a finished IL program into an executable method.
type Backend interface {
	Lower(p *Program, info *JitInfo) (*JITMethod, error)
}

// CallSite records one emitted helper call.
type CallSite struct {
	Token        pyruntime.Token
	NativeOffset int
	ILOffset     int
}

// ilOp enumerates the internal IL instruction forms.
type ilOp uint8

const (
	opLdI4 ilOp = iota
	opLdU4
	opLdI8
	opLdR8
	opLdNull
	opLdPtr
	opLdFrame
	opLdState
	opLdLoc
	opStLoc
	opDup
	opPop
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opNeg
	opNot
	opLShift
	opRShift
	opAnd
	opOr
	opXor
	opConvR8
	opCompare
	opBranch
	opCall
	opRet
)

// ilInstr is one IL instruction; operand fields are used per op.
type ilInstr struct {
	op    ilOp
	i     int64
	f     float64
	p     any
	local Local
	label Label
	kind  BranchKind
	token pyruntime.Token
	argc  int
}

// Program is a finished IL stream ready for lowering: instructions, label
// bindings, and the local slot table.
type Program struct {
	Instrs []ilInstr
	Labels []int // label -> IL index, -1 while unbound
	Locals []LocalType
	Ret    LocalKind
}

// ILGenerator is the stock Generator: it builds a Program in memory.
type ILGenerator struct {
	prog Program
}

// NewGenerator creates a generator whose emitted function returns the
// given machine kind.
func NewGenerator(ret LocalKind) *ILGenerator {
	return &ILGenerator{prog: Program{Ret: ret}}
}

// DefineLabel allocates an unbound label.
func (g *ILGenerator) DefineLabel() Label {
	g.prog.Labels = append(g.prog.Labels, -1)
	return Label(len(g.prog.Labels) - 1)
}

// MarkLabel binds a label at the current emission point.
func (g *ILGenerator) MarkLabel(l Label) {
	g.prog.Labels[l] = len(g.prog.Instrs)
}

// DefineLocal allocates a machine-typed local slot.
func (g *ILGenerator) DefineLocal(t LocalType) Local {
	g.prog.Locals = append(g.prog.Locals, t)
	return Local(len(g.prog.Locals) - 1)
}

func (g *ILGenerator) emit(in ilInstr) {
	g.prog.Instrs = append(g.prog.Instrs, in)
}

func (g *ILGenerator) LdI4(v int32)   { g.emit(ilInstr{op: opLdI4, i: int64(v)}) }
func (g *ILGenerator) LdU4(v uint32)  { g.emit(ilInstr{op: opLdU4, i: int64(v)}) }
func (g *ILGenerator) LdI8(v int64)   { g.emit(ilInstr{op: opLdI8, i: v}) }
func (g *ILGenerator) LdR8(v float64) { g.emit(ilInstr{op: opLdR8, f: v}) }
func (g *ILGenerator) LdNull()        { g.emit(ilInstr{op: opLdNull}) }
func (g *ILGenerator) LdPtr(p any)    { g.emit(ilInstr{op: opLdPtr, p: p}) }
func (g *ILGenerator) LoadFrame()     { g.emit(ilInstr{op: opLdFrame}) }
func (g *ILGenerator) LoadThreadState() {
	g.emit(ilInstr{op: opLdState})
}

func (g *ILGenerator) LdLoc(l Local) { g.emit(ilInstr{op: opLdLoc, local: l}) }
func (g *ILGenerator) StLoc(l Local) { g.emit(ilInstr{op: opStLoc, local: l}) }

func (g *ILGenerator) Dup() { g.emit(ilInstr{op: opDup}) }
func (g *ILGenerator) Pop() { g.emit(ilInstr{op: opPop}) }

func (g *ILGenerator) Add()    { g.emit(ilInstr{op: opAdd}) }
func (g *ILGenerator) Sub()    { g.emit(ilInstr{op: opSub}) }
func (g *ILGenerator) Mul()    { g.emit(ilInstr{op: opMul}) }
func (g *ILGenerator) Div()    { g.emit(ilInstr{op: opDiv}) }
func (g *ILGenerator) Mod()    { g.emit(ilInstr{op: opMod}) }
func (g *ILGenerator) Neg()    { g.emit(ilInstr{op: opNeg}) }
func (g *ILGenerator) Not()    { g.emit(ilInstr{op: opNot}) }
func (g *ILGenerator) LShift() { g.emit(ilInstr{op: opLShift}) }
func (g *ILGenerator) RShift() { g.emit(ilInstr{op: opRShift}) }
func (g *ILGenerator) And()    { g.emit(ilInstr{op: opAnd}) }
func (g *ILGenerator) Or()     { g.emit(ilInstr{op: opOr}) }
func (g *ILGenerator) Xor()    { g.emit(ilInstr{op: opXor}) }

// ConvR8 widens the machine integer on TOS to a float.
func (g *ILGenerator) ConvR8() { g.emit(ilInstr{op: opConvR8}) }

// Compare pops two machine values and pushes 1 or 0.
func (g *ILGenerator) Compare(kind BranchKind) {
	g.emit(ilInstr{op: opCompare, kind: kind})
}

// Branch emits a conditional or unconditional branch to a label.
func (g *ILGenerator) Branch(kind BranchKind, target Label) {
	g.emit(ilInstr{op: opBranch, kind: kind, label: target})
}

// EmitCall emits a helper call with the helper's registered arity. The
// helper must not be variadic.
func (g *ILGenerator) EmitCall(token pyruntime.Token) error {
	h, ok := pyruntime.LookupHelper(token)
	if !ok {
		return fmt.Errorf("ilgen: unknown helper token %d", token)
	}
	if h.Arity == pyruntime.VariadicArity {
		return fmt.Errorf("ilgen: helper %q requires EmitCallN", h.Name)
	}
	g.emit(ilInstr{op: opCall, token: token, argc: h.Arity})
	return nil
}

// EmitCallN emits a helper call popping exactly n operands.
func (g *ILGenerator) EmitCallN(token pyruntime.Token, n int) error {
	h, ok := pyruntime.LookupHelper(token)
	if !ok {
		return fmt.Errorf("ilgen: unknown helper token %d", token)
	}
	if h.Arity != pyruntime.VariadicArity && h.Arity != n {
		return fmt.Errorf("ilgen: helper %q has arity %d, not %d", h.Name, h.Arity, n)
	}
	g.emit(ilInstr{op: opCall, token: token, argc: n})
	return nil
}

// Ret emits a return of the generator's declared kind.
func (g *ILGenerator) Ret() { g.emit(ilInstr{op: opRet}) }

// ILLen returns the number of IL instructions emitted so far.
func (g *ILGenerator) ILLen() int { return len(g.prog.Instrs) }

// Compile checks the program against the budget, verifies every label is
// bound, and lowers through the backend.
func (g *ILGenerator) Compile(info *JitInfo, backend Backend, budget int) (*JITMethod, error) {
	if budget > 0 && len(g.prog.Instrs) > budget {
		return nil, fmt.Errorf("ilgen: %q exceeds IL budget (%d > %d)", info.Name, len(g.prog.Instrs), budget)
	}
	for l, at := range g.prog.Labels {
		if at < 0 {
			return nil, fmt.Errorf("ilgen: label %d never marked in %q", l, info.Name)
		}
	}
	return backend.Lower(&g.prog, info)
}
