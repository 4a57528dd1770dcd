package ilgen

import (
	"fmt"

	"github.com/chazu/pyrite/pkg/pyruntime"
)

// EvalBackend lowers IL into a directly executable form: branches are
// resolved to instruction indices and helper tokens to their native
// functions, then a machine-value stack machine runs the result. It is the
// stock backend; the Backend interface leaves room for others.
type EvalBackend struct{}

// lowered is one executable instruction: IL with labels and tokens
// resolved.
type lowered struct {
	op     ilOp
	i      int64
	f      float64
	p      any
	local  Local
	target int
	kind   BranchKind
	helper *pyruntime.Helper
	argc   int
}

// JITMethod is the packaged result of a compile: the executable body plus
// the call-site and symbol tables. Immutable once built.
type JITMethod struct {
	Name      string
	Ret       LocalKind
	CallSites []CallSite
	Symbols   map[string]int

	code   []lowered
	locals []LocalType
}

// Lower resolves the program and packages it as a JITMethod.
func (b *EvalBackend) Lower(p *Program, info *JitInfo) (*JITMethod, error) {
	m := &JITMethod{
		Name:    info.Name,
		Ret:     p.Ret,
		Symbols: map[string]int{"entry": 0},
		locals:  p.Locals,
	}
	for l, at := range p.Labels {
		m.Symbols[fmt.Sprintf("L%d", l)] = at
	}
	m.code = make([]lowered, len(p.Instrs))
	for i, in := range p.Instrs {
		lw := lowered{
			op: in.op, i: in.i, f: in.f, p: in.p,
			local: in.local, kind: in.kind, argc: in.argc,
		}
		switch in.op {
		case opBranch:
			at := p.Labels[in.label]
			if at < 0 || at > len(p.Instrs) {
				return nil, fmt.Errorf("ilgen: branch to unbound label %d in %q", in.label, info.Name)
			}
			lw.target = at
		case opCall:
			h, ok := pyruntime.LookupHelper(in.token)
			if !ok {
				return nil, fmt.Errorf("ilgen: unresolved helper token %d in %q", in.token, info.Name)
			}
			lw.helper = h
			m.CallSites = append(m.CallSites, CallSite{Token: in.token, NativeOffset: i, ILOffset: i})
		}
		m.code[i] = lw
	}
	return m, nil
}

// Invoke runs the method against a frame and thread state and returns the
// machine value left by Ret.
func (m *JITMethod) Invoke(frame *pyruntime.Frame, ts *pyruntime.ThreadState) pyruntime.Value {
	locals := make([]pyruntime.Value, len(m.locals))
	for i, t := range m.locals {
		if t.Kind == LKValue {
			locals[i] = pyruntime.PtrValue(make([]pyruntime.Value, t.Size))
		}
	}
	stack := make([]pyruntime.Value, 0, 16)
	push := func(v pyruntime.Value) { stack = append(stack, v) }
	pop := func() pyruntime.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for pc := 0; pc < len(m.code); {
		in := &m.code[pc]
		switch in.op {
		case opLdI4, opLdU4, opLdI8:
			push(pyruntime.IntValue(in.i))
		case opLdR8:
			push(pyruntime.FloatValue(in.f))
		case opLdNull:
			push(pyruntime.ObjValue(nil))
		case opLdPtr:
			// An object pointer constant loads as an object slot; other
			// pointers (names, buffers) stay opaque.
			if o, ok := in.p.(pyruntime.Object); ok {
				push(pyruntime.ObjValue(o))
			} else {
				push(pyruntime.PtrValue(in.p))
			}
		case opLdFrame:
			push(pyruntime.PtrValue(frame))
		case opLdState:
			push(pyruntime.PtrValue(ts))
		case opLdLoc:
			push(locals[in.local])
		case opStLoc:
			locals[in.local] = pop()
		case opDup:
			push(stack[len(stack)-1])
		case opPop:
			pop()
		case opAdd, opSub, opMul, opDiv, opMod, opLShift, opRShift, opAnd, opOr, opXor:
			b := pop()
			a := pop()
			push(arith(in.op, a, b))
		case opNeg:
			v := pop()
			if v.Kind == pyruntime.VKFloat {
				push(pyruntime.FloatValue(-v.Float))
			} else {
				push(pyruntime.IntValue(-v.Int))
			}
		case opNot:
			v := pop()
			if v.Truthy() {
				push(pyruntime.IntValue(0))
			} else {
				push(pyruntime.IntValue(1))
			}
		case opConvR8:
			v := pop()
			push(pyruntime.FloatValue(toFloat(v)))
		case opCompare:
			b := pop()
			a := pop()
			if compare(in.kind, a, b) {
				push(pyruntime.IntValue(1))
			} else {
				push(pyruntime.IntValue(0))
			}
		case opBranch:
			taken := false
			switch in.kind {
			case BranchAlways:
				taken = true
			case BranchTrue:
				taken = pop().Truthy()
			case BranchFalse:
				taken = !pop().Truthy()
			default:
				b := pop()
				a := pop()
				taken = compare(in.kind, a, b)
			}
			if taken {
				pc = in.target
				continue
			}
		case opCall:
			args := make([]pyruntime.Value, in.argc)
			for j := in.argc - 1; j >= 0; j-- {
				args[j] = pop()
			}
			ret := in.helper.Fn(ts, frame, args)
			if in.helper.Ret != pyruntime.RetVoid {
				push(ret)
			}
		case opRet:
			if m.Ret == LKValue {
				return pyruntime.Value{}
			}
			if len(stack) == 0 {
				return pyruntime.Value{}
			}
			return pop()
		}
		pc++
	}
	return pyruntime.Value{}
}

// EntryPoint adapts the method to the host calling convention for compiled
// Python functions: (frame, tstate) -> object, nil signalling a raised
// exception through the thread state.
func (m *JITMethod) EntryPoint() func(*pyruntime.Frame, *pyruntime.ThreadState) pyruntime.Object {
	return func(frame *pyruntime.Frame, ts *pyruntime.ThreadState) pyruntime.Object {
		return m.Invoke(frame, ts).Obj
	}
}

// arith applies a machine arithmetic op, promoting to float when either
// operand is float. Integer shifts wider than the word produce 0 (left)
// or the sign fill (right).
func arith(op ilOp, a, b pyruntime.Value) pyruntime.Value {
	if a.Kind == pyruntime.VKFloat || b.Kind == pyruntime.VKFloat {
		fa, fb := toFloat(a), toFloat(b)
		switch op {
		case opAdd:
			return pyruntime.FloatValue(fa + fb)
		case opSub:
			return pyruntime.FloatValue(fa - fb)
		case opMul:
			return pyruntime.FloatValue(fa * fb)
		case opDiv:
			return pyruntime.FloatValue(fa / fb)
		}
		return pyruntime.FloatValue(0)
	}
	x, y := a.Int, b.Int
	switch op {
	case opAdd:
		return pyruntime.IntValue(x + y)
	case opSub:
		return pyruntime.IntValue(x - y)
	case opMul:
		return pyruntime.IntValue(x * y)
	case opDiv:
		return pyruntime.IntValue(x / y)
	case opMod:
		return pyruntime.IntValue(x % y)
	case opLShift:
		if uint64(y) >= 64 {
			return pyruntime.IntValue(0)
		}
		return pyruntime.IntValue(x << uint(y))
	case opRShift:
		if uint64(y) >= 64 {
			if x < 0 {
				return pyruntime.IntValue(-1)
			}
			return pyruntime.IntValue(0)
		}
		return pyruntime.IntValue(x >> uint(y))
	case opAnd:
		return pyruntime.IntValue(x & y)
	case opOr:
		return pyruntime.IntValue(x | y)
	case opXor:
		return pyruntime.IntValue(x ^ y)
	}
	return pyruntime.IntValue(0)
}

func toFloat(v pyruntime.Value) float64 {
	if v.Kind == pyruntime.VKFloat {
		return v.Float
	}
	return float64(v.Int)
}

// compare evaluates a machine comparison. Object slots compare by
// identity, which is what null checks need.
func compare(kind BranchKind, a, b pyruntime.Value) bool {
	if a.Kind == pyruntime.VKObject || b.Kind == pyruntime.VKObject {
		switch kind {
		case BranchEqual:
			return a.Obj == b.Obj
		case BranchNotEqual:
			return a.Obj != b.Obj
		}
		return false
	}
	if a.Kind == pyruntime.VKFloat || b.Kind == pyruntime.VKFloat {
		fa, fb := toFloat(a), toFloat(b)
		switch kind {
		case BranchEqual:
			return fa == fb
		case BranchNotEqual:
			return fa != fb
		case BranchLess:
			return fa < fb
		case BranchLessEqual:
			return fa <= fb
		case BranchGreater:
			return fa > fb
		case BranchGreaterEqual:
			return fa >= fb
		}
		return false
	}
	switch kind {
	case BranchEqual:
		return a.Int == b.Int
	case BranchNotEqual:
		return a.Int != b.Int
	case BranchLess:
		return a.Int < b.Int
	case BranchLessEqual:
		return a.Int <= b.Int
	case BranchGreater:
		return a.Int > b.Int
	case BranchGreaterEqual:
		return a.Int >= b.Int
	case BranchLessEqualUnsigned:
		return uint64(a.Int) <= uint64(b.Int)
	}
	return false
}
