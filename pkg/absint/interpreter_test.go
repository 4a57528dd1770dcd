package absint

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/pyrite/pkg/absval"
	"github.com/chazu/pyrite/pkg/pycode"
)

func analyze(t *testing.T, code *pycode.Code) *Interpreter {
	t.Helper()
	ai, err := New(code)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ai.Interpret(); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	return ai
}

func TestStraightLineTypes(t *testing.T) {
	a := pycode.NewAssembler("add")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(2.5))
	a.Op(pycode.OpBinaryAdd)
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	// Before BINARY_ADD the stack holds int, float (bottom first).
	stack := ai.GetStackInfo(4)
	if len(stack) != 2 {
		t.Fatalf("stack depth at 4 = %d, want 2", len(stack))
	}
	if stack[0].Value.Kind() != absval.KindInteger {
		t.Errorf("stack[0] = %v, want int", stack[0].Value)
	}
	if stack[1].Value.Kind() != absval.KindFloat {
		t.Errorf("stack[1] = %v, want float", stack[1].Value)
	}
	// Before RETURN_VALUE the sum is a float.
	stack = ai.GetStackInfo(6)
	if len(stack) != 1 || stack[0].Value.Kind() != absval.KindFloat {
		t.Errorf("stack at 6 = %v, want [float]", stack)
	}
	if ai.ReturnValue().Kind() != absval.KindFloat {
		t.Errorf("return value = %v, want float", ai.ReturnValue())
	}
}

func TestLocalStates(t *testing.T) {
	a := pycode.NewAssembler("locals")
	x := a.Local("x")
	a.Emit(pycode.OpLoadConst, a.Const(int64(10)))
	a.Emit(pycode.OpStoreFast, x)
	a.Emit(pycode.OpLoadFast, x)
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	// Before the store, x is definitely unassigned.
	before := ai.GetLocalInfo(2, int(x))
	if !before.MaybeUndefined || before.ValueInfo.Value.Kind() != absval.KindUndefined {
		t.Errorf("before store: %+v, want definitely-undefined", before)
	}
	// After the store, x is definitely assigned with a known type.
	after := ai.GetLocalInfo(4, int(x))
	if after.MaybeUndefined {
		t.Error("after store: still maybe-undefined")
	}
	if after.ValueInfo.Value.Kind() != absval.KindInteger {
		t.Errorf("after store: %v, want int", after.ValueInfo.Value)
	}
}

func TestArgumentsStartAssigned(t *testing.T) {
	a := pycode.NewAssembler("args")
	p := a.Param("p")
	a.Emit(pycode.OpLoadFast, p)
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	info := ai.GetLocalInfo(0, int(p))
	if info.MaybeUndefined {
		t.Error("parameter starts maybe-undefined")
	}
	if info.ValueInfo.Value.Kind() != absval.KindAny {
		t.Errorf("parameter kind = %v, want any", info.ValueInfo.Value)
	}
}

// branchy builds: if c: x = 1 else: x = 2.5; return x
func branchy(t *testing.T) *pycode.Code {
	t.Helper()
	a := pycode.NewAssembler("branchy")
	c := a.Param("c")
	x := a.Local("x")
	a.Emit(pycode.OpLoadFast, c)
	a.Jump(pycode.OpPopJumpIfFalse, "else")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpStoreFast, x)
	a.Jump(pycode.OpJumpForward, "join")
	a.Label("else")
	a.Emit(pycode.OpLoadConst, a.Const(2.5))
	a.Emit(pycode.OpStoreFast, x)
	a.Label("join")
	a.Emit(pycode.OpLoadFast, x)
	a.Op(pycode.OpReturnValue)
	return a.MustAssemble()
}

func TestMergeJoinsToAny(t *testing.T) {
	code := branchy(t)
	ai := analyze(t, code)

	instrs := ai.Instructions()
	join := instrs[len(instrs)-2].Index // LOAD_FAST x at the join
	info := ai.GetLocalInfo(join, 1)
	if info.MaybeUndefined {
		t.Error("x assigned on both paths but maybe-undefined after merge")
	}
	if info.ValueInfo.Value.Kind() != absval.KindAny {
		t.Errorf("merge of int and float = %v, want any", info.ValueInfo.Value)
	}
}

func TestIdempotentAnalysis(t *testing.T) {
	code := branchy(t)
	first := analyze(t, code)
	second := analyze(t, code)

	for _, in := range first.Instructions() {
		if first.HasState(in.Index) != second.HasState(in.Index) {
			t.Fatalf("reachability differs at %d", in.Index)
		}
		if !first.HasState(in.Index) {
			continue
		}
		kinds := func(stack []ValueWithSource) []absval.Kind {
			out := make([]absval.Kind, len(stack))
			for i, v := range stack {
				out[i] = v.Value.Kind()
			}
			return out
		}
		a := kinds(first.GetStackInfo(in.Index))
		b := kinds(second.GetStackInfo(in.Index))
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("state at %d differs between runs (-first +second):\n%s", in.Index, diff)
		}
	}
}

func TestStackDepthMismatchIsError(t *testing.T) {
	a := pycode.NewAssembler("bad")
	a.Emit(pycode.OpLoadConst, a.Const(true))
	a.Jump(pycode.OpPopJumpIfTrue, "join") // taken path arrives with depth 0
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Label("join") // fall-through arrives with depth 1
	a.Op(pycode.OpReturnValue)
	code := a.MustAssemble()

	ai, err := New(code)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = ai.Interpret()
	if err == nil {
		t.Fatal("expected stack depth mismatch error")
	}
	if !errors.Is(err, ErrStackDepthMismatch) {
		t.Errorf("error = %v, want ErrStackDepthMismatch", err)
	}
}

func TestForIterForksTwoSuccessors(t *testing.T) {
	a := pycode.NewAssembler("loop")
	s := a.Local("s")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpBuildList, 1)
	a.Op(pycode.OpGetIter)
	a.Label("head")
	head := a.Offset()
	a.Jump(pycode.OpForIter, "done")
	a.Emit(pycode.OpStoreFast, s)
	a.Jump(pycode.OpJumpAbsolute, "head")
	a.Label("done")
	done := a.Offset()
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	if got := ai.StackDepth(head); got != 1 {
		t.Errorf("depth at FOR_ITER = %d, want 1 (iterator)", got)
	}
	// Fall-through: iterator plus the yielded value.
	if got := ai.StackDepth(head + pycode.CodeUnitSize); got != 2 {
		t.Errorf("depth after FOR_ITER = %d, want 2", got)
	}
	// Exhausted: iterator popped.
	if got := ai.StackDepth(done); got != 0 {
		t.Errorf("depth at loop exit = %d, want 0", got)
	}
}

func TestHandlerEntryHasTriple(t *testing.T) {
	a := pycode.NewAssembler("try")
	a.Jump(pycode.OpSetupExcept, "handler")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Op(pycode.OpPopTop)
	a.Op(pycode.OpPopBlock)
	a.Jump(pycode.OpJumpForward, "end")
	a.Label("handler")
	handler := a.Offset()
	a.Op(pycode.OpPopExcept)
	a.Label("end")
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	if got := ai.StackDepth(handler); got != 3 {
		t.Errorf("depth at handler entry = %d, want 3 (exception triple)", got)
	}
	stack := ai.GetStackInfo(handler)
	if stack[2].Value.Kind() != absval.KindType {
		t.Errorf("top of handler stack = %v, want type", stack[2].Value)
	}
}

func TestShouldBox(t *testing.T) {
	a := pycode.NewAssembler("box")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Op(pycode.OpBinaryAdd)
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	// The constants feed BINARY_ADD, which accepts unboxed input.
	if ai.ShouldBox(0) {
		t.Error("LOAD_CONST feeding BINARY_ADD should not require boxing")
	}
	// The sum feeds RETURN_VALUE, which requires a boxed object.
	if !ai.ShouldBox(4) {
		t.Error("BINARY_ADD feeding RETURN_VALUE must box")
	}
	if ai.CanSkipLastiUpdate(4) {
		t.Error("CanSkipLastiUpdate must be conservative")
	}
}

func TestSourceConsumers(t *testing.T) {
	a := pycode.NewAssembler("src")
	a.Emit(pycode.OpLoadConst, a.Const(int64(7)))
	a.Op(pycode.OpReturnValue)
	ai := analyze(t, a.MustAssemble())

	src := ai.ResultSource(0)
	if src == nil {
		t.Fatal("LOAD_CONST has no result source")
	}
	if got := src.ConsumedBy(2); got != 0 {
		t.Errorf("ConsumedBy(RETURN) = %d, want position 0", got)
	}
	if got := src.ConsumedBy(0); got != -1 {
		t.Errorf("ConsumedBy(self) = %d, want -1", got)
	}
	if !src.Escaped() {
		t.Error("value consumed by RETURN_VALUE should be escaped")
	}
}

func TestMergeStateCommutative(t *testing.T) {
	arena := &Arena{}
	mk := func(kind *absval.AbstractValue, undef bool) LocalInfo {
		return LocalInfo{ValueInfo: ValueWithSource{Value: kind}, MaybeUndefined: undef}
	}
	cases := [][2]LocalInfo{
		{mk(absval.Integer, false), mk(absval.Float, false)},
		{mk(absval.Undefined, true), mk(absval.Integer, false)},
		{mk(absval.Any, false), mk(absval.Integer, true)},
	}
	for _, pair := range cases {
		ab := pair[0].Merge(pair[1], arena)
		ba := pair[1].Merge(pair[0], arena)
		if ab.ValueInfo.Value != ba.ValueInfo.Value || ab.MaybeUndefined != ba.MaybeUndefined {
			t.Errorf("merge not commutative: %+v vs %+v", ab, ba)
		}
	}
	self := mk(absval.Integer, false)
	if got := self.Merge(self, arena); !got.Equal(self) {
		t.Errorf("merge(x,x) = %+v, want %+v", got, self)
	}
}

func TestStateCloneIsolation(t *testing.T) {
	s := NewState(2)
	s.ReplaceLocal(0, LocalInfo{ValueInfo: ValueWithSource{Value: absval.Integer}})
	s.PushValue(absval.Str)

	clone := s.Clone()
	clone.ReplaceLocal(0, LocalInfo{ValueInfo: ValueWithSource{Value: absval.Float}})
	clone.PushValue(absval.Integer)

	if s.Local(0).ValueInfo.Value != absval.Integer {
		t.Error("clone write leaked into the original locals")
	}
	if s.StackSize() != 1 {
		t.Errorf("original stack depth = %d, want 1", s.StackSize())
	}
}
