package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/pyrite/pkg/pycode"
	"github.com/chazu/pyrite/pkg/pyruntime"
)

func compileAndRun(t *testing.T, code *pycode.Code, args ...pyruntime.Object) (pyruntime.Object, error) {
	t.Helper()
	fn, err := Compile(code, Options{})
	if err != nil {
		t.Fatalf("Compile(%q): %v", code.Name, err)
	}
	return fn.Invoke(args...)
}

func mustRun(t *testing.T, code *pycode.Code, args ...pyruntime.Object) pyruntime.Object {
	t.Helper()
	result, err := compileAndRun(t, code, args...)
	if err != nil {
		t.Fatalf("%q raised: %v", code.Name, err)
	}
	return result
}

func wantRaise(t *testing.T, code *pycode.Code, excType *pyruntime.TypeObject, args ...pyruntime.Object) {
	t.Helper()
	_, err := compileAndRun(t, code, args...)
	if err == nil {
		t.Fatalf("%q returned, want %s", code.Name, excType.Name)
	}
	var exc *pyruntime.ExceptionObject
	if !errors.As(err, &exc) {
		t.Fatalf("%q error = %v, want exception object", code.Name, err)
	}
	if !exc.Matches(excType) {
		t.Fatalf("%q raised %s, want %s", code.Name, exc.Type.Name, excType.Name)
	}
}

// def f(): return [1, *[2], 3, 4]
func TestListUnpacking(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpBuildList, 1)
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Emit(pycode.OpBuildList, 1)
	a.Emit(pycode.OpListExtend, 1)
	a.Emit(pycode.OpLoadConst, a.Const(int64(3)))
	a.Emit(pycode.OpListAppend, 1)
	a.Emit(pycode.OpLoadConst, a.Const(int64(4)))
	a.Emit(pycode.OpListAppend, 1)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if got.Repr() != "[1, 2, 3, 4]" {
		t.Errorf("result = %s, want [1, 2, 3, 4]", got.Repr())
	}
}

// def f(): l = [4,3,2,1,0]; return l[::-1]
func TestListSliceReversal(t *testing.T) {
	a := pycode.NewAssembler("f")
	l := a.Local("l")
	for _, v := range []int64{4, 3, 2, 1, 0} {
		a.Emit(pycode.OpLoadConst, a.Const(v))
	}
	a.Emit(pycode.OpBuildList, 5)
	a.Emit(pycode.OpStoreFast, l)
	a.Emit(pycode.OpLoadFast, l)
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Emit(pycode.OpLoadConst, a.Const(int64(-1)))
	a.Emit(pycode.OpBuildSlice, 3)
	a.Op(pycode.OpBinarySubscr)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if got.Repr() != "[0, 1, 2, 3, 4]" {
		t.Errorf("result = %s, want [0, 1, 2, 3, 4]", got.Repr())
	}
}

// def f(): return {'c':'carrot', **{'b':'banana'}, 'a':'apple'}
func TestDictDisplayOrder(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const("c"))
	a.Emit(pycode.OpLoadConst, a.Const("carrot"))
	a.Emit(pycode.OpBuildMap, 1)
	a.Emit(pycode.OpLoadConst, a.Const("b"))
	a.Emit(pycode.OpLoadConst, a.Const("banana"))
	a.Emit(pycode.OpBuildMap, 1)
	a.Emit(pycode.OpDictUpdate, 1)
	a.Emit(pycode.OpLoadConst, a.Const("a"))
	a.Emit(pycode.OpLoadConst, a.Const("apple"))
	a.Emit(pycode.OpMapAdd, 1)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	want := "{'c': 'carrot', 'b': 'banana', 'a': 'apple'}"
	if got.Repr() != want {
		t.Errorf("result = %s, want %s", got.Repr(), want)
	}
}

// def f(): assert 1==2
func TestAssertRaises(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Emit(pycode.OpCompareOp, uint32(pycode.CmpEq))
	a.Jump(pycode.OpPopJumpIfTrue, "end")
	a.Op(pycode.OpLoadAssertionError)
	a.Emit(pycode.OpRaiseVarargs, 1)
	a.Label("end")
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)

	wantRaise(t, a.MustAssemble(), pyruntime.TypeAssertionError)
}

// def f(): return 'The train to Oxford leaves at 3pm'[-1:3:-2]
func TestStringNegativeStepSlice(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const("The train to Oxford leaves at 3pm"))
	a.Emit(pycode.OpLoadConst, a.Const(int64(-1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(3)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(-2)))
	a.Emit(pycode.OpBuildSlice, 3)
	a.Op(pycode.OpBinarySubscr)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if s, ok := got.(*pyruntime.StrObject); !ok || s.Value != "m3t ealdox tnat" {
		t.Errorf("result = %s, want 'm3t ealdox tnat'", got.Repr())
	}
}

// def f(): x = bytearray(b'12'); return x[2]
func TestByteArrayIndexError(t *testing.T) {
	a := pycode.NewAssembler("f")
	x := a.Local("x")
	a.Emit(pycode.OpLoadGlobal, a.Name("bytearray"))
	a.Emit(pycode.OpLoadConst, a.Const([]byte("12")))
	a.Emit(pycode.OpCallFunction, 1)
	a.Emit(pycode.OpStoreFast, x)
	a.Emit(pycode.OpLoadFast, x)
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Op(pycode.OpBinarySubscr)
	a.Op(pycode.OpReturnValue)

	wantRaise(t, a.MustAssemble(), pyruntime.TypeIndexError)
}

// def f(): s = 0
//
//	for i in [1, 2, 3]: s = s + i
//	return s
func TestForLoopSum(t *testing.T) {
	a := pycode.NewAssembler("f")
	s := a.Local("s")
	i := a.Local("i")
	a.Emit(pycode.OpLoadConst, a.Const(int64(0)))
	a.Emit(pycode.OpStoreFast, s)
	a.Jump(pycode.OpSetupLoop, "after")
	for _, v := range []int64{1, 2, 3} {
		a.Emit(pycode.OpLoadConst, a.Const(v))
	}
	a.Emit(pycode.OpBuildList, 3)
	a.Op(pycode.OpGetIter)
	a.Label("head")
	a.Jump(pycode.OpForIter, "done")
	a.Emit(pycode.OpStoreFast, i)
	a.Emit(pycode.OpLoadFast, s)
	a.Emit(pycode.OpLoadFast, i)
	a.Op(pycode.OpBinaryAdd)
	a.Emit(pycode.OpStoreFast, s)
	a.Jump(pycode.OpJumpAbsolute, "head")
	a.Label("done")
	a.Op(pycode.OpPopBlock)
	a.Label("after")
	a.Emit(pycode.OpLoadFast, s)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if i, ok := got.(*pyruntime.IntObject); !ok || i.Small != 6 {
		t.Errorf("result = %s, want 6", got.Repr())
	}
}

// def f(): for i in [1, 2, 3, 4]:
//
//	    if i == 3: break
//	return i
func TestLoopBreak(t *testing.T) {
	a := pycode.NewAssembler("f")
	i := a.Local("i")
	a.Jump(pycode.OpSetupLoop, "after")
	for _, v := range []int64{1, 2, 3, 4} {
		a.Emit(pycode.OpLoadConst, a.Const(v))
	}
	a.Emit(pycode.OpBuildList, 4)
	a.Op(pycode.OpGetIter)
	a.Label("head")
	a.Jump(pycode.OpForIter, "done")
	a.Emit(pycode.OpStoreFast, i)
	a.Emit(pycode.OpLoadFast, i)
	a.Emit(pycode.OpLoadConst, a.Const(int64(3)))
	a.Emit(pycode.OpCompareOp, uint32(pycode.CmpEq))
	a.Jump(pycode.OpPopJumpIfFalse, "head")
	a.Op(pycode.OpBreakLoop)
	a.Label("done")
	a.Op(pycode.OpPopBlock)
	a.Label("after")
	a.Emit(pycode.OpLoadFast, i)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if v, ok := got.(*pyruntime.IntObject); !ok || v.Small != 3 {
		t.Errorf("result = %s, want 3", got.Repr())
	}
}

// def f(): try: 1/0
//
//	except: return 'caught'
//	return None
func TestTryExceptCatches(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Jump(pycode.OpSetupExcept, "handler")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(0)))
	a.Op(pycode.OpBinaryTrueDivide)
	a.Op(pycode.OpPopTop)
	a.Op(pycode.OpPopBlock)
	a.Jump(pycode.OpJumpForward, "end")
	a.Label("handler")
	a.Op(pycode.OpPopExcept)
	a.Emit(pycode.OpLoadConst, a.Const("caught"))
	a.Op(pycode.OpReturnValue)
	a.Label("end")
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if s, ok := got.(*pyruntime.StrObject); !ok || s.Value != "caught" {
		t.Errorf("result = %s, want 'caught'", got.Repr())
	}
}

// def f(): try: x = 1
//
//	finally: x = 2
//	return x
func TestFinallyNormalPath(t *testing.T) {
	a := pycode.NewAssembler("f")
	x := a.Local("x")
	a.Jump(pycode.OpSetupFinally, "fin")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpStoreFast, x)
	a.Op(pycode.OpPopBlock)
	a.Label("fin")
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Emit(pycode.OpStoreFast, x)
	a.Op(pycode.OpEndFinally)
	a.Emit(pycode.OpLoadFast, x)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if v, ok := got.(*pyruntime.IntObject); !ok || v.Small != 2 {
		t.Errorf("result = %s, want 2", got.Repr())
	}
}

// def f(): try: 1/0
//
//	finally: x = 2
func TestFinallyReraises(t *testing.T) {
	a := pycode.NewAssembler("f")
	x := a.Local("x")
	a.Jump(pycode.OpSetupFinally, "fin")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(0)))
	a.Op(pycode.OpBinaryTrueDivide)
	a.Op(pycode.OpPopTop)
	a.Op(pycode.OpPopBlock)
	a.Label("fin")
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Emit(pycode.OpStoreFast, x)
	a.Op(pycode.OpEndFinally)
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)

	wantRaise(t, a.MustAssemble(), pyruntime.TypeZeroDivisionError)
}

// def f(a, b): return a if a > b else b   (via POP_JUMP_IF_FALSE)
func TestConditionalWithArguments(t *testing.T) {
	a := pycode.NewAssembler("f")
	pa := a.Param("a")
	pb := a.Param("b")
	a.Emit(pycode.OpLoadFast, pa)
	a.Emit(pycode.OpLoadFast, pb)
	a.Emit(pycode.OpCompareOp, uint32(pycode.CmpGt))
	a.Jump(pycode.OpPopJumpIfFalse, "else")
	a.Emit(pycode.OpLoadFast, pa)
	a.Op(pycode.OpReturnValue)
	a.Label("else")
	a.Emit(pycode.OpLoadFast, pb)
	a.Op(pycode.OpReturnValue)
	code := a.MustAssemble()

	got := mustRun(t, code, pyruntime.NewInt(7), pyruntime.NewInt(3))
	if v := got.(*pyruntime.IntObject); v.Small != 7 {
		t.Errorf("max(7,3) = %s", got.Repr())
	}
	got = mustRun(t, code, pyruntime.NewInt(2), pyruntime.NewInt(9))
	if v := got.(*pyruntime.IntObject); v.Small != 9 {
		t.Errorf("max(2,9) = %s", got.Repr())
	}
}

// def f(): x = (1, 2, 3); a, b, c = x; return b
func TestUnpackSequence(t *testing.T) {
	a := pycode.NewAssembler("f")
	va := a.Local("a")
	vb := a.Local("b")
	vc := a.Local("c")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(3)))
	a.Emit(pycode.OpBuildTuple, 3)
	a.Emit(pycode.OpUnpackSequence, 3)
	a.Emit(pycode.OpStoreFast, va)
	a.Emit(pycode.OpStoreFast, vb)
	a.Emit(pycode.OpStoreFast, vc)
	a.Emit(pycode.OpLoadFast, vb)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if v, ok := got.(*pyruntime.IntObject); !ok || v.Small != 2 {
		t.Errorf("result = %s, want 2", got.Repr())
	}
}

// def f(): d = {}; d['k'] = 'v'; return d['k']
func TestStoreSubscr(t *testing.T) {
	a := pycode.NewAssembler("f")
	d := a.Local("d")
	a.Emit(pycode.OpBuildMap, 0)
	a.Emit(pycode.OpStoreFast, d)
	a.Emit(pycode.OpLoadConst, a.Const("v"))
	a.Emit(pycode.OpLoadFast, d)
	a.Emit(pycode.OpLoadConst, a.Const("k"))
	a.Op(pycode.OpStoreSubscr)
	a.Emit(pycode.OpLoadFast, d)
	a.Emit(pycode.OpLoadConst, a.Const("k"))
	a.Op(pycode.OpBinarySubscr)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if s, ok := got.(*pyruntime.StrObject); !ok || s.Value != "v" {
		t.Errorf("result = %s, want 'v'", got.Repr())
	}
}

// def f(): return len(range(10))
func TestBuiltinCalls(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadGlobal, a.Name("len"))
	a.Emit(pycode.OpLoadGlobal, a.Name("range"))
	a.Emit(pycode.OpLoadConst, a.Const(int64(10)))
	a.Emit(pycode.OpCallFunction, 1)
	a.Emit(pycode.OpCallFunction, 1)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if v, ok := got.(*pyruntime.IntObject); !ok || v.Small != 10 {
		t.Errorf("len(range(10)) = %s, want 10", got.Repr())
	}
}

// def f(): return x   (x never assigned)
func TestUnboundLocal(t *testing.T) {
	a := pycode.NewAssembler("f")
	x := a.Local("x")
	a.Emit(pycode.OpLoadFast, x)
	a.Op(pycode.OpReturnValue)

	wantRaise(t, a.MustAssemble(), pyruntime.TypeUnboundLocalError)
}

// def f(): return missing_name
func TestNameError(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadGlobal, a.Name("missing_name"))
	a.Op(pycode.OpReturnValue)

	wantRaise(t, a.MustAssemble(), pyruntime.TypeNameError)
}

// def f(): return 6 * 7 - 2, with unboxed arithmetic downstream of consts.
func TestUnboxedArithmeticChain(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(6)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(7)))
	a.Op(pycode.OpBinaryMultiply)
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	a.Op(pycode.OpBinarySubtract)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if v, ok := got.(*pyruntime.IntObject); !ok || v.Small != 40 {
		t.Errorf("6*7-2 = %s, want 40", got.Repr())
	}
}

func TestUnboxedFloatDivision(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(10)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(4)))
	a.Op(pycode.OpBinaryTrueDivide)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if f, ok := got.(*pyruntime.FloatObject); !ok || f.Value != 2.5 {
		t.Errorf("10/4 = %s, want 2.5", got.Repr())
	}
}

func TestDisableUnboxingStillCorrect(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(6)))
	a.Emit(pycode.OpLoadConst, a.Const(int64(7)))
	a.Op(pycode.OpBinaryMultiply)
	a.Op(pycode.OpReturnValue)
	fn, err := Compile(a.MustAssemble(), Options{DisableUnboxing: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := fn.Invoke()
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v := got.(*pyruntime.IntObject); v.Small != 42 {
		t.Errorf("boxed 6*7 = %s, want 42", got.Repr())
	}
}

func TestMalformedBytecodeFailsCompile(t *testing.T) {
	code := &pycode.Code{Name: "bad", Code: []byte{0xEE, 0x00}}
	if _, err := Compile(code, Options{}); err == nil {
		t.Error("unknown opcode should fail compilation")
	}
}

func TestOpcodeBudget(t *testing.T) {
	a := pycode.NewAssembler("big")
	for i := 0; i < 20; i++ {
		a.Op(pycode.OpNop)
	}
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Op(pycode.OpReturnValue)
	_, err := Compile(a.MustAssemble(), Options{OpcodeBudget: 10})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("error = %v, want budget exceeded", err)
	}
}

func TestCallSitesRecorded(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const("x"))
	a.Emit(pycode.OpLoadConst, a.Const("y"))
	a.Op(pycode.OpBinaryAdd)
	a.Op(pycode.OpReturnValue)
	fn, err := Compile(a.MustAssemble(), Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(fn.Method.CallSites) == 0 {
		t.Error("no call sites recorded")
	}
	found := false
	for _, cs := range fn.Method.CallSites {
		if cs.Token == pyruntime.TokenAdd {
			found = true
		}
	}
	if !found {
		t.Error("add helper call site missing")
	}
	got, err := fn.Invoke()
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if s := got.(*pyruntime.StrObject); s.Value != "xy" {
		t.Errorf("'x'+'y' = %s", got.Repr())
	}
}

// Mixed int/float arithmetic crossing a conditional merge.
func TestMergedBranchValues(t *testing.T) {
	a := pycode.NewAssembler("f")
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
	a.Emit(pycode.OpLoadConst, a.Const(int64(10)))
	a.Op(pycode.OpBinaryAdd)
	a.Op(pycode.OpReturnValue)
	code := a.MustAssemble()

	got := mustRun(t, code, pyruntime.True)
	if v := got.(*pyruntime.IntObject); v.Small != 11 {
		t.Errorf("true branch = %s, want 11", got.Repr())
	}
	got = mustRun(t, code, pyruntime.False)
	if f := got.(*pyruntime.FloatObject); f.Value != 12.5 {
		t.Errorf("false branch = %s, want 12.5", got.Repr())
	}
}

func TestContainsOp(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(int64(2)))
	for _, v := range []int64{1, 2, 3} {
		a.Emit(pycode.OpLoadConst, a.Const(v))
	}
	a.Emit(pycode.OpBuildList, 3)
	a.Emit(pycode.OpContainsOp, 0)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if b, ok := got.(*pyruntime.BoolObject); !ok || !b.Value {
		t.Errorf("2 in [1,2,3] = %s, want True", got.Repr())
	}
}

func TestIsOp(t *testing.T) {
	a := pycode.NewAssembler("f")
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Emit(pycode.OpLoadConst, a.Const(nil))
	a.Emit(pycode.OpIsOp, 0)
	a.Op(pycode.OpReturnValue)

	got := mustRun(t, a.MustAssemble())
	if b, ok := got.(*pyruntime.BoolObject); !ok || !b.Value {
		t.Errorf("None is None = %s, want True", got.Repr())
	}
}
