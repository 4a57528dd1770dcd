package pyruntime

import (
	"math/big"
	"testing"
)

func ts() *ThreadState { return &ThreadState{} }

func TestAddNumericTower(t *testing.T) {
	s := ts()
	got := Add(s, NewInt(1), NewInt(2))
	if i, ok := got.(*IntObject); !ok || i.Small != 3 {
		t.Errorf("1+2 = %v", got)
	}
	got = Add(s, NewInt(1), NewFloat(2.5))
	if f, ok := got.(*FloatObject); !ok || f.Value != 3.5 {
		t.Errorf("1+2.5 = %v", got)
	}
	got = Add(s, True, NewInt(2))
	if i, ok := got.(*IntObject); !ok || i.Small != 3 {
		t.Errorf("True+2 = %v", got)
	}
}

func TestAddOverflowSpillsToBig(t *testing.T) {
	s := ts()
	got := Add(s, NewInt(9223372036854775807), NewInt(1))
	i, ok := got.(*IntObject)
	if !ok || i.IsSmall() {
		t.Fatalf("maxint+1 = %v, want big int", got)
	}
	want := new(big.Int).Add(big.NewInt(9223372036854775807), big.NewInt(1))
	if i.Big.Cmp(want) != 0 {
		t.Errorf("maxint+1 = %s, want %s", i.Big, want)
	}
}

func TestAddConcatenation(t *testing.T) {
	s := ts()
	got := Add(s, NewStr("ab"), NewStr("cd"))
	if v, ok := got.(*StrObject); !ok || v.Value != "abcd" {
		t.Errorf("'ab'+'cd' = %v", got)
	}
	got = Add(s, NewList([]Object{NewInt(1)}), NewList([]Object{NewInt(2)}))
	if v, ok := got.(*ListObject); !ok || v.Repr() != "[1, 2]" {
		t.Errorf("[1]+[2] = %v", got)
	}
	if Add(s, NewStr("a"), NewInt(1)) != nil {
		t.Error("'a'+1 should fail")
	}
	if s.CurExc == nil || !s.CurExc.Matches(TypeTypeError) {
		t.Errorf("exception = %v, want TypeError", s.CurExc)
	}
}

func TestTrueDivide(t *testing.T) {
	s := ts()
	got := TrueDivide(s, NewInt(10), NewInt(4))
	if f, ok := got.(*FloatObject); !ok || f.Value != 2.5 {
		t.Errorf("10/4 = %v, want 2.5", got)
	}
	if TrueDivide(s, NewInt(1), NewInt(0)) != nil {
		t.Error("1/0 should fail")
	}
	if s.CurExc == nil || !s.CurExc.Matches(TypeZeroDivisionError) {
		t.Errorf("exception = %v, want ZeroDivisionError", s.CurExc)
	}
}

func TestFloorSemantics(t *testing.T) {
	s := ts()
	cases := []struct {
		a, b, div, mod int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
	}
	for _, c := range cases {
		d := FloorDivide(s, NewInt(c.a), NewInt(c.b)).(*IntObject)
		if d.Small != c.div {
			t.Errorf("%d // %d = %d, want %d", c.a, c.b, d.Small, c.div)
		}
		m := Modulo(s, NewInt(c.a), NewInt(c.b)).(*IntObject)
		if m.Small != c.mod {
			t.Errorf("%d %% %d = %d, want %d", c.a, c.b, m.Small, c.mod)
		}
	}
}

func TestShiftsArbitraryPrecision(t *testing.T) {
	s := ts()
	got := LShift(s, NewInt(1), NewInt(64))
	i, ok := got.(*IntObject)
	if !ok || i.IsSmall() {
		t.Fatalf("1<<64 = %v, want big int", got)
	}
	if i.Repr() != "18446744073709551616" {
		t.Errorf("1<<64 = %s", i.Repr())
	}
	back := RShift(s, i, NewInt(60)).(*IntObject)
	if !back.IsSmall() || back.Small != 16 {
		t.Errorf("(1<<64)>>60 = %v, want 16", back.Repr())
	}
	if LShift(s, NewInt(1), NewInt(-1)) != nil {
		t.Error("negative shift should fail")
	}
	if !s.CurExc.Matches(TypeValueError) {
		t.Errorf("exception = %v, want ValueError", s.CurExc)
	}
}

func TestPower(t *testing.T) {
	s := ts()
	got := Power(s, NewInt(2), NewInt(10)).(*IntObject)
	if got.Small != 1024 {
		t.Errorf("2**10 = %v", got.Repr())
	}
	wide := Power(s, NewInt(2), NewInt(70)).(*IntObject)
	if wide.IsSmall() {
		t.Error("2**70 should spill to big")
	}
	f := Power(s, NewInt(2), NewInt(-1)).(*FloatObject)
	if f.Value != 0.5 {
		t.Errorf("2**-1 = %v, want 0.5", f.Value)
	}
}

func TestRichCompare(t *testing.T) {
	s := ts()
	if b := RichCompare(s, CompareLt, NewInt(1), NewFloat(1.5)).(*BoolObject); !b.Value {
		t.Error("1 < 1.5 should be True")
	}
	if b := RichCompare(s, CompareEq, NewStr("a"), NewStr("a")).(*BoolObject); !b.Value {
		t.Error("'a' == 'a' should be True")
	}
	if b := RichCompare(s, CompareEq, NewInt(1), NewStr("1")).(*BoolObject); b.Value {
		t.Error("1 == '1' should be False")
	}
	lists := RichCompare(s, CompareLt,
		NewList([]Object{NewInt(1), NewInt(2)}),
		NewList([]Object{NewInt(1), NewInt(3)})).(*BoolObject)
	if !lists.Value {
		t.Error("[1,2] < [1,3] should be True")
	}
	if RichCompare(s, CompareLt, NewInt(1), NewStr("a")) != nil {
		t.Error("1 < 'a' should fail")
	}
	if !s.CurExc.Matches(TypeTypeError) {
		t.Errorf("exception = %v, want TypeError", s.CurExc)
	}
}

func TestSubscriptIndexing(t *testing.T) {
	s := ts()
	l := NewList([]Object{NewInt(4), NewInt(3), NewInt(2)})
	if got := Subscript(s, l, NewInt(0)).(*IntObject); got.Small != 4 {
		t.Errorf("l[0] = %v", got.Repr())
	}
	if got := Subscript(s, l, NewInt(-1)).(*IntObject); got.Small != 2 {
		t.Errorf("l[-1] = %v", got.Repr())
	}
	if Subscript(s, l, NewInt(3)) != nil {
		t.Error("l[3] should fail")
	}
	if !s.CurExc.Matches(TypeIndexError) {
		t.Errorf("exception = %v, want IndexError", s.CurExc)
	}
	s.FetchExc()
	if got := Subscript(s, NewStr("hello"), NewInt(1)).(*StrObject); got.Value != "e" {
		t.Errorf("'hello'[1] = %v", got.Value)
	}
	if got := Subscript(s, NewBytes([]byte("ab")), NewInt(0)).(*IntObject); got.Small != 97 {
		t.Errorf("b'ab'[0] = %v", got.Repr())
	}
}

func TestByteArrayIndexError(t *testing.T) {
	s := ts()
	ba := NewByteArray([]byte("12"))
	if got := Subscript(s, ba, NewInt(1)).(*IntObject); got.Small != '2' {
		t.Errorf("bytearray[1] = %v", got.Repr())
	}
	if Subscript(s, ba, NewInt(2)) != nil {
		t.Error("bytearray[2] should fail")
	}
	if !s.CurExc.Matches(TypeIndexError) {
		t.Errorf("exception = %v, want IndexError", s.CurExc)
	}
}

func TestSliceReverse(t *testing.T) {
	s := ts()
	l := NewList([]Object{NewInt(4), NewInt(3), NewInt(2), NewInt(1), NewInt(0)})
	sl := &SliceObject{Start: None, Stop: None, Step: NewInt(-1)}
	got := Subscript(s, l, sl).(*ListObject)
	if got.Repr() != "[0, 1, 2, 3, 4]" {
		t.Errorf("l[::-1] = %s", got.Repr())
	}
}

func TestSliceNegativeStepString(t *testing.T) {
	s := ts()
	str := NewStr("The train to Oxford leaves at 3pm")
	sl := &SliceObject{Start: NewInt(-1), Stop: NewInt(3), Step: NewInt(-2)}
	got := Subscript(s, str, sl).(*StrObject)
	if got.Value != "m3t ealdox tnat" {
		t.Errorf("negative-step slice = %q, want %q", got.Value, "m3t ealdox tnat")
	}
}

func TestSliceClamping(t *testing.T) {
	s := ts()
	str := NewStr("abcdef")
	sl := &SliceObject{Start: NewInt(2), Stop: NewInt(100), Step: None}
	if got := Subscript(s, str, sl).(*StrObject); got.Value != "cdef" {
		t.Errorf("s[2:100] = %q", got.Value)
	}
	sl = &SliceObject{Start: NewInt(-100), Stop: NewInt(2), Step: None}
	if got := Subscript(s, str, sl).(*StrObject); got.Value != "ab" {
		t.Errorf("s[-100:2] = %q", got.Value)
	}
	sl = &SliceObject{Start: None, Stop: None, Step: NewInt(0)}
	if Subscript(s, str, sl) != nil {
		t.Error("zero step should fail")
	}
	if !s.CurExc.Matches(TypeValueError) {
		t.Errorf("exception = %v, want ValueError", s.CurExc)
	}
}

func TestDictInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set(NewStr("c"), NewStr("carrot"))
	d.Set(NewStr("b"), NewStr("banana"))
	d.Set(NewStr("a"), NewStr("apple"))
	if d.Repr() != "{'c': 'carrot', 'b': 'banana', 'a': 'apple'}" {
		t.Errorf("repr = %s", d.Repr())
	}
	// Updating an existing key keeps its position.
	d.Set(NewStr("b"), NewStr("blueberry"))
	if d.Repr() != "{'c': 'carrot', 'b': 'blueberry', 'a': 'apple'}" {
		t.Errorf("repr after update = %s", d.Repr())
	}
}

func TestDictNumericKeyEquivalence(t *testing.T) {
	d := NewDict()
	d.Set(NewInt(1), NewStr("int"))
	d.Set(NewFloat(1.0), NewStr("float"))
	d.Set(True, NewStr("bool"))
	if len(d.Entries) != 1 {
		t.Errorf("1, 1.0 and True should share a slot; entries = %d", len(d.Entries))
	}
	if v, _ := d.Get(NewInt(1)); v.(*StrObject).Value != "bool" {
		t.Errorf("d[1] = %v", v)
	}
}

func TestContains(t *testing.T) {
	s := ts()
	l := NewList([]Object{NewInt(1), NewStr("x")})
	if Contains(s, NewInt(1), l) != 1 {
		t.Error("1 in [1,'x'] should hold")
	}
	if Contains(s, NewInt(2), l) != 0 {
		t.Error("2 in [1,'x'] should not hold")
	}
	if Contains(s, NewStr("ell"), NewStr("hello")) != 1 {
		t.Error("'ell' in 'hello' should hold")
	}
	if Contains(s, NewInt(1), NewInt(2)) != -1 {
		t.Error("1 in 2 should error")
	}
	if !s.CurExc.Matches(TypeTypeError) {
		t.Errorf("exception = %v, want TypeError", s.CurExc)
	}
}

func TestIterProtocol(t *testing.T) {
	s := ts()
	it := GetIter(s, NewTuple([]Object{NewInt(1), NewInt(2)}))
	if it == nil {
		t.Fatal("iter(tuple) failed")
	}
	first := IterNext(s, it)
	if first.(*IntObject).Small != 1 {
		t.Errorf("first = %v", first)
	}
	second := IterNext(s, it)
	if second.(*IntObject).Small != 2 {
		t.Errorf("second = %v", second)
	}
	if IterNext(s, it) != nil {
		t.Error("exhausted iterator should return nil")
	}
	if s.CurExc != nil {
		t.Errorf("exhaustion should not set an exception: %v", s.CurExc)
	}
}

func TestUnpackSequenceLengthCheck(t *testing.T) {
	s := ts()
	got := UnpackSequence(s, NewList([]Object{NewInt(1), NewInt(2)}), 2)
	if got == nil {
		t.Fatal("unpack of matching length failed")
	}
	if UnpackSequence(s, NewList([]Object{NewInt(1)}), 2) != nil {
		t.Error("short unpack should fail")
	}
	if !s.CurExc.Matches(TypeValueError) {
		t.Errorf("exception = %v, want ValueError", s.CurExc)
	}
}

func TestTruthiness(t *testing.T) {
	truthy := []Object{NewInt(1), NewFloat(0.5), NewStr("x"), NewList([]Object{None}), True}
	for _, o := range truthy {
		if !IsTruthy(o) {
			t.Errorf("%s should be truthy", o.Repr())
		}
	}
	falsy := []Object{NewInt(0), NewFloat(0), NewStr(""), NewList(nil), NewDict(), None, False}
	for _, o := range falsy {
		if IsTruthy(o) {
			t.Errorf("%s should be falsy", o.Repr())
		}
	}
}

func TestRaiseHelper(t *testing.T) {
	s := ts()
	if Raise(s, TypeAssertionError) != -1 {
		t.Error("raise should return -1")
	}
	if !s.CurExc.Matches(TypeAssertionError) {
		t.Errorf("exception = %v, want AssertionError", s.CurExc)
	}
	if !s.CurExc.Matches(TypeException) {
		t.Error("AssertionError should match Exception")
	}
}

func TestFloatRepr(t *testing.T) {
	if NewFloat(2).Repr() != "2.0" {
		t.Errorf("repr(2.0) = %s", NewFloat(2).Repr())
	}
	if NewFloat(2.5).Repr() != "2.5" {
		t.Errorf("repr(2.5) = %s", NewFloat(2.5).Repr())
	}
}

func TestTupleRepr(t *testing.T) {
	if got := NewTuple([]Object{NewInt(1)}).Repr(); got != "(1,)" {
		t.Errorf("repr((1,)) = %s", got)
	}
	if got := NewTuple([]Object{NewInt(1), NewInt(2)}).Repr(); got != "(1, 2)" {
		t.Errorf("repr((1,2)) = %s", got)
	}
}
