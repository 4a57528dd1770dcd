package pyruntime

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// CompareOp mirrors the COMPARE_OP oparg encoding.
type CompareOp uint32

const (
	CompareLt CompareOp = iota
	CompareLe
	CompareEq
	CompareNe
	CompareGt
	CompareGe
)

// IsTruthy implements Python truth testing.
func IsTruthy(o Object) bool {
	switch v := o.(type) {
	case *NoneObject:
		return false
	case *BoolObject:
		return v.Value
	case *IntObject:
		if v.Big != nil {
			return v.Big.Sign() != 0
		}
		return v.Small != 0
	case *FloatObject:
		return v.Value != 0
	case *StrObject:
		return len(v.Value) > 0
	case *BytesObject:
		return len(v.Value) > 0
	case *ByteArrayObject:
		return len(v.Value) > 0
	case *ListObject:
		return len(v.Items) > 0
	case *TupleObject:
		return len(v.Items) > 0
	case *DictObject:
		return len(v.Entries) > 0
	case *SetObject:
		return len(v.Items) > 0
	}
	return true
}

// asInt widens bools to ints; ok is false for non-integral operands.
func asInt(o Object) (*IntObject, bool) {
	switch v := o.(type) {
	case *IntObject:
		return v, true
	case *BoolObject:
		if v.Value {
			return NewInt(1), true
		}
		return NewInt(0), true
	}
	return nil, false
}

// asFloat widens bools and ints; ok is false for non-numeric operands.
func asFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case *FloatObject:
		return v.Value, true
	case *IntObject:
		if v.Big != nil {
			f, _ := new(big.Float).SetInt(v.Big).Float64()
			return f, true
		}
		return float64(v.Small), true
	case *BoolObject:
		if v.Value {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isFloat(o Object) bool {
	_, ok := o.(*FloatObject)
	return ok
}

func typeErr2(ts *ThreadState, op string, a, b Object) Object {
	ts.SetExc(TypeTypeError, fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName()))
	return nil
}

// Add implements a + b: numeric addition and sequence concatenation.
func Add(ts *ThreadState, a, b Object) Object {
	if isFloat(a) || isFloat(b) {
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if oka && okb {
			return NewFloat(fa + fb)
		}
	}
	if ia, ok := asInt(a); ok {
		if ib, ok := asInt(b); ok {
			if ia.IsSmall() && ib.IsSmall() {
				sum := ia.Small + ib.Small
				if (ia.Small > 0 && ib.Small > 0 && sum < 0) || (ia.Small < 0 && ib.Small < 0 && sum >= 0) {
					return NewBigInt(new(big.Int).Add(ia.AsBig(), ib.AsBig()))
				}
				return NewInt(sum)
			}
			return NewBigInt(new(big.Int).Add(ia.AsBig(), ib.AsBig()))
		}
	}
	switch va := a.(type) {
	case *StrObject:
		if vb, ok := b.(*StrObject); ok {
			return NewStr(va.Value + vb.Value)
		}
	case *BytesObject:
		if vb, ok := b.(*BytesObject); ok {
			return NewBytes(append(append([]byte{}, va.Value...), vb.Value...))
		}
	case *ByteArrayObject:
		if vb, ok := b.(*ByteArrayObject); ok {
			return NewByteArray(append(append([]byte{}, va.Value...), vb.Value...))
		}
	case *ListObject:
		if vb, ok := b.(*ListObject); ok {
			items := make([]Object, 0, len(va.Items)+len(vb.Items))
			items = append(items, va.Items...)
			items = append(items, vb.Items...)
			return NewList(items)
		}
	case *TupleObject:
		if vb, ok := b.(*TupleObject); ok {
			items := make([]Object, 0, len(va.Items)+len(vb.Items))
			items = append(items, va.Items...)
			items = append(items, vb.Items...)
			return NewTuple(items)
		}
	}
	return typeErr2(ts, "+", a, b)
}

// Subtract implements a - b: numeric subtraction and set difference.
func Subtract(ts *ThreadState, a, b Object) Object {
	if isFloat(a) || isFloat(b) {
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if oka && okb {
			return NewFloat(fa - fb)
		}
	}
	if ia, ok := asInt(a); ok {
		if ib, ok := asInt(b); ok {
			if ia.IsSmall() && ib.IsSmall() {
				diff := ia.Small - ib.Small
				if (ia.Small >= 0 && ib.Small < 0 && diff < 0) || (ia.Small < 0 && ib.Small > 0 && diff >= 0) {
					return NewBigInt(new(big.Int).Sub(ia.AsBig(), ib.AsBig()))
				}
				return NewInt(diff)
			}
			return NewBigInt(new(big.Int).Sub(ia.AsBig(), ib.AsBig()))
		}
	}
	if sa, ok := a.(*SetObject); ok {
		if sb, ok := b.(*SetObject); ok {
			out := NewSet()
			for _, it := range sa.Items {
				if !sb.Has(it) {
					out.Add(it)
				}
			}
			return out
		}
	}
	return typeErr2(ts, "-", a, b)
}

func repeatSeq(n int64, length int) int {
	if n < 0 {
		return 0
	}
	return int(n) * length
}

// Multiply implements a * b: numeric product and sequence repetition.
func Multiply(ts *ThreadState, a, b Object) Object {
	if isFloat(a) || isFloat(b) {
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if oka && okb {
			return NewFloat(fa * fb)
		}
	}
	if ia, ok := asInt(a); ok {
		if ib, ok := asInt(b); ok {
			if ia.IsSmall() && ib.IsSmall() {
				if ia.Small != 0 && ib.Small != 0 {
					prod := ia.Small * ib.Small
					if prod/ib.Small != ia.Small {
						return NewBigInt(new(big.Int).Mul(ia.AsBig(), ib.AsBig()))
					}
					return NewInt(prod)
				}
				return NewInt(0)
			}
			return NewBigInt(new(big.Int).Mul(ia.AsBig(), ib.AsBig()))
		}
	}
	// Sequence repetition with an integral count on either side.
	seq, count := a, b
	if _, ok := asInt(a); ok {
		seq, count = b, a
	}
	if n, ok := asInt(count); ok && n.IsSmall() {
		switch vs := seq.(type) {
		case *StrObject:
			if n.Small <= 0 {
				return NewStr("")
			}
			return NewStr(strings.Repeat(vs.Value, int(n.Small)))
		case *BytesObject:
			return NewBytes(repeatBytes(vs.Value, n.Small))
		case *ByteArrayObject:
			return NewByteArray(repeatBytes(vs.Value, n.Small))
		case *ListObject:
			items := make([]Object, 0, repeatSeq(n.Small, len(vs.Items)))
			for i := int64(0); i < n.Small; i++ {
				items = append(items, vs.Items...)
			}
			return NewList(items)
		case *TupleObject:
			items := make([]Object, 0, repeatSeq(n.Small, len(vs.Items)))
			for i := int64(0); i < n.Small; i++ {
				items = append(items, vs.Items...)
			}
			return NewTuple(items)
		}
	}
	return typeErr2(ts, "*", a, b)
}

func repeatBytes(b []byte, n int64) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, 0, int(n)*len(b))
	for i := int64(0); i < n; i++ {
		out = append(out, b...)
	}
	return out
}

// TrueDivide implements a / b, always yielding a float for numeric input.
func TrueDivide(ts *ThreadState, a, b Object) Object {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	if !oka || !okb {
		return typeErr2(ts, "/", a, b)
	}
	if fb == 0 {
		ts.SetExc(TypeZeroDivisionError, "division by zero")
		return nil
	}
	return NewFloat(fa / fb)
}

// floorFloat implements Python floor division on float64.
func floorFloat(a, b float64) float64 {
	return math.Floor(a / b)
}

// floorModFloat implements Python modulo on float64.
func floorModFloat(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// floorDivInt implements Python floor division on int64.
func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorModInt implements Python modulo on int64: sign follows the divisor.
func floorModInt(a, b int64) int64 {
	r := a % b
	if r != 0 && ((r < 0) != (b < 0)) {
		r += b
	}
	return r
}

// FloorDivide implements a // b.
func FloorDivide(ts *ThreadState, a, b Object) Object {
	if isFloat(a) || isFloat(b) {
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if oka && okb {
			if fb == 0 {
				ts.SetExc(TypeZeroDivisionError, "float floor division by zero")
				return nil
			}
			return NewFloat(math.Floor(fa / fb))
		}
		return typeErr2(ts, "//", a, b)
	}
	ia, oka := asInt(a)
	ib, okb := asInt(b)
	if !oka || !okb {
		return typeErr2(ts, "//", a, b)
	}
	if ib.IsSmall() && ib.Small == 0 || (!ib.IsSmall() && ib.Big.Sign() == 0) {
		ts.SetExc(TypeZeroDivisionError, "integer division or modulo by zero")
		return nil
	}
	if ia.IsSmall() && ib.IsSmall() {
		return NewInt(floorDivInt(ia.Small, ib.Small))
	}
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(ia.AsBig(), ib.AsBig(), m)
	// big.Int DivMod is Euclidean; adjust to floor semantics.
	if m.Sign() != 0 && ib.AsBig().Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return NewBigInt(q)
}

// Modulo implements a % b.
func Modulo(ts *ThreadState, a, b Object) Object {
	if isFloat(a) || isFloat(b) {
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		if oka && okb {
			if fb == 0 {
				ts.SetExc(TypeZeroDivisionError, "float modulo")
				return nil
			}
			r := math.Mod(fa, fb)
			if r != 0 && (r < 0) != (fb < 0) {
				r += fb
			}
			return NewFloat(r)
		}
		return typeErr2(ts, "%", a, b)
	}
	ia, oka := asInt(a)
	ib, okb := asInt(b)
	if !oka || !okb {
		return typeErr2(ts, "%", a, b)
	}
	if ib.IsSmall() && ib.Small == 0 || (!ib.IsSmall() && ib.Big.Sign() == 0) {
		ts.SetExc(TypeZeroDivisionError, "integer division or modulo by zero")
		return nil
	}
	if ia.IsSmall() && ib.IsSmall() {
		return NewInt(floorModInt(ia.Small, ib.Small))
	}
	m := new(big.Int).Mod(ia.AsBig(), ib.AsBig())
	if m.Sign() != 0 && ib.AsBig().Sign() < 0 {
		m.Add(m, ib.AsBig())
	}
	return NewBigInt(m)
}

// Power implements a ** b.
func Power(ts *ThreadState, a, b Object) Object {
	ia, oka := asInt(a)
	ib, okb := asInt(b)
	if oka && okb {
		if (ib.IsSmall() && ib.Small < 0) || (!ib.IsSmall() && ib.Big.Sign() < 0) {
			fa, _ := asFloat(a)
			fb, _ := asFloat(b)
			if fa == 0 {
				ts.SetExc(TypeZeroDivisionError, "0.0 cannot be raised to a negative power")
				return nil
			}
			return NewFloat(math.Pow(fa, fb))
		}
		if !ib.IsSmall() {
			ts.SetExc(TypeOverflowError, "exponent too large")
			return nil
		}
		return NewBigInt(new(big.Int).Exp(ia.AsBig(), big.NewInt(ib.Small), nil))
	}
	fa, oka2 := asFloat(a)
	fb, okb2 := asFloat(b)
	if oka2 && okb2 {
		return NewFloat(math.Pow(fa, fb))
	}
	return typeErr2(ts, "** or pow()", a, b)
}

// LShift implements a << b.
func LShift(ts *ThreadState, a, b Object) Object {
	ia, oka := asInt(a)
	ib, okb := asInt(b)
	if !oka || !okb {
		return typeErr2(ts, "<<", a, b)
	}
	if !ib.IsSmall() || ib.Small > 1<<20 {
		ts.SetExc(TypeOverflowError, "shift count too large")
		return nil
	}
	if ib.Small < 0 {
		ts.SetExc(TypeValueError, "negative shift count")
		return nil
	}
	return NewBigInt(new(big.Int).Lsh(ia.AsBig(), uint(ib.Small)))
}

// RShift implements a >> b.
func RShift(ts *ThreadState, a, b Object) Object {
	ia, oka := asInt(a)
	ib, okb := asInt(b)
	if !oka || !okb {
		return typeErr2(ts, ">>", a, b)
	}
	if !ib.IsSmall() {
		ts.SetExc(TypeOverflowError, "shift count too large")
		return nil
	}
	if ib.Small < 0 {
		ts.SetExc(TypeValueError, "negative shift count")
		return nil
	}
	if ib.Small > 1<<20 {
		if ia.AsBig().Sign() < 0 {
			return NewInt(-1)
		}
		return NewInt(0)
	}
	return NewBigInt(new(big.Int).Rsh(ia.AsBig(), uint(ib.Small)))
}

func bitwise(ts *ThreadState, opName string, a, b Object,
	intOp func(x, y *big.Int) *big.Int,
	setOp func(x, y *SetObject) *SetObject) Object {
	if ia, ok := asInt(a); ok {
		if ib, ok := asInt(b); ok {
			return NewBigInt(intOp(ia.AsBig(), ib.AsBig()))
		}
	}
	if sa, ok := a.(*SetObject); ok {
		if sb, ok := b.(*SetObject); ok {
			return setOp(sa, sb)
		}
	}
	return typeErr2(ts, opName, a, b)
}

// BitAnd implements a & b for ints and sets.
func BitAnd(ts *ThreadState, a, b Object) Object {
	return bitwise(ts, "&", a, b,
		func(x, y *big.Int) *big.Int { return new(big.Int).And(x, y) },
		func(x, y *SetObject) *SetObject {
			out := NewSet()
			for _, it := range x.Items {
				if y.Has(it) {
					out.Add(it)
				}
			}
			return out
		})
}

// BitOr implements a | b for ints and sets.
func BitOr(ts *ThreadState, a, b Object) Object {
	return bitwise(ts, "|", a, b,
		func(x, y *big.Int) *big.Int { return new(big.Int).Or(x, y) },
		func(x, y *SetObject) *SetObject {
			out := NewSet()
			for _, it := range x.Items {
				out.Add(it)
			}
			for _, it := range y.Items {
				out.Add(it)
			}
			return out
		})
}

// BitXor implements a ^ b for ints and sets.
func BitXor(ts *ThreadState, a, b Object) Object {
	return bitwise(ts, "^", a, b,
		func(x, y *big.Int) *big.Int { return new(big.Int).Xor(x, y) },
		func(x, y *SetObject) *SetObject {
			out := NewSet()
			for _, it := range x.Items {
				if !y.Has(it) {
					out.Add(it)
				}
			}
			for _, it := range y.Items {
				if !x.Has(it) {
					out.Add(it)
				}
			}
			return out
		})
}

// Negative implements -a.
func Negative(ts *ThreadState, a Object) Object {
	if f, ok := a.(*FloatObject); ok {
		return NewFloat(-f.Value)
	}
	if i, ok := asInt(a); ok {
		return NewBigInt(new(big.Int).Neg(i.AsBig()))
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("bad operand type for unary -: '%s'", a.TypeName()))
	return nil
}

// Positive implements +a.
func Positive(ts *ThreadState, a Object) Object {
	if f, ok := a.(*FloatObject); ok {
		return NewFloat(f.Value)
	}
	if i, ok := asInt(a); ok {
		return NewBigInt(i.AsBig())
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("bad operand type for unary +: '%s'", a.TypeName()))
	return nil
}

// Invert implements ~a.
func Invert(ts *ThreadState, a Object) Object {
	if i, ok := asInt(a); ok {
		return NewBigInt(new(big.Int).Not(i.AsBig()))
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("bad operand type for unary ~: '%s'", a.TypeName()))
	return nil
}

// Not implements `not a`.
func Not(a Object) Object {
	return Bool(!IsTruthy(a))
}

// equalObjects implements == without ordering.
func equalObjects(a, b Object) bool {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	if oka && okb {
		ia, bigA := asInt(a)
		ib, bigB := asInt(b)
		if bigA && bigB && (!ia.IsSmall() || !ib.IsSmall()) {
			return ia.AsBig().Cmp(ib.AsBig()) == 0
		}
		return fa == fb
	}
	switch va := a.(type) {
	case *NoneObject:
		_, ok := b.(*NoneObject)
		return ok
	case *StrObject:
		vb, ok := b.(*StrObject)
		return ok && va.Value == vb.Value
	case *BytesObject:
		vb, ok := b.(*BytesObject)
		return ok && string(va.Value) == string(vb.Value)
	case *ByteArrayObject:
		vb, ok := b.(*ByteArrayObject)
		return ok && string(va.Value) == string(vb.Value)
	case *ListObject:
		vb, ok := b.(*ListObject)
		return ok && equalSeq(va.Items, vb.Items)
	case *TupleObject:
		vb, ok := b.(*TupleObject)
		return ok && equalSeq(va.Items, vb.Items)
	case *DictObject:
		vb, ok := b.(*DictObject)
		if !ok || len(va.Entries) != len(vb.Entries) {
			return false
		}
		for _, e := range va.Entries {
			other, present := vb.Get(e.Key)
			if !present || !equalObjects(e.Value, other) {
				return false
			}
		}
		return true
	case *SetObject:
		vb, ok := b.(*SetObject)
		if !ok || len(va.Items) != len(vb.Items) {
			return false
		}
		for _, it := range va.Items {
			if !vb.Has(it) {
				return false
			}
		}
		return true
	}
	return a == b
}

func equalSeq(a, b []Object) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalObjects(a[i], b[i]) {
			return false
		}
	}
	return true
}

// orderObjects returns -1/0/1; ok is false for unorderable pairs.
func orderObjects(a, b Object) (int, bool) {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	if oka && okb {
		ia, intA := asInt(a)
		ib, intB := asInt(b)
		if intA && intB && (!ia.IsSmall() || !ib.IsSmall()) {
			return ia.AsBig().Cmp(ib.AsBig()), true
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch va := a.(type) {
	case *StrObject:
		if vb, ok := b.(*StrObject); ok {
			return strings.Compare(va.Value, vb.Value), true
		}
	case *BytesObject:
		if vb, ok := b.(*BytesObject); ok {
			return strings.Compare(string(va.Value), string(vb.Value)), true
		}
	case *ListObject:
		if vb, ok := b.(*ListObject); ok {
			return orderSeq(va.Items, vb.Items)
		}
	case *TupleObject:
		if vb, ok := b.(*TupleObject); ok {
			return orderSeq(va.Items, vb.Items)
		}
	}
	return 0, false
}

func orderSeq(a, b []Object) (int, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if !equalObjects(a[i], b[i]) {
			return orderObjects(a[i], b[i])
		}
	}
	switch {
	case len(a) < len(b):
		return -1, true
	case len(a) > len(b):
		return 1, true
	}
	return 0, true
}

// RichCompare implements the six rich comparisons, returning a bool object
// or nil with TypeError for unorderable operands.
func RichCompare(ts *ThreadState, op CompareOp, a, b Object) Object {
	switch op {
	case CompareEq:
		return Bool(equalObjects(a, b))
	case CompareNe:
		return Bool(!equalObjects(a, b))
	}
	c, ok := orderObjects(a, b)
	if !ok {
		ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
			compareName(op), a.TypeName(), b.TypeName()))
		return nil
	}
	switch op {
	case CompareLt:
		return Bool(c < 0)
	case CompareLe:
		return Bool(c <= 0)
	case CompareGt:
		return Bool(c > 0)
	case CompareGe:
		return Bool(c >= 0)
	}
	ts.SetExc(TypeSystemError, "bad comparison oparg")
	return nil
}

func compareName(op CompareOp) string {
	switch op {
	case CompareLt:
		return "<"
	case CompareLe:
		return "<="
	case CompareGt:
		return ">"
	case CompareGe:
		return ">="
	}
	return "?"
}

// Contains implements `item in container`, returning 1, 0, or -1 on error.
func Contains(ts *ThreadState, item, container Object) int {
	switch vc := container.(type) {
	case *StrObject:
		vi, ok := item.(*StrObject)
		if !ok {
			ts.SetExc(TypeTypeError, fmt.Sprintf("'in <string>' requires string as left operand, not %s", item.TypeName()))
			return -1
		}
		if strings.Contains(vc.Value, vi.Value) {
			return 1
		}
		return 0
	case *BytesObject:
		return bytesContains(ts, item, vc.Value)
	case *ByteArrayObject:
		return bytesContains(ts, item, vc.Value)
	case *ListObject:
		return seqContains(vc.Items, item)
	case *TupleObject:
		return seqContains(vc.Items, item)
	case *SetObject:
		if vc.Has(item) {
			return 1
		}
		return 0
	case *DictObject:
		if vc.Has(item) {
			return 1
		}
		return 0
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("argument of type '%s' is not iterable", container.TypeName()))
	return -1
}

func bytesContains(ts *ThreadState, item Object, buf []byte) int {
	if vi, ok := asInt(item); ok && vi.IsSmall() {
		if vi.Small < 0 || vi.Small > 255 {
			ts.SetExc(TypeValueError, "byte must be in range(0, 256)")
			return -1
		}
		for _, c := range buf {
			if int64(c) == vi.Small {
				return 1
			}
		}
		return 0
	}
	if vi, ok := item.(*BytesObject); ok {
		if strings.Contains(string(buf), string(vi.Value)) {
			return 1
		}
		return 0
	}
	ts.SetExc(TypeTypeError, "a bytes-like object is required")
	return -1
}

func seqContains(items []Object, item Object) int {
	for _, it := range items {
		if equalObjects(it, item) {
			return 1
		}
	}
	return 0
}

// Is implements the identity test; interned singletons make identity
// meaningful for None and bools.
func Is(a, b Object) bool {
	return a == b
}
