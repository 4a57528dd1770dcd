// Package pyruntime is the runtime half of the compiler: the boxed object
// model, the helper functions emitted code calls into, and the process-wide
// token registry that names them.
package pyruntime

import (
	"fmt"
	"math/big"
	"strings"
)

// Object is a boxed Python value. The emitted code and the runtime helpers
// exchange Objects; nil is the error sentinel for object-returning helpers.
type Object interface {
	// TypeName returns the Python type name.
	TypeName() string
	// Repr returns the value's repr() string.
	Repr() string
}

// NoneObject is the None singleton's type.
type NoneObject struct{}

// None is the singleton None value.
var None = &NoneObject{}

func (*NoneObject) TypeName() string { return "NoneType" }
func (*NoneObject) Repr() string     { return "None" }

// BoolObject is a Python bool.
type BoolObject struct {
	Value bool
}

// True and False are the interned bool values.
var (
	True  = &BoolObject{Value: true}
	False = &BoolObject{Value: false}
)

// Bool returns the interned bool for a condition.
func Bool(v bool) *BoolObject {
	if v {
		return True
	}
	return False
}

func (b *BoolObject) TypeName() string { return "bool" }
func (b *BoolObject) Repr() string {
	if b.Value {
		return "True"
	}
	return "False"
}

// IntObject is a Python int. Values within the int64 range live in Small;
// anything wider spills into Big. Helpers normalize results so that Big is
// non-nil only when the value does not fit in an int64.
type IntObject struct {
	Small int64
	Big   *big.Int
}

// NewInt boxes an int64.
func NewInt(v int64) *IntObject { return &IntObject{Small: v} }

// NewBigInt boxes an arbitrary-precision integer, normalizing to Small
// when it fits.
func NewBigInt(v *big.Int) *IntObject {
	if v.IsInt64() {
		return &IntObject{Small: v.Int64()}
	}
	return &IntObject{Big: new(big.Int).Set(v)}
}

// AsBig returns the value widened to a big.Int.
func (i *IntObject) AsBig() *big.Int {
	if i.Big != nil {
		return i.Big
	}
	return big.NewInt(i.Small)
}

// IsSmall reports whether the value fits in an int64.
func (i *IntObject) IsSmall() bool { return i.Big == nil }

func (i *IntObject) TypeName() string { return "int" }
func (i *IntObject) Repr() string {
	if i.Big != nil {
		return i.Big.String()
	}
	return fmt.Sprintf("%d", i.Small)
}

// FloatObject is a Python float.
type FloatObject struct {
	Value float64
}

// NewFloat boxes a float64.
func NewFloat(v float64) *FloatObject { return &FloatObject{Value: v} }

func (f *FloatObject) TypeName() string { return "float" }
func (f *FloatObject) Repr() string {
	s := fmt.Sprintf("%g", f.Value)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// StrObject is a Python str.
type StrObject struct {
	Value string
}

// NewStr boxes a string.
func NewStr(v string) *StrObject { return &StrObject{Value: v} }

func (s *StrObject) TypeName() string { return "str" }
func (s *StrObject) Repr() string     { return "'" + strings.ReplaceAll(s.Value, "'", "\\'") + "'" }

// BytesObject is a Python bytes.
type BytesObject struct {
	Value []byte
}

// NewBytes boxes a byte slice.
func NewBytes(v []byte) *BytesObject { return &BytesObject{Value: v} }

func (b *BytesObject) TypeName() string { return "bytes" }
func (b *BytesObject) Repr() string     { return fmt.Sprintf("b%q", b.Value) }

// ByteArrayObject is a Python bytearray.
type ByteArrayObject struct {
	Value []byte
}

// NewByteArray boxes a mutable byte buffer.
func NewByteArray(v []byte) *ByteArrayObject { return &ByteArrayObject{Value: v} }

func (b *ByteArrayObject) TypeName() string { return "bytearray" }
func (b *ByteArrayObject) Repr() string     { return fmt.Sprintf("bytearray(b%q)", b.Value) }

// ListObject is a Python list.
type ListObject struct {
	Items []Object
}

// NewList builds a list from items; the slice is owned by the list.
func NewList(items []Object) *ListObject { return &ListObject{Items: items} }

func (l *ListObject) TypeName() string { return "list" }
func (l *ListObject) Repr() string     { return reprSeq("[", l.Items, "]", false) }

// TupleObject is a Python tuple.
type TupleObject struct {
	Items []Object
}

// NewTuple builds a tuple from items; the slice is owned by the tuple.
func NewTuple(items []Object) *TupleObject { return &TupleObject{Items: items} }

func (t *TupleObject) TypeName() string { return "tuple" }
func (t *TupleObject) Repr() string     { return reprSeq("(", t.Items, ")", true) }

func reprSeq(open string, items []Object, closing string, trailingOne bool) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(it.Repr())
	}
	if trailingOne && len(items) == 1 {
		sb.WriteString(",")
	}
	sb.WriteString(closing)
	return sb.String()
}

// DictObject is a Python dict with insertion-ordered keys. Keys are the
// hashable object kinds; lookup goes through a hash-key index while order
// is preserved in Entries.
type DictObject struct {
	Entries []DictEntry
	index   map[dictKey]int
}

// DictEntry is one key/value pair.
type DictEntry struct {
	Key   Object
	Value Object
}

type dictKey struct {
	kind string
	num  float64 // numeric keys compare by value: 1 == 1.0 == True
	str  string
}

// NewDict returns an empty dict.
func NewDict() *DictObject {
	return &DictObject{index: make(map[dictKey]int)}
}

func hashKey(k Object) (dictKey, bool) {
	switch v := k.(type) {
	case *NoneObject:
		return dictKey{kind: "none"}, true
	case *BoolObject:
		if v.Value {
			return dictKey{kind: "num", num: 1}, true
		}
		return dictKey{kind: "num", num: 0}, true
	case *IntObject:
		if v.IsSmall() {
			return dictKey{kind: "num", num: float64(v.Small)}, true
		}
		return dictKey{kind: "bignum", str: v.Big.String()}, true
	case *FloatObject:
		return dictKey{kind: "num", num: v.Value}, true
	case *StrObject:
		return dictKey{kind: "str", str: v.Value}, true
	case *BytesObject:
		return dictKey{kind: "bytes", str: string(v.Value)}, true
	}
	return dictKey{}, false
}

// Get looks up a key; ok is false if absent or unhashable.
func (d *DictObject) Get(key Object) (Object, bool) {
	hk, ok := hashKey(key)
	if !ok {
		return nil, false
	}
	if i, present := d.index[hk]; present {
		return d.Entries[i].Value, true
	}
	return nil, false
}

// Set inserts or updates a key, preserving first-insertion order. It
// returns false for unhashable keys.
func (d *DictObject) Set(key, value Object) bool {
	hk, ok := hashKey(key)
	if !ok {
		return false
	}
	if i, present := d.index[hk]; present {
		d.Entries[i].Value = value
		return true
	}
	d.index[hk] = len(d.Entries)
	d.Entries = append(d.Entries, DictEntry{Key: key, Value: value})
	return true
}

// Has reports whether the key is present.
func (d *DictObject) Has(key Object) bool {
	_, ok := d.Get(key)
	return ok
}

func (d *DictObject) TypeName() string { return "dict" }
func (d *DictObject) Repr() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, e := range d.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Key.Repr())
		sb.WriteString(": ")
		sb.WriteString(e.Value.Repr())
	}
	sb.WriteString("}")
	return sb.String()
}

// SetObject is a Python set, insertion-ordered for deterministic repr.
type SetObject struct {
	Items []Object
	index map[dictKey]int
}

// NewSet returns an empty set.
func NewSet() *SetObject {
	return &SetObject{index: make(map[dictKey]int)}
}

// Add inserts an element; returns false for unhashable elements.
func (s *SetObject) Add(item Object) bool {
	hk, ok := hashKey(item)
	if !ok {
		return false
	}
	if _, present := s.index[hk]; present {
		return true
	}
	s.index[hk] = len(s.Items)
	s.Items = append(s.Items, item)
	return true
}

// Has reports whether the element is present.
func (s *SetObject) Has(item Object) bool {
	hk, ok := hashKey(item)
	if !ok {
		return false
	}
	_, present := s.index[hk]
	return present
}

func (s *SetObject) TypeName() string { return "set" }
func (s *SetObject) Repr() string {
	if len(s.Items) == 0 {
		return "set()"
	}
	return reprSeq("{", s.Items, "}", false)
}

// SliceObject is a Python slice.
type SliceObject struct {
	Start Object // None or int
	Stop  Object
	Step  Object
}

func (s *SliceObject) TypeName() string { return "slice" }
func (s *SliceObject) Repr() string {
	return fmt.Sprintf("slice(%s, %s, %s)", s.Start.Repr(), s.Stop.Repr(), s.Step.Repr())
}

// TypeObject represents a Python type, used for exception types and
// identity checks on builtins.
type TypeObject struct {
	Name string
	Base *TypeObject
}

func (t *TypeObject) TypeName() string { return "type" }
func (t *TypeObject) Repr() string     { return "<class '" + t.Name + "'>" }

// IsSubtypeOf reports whether t is target or derives from it.
func (t *TypeObject) IsSubtypeOf(target *TypeObject) bool {
	for c := t; c != nil; c = c.Base {
		if c == target {
			return true
		}
	}
	return false
}

// BuiltinObject is a callable builtin function.
type BuiltinObject struct {
	Name string
	Fn   func(ts *ThreadState, args []Object) Object
}

func (b *BuiltinObject) TypeName() string { return "builtin_function_or_method" }
func (b *BuiltinObject) Repr() string     { return "<built-in function " + b.Name + ">" }

// IteratorObject walks a snapshot of a sequence's elements.
type IteratorObject struct {
	items []Object
	pos   int
}

// NewIterator returns an iterator over the given elements.
func NewIterator(items []Object) *IteratorObject {
	return &IteratorObject{items: items}
}

// Next returns the next element, or nil when exhausted.
func (it *IteratorObject) Next() Object {
	if it.pos >= len(it.items) {
		return nil
	}
	v := it.items[it.pos]
	it.pos++
	return v
}

func (it *IteratorObject) TypeName() string { return "iterator" }
func (it *IteratorObject) Repr() string     { return "<iterator>" }
