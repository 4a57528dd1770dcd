package pyruntime

import "fmt"

// BuildList builds a list from values in push order.
func BuildList(items []Object) Object {
	return NewList(append([]Object{}, items...))
}

// BuildTuple builds a tuple from values in push order.
func BuildTuple(items []Object) Object {
	return NewTuple(append([]Object{}, items...))
}

// BuildSet builds a set from values in push order, returning nil with
// TypeError when an element is unhashable.
func BuildSet(ts *ThreadState, items []Object) Object {
	s := NewSet()
	for _, it := range items {
		if !s.Add(it) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", it.TypeName()))
			return nil
		}
	}
	return s
}

// BuildMap builds a dict from alternating key/value pairs in push order.
func BuildMap(ts *ThreadState, pairs []Object) Object {
	d := NewDict()
	for i := 0; i+1 < len(pairs); i += 2 {
		if !d.Set(pairs[i], pairs[i+1]) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", pairs[i].TypeName()))
			return nil
		}
	}
	return d
}

// BuildConstKeyMap builds a dict from a key tuple plus values in key order.
func BuildConstKeyMap(ts *ThreadState, keys Object, values []Object) Object {
	kt, ok := keys.(*TupleObject)
	if !ok || len(kt.Items) != len(values) {
		ts.SetExc(TypeSystemError, "bad BUILD_CONST_KEY_MAP key tuple")
		return nil
	}
	d := NewDict()
	for i, k := range kt.Items {
		if !d.Set(k, values[i]) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", k.TypeName()))
			return nil
		}
	}
	return d
}

// BuildSlice builds a slice object from 2 or 3 components.
func BuildSlice(parts []Object) Object {
	s := &SliceObject{Start: parts[0], Stop: parts[1], Step: None}
	if len(parts) == 3 {
		s.Step = parts[2]
	}
	return s
}

// ListAppend appends an element to a list in place; 0 or -1.
func ListAppend(ts *ThreadState, list, item Object) int {
	l, ok := list.(*ListObject)
	if !ok {
		ts.SetExc(TypeSystemError, "LIST_APPEND target is not a list")
		return -1
	}
	l.Items = append(l.Items, item)
	return 0
}

// ListExtend extends a list in place with any iterable; 0 or -1.
func ListExtend(ts *ThreadState, list, iterable Object) int {
	l, ok := list.(*ListObject)
	if !ok {
		ts.SetExc(TypeSystemError, "LIST_EXTEND target is not a list")
		return -1
	}
	items, ok := iterate(ts, iterable)
	if !ok {
		return -1
	}
	l.Items = append(l.Items, items...)
	return 0
}

// SetAdd adds an element to a set in place; 0 or -1.
func SetAdd(ts *ThreadState, set, item Object) int {
	s, ok := set.(*SetObject)
	if !ok {
		ts.SetExc(TypeSystemError, "SET_ADD target is not a set")
		return -1
	}
	if !s.Add(item) {
		ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", item.TypeName()))
		return -1
	}
	return 0
}

// SetUpdate folds any iterable into a set in place; 0 or -1.
func SetUpdate(ts *ThreadState, set, iterable Object) int {
	s, ok := set.(*SetObject)
	if !ok {
		ts.SetExc(TypeSystemError, "SET_UPDATE target is not a set")
		return -1
	}
	items, ok := iterate(ts, iterable)
	if !ok {
		return -1
	}
	for _, it := range items {
		if !s.Add(it) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", it.TypeName()))
			return -1
		}
	}
	return 0
}

// MapAdd inserts a key/value pair into a dict in place; 0 or -1.
func MapAdd(ts *ThreadState, dict, key, value Object) int {
	d, ok := dict.(*DictObject)
	if !ok {
		ts.SetExc(TypeSystemError, "MAP_ADD target is not a dict")
		return -1
	}
	if !d.Set(key, value) {
		ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", key.TypeName()))
		return -1
	}
	return 0
}

// DictUpdate merges a mapping into a dict in place, later keys winning;
// 0 or -1.
func DictUpdate(ts *ThreadState, dict, other Object) int {
	d, ok := dict.(*DictObject)
	if !ok {
		ts.SetExc(TypeSystemError, "DICT_UPDATE target is not a dict")
		return -1
	}
	o, ok := other.(*DictObject)
	if !ok {
		ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not a mapping", other.TypeName()))
		return -1
	}
	for _, e := range o.Entries {
		d.Set(e.Key, e.Value)
	}
	return 0
}

// DictMerge is DictUpdate for double-star unpacking in calls: duplicate
// keys are an error; 0 or -1.
func DictMerge(ts *ThreadState, dict, other Object) int {
	d, ok := dict.(*DictObject)
	if !ok {
		ts.SetExc(TypeSystemError, "DICT_MERGE target is not a dict")
		return -1
	}
	o, ok := other.(*DictObject)
	if !ok {
		ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not a mapping", other.TypeName()))
		return -1
	}
	for _, e := range o.Entries {
		if d.Has(e.Key) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("got multiple values for keyword argument %s", e.Key.Repr()))
			return -1
		}
		d.Set(e.Key, e.Value)
	}
	return 0
}

// UnpackSequence checks an exact-length unpack and returns the elements as
// a tuple for the driver to index, or nil with the interpreter's error.
func UnpackSequence(ts *ThreadState, seq Object, n int) Object {
	items, ok := iterate(ts, seq)
	if !ok {
		return nil
	}
	if len(items) < n {
		ts.SetExc(TypeValueError, fmt.Sprintf("not enough values to unpack (expected %d, got %d)", n, len(items)))
		return nil
	}
	if len(items) > n {
		ts.SetExc(TypeValueError, fmt.Sprintf("too many values to unpack (expected %d)", n))
		return nil
	}
	return NewTuple(append([]Object{}, items...))
}

// TupleGet returns element i of a tuple; bounds were checked at emit time.
func TupleGet(t Object, i int) Object {
	return t.(*TupleObject).Items[i]
}

// UnicodeConcat is the fast path for str + str.
func UnicodeConcat(a, b Object) Object {
	return NewStr(a.(*StrObject).Value + b.(*StrObject).Value)
}
