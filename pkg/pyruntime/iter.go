package pyruntime

import "fmt"

// GetIter implements iter(o), returning nil with TypeError for
// non-iterables.
func GetIter(ts *ThreadState, o Object) Object {
	switch v := o.(type) {
	case *IteratorObject:
		return v
	case *ListObject:
		return NewIterator(append([]Object{}, v.Items...))
	case *TupleObject:
		return NewIterator(v.Items)
	case *SetObject:
		return NewIterator(append([]Object{}, v.Items...))
	case *DictObject:
		keys := make([]Object, 0, len(v.Entries))
		for _, e := range v.Entries {
			keys = append(keys, e.Key)
		}
		return NewIterator(keys)
	case *StrObject:
		items := make([]Object, 0, len(v.Value))
		for _, r := range v.Value {
			items = append(items, NewStr(string(r)))
		}
		return NewIterator(items)
	case *BytesObject:
		return NewIterator(bytesItems(v.Value))
	case *ByteArrayObject:
		return NewIterator(bytesItems(v.Value))
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not iterable", o.TypeName()))
	return nil
}

func bytesItems(buf []byte) []Object {
	items := make([]Object, len(buf))
	for i, c := range buf {
		items[i] = NewInt(int64(c))
	}
	return items
}

// IterNext advances an iterator. It returns nil both on exhaustion (no
// pending exception) and on error (pending exception set); callers
// distinguish via the thread state.
func IterNext(ts *ThreadState, o Object) Object {
	it, ok := o.(*IteratorObject)
	if !ok {
		ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not an iterator", o.TypeName()))
		return nil
	}
	return it.Next()
}

// iterate materializes any iterable into a slice; used by the container
// builders and unpacking.
func iterate(ts *ThreadState, o Object) ([]Object, bool) {
	switch v := o.(type) {
	case *ListObject:
		return v.Items, true
	case *TupleObject:
		return v.Items, true
	case *SetObject:
		return v.Items, true
	case *StrObject:
		items := make([]Object, 0, len(v.Value))
		for _, r := range v.Value {
			items = append(items, NewStr(string(r)))
		}
		return items, true
	case *BytesObject:
		return bytesItems(v.Value), true
	case *ByteArrayObject:
		return bytesItems(v.Value), true
	case *DictObject:
		keys := make([]Object, 0, len(v.Entries))
		for _, e := range v.Entries {
			keys = append(keys, e.Key)
		}
		return keys, true
	case *IteratorObject:
		var items []Object
		for {
			next := v.Next()
			if next == nil {
				return items, true
			}
			items = append(items, next)
		}
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not iterable", o.TypeName()))
	return nil, false
}
