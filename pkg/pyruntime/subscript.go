package pyruntime

import "fmt"

// indexOf extracts an integral index from an object, widening bools.
func indexOf(ts *ThreadState, o Object, container string) (int64, bool) {
	i, ok := asInt(o)
	if !ok {
		ts.SetExc(TypeTypeError, fmt.Sprintf("%s indices must be integers or slices, not %s", container, o.TypeName()))
		return 0, false
	}
	if !i.IsSmall() {
		ts.SetExc(TypeIndexError, "cannot fit index into an index-sized integer")
		return 0, false
	}
	return i.Small, true
}

// adjustIndex maps a possibly negative index into [0, length) semantics,
// reporting whether it is in range.
func adjustIndex(idx int64, length int) (int, bool) {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

// sliceIndices resolves a slice against a sequence length, yielding the
// start index, the step, and the number of elements produced. Mirrors the
// interpreter's slice-adjust algorithm, including negative steps.
func sliceIndices(ts *ThreadState, s *SliceObject, length int) (start, step, count int, ok bool) {
	step64 := int64(1)
	if _, isNone := s.Step.(*NoneObject); !isNone {
		v, valid := indexOf(ts, s.Step, "slice")
		if !valid {
			return 0, 0, 0, false
		}
		if v == 0 {
			ts.SetExc(TypeValueError, "slice step cannot be zero")
			return 0, 0, 0, false
		}
		step64 = v
	}

	var defStart, defStop int64
	if step64 > 0 {
		defStart, defStop = 0, int64(length)
	} else {
		defStart, defStop = int64(length)-1, -1
	}

	clamp := func(v int64) int64 {
		if v < 0 {
			v += int64(length)
			if v < 0 {
				if step64 > 0 {
					return 0
				}
				return -1
			}
			return v
		}
		if v > int64(length) {
			if step64 > 0 {
				return int64(length)
			}
			return int64(length) - 1
		}
		if step64 < 0 && v == int64(length) {
			return int64(length) - 1
		}
		return v
	}

	start64 := defStart
	if _, isNone := s.Start.(*NoneObject); !isNone {
		v, valid := indexOf(ts, s.Start, "slice")
		if !valid {
			return 0, 0, 0, false
		}
		start64 = clamp(v)
	}
	stop64 := defStop
	if _, isNone := s.Stop.(*NoneObject); !isNone {
		v, valid := indexOf(ts, s.Stop, "slice")
		if !valid {
			return 0, 0, 0, false
		}
		stop64 = clamp(v)
	}

	var n int64
	if step64 > 0 {
		if stop64 > start64 {
			n = (stop64 - start64 + step64 - 1) / step64
		}
	} else {
		if stop64 < start64 {
			n = (start64 - stop64 - step64 - 1) / -step64
		}
	}
	if n < 0 {
		n = 0
	}
	return int(start64), int(step64), int(n), true
}

// Subscript implements a[b] for the sequence and mapping kinds, including
// full slice semantics with negative indices and steps.
func Subscript(ts *ThreadState, container, index Object) Object {
	if sl, ok := index.(*SliceObject); ok {
		return subscriptSlice(ts, container, sl)
	}
	switch vc := container.(type) {
	case *StrObject:
		idx, ok := indexOf(ts, index, "string")
		if !ok {
			return nil
		}
		i, in := adjustIndex(idx, len(vc.Value))
		if !in {
			ts.SetExc(TypeIndexError, "string index out of range")
			return nil
		}
		return NewStr(vc.Value[i : i+1])
	case *BytesObject:
		return bytesIndex(ts, vc.Value, index, "index out of range")
	case *ByteArrayObject:
		return bytesIndex(ts, vc.Value, index, "bytearray index out of range")
	case *ListObject:
		idx, ok := indexOf(ts, index, "list")
		if !ok {
			return nil
		}
		i, in := adjustIndex(idx, len(vc.Items))
		if !in {
			ts.SetExc(TypeIndexError, "list index out of range")
			return nil
		}
		return vc.Items[i]
	case *TupleObject:
		idx, ok := indexOf(ts, index, "tuple")
		if !ok {
			return nil
		}
		i, in := adjustIndex(idx, len(vc.Items))
		if !in {
			ts.SetExc(TypeIndexError, "tuple index out of range")
			return nil
		}
		return vc.Items[i]
	case *DictObject:
		v, present := vc.Get(index)
		if !present {
			ts.SetExc(TypeKeyError, index.Repr())
			return nil
		}
		return v
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not subscriptable", container.TypeName()))
	return nil
}

func bytesIndex(ts *ThreadState, buf []byte, index Object, msg string) Object {
	idx, ok := indexOf(ts, index, "bytes")
	if !ok {
		return nil
	}
	i, in := adjustIndex(idx, len(buf))
	if !in {
		ts.SetExc(TypeIndexError, msg)
		return nil
	}
	return NewInt(int64(buf[i]))
}

func subscriptSlice(ts *ThreadState, container Object, sl *SliceObject) Object {
	switch vc := container.(type) {
	case *StrObject:
		start, step, count, ok := sliceIndices(ts, sl, len(vc.Value))
		if !ok {
			return nil
		}
		out := make([]byte, 0, count)
		for i, p := 0, start; i < count; i, p = i+1, p+step {
			out = append(out, vc.Value[p])
		}
		return NewStr(string(out))
	case *BytesObject:
		b, ok := sliceBytes(ts, sl, vc.Value)
		if !ok {
			return nil
		}
		return NewBytes(b)
	case *ByteArrayObject:
		b, ok := sliceBytes(ts, sl, vc.Value)
		if !ok {
			return nil
		}
		return NewByteArray(b)
	case *ListObject:
		items, ok := sliceSeq(ts, sl, vc.Items)
		if !ok {
			return nil
		}
		return NewList(items)
	case *TupleObject:
		items, ok := sliceSeq(ts, sl, vc.Items)
		if !ok {
			return nil
		}
		return NewTuple(items)
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not subscriptable", container.TypeName()))
	return nil
}

func sliceBytes(ts *ThreadState, sl *SliceObject, buf []byte) ([]byte, bool) {
	start, step, count, ok := sliceIndices(ts, sl, len(buf))
	if !ok {
		return nil, false
	}
	out := make([]byte, 0, count)
	for i, p := 0, start; i < count; i, p = i+1, p+step {
		out = append(out, buf[p])
	}
	return out, true
}

func sliceSeq(ts *ThreadState, sl *SliceObject, items []Object) ([]Object, bool) {
	start, step, count, ok := sliceIndices(ts, sl, len(items))
	if !ok {
		return nil, false
	}
	out := make([]Object, 0, count)
	for i, p := 0, start; i < count; i, p = i+1, p+step {
		out = append(out, items[p])
	}
	return out, true
}

// StoreSubscr implements a[b] = c, returning 0 or -1 on error.
func StoreSubscr(ts *ThreadState, container, index, value Object) int {
	switch vc := container.(type) {
	case *ListObject:
		idx, ok := indexOf(ts, index, "list")
		if !ok {
			return -1
		}
		i, in := adjustIndex(idx, len(vc.Items))
		if !in {
			ts.SetExc(TypeIndexError, "list assignment index out of range")
			return -1
		}
		vc.Items[i] = value
		return 0
	case *ByteArrayObject:
		idx, ok := indexOf(ts, index, "bytearray")
		if !ok {
			return -1
		}
		i, in := adjustIndex(idx, len(vc.Value))
		if !in {
			ts.SetExc(TypeIndexError, "bytearray index out of range")
			return -1
		}
		b, ok := asInt(value)
		if !ok || !b.IsSmall() || b.Small < 0 || b.Small > 255 {
			ts.SetExc(TypeValueError, "byte must be in range(0, 256)")
			return -1
		}
		vc.Value[i] = byte(b.Small)
		return 0
	case *DictObject:
		if !vc.Set(index, value) {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", index.TypeName()))
			return -1
		}
		return 0
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object does not support item assignment", container.TypeName()))
	return -1
}

// DeleteSubscr implements del a[b], returning 0 or -1 on error.
func DeleteSubscr(ts *ThreadState, container, index Object) int {
	switch vc := container.(type) {
	case *ListObject:
		idx, ok := indexOf(ts, index, "list")
		if !ok {
			return -1
		}
		i, in := adjustIndex(idx, len(vc.Items))
		if !in {
			ts.SetExc(TypeIndexError, "list assignment index out of range")
			return -1
		}
		vc.Items = append(vc.Items[:i], vc.Items[i+1:]...)
		return 0
	case *DictObject:
		hk, ok := hashKey(index)
		if !ok {
			ts.SetExc(TypeTypeError, fmt.Sprintf("unhashable type: '%s'", index.TypeName()))
			return -1
		}
		i, present := vc.index[hk]
		if !present {
			ts.SetExc(TypeKeyError, index.Repr())
			return -1
		}
		vc.Entries = append(vc.Entries[:i], vc.Entries[i+1:]...)
		delete(vc.index, hk)
		for k, v := range vc.index {
			if v > i {
				vc.index[k] = v - 1
			}
		}
		return 0
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object doesn't support item deletion", container.TypeName()))
	return -1
}
