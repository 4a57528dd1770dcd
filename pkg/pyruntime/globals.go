package pyruntime

import "fmt"

// builtins is the read-only builtin scope consulted after frame globals.
var builtins = map[string]Object{
	"None":  None,
	"True":  True,
	"False": False,
	"len": &BuiltinObject{Name: "len", Fn: func(ts *ThreadState, args []Object) Object {
		if len(args) != 1 {
			ts.SetExc(TypeTypeError, fmt.Sprintf("len() takes exactly one argument (%d given)", len(args)))
			return nil
		}
		switch v := args[0].(type) {
		case *StrObject:
			return NewInt(int64(len(v.Value)))
		case *BytesObject:
			return NewInt(int64(len(v.Value)))
		case *ByteArrayObject:
			return NewInt(int64(len(v.Value)))
		case *ListObject:
			return NewInt(int64(len(v.Items)))
		case *TupleObject:
			return NewInt(int64(len(v.Items)))
		case *SetObject:
			return NewInt(int64(len(v.Items)))
		case *DictObject:
			return NewInt(int64(len(v.Entries)))
		}
		ts.SetExc(TypeTypeError, fmt.Sprintf("object of type '%s' has no len()", args[0].TypeName()))
		return nil
	}},
	"range": &BuiltinObject{Name: "range", Fn: func(ts *ThreadState, args []Object) Object {
		var start, stop, step int64 = 0, 0, 1
		get := func(o Object) (int64, bool) {
			i, ok := asInt(o)
			if !ok || !i.IsSmall() {
				ts.SetExc(TypeTypeError, "'range' arguments must be integers")
				return 0, false
			}
			return i.Small, true
		}
		var ok bool
		switch len(args) {
		case 1:
			stop, ok = get(args[0])
		case 2:
			if start, ok = get(args[0]); ok {
				stop, ok = get(args[1])
			}
		case 3:
			if start, ok = get(args[0]); ok {
				if stop, ok = get(args[1]); ok {
					step, ok = get(args[2])
				}
			}
			if ok && step == 0 {
				ts.SetExc(TypeValueError, "range() arg 3 must not be zero")
				return nil
			}
		default:
			ts.SetExc(TypeTypeError, fmt.Sprintf("range expected at most 3 arguments, got %d", len(args)))
			return nil
		}
		if !ok {
			return nil
		}
		var items []Object
		if step > 0 {
			for v := start; v < stop; v += step {
				items = append(items, NewInt(v))
			}
		} else {
			for v := start; v > stop; v += step {
				items = append(items, NewInt(v))
			}
		}
		return NewList(items)
	}},
	"bytearray": &BuiltinObject{Name: "bytearray", Fn: func(ts *ThreadState, args []Object) Object {
		switch len(args) {
		case 0:
			return NewByteArray(nil)
		case 1:
		default:
			ts.SetExc(TypeTypeError, "bytearray() takes at most 1 argument here")
			return nil
		}
		switch v := args[0].(type) {
		case *BytesObject:
			return NewByteArray(append([]byte{}, v.Value...))
		case *ByteArrayObject:
			return NewByteArray(append([]byte{}, v.Value...))
		case *IntObject:
			if !v.IsSmall() || v.Small < 0 {
				ts.SetExc(TypeValueError, "negative count")
				return nil
			}
			return NewByteArray(make([]byte, v.Small))
		case *ListObject, *TupleObject:
			items, _ := iterate(ts, args[0])
			buf := make([]byte, 0, len(items))
			for _, it := range items {
				i, ok := asInt(it)
				if !ok || !i.IsSmall() || i.Small < 0 || i.Small > 255 {
					ts.SetExc(TypeValueError, "bytes must be in range(0, 256)")
					return nil
				}
				buf = append(buf, byte(i.Small))
			}
			return NewByteArray(buf)
		}
		ts.SetExc(TypeTypeError, fmt.Sprintf("cannot convert '%s' object to bytearray", args[0].TypeName()))
		return nil
	}},
	"abs": &BuiltinObject{Name: "abs", Fn: func(ts *ThreadState, args []Object) Object {
		if len(args) != 1 {
			ts.SetExc(TypeTypeError, "abs() takes exactly one argument")
			return nil
		}
		switch v := args[0].(type) {
		case *FloatObject:
			if v.Value < 0 {
				return NewFloat(-v.Value)
			}
			return v
		}
		if i, ok := asInt(args[0]); ok {
			if (i.IsSmall() && i.Small < 0) || (!i.IsSmall() && i.Big.Sign() < 0) {
				return Negative(ts, i)
			}
			return i
		}
		ts.SetExc(TypeTypeError, fmt.Sprintf("bad operand type for abs(): '%s'", args[0].TypeName()))
		return nil
	}},
}

// LoadGlobal resolves a name against frame globals then builtins,
// returning nil with NameError when unbound.
func LoadGlobal(ts *ThreadState, frame *Frame, name string) Object {
	if frame != nil && frame.Globals != nil {
		if v, ok := frame.Globals[name]; ok {
			return v
		}
	}
	if v, ok := builtins[name]; ok {
		return v
	}
	ts.SetExc(TypeNameError, fmt.Sprintf("name '%s' is not defined", name))
	return nil
}

// Call invokes a callable with positional arguments.
func Call(ts *ThreadState, callable Object, args []Object) Object {
	switch v := callable.(type) {
	case *BuiltinObject:
		return v.Fn(ts, args)
	case *TypeObject:
		// Calling an exception type constructs an instance.
		if v.IsSubtypeOf(TypeBaseException) {
			msg := ""
			if len(args) > 0 {
				if s, ok := args[0].(*StrObject); ok {
					msg = s.Value
				} else {
					msg = args[0].Repr()
				}
			}
			return &ExceptionObject{Type: v, Message: msg, Args: args}
		}
	}
	ts.SetExc(TypeTypeError, fmt.Sprintf("'%s' object is not callable", callable.TypeName()))
	return nil
}

// Raise implements RAISE_VARARGS: exc may be an exception type, an
// exception instance, or nil for a bare re-raise. It always returns -1.
func Raise(ts *ThreadState, exc Object) int {
	switch v := exc.(type) {
	case nil:
		if ts.CurExc == nil {
			ts.SetExc(TypeRuntimeError, "No active exception to reraise")
		}
		return -1
	case *ExceptionObject:
		ts.SetExcObject(v)
		return -1
	case *TypeObject:
		if v.IsSubtypeOf(TypeBaseException) {
			ts.SetExc(v, "")
			return -1
		}
	}
	ts.SetExc(TypeTypeError, "exceptions must derive from BaseException")
	return -1
}

// LoadFast reads a local slot, returning nil with UnboundLocalError when
// the slot is unbound.
func LoadFast(ts *ThreadState, frame *Frame, slot int, name string) Object {
	if slot < len(frame.Locals) {
		if v := frame.Locals[slot]; v != nil {
			return v
		}
	}
	ts.SetExc(TypeUnboundLocalError, fmt.Sprintf("local variable '%s' referenced before assignment", name))
	return nil
}
