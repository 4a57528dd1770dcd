package pyruntime

// Frame is the execution frame handed to a compiled function: the local
// variable slots plus the global scope. Locals holds nil for unbound slots.
type Frame struct {
	Locals  []Object
	Globals map[string]Object
}

// NewFrame allocates a frame with the given number of local slots.
func NewFrame(nlocals int) *Frame {
	return &Frame{Locals: make([]Object, nlocals), Globals: make(map[string]Object)}
}

// ThreadState carries the per-thread error slot. A compiled function that
// returns nil must have set CurExc first; the embedding layer reads and
// clears it.
type ThreadState struct {
	CurExc *ExceptionObject
	// Lasti mirrors the interpreter's last-instruction marker; emitted
	// code updates it before any operation that can raise.
	Lasti int
}

// SetExc records an exception, chaining any active one as context.
func (ts *ThreadState) SetExc(t *TypeObject, message string) {
	ts.CurExc = &ExceptionObject{Type: t, Message: message, Context: ts.CurExc}
}

// SetExcObject records an already-built exception instance.
func (ts *ThreadState) SetExcObject(e *ExceptionObject) {
	if e.Context == nil && ts.CurExc != nil && ts.CurExc != e {
		e.Context = ts.CurExc
	}
	ts.CurExc = e
}

// FetchExc returns and clears the pending exception.
func (ts *ThreadState) FetchExc() *ExceptionObject {
	e := ts.CurExc
	ts.CurExc = nil
	return e
}

// ValueKind tags the machine representation held in a Value.
type ValueKind uint8

const (
	VKInt ValueKind = iota
	VKFloat
	VKObject
	VKPtr
)

// Value is one machine-level slot: the currency of the IL evaluation stack
// and of helper invocations. Exactly one field is meaningful, per Kind.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Obj   Object
	Ptr   any
}

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{Kind: VKInt, Int: v} }

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{Kind: VKFloat, Float: v} }

// ObjValue wraps an object; a nil object is the error sentinel.
func ObjValue(o Object) Value { return Value{Kind: VKObject, Obj: o} }

// PtrValue wraps an opaque pointer (frame, thread state, spill buffer).
func PtrValue(p any) Value { return Value{Kind: VKPtr, Ptr: p} }

// Truthy reports the machine truth of a value: nonzero for scalars,
// Python truth for objects.
func (v Value) Truthy() bool {
	switch v.Kind {
	case VKInt:
		return v.Int != 0
	case VKFloat:
		return v.Float != 0
	case VKObject:
		return IsTruthy(v.Obj)
	default:
		return v.Ptr != nil
	}
}
