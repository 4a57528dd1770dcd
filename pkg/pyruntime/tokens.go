package pyruntime

import (
	"fmt"
	"sync"
)

// Token identifies a runtime helper callable from emitted code. Tokens are
// stable small integers shared between the driver (which emits calls) and
// the backend (which resolves them at lowering time).
type Token uint16

const (
	TokenInvalid Token = iota

	// Binary operations on boxed objects.
	TokenAdd
	TokenSubtract
	TokenMultiply
	TokenTrueDivide
	TokenFloorDivide
	TokenModulo
	TokenPower
	TokenLShift
	TokenRShift
	TokenBitAnd
	TokenBitOr
	TokenBitXor
	TokenSubscript

	// Unary operations on boxed objects.
	TokenUnaryNegative
	TokenUnaryPositive
	TokenUnaryInvert
	TokenUnaryNot

	// Comparison and tests.
	TokenRichCompare
	TokenContains
	TokenIsTruthy
	TokenIs

	// Subscript stores.
	TokenStoreSubscr
	TokenDeleteSubscr

	// Iteration.
	TokenGetIter
	TokenIterNext

	// Container builders and in-place growth.
	TokenBuildList
	TokenBuildTuple
	TokenBuildSet
	TokenBuildMap
	TokenBuildConstKeyMap
	TokenBuildSlice
	TokenListAppend
	TokenListExtend
	TokenSetAdd
	TokenSetUpdate
	TokenMapAdd
	TokenDictUpdate
	TokenDictMerge
	TokenUnpackSequence
	TokenTupleGet
	TokenUnicodeConcat

	// Calls, names and frame access.
	TokenCall
	TokenLoadGlobal
	TokenLoadFast
	TokenStoreFast
	TokenDeleteFast

	// Exceptions.
	TokenRaise
	TokenReraise
	TokenLoadAssertionError
	TokenFetchExc
	TokenExcType
	TokenExcTraceback
	TokenEndFinally
	TokenExcOccurred
	TokenZeroDivisionError

	// Boxing transitions.
	TokenBoxInt
	TokenBoxFloat
	TokenBoxBool
	TokenUnboxInt
	TokenUnboxFloat
	TokenUnboxBool

	// Unboxed intrinsics.
	TokenIntTrueDivide
	TokenIntFloorDivide
	TokenIntModulo
	TokenFloatFloorDivide
	TokenFloatModulo

	// Frame bookkeeping.
	TokenSetLasti
)

// RetKind describes what a helper leaves on the machine stack.
type RetKind uint8

const (
	RetObject RetKind = iota // object; nil signals a pending exception
	RetInt                   // int64; status helpers return -1 with a pending exception, value helpers return 0 with it set
	RetFloat                 // float64; no sentinel, failures return 0 with a pending exception
	RetVoid                  // nothing pushed
)

// VariadicArity marks helpers whose operand count is fixed at emit time.
const VariadicArity = -1

// Helper binds a token to its native implementation and prototype.
type Helper struct {
	Token Token
	Name  string
	Arity int // stack operands popped, or VariadicArity
	Ret   RetKind
	Fn    func(ts *ThreadState, frame *Frame, args []Value) Value
}

var (
	registryOnce sync.Once
	registry     map[Token]*Helper
)

// LookupHelper resolves a token, initializing the registry on first use.
func LookupHelper(t Token) (*Helper, bool) {
	EnsureHelpers()
	h, ok := registry[t]
	return h, ok
}

func register(t Token, name string, arity int, ret RetKind,
	fn func(ts *ThreadState, frame *Frame, args []Value) Value) {
	if _, dup := registry[t]; dup {
		panic(fmt.Sprintf("pyruntime: duplicate helper token %d", t))
	}
	registry[t] = &Helper{Token: t, Name: name, Arity: arity, Ret: ret, Fn: fn}
}

// binObj adapts an object binary helper.
func binObj(fn func(*ThreadState, Object, Object) Object) func(*ThreadState, *Frame, []Value) Value {
	return func(ts *ThreadState, _ *Frame, args []Value) Value {
		return ObjValue(fn(ts, args[0].Obj, args[1].Obj))
	}
}

// unObj adapts an object unary helper.
func unObj(fn func(*ThreadState, Object) Object) func(*ThreadState, *Frame, []Value) Value {
	return func(ts *ThreadState, _ *Frame, args []Value) Value {
		return ObjValue(fn(ts, args[0].Obj))
	}
}

func objsOf(args []Value) []Object {
	out := make([]Object, len(args))
	for i, a := range args {
		out[i] = a.Obj
	}
	return out
}

// EnsureHelpers initializes the process-wide helper registry exactly once;
// all later access is read-only.
func EnsureHelpers() {
	registryOnce.Do(func() {
		registry = make(map[Token]*Helper)

		register(TokenAdd, "add", 2, RetObject, binObj(Add))
		register(TokenSubtract, "subtract", 2, RetObject, binObj(Subtract))
		register(TokenMultiply, "multiply", 2, RetObject, binObj(Multiply))
		register(TokenTrueDivide, "true_divide", 2, RetObject, binObj(TrueDivide))
		register(TokenFloorDivide, "floor_divide", 2, RetObject, binObj(FloorDivide))
		register(TokenModulo, "modulo", 2, RetObject, binObj(Modulo))
		register(TokenPower, "power", 2, RetObject, binObj(Power))
		register(TokenLShift, "lshift", 2, RetObject, binObj(LShift))
		register(TokenRShift, "rshift", 2, RetObject, binObj(RShift))
		register(TokenBitAnd, "bit_and", 2, RetObject, binObj(BitAnd))
		register(TokenBitOr, "bit_or", 2, RetObject, binObj(BitOr))
		register(TokenBitXor, "bit_xor", 2, RetObject, binObj(BitXor))
		register(TokenSubscript, "subscript", 2, RetObject, binObj(Subscript))

		register(TokenUnaryNegative, "unary_negative", 1, RetObject, unObj(Negative))
		register(TokenUnaryPositive, "unary_positive", 1, RetObject, unObj(Positive))
		register(TokenUnaryInvert, "unary_invert", 1, RetObject, unObj(Invert))
		register(TokenUnaryNot, "unary_not", 1, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(Not(args[0].Obj))
			})

		register(TokenRichCompare, "rich_compare", 3, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(RichCompare(ts, CompareOp(args[2].Int), args[0].Obj, args[1].Obj))
			})
		register(TokenContains, "contains", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(Contains(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenIsTruthy, "is_truthy", 1, RetInt,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				if IsTruthy(args[0].Obj) {
					return IntValue(1)
				}
				return IntValue(0)
			})
		register(TokenIs, "is", 2, RetInt,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				if Is(args[0].Obj, args[1].Obj) {
					return IntValue(1)
				}
				return IntValue(0)
			})

		register(TokenStoreSubscr, "store_subscr", 3, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				// Operands arrive in push order: value, container, index.
				return IntValue(int64(StoreSubscr(ts, args[1].Obj, args[2].Obj, args[0].Obj)))
			})
		register(TokenDeleteSubscr, "delete_subscr", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(DeleteSubscr(ts, args[0].Obj, args[1].Obj)))
			})

		register(TokenGetIter, "get_iter", 1, RetObject, unObj(GetIter))
		register(TokenIterNext, "iter_next", 1, RetObject, unObj(IterNext))

		register(TokenBuildList, "build_list", VariadicArity, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(BuildList(objsOf(args)))
			})
		register(TokenBuildTuple, "build_tuple", VariadicArity, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(BuildTuple(objsOf(args)))
			})
		register(TokenBuildSet, "build_set", VariadicArity, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(BuildSet(ts, objsOf(args)))
			})
		register(TokenBuildMap, "build_map", VariadicArity, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(BuildMap(ts, objsOf(args)))
			})
		register(TokenBuildConstKeyMap, "build_const_key_map", VariadicArity, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				n := len(args) - 1
				return ObjValue(BuildConstKeyMap(ts, args[n].Obj, objsOf(args[:n])))
			})
		register(TokenBuildSlice, "build_slice", VariadicArity, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(BuildSlice(objsOf(args)))
			})
		register(TokenListAppend, "list_append", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(ListAppend(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenListExtend, "list_extend", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(ListExtend(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenSetAdd, "set_add", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(SetAdd(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenSetUpdate, "set_update", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(SetUpdate(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenMapAdd, "map_add", 3, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(MapAdd(ts, args[0].Obj, args[1].Obj, args[2].Obj)))
			})
		register(TokenDictUpdate, "dict_update", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(DictUpdate(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenDictMerge, "dict_merge", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(DictMerge(ts, args[0].Obj, args[1].Obj)))
			})
		register(TokenUnpackSequence, "unpack_sequence", 2, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(UnpackSequence(ts, args[0].Obj, int(args[1].Int)))
			})
		register(TokenTupleGet, "tuple_get", 2, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(TupleGet(args[0].Obj, int(args[1].Int)))
			})
		register(TokenUnicodeConcat, "unicode_concat", 2, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(UnicodeConcat(args[0].Obj, args[1].Obj))
			})

		register(TokenCall, "call", VariadicArity, RetObject,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(Call(ts, args[0].Obj, objsOf(args[1:])))
			})
		register(TokenLoadGlobal, "load_global", 1, RetObject,
			func(ts *ThreadState, frame *Frame, args []Value) Value {
				return ObjValue(LoadGlobal(ts, frame, args[0].Ptr.(string)))
			})
		register(TokenLoadFast, "load_fast", 2, RetObject,
			func(ts *ThreadState, frame *Frame, args []Value) Value {
				return ObjValue(LoadFast(ts, frame, int(args[0].Int), args[1].Ptr.(string)))
			})
		register(TokenStoreFast, "store_fast", 2, RetVoid,
			func(_ *ThreadState, frame *Frame, args []Value) Value {
				frame.Locals[int(args[1].Int)] = args[0].Obj
				return Value{}
			})
		register(TokenDeleteFast, "delete_fast", 2, RetInt,
			func(ts *ThreadState, frame *Frame, args []Value) Value {
				slot := int(args[0].Int)
				if frame.Locals[slot] == nil {
					name := args[1].Ptr.(string)
					ts.SetExc(TypeUnboundLocalError, fmt.Sprintf("local variable '%s' referenced before assignment", name))
					return IntValue(-1)
				}
				frame.Locals[slot] = nil
				return IntValue(0)
			})

		register(TokenRaise, "raise", 1, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				return IntValue(int64(Raise(ts, args[0].Obj)))
			})
		register(TokenReraise, "reraise", 0, RetInt,
			func(ts *ThreadState, _ *Frame, _ []Value) Value {
				return IntValue(int64(Raise(ts, nil)))
			})
		register(TokenLoadAssertionError, "load_assertion_error", 0, RetObject,
			func(_ *ThreadState, _ *Frame, _ []Value) Value {
				return ObjValue(TypeAssertionError)
			})
		register(TokenFetchExc, "fetch_exc", 0, RetObject,
			func(ts *ThreadState, _ *Frame, _ []Value) Value {
				exc := ts.FetchExc()
				if exc == nil {
					exc = &ExceptionObject{Type: TypeSystemError, Message: "error return without exception set"}
				}
				return ObjValue(exc)
			})
		register(TokenExcType, "exc_type", 1, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				if e, ok := args[0].Obj.(*ExceptionObject); ok {
					return ObjValue(e.Type)
				}
				return ObjValue(TypeException)
			})
		register(TokenExcTraceback, "exc_traceback", 1, RetObject,
			func(_ *ThreadState, _ *Frame, _ []Value) Value {
				return ObjValue(None)
			})
		register(TokenEndFinally, "end_finally", 3, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				// Operands in push order: tb, value, type. A None type
				// marks normal completion of the finally body.
				if _, ok := args[2].Obj.(*NoneObject); ok {
					return IntValue(0)
				}
				if e, ok := args[1].Obj.(*ExceptionObject); ok {
					ts.SetExcObject(e)
				} else {
					ts.SetExc(TypeSystemError, "bad exception state on finally exit")
				}
				return IntValue(-1)
			})
		register(TokenExcOccurred, "exc_occurred", 0, RetInt,
			func(ts *ThreadState, _ *Frame, _ []Value) Value {
				if ts.CurExc != nil {
					return IntValue(1)
				}
				return IntValue(0)
			})
		register(TokenZeroDivisionError, "zero_division_error", 0, RetVoid,
			func(ts *ThreadState, _ *Frame, _ []Value) Value {
				ts.SetExc(TypeZeroDivisionError, "division by zero")
				return Value{}
			})

		register(TokenBoxInt, "box_int", 1, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(NewInt(args[0].Int))
			})
		register(TokenBoxFloat, "box_float", 1, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(NewFloat(args[0].Float))
			})
		register(TokenBoxBool, "box_bool", 1, RetObject,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				return ObjValue(Bool(args[0].Int != 0))
			})
		register(TokenUnboxInt, "unbox_int", 1, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				i, ok := asInt(args[0].Obj)
				if !ok {
					ts.SetExc(TypeTypeError, fmt.Sprintf("an integer is required, not '%s'", args[0].Obj.TypeName()))
					return IntValue(0)
				}
				if !i.IsSmall() {
					ts.SetExc(TypeOverflowError, "int too large to convert to machine integer")
					return IntValue(0)
				}
				return IntValue(i.Small)
			})
		register(TokenUnboxFloat, "unbox_float", 1, RetFloat,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				f, ok := asFloat(args[0].Obj)
				if !ok {
					ts.SetExc(TypeTypeError, fmt.Sprintf("a float is required, not '%s'", args[0].Obj.TypeName()))
					return FloatValue(0)
				}
				return FloatValue(f)
			})
		register(TokenUnboxBool, "unbox_bool", 1, RetInt,
			func(_ *ThreadState, _ *Frame, args []Value) Value {
				if IsTruthy(args[0].Obj) {
					return IntValue(1)
				}
				return IntValue(0)
			})

		register(TokenIntTrueDivide, "int_true_divide", 2, RetFloat,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				if args[1].Int == 0 {
					ts.SetExc(TypeZeroDivisionError, "division by zero")
					return FloatValue(0)
				}
				return FloatValue(float64(args[0].Int) / float64(args[1].Int))
			})
		register(TokenIntFloorDivide, "int_floor_divide", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				if args[1].Int == 0 {
					ts.SetExc(TypeZeroDivisionError, "integer division or modulo by zero")
					return IntValue(0)
				}
				return IntValue(floorDivInt(args[0].Int, args[1].Int))
			})
		register(TokenIntModulo, "int_modulo", 2, RetInt,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				if args[1].Int == 0 {
					ts.SetExc(TypeZeroDivisionError, "integer division or modulo by zero")
					return IntValue(0)
				}
				return IntValue(floorModInt(args[0].Int, args[1].Int))
			})
		register(TokenFloatFloorDivide, "float_floor_divide", 2, RetFloat,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				if args[1].Float == 0 {
					ts.SetExc(TypeZeroDivisionError, "float floor division by zero")
					return FloatValue(0)
				}
				return FloatValue(floorFloat(args[0].Float, args[1].Float))
			})
		register(TokenFloatModulo, "float_modulo", 2, RetFloat,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				if args[1].Float == 0 {
					ts.SetExc(TypeZeroDivisionError, "float modulo")
					return FloatValue(0)
				}
				return FloatValue(floorModFloat(args[0].Float, args[1].Float))
			})
		register(TokenSetLasti, "set_lasti", 1, RetVoid,
			func(ts *ThreadState, _ *Frame, args []Value) Value {
				ts.Lasti = int(args[0].Int)
				return Value{}
			})
	})
}
