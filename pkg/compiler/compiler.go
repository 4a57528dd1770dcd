package compiler

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/pyrite/pkg/absint"
	"github.com/chazu/pyrite/pkg/absval"
	"github.com/chazu/pyrite/pkg/ilgen"
	"github.com/chazu/pyrite/pkg/instrgraph"
	"github.com/chazu/pyrite/pkg/pycode"
	"github.com/chazu/pyrite/pkg/pyruntime"
)

var log = commonlog.GetLogger("pyrite.compiler")

// ErrBudgetExceeded is returned when the code object is larger than the
// configured compile budget; the host falls back to interpreting.
var ErrBudgetExceeded = errors.New("compiler: compile budget exceeded")

// Options bound a compile run.
type Options struct {
	// OpcodeBudget aborts compilation of functions with more decoded
	// instructions than this; zero means the default.
	OpcodeBudget int
	// ILBudget bounds the emitted IL size; zero means the default.
	ILBudget int
	// DisableUnboxing forces every operation onto the boxed path,
	// ignoring the instruction graph's escape decisions.
	DisableUnboxing bool
	// Backend lowers the IL; nil selects the stock evaluating backend.
	Backend ilgen.Backend
}

const (
	defaultOpcodeBudget = 4096
	defaultILBudget     = 65536
)

// CompiledFunction packages a successful compile: the executable method
// plus the code object it was built from.
type CompiledFunction struct {
	Code   *pycode.Code
	Method *ilgen.JITMethod

	// OpcodeCount and ILCount size the compile; EscapedPCs lists the
	// opcodes that run on unboxed values. Recorded for the artifact cache.
	OpcodeCount int
	ILCount     int
	EscapedPCs  []int
}

// Invoke runs the compiled function with positional arguments, returning
// the result or the raised exception as an error.
func (f *CompiledFunction) Invoke(args ...pyruntime.Object) (pyruntime.Object, error) {
	if len(args) != f.Code.ArgCount {
		return nil, fmt.Errorf("compiler: %q takes %d arguments, got %d", f.Code.Name, f.Code.ArgCount, len(args))
	}
	frame := pyruntime.NewFrame(f.Code.NLocals())
	copy(frame.Locals, args)
	ts := &pyruntime.ThreadState{}
	result := f.Method.EntryPoint()(frame, ts)
	if result == nil {
		exc := ts.FetchExc()
		if exc == nil {
			exc = &pyruntime.ExceptionObject{Type: pyruntime.TypeSystemError, Message: "null result without exception"}
		}
		return nil, exc
	}
	return result, nil
}

// Compile analyses a code object and translates it to an executable
// method. Malformed bytecode and budget overruns return an error and no
// method; the host interprets instead.
func Compile(code *pycode.Code, opts Options) (*CompiledFunction, error) {
	pyruntime.EnsureHelpers()
	if opts.OpcodeBudget == 0 {
		opts.OpcodeBudget = defaultOpcodeBudget
	}
	if opts.ILBudget == 0 {
		opts.ILBudget = defaultILBudget
	}
	if opts.Backend == nil {
		opts.Backend = &ilgen.EvalBackend{}
	}

	ai, err := absint.New(code)
	if err != nil {
		return nil, err
	}
	if len(ai.Instructions()) > opts.OpcodeBudget {
		return nil, fmt.Errorf("%w: %d opcodes", ErrBudgetExceeded, len(ai.Instructions()))
	}
	if err := ai.Interpret(); err != nil {
		return nil, err
	}
	graph := instrgraph.Build(ai)

	c := &Compiler{
		code:        code,
		ai:          ai,
		graph:       graph,
		noUnbox:     opts.DisableUnboxing,
		gen:         ilgen.NewGenerator(ilgen.LKObject),
		offsetLbls:  make(map[int]ilgen.Label),
		offsetStack: make(map[int][]StackKind),
		seqLocals:   make(map[int]ilgen.Local),
		constCache:  make([]pyruntime.Object, len(code.Consts)),
	}
	for i, k := range code.Consts {
		obj, err := constObject(k)
		if err != nil {
			return nil, fmt.Errorf("compiler: %q: %w", code.Name, err)
		}
		c.constCache[i] = obj
	}
	if err := c.emitBody(); err != nil {
		return nil, err
	}

	info := &ilgen.JitInfo{Module: "pyrite", Name: code.Name}
	method, err := c.gen.Compile(info, opts.Backend, opts.ILBudget)
	if err != nil {
		return nil, err
	}
	log.Debugf("compiled %q: %d opcodes, %d IL instructions, %d call sites",
		code.Name, len(ai.Instructions()), c.gen.ILLen(), len(method.CallSites))
	fn := &CompiledFunction{
		Code:        code,
		Method:      method,
		OpcodeCount: len(ai.Instructions()),
		ILCount:     c.gen.ILLen(),
	}
	for _, in := range ai.Instructions() {
		if !opts.DisableUnboxing && graph.Escaped(in.Index) {
			fn.EscapedPCs = append(fn.EscapedPCs, in.Index)
		}
	}
	return fn, nil
}

// Compiler drives IL emission for one code object. It mirrors the
// interpreter's runtime structures at compile time: a shadow value stack
// tagged with representations, and a block stack of protected regions.
type Compiler struct {
	code  *pycode.Code
	ai    *absint.Interpreter
	graph *instrgraph.Graph
	gen   ilgen.Generator

	shadow      []StackKind
	offsetLbls  map[int]ilgen.Label
	offsetStack map[int][]StackKind // saved shadow per branch target
	blockStack  []BlockInfo

	rootHandler *ExceptionHandler
	handlers    []*ExceptionHandler
	spillLocals []ilgen.Local

	retLabel ilgen.Label
	retValue ilgen.Local
	excTmp   ilgen.Local

	seqLocals map[int]ilgen.Local // unpack buffer per element count
	tmpObj    []ilgen.Local       // scratch pool for stack juggling

	constCache []pyruntime.Object
	noUnbox    bool
	terminated bool // previous opcode never falls through
}

// mustCall converts EmitCall registration failures into panics: a token
// missing from the registry is a programming error, not bad input.
func (c *Compiler) mustCall(err error) {
	if err != nil {
		panic(err)
	}
}

// offsetLabel returns (allocating on demand) the label bound at a
// bytecode offset.
func (c *Compiler) offsetLabel(offset int) ilgen.Label {
	if l, ok := c.offsetLbls[offset]; ok {
		return l
	}
	l := c.gen.DefineLabel()
	c.offsetLbls[offset] = l
	return l
}

// tempObj hands out scratch object locals for stack juggling; index n is
// stable within one juggle.
func (c *Compiler) tempObj(n int) ilgen.Local {
	for len(c.tmpObj) <= n {
		c.tmpObj = append(c.tmpObj, c.gen.DefineLocal(ilgen.LocalType{Kind: ilgen.LKObject}))
	}
	return c.tmpObj[n]
}

// push and pop maintain the compile-time shadow stack.
func (c *Compiler) push(k StackKind) { c.shadow = append(c.shadow, k) }
func (c *Compiler) pop() StackKind {
	k := c.shadow[len(c.shadow)-1]
	c.shadow = c.shadow[:len(c.shadow)-1]
	return k
}
func (c *Compiler) popN(n int) {
	c.shadow = c.shadow[:len(c.shadow)-n]
}
func (c *Compiler) peek(n int) StackKind {
	return c.shadow[len(c.shadow)-1-n]
}

// saveBranchState records the shadow stack an emitted branch carries to a
// target offset, verifying consistency with any earlier branch there.
func (c *Compiler) saveBranchState(offset int, shadow []StackKind) error {
	snapshot := append([]StackKind{}, shadow...)
	if existing, ok := c.offsetStack[offset]; ok {
		if len(existing) != len(snapshot) {
			return fmt.Errorf("compiler: branch to %d with depth %d, previously %d in %q",
				offset, len(snapshot), len(existing), c.code.Name)
		}
		return nil
	}
	c.offsetStack[offset] = snapshot
	return nil
}

// errorCheck guards an object-producing helper result on TOS: a nil result
// raises through the current handler. The shadow stack is unchanged; the
// result stays for the normal path.
func (c *Compiler) errorCheck() {
	noErr := c.gen.DefineLabel()
	c.gen.Dup()
	c.gen.LdNull()
	c.gen.Branch(ilgen.BranchNotEqual, noErr)
	c.gen.Pop()
	saved := c.pop() // the nil result is gone on the error path
	c.branchRaise()
	c.push(saved)
	c.gen.MarkLabel(noErr)
}

// intErrorCheck consumes an int status on TOS, raising when it is -1.
func (c *Compiler) intErrorCheck() {
	ok := c.gen.DefineLabel()
	c.gen.LdI4(-1)
	c.gen.Branch(ilgen.BranchNotEqual, ok)
	c.branchRaise()
	c.gen.MarkLabel(ok)
}

// excOccurredCheck raises when the thread state holds a pending
// exception; used after unbox conversions whose scalar result cannot
// signal failure.
func (c *Compiler) excOccurredCheck() {
	ok := c.gen.DefineLabel()
	c.mustCall(c.gen.EmitCall(pyruntime.TokenExcOccurred))
	c.gen.LdI4(0)
	c.gen.Branch(ilgen.BranchEqual, ok)
	c.branchRaise()
	c.gen.MarkLabel(ok)
}

// boxTOS converts the machine value on TOS to its boxed object.
func (c *Compiler) boxTOS(k StackKind) {
	switch k {
	case StackKindInt:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenBoxInt))
	case StackKindFloat:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenBoxFloat))
	case StackKindBool:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenBoxBool))
	}
}

// unboxTOS emits the conversion call turning the boxed object on TOS into
// the machine kind the instruction graph assigned to the edge. It reports
// whether the conversion can fail (the caller checks the thread state once
// the stack is reconciled).
func (c *Compiler) unboxTOS(want StackKind) bool {
	switch want {
	case StackKindInt:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenUnboxInt))
		return true
	case StackKindFloat:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenUnboxFloat))
		return true
	default:
		c.mustCall(c.gen.EmitCall(pyruntime.TokenUnboxBool))
		return false
	}
}

// prepareBoxed ensures the top count shadow entries are boxed objects,
// juggling through scratch locals when a deeper entry needs conversion.
func (c *Compiler) prepareBoxed(count int) {
	needs := false
	for i := 0; i < count; i++ {
		if c.peek(i).IsValue() {
			needs = true
		}
	}
	if !needs {
		return
	}
	// Pop each operand, boxing as it surfaces, then restore in order.
	for i := 0; i < count; i++ {
		k := c.pop()
		if k.IsValue() {
			c.boxTOS(k)
		}
		c.gen.StLoc(c.tempObj(i))
	}
	for i := count - 1; i >= 0; i-- {
		c.gen.LdLoc(c.tempObj(i))
		c.push(StackKindObject)
	}
}

// operandKinds reads the machine kinds the instruction graph assigned to
// the top count operands of the opcode at pc, top of stack first.
func (c *Compiler) operandKinds(pc, count int) []StackKind {
	wants := make([]StackKind, count)
	for i := 0; i < count; i++ {
		// Shadow entries run top-down; edge positions run bottom-up.
		pos := count - 1 - i
		if e, ok := c.graph.EdgeInto(pc, pos); ok {
			wants[i] = kindForEdge(e)
		} else if cur := c.peek(i); cur != StackKindObject {
			wants[i] = cur
		} else {
			wants[i] = StackKindInt
		}
	}
	return wants
}

// prepareUnboxedAs ensures the top count entries carry the given machine
// kinds (top of stack first), unboxing objects and widening ints to
// floats where asked.
func (c *Compiler) prepareUnboxedAs(wants []StackKind) {
	count := len(wants)
	needs := false
	for i := 0; i < count; i++ {
		cur := c.peek(i)
		if cur == StackKindObject ||
			(wants[i] == StackKindFloat && cur != StackKindFloat) {
			needs = true
		}
	}
	if !needs {
		// Relabel bool/int entries without emission.
		for i := 0; i < count; i++ {
			c.shadow[len(c.shadow)-1-i] = wants[i]
		}
		return
	}
	fallible := false
	for i := 0; i < count; i++ {
		cur := c.pop()
		switch {
		case cur == StackKindObject:
			if c.unboxTOS(wants[i]) {
				fallible = true
			}
		case wants[i] == StackKindFloat && cur != StackKindFloat:
			c.gen.ConvR8()
		}
		c.gen.StLoc(c.tempObj(i))
	}
	// The operands are parked in temps; the stack matches the shadow, so
	// a failed conversion can raise here.
	if fallible {
		c.excOccurredCheck()
	}
	for i := count - 1; i >= 0; i-- {
		c.gen.LdLoc(c.tempObj(i))
		c.push(wants[i])
	}
}

// canonicalize boxes every machine entry below the top keep entries, so
// that control-flow merges always meet an all-object stack. The kept
// entries are restored untouched.
func (c *Compiler) canonicalize(keep int) {
	needs := false
	for i := 0; i < len(c.shadow)-keep; i++ {
		if c.shadow[i].IsValue() {
			needs = true
		}
	}
	if !needs {
		return
	}
	kept := make([]StackKind, keep)
	for i := 0; i < keep; i++ {
		kept[i] = c.pop()
		c.gen.StLoc(c.tempObj(i))
	}
	rest := len(c.shadow)
	for i := 0; i < rest; i++ {
		k := c.pop()
		if k.IsValue() {
			c.boxTOS(k)
		}
		c.gen.StLoc(c.tempObj(keep + i))
	}
	for i := rest - 1; i >= 0; i-- {
		c.gen.LdLoc(c.tempObj(keep + i))
		c.push(StackKindObject)
	}
	for i := keep - 1; i >= 0; i-- {
		c.gen.LdLoc(c.tempObj(i))
		c.push(kept[i])
	}
}

func kindForEdge(e instrgraph.Edge) StackKind {
	switch e.Kind {
	case absval.KindFloat:
		return StackKindFloat
	case absval.KindBool:
		return StackKindBool
	default:
		return StackKindInt
	}
}

// constObject boxes a constant-pool entry once per compile.
func constObject(v any) (pyruntime.Object, error) {
	switch k := v.(type) {
	case nil:
		return pyruntime.None, nil
	case bool:
		return pyruntime.Bool(k), nil
	case int:
		return pyruntime.NewInt(int64(k)), nil
	case int64:
		return pyruntime.NewInt(k), nil
	case uint64:
		return pyruntime.NewInt(int64(k)), nil
	case float64:
		return pyruntime.NewFloat(k), nil
	case string:
		return pyruntime.NewStr(k), nil
	case []byte:
		return pyruntime.NewBytes(k), nil
	case []any:
		items := make([]pyruntime.Object, len(k))
		for i, elem := range k {
			obj, err := constObject(elem)
			if err != nil {
				return nil, err
			}
			items[i] = obj
		}
		return pyruntime.NewTuple(items), nil
	}
	return nil, fmt.Errorf("unsupported constant type %T", v)
}
