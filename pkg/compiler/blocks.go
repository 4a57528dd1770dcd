package compiler

import (
	"github.com/chazu/pyrite/pkg/ilgen"
	"github.com/chazu/pyrite/pkg/pyruntime"
)

// StackKind tags one compile-time shadow stack entry: whether the emitted
// code holds a refcount-bearing object there or a machine-typed value.
type StackKind uint8

const (
	StackKindObject StackKind = iota
	StackKindInt
	StackKindFloat
	StackKindBool
)

// IsValue reports whether the entry is machine-typed.
func (k StackKind) IsValue() bool { return k != StackKindObject }

// BlockKind classifies the compile-time block stack entries.
type BlockKind uint8

const (
	BlockLoop    BlockKind = iota
	BlockTry               // between SETUP_EXCEPT/SETUP_FINALLY and POP_BLOCK
	BlockHandler           // handler body, after POP_BLOCK transforms the try
)

// BlockInfo mirrors one entry of the interpreter's runtime block stack at
// compile time. Blocks are pushed entering a loop or protected region and
// popped on POP_BLOCK; popping a try transforms it into its handler block
// so the handler body is emitted under the right region.
type BlockInfo struct {
	Kind           BlockKind
	EndOffset      int
	ContinueOffset int
	EntryDepth     int // shadow stack depth when the block was entered
	Handler        *ExceptionHandler
	IsFinally      bool
}

// handlerState tracks the emission-time lifecycle of a protected region.
type handlerState uint8

const (
	handlerInactive handlerState = iota
	handlerTryBody
	handlerInHandler
	handlerPostHandler
)

// ExceptionHandler owns the raise-and-free label chain for one protected
// region. Handlers form a tree rooted at the function-level handler; a
// raise anywhere branches into the innermost handler's chain at the label
// matching the number of live object entries to release.
type ExceptionHandler struct {
	Parent       *ExceptionHandler
	TargetOffset int // bytecode offset of the handler body; -1 for the root
	EntryDepth   int // shadow depth at the matching SETUP opcode
	IsFinally    bool

	state    handlerState
	rfLabels []ilgen.Label // raise-and-free entry per spill depth
	maxSpill int
}

// raiseAndFreeLabel returns the chain entry that releases depth spilled
// objects, allocating labels up to that depth on first use.
func (h *ExceptionHandler) raiseAndFreeLabel(gen ilgen.Generator, depth int) ilgen.Label {
	for len(h.rfLabels) <= depth {
		h.rfLabels = append(h.rfLabels, gen.DefineLabel())
	}
	if depth > h.maxSpill {
		h.maxSpill = depth
	}
	return h.rfLabels[depth]
}

// currentHandler returns the innermost active protected region's handler,
// or the function-level root. Handler bodies raise into their parent, so
// only BlockTry entries bind a handler here.
func (c *Compiler) currentHandler() *ExceptionHandler {
	for i := len(c.blockStack) - 1; i >= 0; i-- {
		if c.blockStack[i].Kind == BlockTry {
			return c.blockStack[i].Handler
		}
	}
	return c.rootHandler
}

// innermostLoop returns the index of the innermost loop block, or -1.
func (c *Compiler) innermostLoop() int {
	for i := len(c.blockStack) - 1; i >= 0; i-- {
		if c.blockStack[i].Kind == BlockLoop {
			return i
		}
	}
	return -1
}

// ensureSpillLocals grows the shared spill local pool to hold count
// objects.
func (c *Compiler) ensureSpillLocals(count int) {
	for len(c.spillLocals) < count {
		c.spillLocals = append(c.spillLocals, c.gen.DefineLocal(ilgen.LocalType{Kind: ilgen.LKObject}))
	}
}

// branchRaise emits the raise path for the current emission point: spill
// every live object entry above the active handler's entry depth into
// numbered locals (machine entries are simply popped), then branch into
// the handler's raise-and-free chain at the matching depth. The shadow
// stack itself is not mutated; the emitted code runs only on the error
// path.
func (c *Compiler) branchRaise() {
	h := c.currentHandler()
	live := len(c.shadow) - h.EntryDepth
	if live < 0 {
		live = 0
	}
	objs := 0
	for i := 0; i < live; i++ {
		entry := c.shadow[len(c.shadow)-1-i]
		if entry.IsValue() {
			c.gen.Pop()
			continue
		}
		c.ensureSpillLocals(objs + 1)
		c.gen.StLoc(c.spillLocals[objs])
		objs++
	}
	c.gen.Branch(ilgen.BranchAlways, h.raiseAndFreeLabel(c.gen, objs))
}

// emitRaiseAndFreeChains emits, after the main body, every handler's
// raise-and-free tail: a falling chain that releases the spilled objects
// one per depth, then either rebuilds the exception triple and enters the
// handler body, or, for the function-level handler, returns the error
// sentinel through the epilogue.
func (c *Compiler) emitRaiseAndFreeChains() {
	for _, h := range c.handlers {
		if len(h.rfLabels) == 0 {
			continue
		}
		for d := h.maxSpill; d >= 1; d-- {
			c.gen.MarkLabel(h.rfLabels[d])
			c.gen.LdNull()
			c.gen.StLoc(c.spillLocals[d-1])
		}
		c.gen.MarkLabel(h.rfLabels[0])
		if h.TargetOffset < 0 {
			// Function-level: return nil with the exception pending.
			c.gen.LdNull()
			c.gen.StLoc(c.retValue)
			c.gen.Branch(ilgen.BranchAlways, c.retLabel)
			continue
		}
		// Rebuild the exception triple (traceback, value, type) and
		// enter the handler body.
		c.mustCall(c.gen.EmitCall(pyruntime.TokenFetchExc))
		c.gen.StLoc(c.excTmp)
		c.gen.LdLoc(c.excTmp)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenExcTraceback))
		c.gen.LdLoc(c.excTmp)
		c.gen.LdLoc(c.excTmp)
		c.mustCall(c.gen.EmitCall(pyruntime.TokenExcType))
		c.gen.Branch(ilgen.BranchAlways, c.offsetLabel(h.TargetOffset))
	}
}
