package pycode

import "fmt"

// Assembler builds code objects one instruction at a time. It is the
// test and tooling counterpart of the host interpreter's code emitter:
// offsets are byte offsets, and opargs wider than a byte are split into
// EXTENDED_ARG prefixes automatically.
type Assembler struct {
	code     []byte
	consts   []any
	names    []string
	varnames []string
	argCount int
	name     string

	patches []patch
	labels  map[string]int
}

type patch struct {
	pc       int    // offset of the terminating unit to patch
	label    string // target label
	relative bool
}

// NewAssembler creates an assembler for a function with the given name.
func NewAssembler(name string) *Assembler {
	return &Assembler{name: name, labels: make(map[string]int)}
}

// Local registers a local variable and returns its slot. Registering the
// same name twice returns the existing slot.
func (a *Assembler) Local(name string) uint32 {
	for i, v := range a.varnames {
		if v == name {
			return uint32(i)
		}
	}
	a.varnames = append(a.varnames, name)
	return uint32(len(a.varnames) - 1)
}

// Param registers a parameter. Parameters must be registered before any
// plain locals.
func (a *Assembler) Param(name string) uint32 {
	slot := a.Local(name)
	a.argCount++
	return slot
}

// Const adds a constant to the pool and returns its index. Comparable
// duplicates are pooled.
func (a *Assembler) Const(v any) uint32 {
	for i, k := range a.consts {
		if sameConst(k, v) {
			return uint32(i)
		}
	}
	a.consts = append(a.consts, v)
	return uint32(len(a.consts) - 1)
}

func sameConst(a, b any) bool {
	switch a.(type) {
	case []any, []byte, map[string]any:
		return false
	}
	switch b.(type) {
	case []any, []byte, map[string]any:
		return false
	}
	return a == b
}

// Name adds a global name to the name table and returns its index.
func (a *Assembler) Name(n string) uint32 {
	for i, existing := range a.names {
		if existing == n {
			return uint32(i)
		}
	}
	a.names = append(a.names, n)
	return uint32(len(a.names) - 1)
}

// Offset returns the byte offset the next instruction will occupy.
func (a *Assembler) Offset() int {
	return len(a.code)
}

// Emit appends an instruction, splitting wide opargs into EXTENDED_ARG
// prefixes. It returns the byte offset of the terminating unit.
func (a *Assembler) Emit(op Opcode, arg uint32) int {
	if arg > 0xFFFFFF {
		a.code = append(a.code, byte(OpExtendedArg), byte(arg>>24))
	}
	if arg > 0xFFFF {
		a.code = append(a.code, byte(OpExtendedArg), byte(arg>>16))
	}
	if arg > 0xFF {
		a.code = append(a.code, byte(OpExtendedArg), byte(arg>>8))
	}
	pc := len(a.code)
	a.code = append(a.code, byte(op), byte(arg))
	return pc
}

// Op emits an instruction with a zero oparg.
func (a *Assembler) Op(op Opcode) int {
	return a.Emit(op, 0)
}

// Label binds a name to the current offset. Forward references emitted with
// Jump are patched when Assemble runs.
func (a *Assembler) Label(name string) {
	a.labels[name] = len(a.code)
}

// Jump emits a branch to a label, resolved at Assemble time. Wide targets
// are not supported through labels; hand-emit EXTENDED_ARG for those.
func (a *Assembler) Jump(op Opcode, label string) int {
	kind, _ := op.Jump()
	if kind == JumpNone {
		panic(fmt.Sprintf("pycode: %v is not a jump", op))
	}
	pc := a.Emit(op, 0)
	a.patches = append(a.patches, patch{pc: pc, label: label, relative: kind == JumpRelative})
	return pc
}

// Assemble resolves labels and returns the finished code object.
func (a *Assembler) Assemble() (*Code, error) {
	for _, p := range a.patches {
		target, ok := a.labels[p.label]
		if !ok {
			return nil, fmt.Errorf("pycode: undefined label %q", p.label)
		}
		arg := target
		if p.relative {
			arg = target - p.pc - CodeUnitSize
			if arg < 0 {
				return nil, fmt.Errorf("pycode: backward relative jump to %q", p.label)
			}
		}
		if arg > 0xFF {
			return nil, fmt.Errorf("pycode: label %q target %d does not fit in one byte", p.label, arg)
		}
		a.code[p.pc+1] = byte(arg)
	}
	return &Code{
		Name:     a.name,
		Code:     a.code,
		Consts:   a.consts,
		Names:    a.names,
		Varnames: a.varnames,
		ArgCount: a.argCount,
		Flags:    CodeFlagOptimized | CodeFlagNewLocals,
	}, nil
}

// MustAssemble is Assemble for tests and fixtures with known-good input.
func (a *Assembler) MustAssemble() *Code {
	c, err := a.Assemble()
	if err != nil {
		panic(err)
	}
	return c
}
