package pycode

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CodeUnitSize is the size in bytes of one (opcode, oparg) unit.
const CodeUnitSize = 2

// CodeFlags contains compilation flags for a code object.
type CodeFlags uint16

const (
	// CodeFlagOptimized indicates fast locals are used (no OpLoadName writes).
	CodeFlagOptimized CodeFlags = 1 << 0

	// CodeFlagNewLocals indicates the frame gets a fresh locals array.
	CodeFlagNewLocals CodeFlags = 1 << 1
)

// Code is a compiled function body: the unit of bytecode handed to the
// compiler. It mirrors the host interpreter's code object, carrying the raw
// instruction stream plus the tables the instructions index into.
type Code struct {
	Name        string   // Function name, for diagnostics
	Code        []byte   // Instruction stream, CodeUnitSize-byte units
	Consts      []any    // Constant pool
	Names       []string // Global/attribute names referenced by index
	Varnames    []string // Local variable names; first ArgCount are parameters
	ArgCount    int      // Number of positional parameters
	StackSize   int      // Interpreter-computed maximum stack depth
	Flags       CodeFlags
	FirstLineno int
}

// NLocals returns the number of local variable slots.
func (c *Code) NLocals() int {
	return len(c.Varnames)
}

// Instr is one decoded instruction. For EXTENDED_ARG sequences the
// terminating instruction carries the full accumulated oparg.
type Instr struct {
	Index int    // Byte offset of the (terminating) code unit
	Op    Opcode // Opcode at Index
	Arg   uint32 // Full oparg including any EXTENDED_ARG prefix bits
}

// InstrAt decodes the instruction whose terminating unit is at the given
// byte offset. EXTENDED_ARG prefixes before the offset are not consulted;
// use Instructions to decode with prefix accumulation.
func (c *Code) InstrAt(pc int) (Instr, error) {
	if pc < 0 || pc+CodeUnitSize > len(c.Code) || pc%CodeUnitSize != 0 {
		return Instr{}, fmt.Errorf("pycode: offset %d out of range", pc)
	}
	return Instr{Index: pc, Op: Opcode(c.Code[pc]), Arg: uint32(c.Code[pc+1])}, nil
}

// Instructions decodes the whole instruction stream, collapsing EXTENDED_ARG
// prefixes into the terminating instruction's oparg. Prefix units do not
// appear in the result.
func (c *Code) Instructions() ([]Instr, error) {
	if len(c.Code)%CodeUnitSize != 0 {
		return nil, fmt.Errorf("pycode: truncated code unit in %q", c.Name)
	}
	var out []Instr
	var prefix uint32
	for pc := 0; pc < len(c.Code); pc += CodeUnitSize {
		op := Opcode(c.Code[pc])
		arg := uint32(c.Code[pc+1])
		if !op.IsValid() {
			return nil, fmt.Errorf("pycode: unknown opcode 0x%02X at %d in %q", byte(op), pc, c.Name)
		}
		if op == OpExtendedArg {
			prefix = (prefix | arg) << 8
			continue
		}
		out = append(out, Instr{Index: pc, Op: op, Arg: prefix | arg})
		prefix = 0
	}
	if prefix != 0 {
		return nil, fmt.Errorf("pycode: dangling EXTENDED_ARG at end of %q", c.Name)
	}
	return out, nil
}

// JumpTarget resolves the branch target of a decoded jump instruction.
func (i Instr) JumpTarget() (int, bool) {
	kind, _ := i.Op.Jump()
	switch kind {
	case JumpRelative:
		return i.Index + CodeUnitSize + int(i.Arg), true
	case JumpAbsolute:
		return int(i.Arg), true
	}
	return 0, false
}

// Hash returns a stable content hash of the code object, suitable as a
// compile-cache key.
func (c *Code) Hash() string {
	h := sha256.New()
	h.Write([]byte(c.Name))
	h.Write(c.Code)
	for _, k := range c.Consts {
		fmt.Fprintf(h, "%T:%v;", k, k)
	}
	for _, n := range c.Names {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	for _, v := range c.Varnames {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	var meta [8]byte
	binary.LittleEndian.PutUint32(meta[:4], uint32(c.ArgCount))
	binary.LittleEndian.PutUint32(meta[4:], uint32(c.Flags))
	h.Write(meta[:])
	return hex.EncodeToString(h.Sum(nil)[:16])
}
