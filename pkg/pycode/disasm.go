package pycode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the code object.
func (c *Code) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&CodeFlagOptimized != 0 {
		sb.WriteString(" [OPTIMIZED]")
	}
	if c.Flags&CodeFlagNewLocals != 0 {
		sb.WriteString(" [NEWLOCALS]")
	}
	sb.WriteString("\n")

	if c.ArgCount > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): ", c.ArgCount))
		for i := 0; i < c.ArgCount && i < len(c.Varnames); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Varnames[i])
		}
		sb.WriteString("\n")
	}
	if n := c.NLocals(); n > 0 {
		sb.WriteString(fmt.Sprintf("; Locals: %d slots\n", n))
	}

	instrs, err := c.Instructions()
	if err != nil {
		sb.WriteString(fmt.Sprintf("; <malformed: %v>\n", err))
		return sb.String()
	}

	targets := make(map[int]bool)
	for _, in := range instrs {
		if t, ok := in.JumpTarget(); ok {
			targets[t] = true
		}
	}

	for _, in := range instrs {
		mark := "  "
		if targets[in.Index] {
			mark = ">>"
		}
		sb.WriteString(fmt.Sprintf("%s %4d  %-22s", mark, in.Index, in.Op.String()))
		if in.Op.HasArg() {
			sb.WriteString(fmt.Sprintf(" %-6d", in.Arg))
			if note := c.argNote(in); note != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", note))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c *Code) argNote(in Instr) string {
	switch in.Op {
	case OpLoadConst:
		if int(in.Arg) < len(c.Consts) {
			return fmt.Sprintf("%#v", c.Consts[in.Arg])
		}
	case OpLoadFast, OpStoreFast, OpDeleteFast:
		if int(in.Arg) < len(c.Varnames) {
			return c.Varnames[in.Arg]
		}
	case OpLoadGlobal, OpLoadName:
		if int(in.Arg) < len(c.Names) {
			return c.Names[in.Arg]
		}
	case OpCompareOp:
		return Compare(in.Arg).String()
	case OpJumpForward, OpForIter, OpSetupLoop, OpSetupExcept, OpSetupFinally:
		if t, ok := in.JumpTarget(); ok {
			return fmt.Sprintf("to %d", t)
		}
	}
	return ""
}
