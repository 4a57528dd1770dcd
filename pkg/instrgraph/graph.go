// Package instrgraph connects bytecode producers to consumers through the
// analyser's source information and decides which instructions may run on
// unboxed machine values.
package instrgraph

import (
	"fmt"
	"io"
	"sort"

	"github.com/chazu/pyrite/pkg/absint"
	"github.com/chazu/pyrite/pkg/absval"
	"github.com/chazu/pyrite/pkg/pycode"
)

// Transition describes the box/unbox conversion an edge requires, derived
// from the escape decisions of its two endpoints.
type Transition uint8

const (
	NoEscape Transition = iota // boxed producer, boxed consumer
	Unbox                      // boxed producer, unboxed consumer
	Box                        // unboxed producer, boxed consumer
	Unboxed                    // unboxed producer, unboxed consumer
)

// String returns a short name for the transition.
func (t Transition) String() string {
	switch t {
	case NoEscape:
		return "no-escape"
	case Unbox:
		return "unbox"
	case Box:
		return "box"
	case Unboxed:
		return "unboxed"
	}
	return fmt.Sprintf("Transition(%d)", uint8(t))
}

// Instruction is one node of the graph: a decoded opcode plus the escape
// decision (true when the opcode will execute on unboxed machine values).
type Instruction struct {
	Index  int
	Opcode pycode.Opcode
	Oparg  uint32
	Escape bool
}

// Edge records one producer-to-consumer stack hand-off. Position is the
// slot among the consumer's operands, 0 being the bottom-most operand it
// pops. From is absint.FrameProducer for values entering through the frame.
type Edge struct {
	From       int
	To         int
	Position   int
	Kind       absval.Kind
	Source     *absint.Source
	Transition Transition
}

// Graph joins each opcode's inputs to the opcodes that produced them,
// using the analyser's per-pc stacks, then decides per instruction whether
// it can run on unboxed values and paints every edge with the conversion
// it needs.
type Graph struct {
	instructions map[int]*Instruction
	order        []int
	edges        []Edge
	code         *pycode.Code
}

// Build constructs the graph from a completed analysis. The analyser's
// sources and values are borrowed, not copied; the graph owns only its
// instructions and edges.
func Build(ai *absint.Interpreter) *Graph {
	g := &Graph{
		instructions: make(map[int]*Instruction),
		code:         ai.Code(),
	}
	for _, in := range ai.Instructions() {
		for _, si := range ai.GetStackInfo(in.Index) {
			if si.Source == nil {
				continue
			}
			pos := si.Source.ConsumedBy(in.Index)
			if pos < 0 {
				continue
			}
			kind := absval.KindAny
			if si.Value != nil {
				kind = si.Value.Kind()
			}
			g.edges = append(g.edges, Edge{
				From:     si.Source.Producer(),
				To:       in.Index,
				Position: pos,
				Kind:     kind,
				Source:   si.Source,
			})
		}
		g.instructions[in.Index] = &Instruction{Index: in.Index, Opcode: in.Op, Oparg: in.Arg}
		g.order = append(g.order, in.Index)
	}
	g.fixInstructions()
	g.deoptimizeInstructions()
	g.fixLocals()
	g.fixEdges()
	return g
}

// fixInstructions makes the first escape decision: an instruction executes
// unboxed when its opcode supports it and every inbound and outbound edge
// carries a kind with an unboxed representation.
func (g *Graph) fixInstructions() {
	for _, pc := range g.order {
		inst := g.instructions[pc]
		if !pycode.SupportsUnboxing(inst.Opcode) {
			continue
		}
		if inst.Opcode == pycode.OpLoadFast || inst.Opcode == pycode.OpStoreFast {
			continue // handled in fixLocals
		}

		escapable := true
		for _, e := range g.EdgesTo(pc) {
			if !absval.SupportsEscaping(e.Kind) {
				escapable = false
			}
		}
		if !escapable {
			continue
		}
		for _, e := range g.EdgesFrom(pc) {
			if !absval.SupportsEscaping(e.Kind) {
				escapable = false
			}
		}
		if !escapable {
			continue
		}
		inst.Escape = true
	}
}

// deoptimizeInstructions runs one refinement pass reverting escape
// decisions that cannot hold or bring no benefit. It only ever shrinks the
// escape set.
func (g *Graph) deoptimizeInstructions() {
	for _, pc := range g.order {
		inst := g.instructions[pc]
		if !inst.Escape {
			continue
		}
		edgesIn := g.EdgesTo(pc)
		edgesOut := g.EdgesFrom(pc)

		// The opcode table and the observed edges must agree on the stack
		// effect; a mismatch means the graph under-modelled this opcode.
		if inst.Opcode.StackEffect(inst.Oparg) != len(edgesOut)-len(edgesIn) {
			inst.Escape = false
			continue
		}

		// No inputs and a single boxed consumer: producing an unboxed
		// value that is immediately boxed again gains nothing.
		if len(edgesIn) == 0 && len(edgesOut) == 1 {
			if consumer := g.instructions[edgesOut[0].To]; consumer != nil && !consumer.Escape {
				inst.Escape = false
				continue
			}
		}

		// Single boxed producer and no outputs: symmetric case.
		if len(edgesIn) == 1 && len(edgesOut) == 0 {
			if producer := g.instructions[edgesIn[0].From]; producer != nil && !producer.Escape {
				inst.Escape = false
				continue
			}
		}
	}
}

// fixLocals decides which fast locals can live unboxed. Deferred: loads and
// stores of fast locals stay boxed until the driver grows typed local slots.
func (g *Graph) fixLocals() {
	for _, pc := range g.order {
		inst := g.instructions[pc]
		if inst.Opcode != pycode.OpLoadFast && inst.Opcode != pycode.OpStoreFast {
			continue
		}
		inst.Escape = false
	}
}

// fixEdges paints each edge with the conversion implied by its endpoints.
func (g *Graph) fixEdges() {
	for i := range g.edges {
		e := &g.edges[i]
		fromEscaped := false
		if from := g.instructions[e.From]; from != nil {
			fromEscaped = from.Escape
		}
		toEscaped := false
		if to := g.instructions[e.To]; to != nil {
			toEscaped = to.Escape
		}
		switch {
		case !fromEscaped && !toEscaped:
			e.Transition = NoEscape
		case !fromEscaped && toEscaped:
			e.Transition = Unbox
		case fromEscaped && !toEscaped:
			e.Transition = Box
		default:
			e.Transition = Unboxed
		}
	}
}

// InstructionAt returns the graph node for the opcode at pc.
func (g *Graph) InstructionAt(pc int) *Instruction {
	return g.instructions[pc]
}

// Escaped reports whether the opcode at pc executes on unboxed values.
func (g *Graph) Escaped(pc int) bool {
	inst := g.instructions[pc]
	return inst != nil && inst.Escape
}

// Edges returns every edge in the graph.
func (g *Graph) Edges() []Edge { return g.edges }

// EdgesTo returns the edges consumed by the opcode at pc, ordered by
// position from the bottom-most operand up.
func (g *Graph) EdgesTo(pc int) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == pc {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// EdgesFrom returns the edges produced by the opcode at pc, ordered by
// position.
func (g *Graph) EdgesFrom(pc int) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == pc {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// EdgeInto returns the edge feeding the given operand position of the
// opcode at pc, if the graph recorded one.
func (g *Graph) EdgeInto(pc, position int) (Edge, bool) {
	for _, e := range g.edges {
		if e.To == pc && e.Position == position {
			return e, true
		}
	}
	return Edge{}, false
}

// WriteDot writes the graph in Graphviz form: escaped instructions in
// blue, edges coloured by transition.
func (g *Graph) WriteDot(w io.Writer, name string) error {
	if _, err := fmt.Fprintf(w, "digraph %s {\n\tnode [shape=box];\n\tFRAME [label=FRAME];\n", name); err != nil {
		return err
	}
	for _, pc := range g.order {
		inst := g.instructions[pc]
		colour := ""
		if inst.Escape {
			colour = " color=blue"
		}
		fmt.Fprintf(w, "\tOP%d [label=\"%s (%d)\"%s];\n", pc, inst.Opcode, inst.Oparg, colour)
		if target, ok := (pycode.Instr{Index: pc, Op: inst.Opcode, Arg: inst.Oparg}).JumpTarget(); ok {
			fmt.Fprintf(w, "\tOP%d -> OP%d [label=\"Jump\" color=yellow];\n", pc, target)
		}
	}
	for _, e := range g.edges {
		label := fmt.Sprintf("%s (%s)", e.Source.Describe(), e.Kind)
		if e.From == absint.FrameProducer {
			fmt.Fprintf(w, "\tFRAME -> OP%d [label=\"%s\"];\n", e.To, label)
			continue
		}
		colour := "black"
		switch e.Transition {
		case Unbox:
			colour = "red"
		case Box:
			colour = "green"
		case Unboxed:
			colour = "purple"
		}
		fmt.Fprintf(w, "\tOP%d -> OP%d [label=\"%s -%d\" color=%s];\n", e.From, e.To, label, e.Position, colour)
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
