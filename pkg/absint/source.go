package absint

import (
	"fmt"
	"sort"

	"github.com/chazu/pyrite/pkg/absval"
)

// FrameProducer is the producer index recorded for values that do not
// originate from an opcode: constants, arguments, and other frame inputs.
const FrameProducer = -1

// Source is the compile-time identity of a stack slot. It connects the
// opcode that produced a value to the opcodes that consume it, across
// branches and merges. A source carries an escape bit: once any consumer
// forces a boxed representation the bit is set and never cleared.
type Source struct {
	producer  int // opcode index, or FrameProducer
	escaped   bool
	consumers map[int]int // consuming opcode index -> stack position
	what      sourceKind
	arg       int // const index, local index, or unused

	// A merge source fans out to every participant so that escape marks
	// and consumer queries reach all of them.
	parents []*Source
}

type sourceKind uint8

const (
	srcConst sourceKind = iota
	srcLocal
	srcIntermediate
	srcBuiltin
	srcMerge
)

// Arena owns every source created during one analysis and hands out
// integer-free direct pointers; dropping the arena drops all sources.
type Arena struct {
	sources []*Source
}

func (a *Arena) add(s *Source) *Source {
	a.sources = append(a.sources, s)
	return s
}

// NewConstSource records a value pushed from the constant pool by the
// load at pc.
func (a *Arena) NewConstSource(pc, constIndex int) *Source {
	return a.add(&Source{what: srcConst, producer: pc, arg: constIndex})
}

// NewLocalSource records a value read from a named local by the load at pc.
func (a *Arena) NewLocalSource(pc, localIndex int) *Source {
	return a.add(&Source{what: srcLocal, producer: pc, arg: localIndex})
}

// NewArgumentSource records a value that enters through the frame: a
// function argument bound before the first opcode runs.
func (a *Arena) NewArgumentSource(localIndex int) *Source {
	return a.add(&Source{what: srcLocal, producer: FrameProducer, arg: localIndex})
}

// NewIntermediateSource records a value produced by the opcode at pc.
func (a *Arena) NewIntermediateSource(pc int) *Source {
	return a.add(&Source{what: srcIntermediate, producer: pc})
}

// NewBuiltinSource records a value materialized from the builtin scope.
func (a *Arena) NewBuiltinSource() *Source {
	return a.add(&Source{what: srcBuiltin, producer: FrameProducer})
}

// Producer returns the opcode index that produced this value, or
// FrameProducer for frame inputs. A merge reports FrameProducer because no
// single opcode produced it.
func (s *Source) Producer() int {
	if s == nil {
		return FrameProducer
	}
	return s.producer
}

// Escaped reports whether any consumer has forced a boxed representation.
func (s *Source) Escaped() bool {
	return s != nil && s.escaped
}

// Escape marks the source, and every merge participant, as observed by a
// boxing operation.
func (s *Source) Escape() {
	if s == nil || s.escaped {
		return
	}
	s.escaped = true
	for _, p := range s.parents {
		p.Escape()
	}
}

// AddConsumer records that the opcode at pc pops this value at the given
// stack position (0 is the bottom of the operands the opcode consumes).
func (s *Source) AddConsumer(pc, position int) {
	if s == nil {
		return
	}
	if s.consumers == nil {
		s.consumers = make(map[int]int)
	}
	s.consumers[pc] = position
	for _, p := range s.parents {
		p.AddConsumer(pc, position)
	}
}

// ConsumedBy returns the stack position this value occupies among the
// operands of the opcode at pc, or -1 if pc does not consume it.
func (s *Source) ConsumedBy(pc int) int {
	if s == nil {
		return -1
	}
	if pos, ok := s.consumers[pc]; ok {
		return pos
	}
	return -1
}

// Describe returns a short label for diagnostics and graph dumps.
func (s *Source) Describe() string {
	if s == nil {
		return "synthesized"
	}
	switch s.what {
	case srcConst:
		return fmt.Sprintf("const[%d]", s.arg)
	case srcLocal:
		return fmt.Sprintf("local[%d]", s.arg)
	case srcIntermediate:
		return fmt.Sprintf("op[%d]", s.producer)
	case srcBuiltin:
		return "builtin"
	case srcMerge:
		return fmt.Sprintf("merge(%d)", len(s.parents))
	}
	return "?"
}

// MergeSources joins two sources at a control-flow merge. The result
// records both participants; consumer registrations and escape marks fan
// out to all of them. Merging a source with itself, or with nil, is the
// identity.
func (a *Arena) MergeSources(x, y *Source) *Source {
	if x == y || y == nil {
		return x
	}
	if x == nil {
		return y
	}
	parents := mergeParents(x, y)
	m := &Source{
		what:     srcMerge,
		producer: FrameProducer,
		escaped:  x.escaped || y.escaped,
		parents:  parents,
	}
	// An escape observed on either side binds the whole merge.
	if m.escaped {
		for _, p := range parents {
			p.Escape()
		}
	}
	return a.add(m)
}

func mergeParents(x, y *Source) []*Source {
	seen := make(map[*Source]bool)
	var out []*Source
	collect := func(s *Source) {
		if s.what == srcMerge {
			for _, p := range s.parents {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
			return
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	collect(x)
	collect(y)
	sort.Slice(out, func(i, j int) bool { return out[i].producer < out[j].producer })
	return out
}

// ValueWithSource pairs an abstract value with the identity of the stack
// slot holding it. Value is never nil; Source may be nil only for
// synthesized pushes that are never observed downstream.
type ValueWithSource struct {
	Value  *absval.AbstractValue
	Source *Source
}

// Merge joins two stack slots at a control-flow merge point.
func (v ValueWithSource) Merge(other ValueWithSource, arena *Arena) ValueWithSource {
	return ValueWithSource{
		Value:  absval.Merge(v.Value, other.Value),
		Source: arena.MergeSources(v.Source, other.Source),
	}
}

// Equal reports whether two slots agree in both value and source identity.
func (v ValueWithSource) Equal(other ValueWithSource) bool {
	return v.Value == other.Value && v.Source == other.Source
}
