package absint

import (
	"errors"

	"github.com/chazu/pyrite/pkg/absval"
)

// ErrStackDepthMismatch is returned when two states merging into the same
// opcode index disagree on stack depth; the bytecode is malformed.
var ErrStackDepthMismatch = errors.New("absint: stack depth mismatch at merge")

// LocalInfo tracks one local variable slot within a state. Each local has a
// known abstract type plus a flag for whether the slot may be unbound.
//
// The four reachable states:
//
//	kind != Undefined, !MaybeUndefined — definitely assigned, type known
//	kind == Any,       !MaybeUndefined — definitely assigned, type unknown
//	kind != Undefined, MaybeUndefined  — assigned on some paths only
//	kind == Undefined, MaybeUndefined  — definitely unassigned
//
// kind == Undefined with MaybeUndefined false is an invariant violation:
// the Undefined type must not leak into an assigned slot.
type LocalInfo struct {
	ValueInfo      ValueWithSource
	MaybeUndefined bool
}

// UndefinedLocal returns the state of a slot before any assignment.
func UndefinedLocal() LocalInfo {
	return LocalInfo{
		ValueInfo:      ValueWithSource{Value: absval.Undefined},
		MaybeUndefined: true,
	}
}

// Merge joins two local slots pointwise.
func (l LocalInfo) Merge(other LocalInfo, arena *Arena) LocalInfo {
	return LocalInfo{
		ValueInfo:      l.ValueInfo.Merge(other.ValueInfo, arena),
		MaybeUndefined: l.MaybeUndefined || other.MaybeUndefined,
	}
}

// Equal reports whether two local slots are indistinguishable.
func (l LocalInfo) Equal(other LocalInfo) bool {
	return l.ValueInfo.Equal(other.ValueInfo) && l.MaybeUndefined == other.MaybeUndefined
}

// State captures the analyser's knowledge at one opcode index: the operand
// stack of source-tracked values and a copy-on-write snapshot of the locals.
// The stack is unique per state; the locals spine is shared between states
// until written.
type State struct {
	stack  []ValueWithSource
	locals CowVector[LocalInfo]
}

// NewState returns a state with an empty stack and numLocals unbound locals.
func NewState(numLocals int) State {
	s := State{locals: NewCowVector[LocalInfo](numLocals)}
	for i := 0; i < numLocals; i++ {
		s.locals.Replace(i, UndefinedLocal())
	}
	return s
}

// Clone returns an independent state: the stack is copied, the locals spine
// is shared copy-on-write.
func (s State) Clone() State {
	stack := make([]ValueWithSource, len(s.stack))
	copy(stack, s.stack)
	return State{stack: stack, locals: s.locals.Clone()}
}

// StackSize returns the current operand stack depth.
func (s *State) StackSize() int { return len(s.stack) }

// Stack returns the operand stack, bottom first.
func (s *State) Stack() []ValueWithSource { return s.stack }

// Push places a source-tracked value on the stack.
func (s *State) Push(v ValueWithSource) {
	s.stack = append(s.stack, v)
}

// PushValue places a value with no source on the stack; only for
// synthesized entries that no downstream pass observes.
func (s *State) PushValue(v *absval.AbstractValue) {
	s.stack = append(s.stack, ValueWithSource{Value: v})
}

// Pop removes the top of stack, marking its source as escaped: the default
// assumption is that the consumer requires a boxed value.
func (s *State) Pop() ValueWithSource {
	v := s.PopNoEscape()
	v.Source.Escape()
	return v
}

// PopNoEscape removes the top of stack without setting the escape bit; used
// when the consuming opcode is in the unboxing whitelist.
func (s *State) PopNoEscape() ValueWithSource {
	n := len(s.stack)
	v := s.stack[n-1]
	s.stack = s.stack[:n-1]
	return v
}

// Peek returns the value n slots down from the top without popping (n=0 is
// the top of stack).
func (s *State) Peek(n int) ValueWithSource {
	return s.stack[len(s.stack)-1-n]
}

// LocalCount returns the number of local slots.
func (s *State) LocalCount() int { return s.locals.Len() }

// Local returns the state of local slot i.
func (s *State) Local(i int) LocalInfo { return s.locals.At(i) }

// ReplaceLocal updates local slot i, copying the shared spine if needed.
func (s *State) ReplaceLocal(i int, info LocalInfo) {
	s.locals.Replace(i, info)
}

// Merge folds other into s. It returns whether s changed, or an error if
// the stacks disagree in depth.
func (s *State) Merge(other *State, arena *Arena) (bool, error) {
	if len(s.stack) != len(other.stack) {
		return false, ErrStackDepthMismatch
	}
	changed := false
	for i := range s.stack {
		merged := s.stack[i].Merge(other.stack[i], arena)
		if !merged.Equal(s.stack[i]) {
			s.stack[i] = merged
			changed = true
		}
	}
	for i := 0; i < s.locals.Len(); i++ {
		merged := s.locals.At(i).Merge(other.locals.At(i), arena)
		if !merged.Equal(s.locals.At(i)) {
			s.locals.Replace(i, merged)
			changed = true
		}
	}
	return changed, nil
}
