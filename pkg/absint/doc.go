// Package absint performs abstract interpretation of bytecode: a forward
// dataflow analysis that infers, for every reachable opcode, the abstract
// types on the operand stack and in the locals before that opcode runs.
//
// The analysis tracks where each stack slot came from (its source) so that
// later passes can connect producers to consumers across branches, and it
// precomputes the block structure (loop spans, handler targets, break
// targets) the IL driver mirrors at emission time.
package absint
