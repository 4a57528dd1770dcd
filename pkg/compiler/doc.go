// Package compiler translates analysed bytecode into IL and packages the
// lowered result. The driver walks opcodes in order, mirroring the
// interpreter's block stack at compile time, choosing boxed or unboxed
// operand strategies from the instruction graph, and wiring every fallible
// operation to the active exception handler's raise-and-free chain.
//
// Compilation is single-threaded per function and allocation-scoped to the
// compile job: states, sources, instructions, edges, labels and locals all
// die with it. A failed compile returns an error and nothing else; the
// host keeps interpreting the function.
package compiler
