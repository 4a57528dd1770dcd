// Package pycode defines the bytecode instruction set consumed by the
// compiler: code objects, the opcode table with stack effects and jump
// classifications, an assembler for building code objects, and a
// disassembler for diagnostics.
//
// Instructions are fixed-width two-byte units of (opcode, oparg).
// Opargs wider than one byte are encoded with OpExtendedArg prefix units;
// decoding collapses a prefix run so that only the terminating unit is
// visible downstream, carrying the full accumulated oparg.
package pycode
