package pycode

// SupportsUnboxing reports whether an opcode has an implementation that can
// operate on unboxed machine values. The set is deliberately conservative:
// an opcode listed here still only executes unboxed when every inbound and
// outbound value kind supports an unboxed representation.
func SupportsUnboxing(op Opcode) bool {
	switch op {
	case OpBinaryAdd, OpBinarySubtract, OpBinaryMultiply,
		OpBinaryTrueDivide, OpBinaryFloorDivide, OpBinaryModulo,
		OpBinaryAnd, OpBinaryXor, OpBinaryOr,
		OpInplaceAdd, OpInplaceSubtract, OpInplaceMultiply,
		OpInplaceTrueDivide, OpInplaceFloorDivide, OpInplaceModulo,
		OpInplaceAnd, OpInplaceXor, OpInplaceOr,
		OpUnaryNegative, OpUnaryPositive, OpUnaryNot, OpUnaryInvert,
		OpCompareOp,
		OpLoadConst,
		OpPopJumpIfTrue, OpPopJumpIfFalse,
		OpLoadFast, OpStoreFast:
		return true
	}
	return false
}

// Shifts and exponentiation are deliberately absent from the whitelist:
// their results escape the machine integer range at small operand values,
// so they always run boxed with the arbitrary-precision helpers.
