// Package bytecode defines the minipy instruction set and the assembler
// that turns instruction lists into the raw byte strings embedded in
// compiled code objects.
package bytecode

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

const (
	OpBinaryAdd   Opcode = 0x17 // pop two, push their sum
	OpPrintExpr   Opcode = 0x46 // pop and print top of stack
	OpReturnValue Opcode = 0x53 // return top of stack
	OpLoadConst   Opcode = 0x64 // push constant (16-bit index)
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpBinaryAdd:   {"BINARY_ADD", 0, -1},
	OpPrintExpr:   {"PRINT_EXPR", 0, -1},
	OpReturnValue: {"RETURN_VALUE", 0, -1},
	OpLoadConst:   {"LOAD_CONST", 2, 1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// Valid reports whether the opcode is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrOperandOverflow = errors.New("operand overflow")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrTruncatedCode   = errors.New("truncated bytecode")
)

// ---------------------------------------------------------------------------
// Builder: incremental bytecode construction
// ---------------------------------------------------------------------------

// Builder helps construct bytecode sequences.
type Builder struct {
	bytes []byte
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}
