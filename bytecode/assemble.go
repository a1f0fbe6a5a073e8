package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction: one abstract instruction prior to assembly
// ---------------------------------------------------------------------------

// Instruction is a single abstract instruction. Arg is meaningful only for
// opcodes with operand bytes and must be zero otherwise.
type Instruction struct {
	Op  Opcode
	Arg uint32
}

// String renders the instruction in disassembly form.
func (ins Instruction) String() string {
	if ins.Op.OperandBytes() > 0 {
		return fmt.Sprintf("%s %d", ins.Op.Name(), ins.Arg)
	}
	return ins.Op.Name()
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// Assemble turns an ordered instruction list into a concatenated byte
// buffer in instruction order. On error no bytes are returned. Indices are
// not validated against any constants tuple; keeping them consistent with
// the code object the result is embedded into is the caller's concern.
func Assemble(prog []Instruction) ([]byte, error) {
	b := NewBuilder()
	for i, ins := range prog {
		info, ok := opcodeTable[ins.Op]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%02X at instruction %d", ErrUnknownOpcode, byte(ins.Op), i)
		}
		switch info.OperandBytes {
		case 0:
			if ins.Arg != 0 {
				return nil, fmt.Errorf("instruction %d: %s takes no operand, got %d", i, ins.Op, ins.Arg)
			}
			b.Emit(ins.Op)
		case 2:
			if ins.Arg > 0xFFFF {
				return nil, fmt.Errorf("%w: %s operand %d exceeds 16 bits at instruction %d", ErrOperandOverflow, ins.Op, ins.Arg, i)
			}
			b.EmitUint16(ins.Op, uint16(ins.Arg))
		}
	}
	return b.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble is the inverse scan: it parses a raw byte string back into
// instructions. It fails on opcodes outside the instruction set and on
// operands cut short by the end of the buffer.
func Disassemble(code []byte) ([]Instruction, error) {
	var out []Instruction
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		info, ok := opcodeTable[op]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownOpcode, byte(op), pc)
		}
		pc++

		var arg uint32
		if info.OperandBytes > 0 {
			if pc+info.OperandBytes > len(code) {
				return nil, fmt.Errorf("%w: %s at offset %d needs %d operand bytes, have %d",
					ErrTruncatedCode, op, pc-1, info.OperandBytes, len(code)-pc)
			}
			arg = uint32(binary.LittleEndian.Uint16(code[pc:]))
			pc += info.OperandBytes
		}
		out = append(out, Instruction{Op: op, Arg: arg})
	}
	return out, nil
}

// Listing renders a human-readable disassembly with byte offsets, one
// instruction per line.
func Listing(code []byte) (string, error) {
	var sb strings.Builder
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		info, ok := opcodeTable[op]
		if !ok {
			return "", fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownOpcode, byte(op), pc)
		}
		if info.OperandBytes > 0 {
			if pc+1+info.OperandBytes > len(code) {
				return "", fmt.Errorf("%w: %s at offset %d", ErrTruncatedCode, op, pc)
			}
			arg := binary.LittleEndian.Uint16(code[pc+1:])
			fmt.Fprintf(&sb, "%4d  %-14s %d\n", pc, op.Name(), arg)
		} else {
			fmt.Fprintf(&sb, "%4d  %s\n", pc, op.Name())
		}
		pc += 1 + info.OperandBytes
	}
	return sb.String(), nil
}
