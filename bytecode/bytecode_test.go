package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		operands int
	}{
		{OpLoadConst, "LOAD_CONST", 2},
		{OpBinaryAdd, "BINARY_ADD", 0},
		{OpPrintExpr, "PRINT_EXPR", 0},
		{OpReturnValue, "RETURN_VALUE", 0},
	}
	for _, tt := range tests {
		if got := tt.op.Name(); got != tt.name {
			t.Errorf("Opcode(0x%02X).Name() = %q, want %q", byte(tt.op), got, tt.name)
		}
		if got := tt.op.OperandBytes(); got != tt.operands {
			t.Errorf("%s.OperandBytes() = %d, want %d", tt.name, got, tt.operands)
		}
		if !tt.op.Valid() {
			t.Errorf("%s.Valid() = false, want true", tt.name)
		}
	}
}

func TestUnknownOpcodeName(t *testing.T) {
	op := Opcode(0x99)
	if op.Valid() {
		t.Error("Opcode(0x99).Valid() = true, want false")
	}
	if got := op.Name(); got != "UNKNOWN_99" {
		t.Errorf("Name() = %q, want UNKNOWN_99", got)
	}
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

func TestAssembleLiteralVector(t *testing.T) {
	prog := []Instruction{
		{Op: OpLoadConst, Arg: 1},
		{Op: OpLoadConst, Arg: 2},
		{Op: OpBinaryAdd},
		{Op: OpPrintExpr},
		{Op: OpLoadConst, Arg: 0},
		{Op: OpReturnValue},
	}
	got, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	want := []byte{0x64, 0x01, 0x00, 0x64, 0x02, 0x00, 0x17, 0x46, 0x64, 0x00, 0x00, 0x53}
	if !bytes.Equal(got, want) {
		t.Errorf("Assemble = % X, want % X", got, want)
	}
}

func TestAssembleEmpty(t *testing.T) {
	got, err := Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble(nil) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Assemble(nil) = % X, want empty", got)
	}
}

func TestAssembleOperandBoundary(t *testing.T) {
	got, err := Assemble([]Instruction{{Op: OpLoadConst, Arg: 65535}})
	if err != nil {
		t.Fatalf("Assemble(LOAD_CONST 65535) failed: %v", err)
	}
	want := []byte{0x64, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("Assemble = % X, want % X", got, want)
	}
}

func TestAssembleOperandOverflow(t *testing.T) {
	_, err := Assemble([]Instruction{{Op: OpLoadConst, Arg: 65536}})
	if !errors.Is(err, ErrOperandOverflow) {
		t.Errorf("error = %v, want ErrOperandOverflow", err)
	}
}

func TestAssembleUnknownOpcode(t *testing.T) {
	_, err := Assemble([]Instruction{{Op: Opcode(0x01)}})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("error = %v, want ErrUnknownOpcode", err)
	}
}

func TestAssembleOperandOnOperandlessOpcode(t *testing.T) {
	_, err := Assemble([]Instruction{{Op: OpBinaryAdd, Arg: 1}})
	if err == nil {
		t.Error("expected error for operand on BINARY_ADD, got nil")
	}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassembleRoundTrip(t *testing.T) {
	prog := []Instruction{
		{Op: OpLoadConst, Arg: 258},
		{Op: OpBinaryAdd},
		{Op: OpReturnValue},
	}
	code, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	got, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if len(got) != len(prog) {
		t.Fatalf("Disassemble returned %d instructions, want %d", len(got), len(prog))
	}
	for i := range prog {
		if got[i] != prog[i] {
			t.Errorf("instruction %d = %v, want %v", i, got[i], prog[i])
		}
	}
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	_, err := Disassemble([]byte{0xEE})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("error = %v, want ErrUnknownOpcode", err)
	}
}

func TestDisassembleTruncatedOperand(t *testing.T) {
	_, err := Disassemble([]byte{0x64, 0x01})
	if !errors.Is(err, ErrTruncatedCode) {
		t.Errorf("error = %v, want ErrTruncatedCode", err)
	}
}

func TestListing(t *testing.T) {
	code, err := Assemble([]Instruction{
		{Op: OpLoadConst, Arg: 1},
		{Op: OpPrintExpr},
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	listing, err := Listing(code)
	if err != nil {
		t.Fatalf("Listing failed: %v", err)
	}
	if !strings.Contains(listing, "LOAD_CONST") || !strings.Contains(listing, "PRINT_EXPR") {
		t.Errorf("listing missing mnemonics:\n%s", listing)
	}
	lines := strings.Split(strings.TrimRight(listing, "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("listing has %d lines, want 2:\n%s", len(lines), listing)
	}
	// PRINT_EXPR sits after the 3-byte LOAD_CONST.
	if !strings.Contains(lines[1], "3") {
		t.Errorf("second line missing offset 3: %q", lines[1])
	}
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	b.EmitUint16(OpLoadConst, 7)
	b.Emit(OpReturnValue)
	want := []byte{0x64, 0x07, 0x00, 0x53}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Builder bytes = % X, want % X", b.Bytes(), want)
	}
	if b.Len() != 4 {
		t.Errorf("Len() = %d, want 4", b.Len())
	}
}
