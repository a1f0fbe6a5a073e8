// Package inspect flattens decoded value trees into plain report records
// for tooling: text dumps, canonical CBOR interchange, and the loader-side
// consistency check between instruction operands and constant pools.
package inspect

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/minipy/pyc/bytecode"
	"github.com/minipy/pyc/marshal"
)

// cborEncMode uses canonical mode so equal reports always encode to the
// same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("inspect: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MaxElementPreview is the maximum number of tuple elements included in a
// node's element list.
const MaxElementPreview = 32

// Report is the top-level inspection record for one value tree.
type Report struct {
	Root *Node `cbor:"root" json:"root"`
}

// Node describes one value in the tree.
type Node struct {
	Type     string       `cbor:"type" json:"type"`
	Value    string       `cbor:"value,omitempty" json:"value,omitempty"`
	Size     int          `cbor:"size,omitempty" json:"size,omitempty"`
	Elements []*Node      `cbor:"elements,omitempty" json:"elements,omitempty"`
	Code     *CodeSummary `cbor:"code,omitempty" json:"code,omitempty"`
}

// CodeSummary is the flattened view of a code object.
type CodeSummary struct {
	Name           string   `cbor:"name" json:"name"`
	Filename       string   `cbor:"filename" json:"filename"`
	ArgCount       int32    `cbor:"argCount" json:"argCount"`
	KwOnlyArgCount int32    `cbor:"kwOnlyArgCount" json:"kwOnlyArgCount"`
	NLocals        int32    `cbor:"nLocals" json:"nLocals"`
	StackSize      int32    `cbor:"stackSize" json:"stackSize"`
	Flags          int32    `cbor:"flags" json:"flags"`
	FirstLineNo    int32    `cbor:"firstLineNo" json:"firstLineNo"`
	CodeSize       int      `cbor:"codeSize" json:"codeSize"`
	Names          []string `cbor:"names,omitempty" json:"names,omitempty"`
	VarNames       []string `cbor:"varNames,omitempty" json:"varNames,omitempty"`
	FreeVars       []string `cbor:"freeVars,omitempty" json:"freeVars,omitempty"`
	CellVars       []string `cbor:"cellVars,omitempty" json:"cellVars,omitempty"`
	Consts         []*Node  `cbor:"consts,omitempty" json:"consts,omitempty"`

	// Disassembly lines; empty when the code bytes do not disassemble.
	Instructions []string `cbor:"instructions,omitempty" json:"instructions,omitempty"`
}

// Describe builds a report for a value tree.
func Describe(v marshal.Value) *Report {
	return &Report{Root: describeValue(v)}
}

func describeValue(v marshal.Value) *Node {
	n := &Node{Type: v.Kind().String()}

	switch v.Kind() {
	case marshal.KindNone:
		// type alone carries the information
	case marshal.KindBool:
		if v.Bool() {
			n.Value = "true"
		} else {
			n.Value = "false"
		}
	case marshal.KindInt32:
		n.Value = fmt.Sprintf("%d", v.Int32())
	case marshal.KindString:
		n.Value = v.Str()
		n.Size = len(v.Str())
	case marshal.KindBytes:
		n.Value = fmt.Sprintf("% x", v.Bytes())
		n.Size = len(v.Bytes())
	case marshal.KindTuple:
		items := v.Items()
		n.Size = len(items)
		limit := len(items)
		if limit > MaxElementPreview {
			limit = MaxElementPreview
		}
		for i := 0; i < limit; i++ {
			n.Elements = append(n.Elements, describeValue(items[i]))
		}
	case marshal.KindCode:
		n.Code = describeCode(v.Code())
	}
	return n
}

func describeCode(c *marshal.Code) *CodeSummary {
	s := &CodeSummary{
		Name:           c.Name,
		Filename:       c.Filename,
		ArgCount:       c.ArgCount,
		KwOnlyArgCount: c.KwOnlyArgCount,
		NLocals:        c.NLocals,
		StackSize:      c.StackSize,
		Flags:          c.Flags,
		FirstLineNo:    c.FirstLineNo,
		CodeSize:       len(c.CodeBytes),
		Names:          c.Names,
		VarNames:       c.VarNames,
		FreeVars:       c.FreeVars,
		CellVars:       c.CellVars,
	}
	for _, cv := range c.Consts {
		s.Consts = append(s.Consts, describeValue(cv))
	}
	if prog, err := bytecode.Disassemble(c.CodeBytes); err == nil {
		for _, ins := range prog {
			s.Instructions = append(s.Instructions, ins.String())
		}
	}
	return s
}

// MarshalReport serializes a report to canonical CBOR.
func MarshalReport(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("inspect: unmarshal report: %w", err)
	}
	return &r, nil
}

// CheckConsts verifies that every LOAD_CONST operand in the code object is
// within bounds of its constants tuple, recursing into code objects nested
// in the pool. The codec itself does not perform this check; it belongs to
// whoever intends to load the module.
func CheckConsts(c *marshal.Code) error {
	prog, err := bytecode.Disassemble(c.CodeBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", codeLabel(c), err)
	}
	for i, ins := range prog {
		if ins.Op == bytecode.OpLoadConst && int(ins.Arg) >= len(c.Consts) {
			return fmt.Errorf("%s: instruction %d: LOAD_CONST %d out of range (constant pool has %d entries)",
				codeLabel(c), i, ins.Arg, len(c.Consts))
		}
	}
	for _, cv := range c.Consts {
		if cv.Kind() == marshal.KindCode {
			if err := CheckConsts(cv.Code()); err != nil {
				return err
			}
		}
	}
	return nil
}

func codeLabel(c *marshal.Code) string {
	if c.Name != "" {
		return c.Name
	}
	return "<module>"
}
