package marshal

import (
	"bytes"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: the closed union of wire-representable values
// ---------------------------------------------------------------------------

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt32
	KindString
	KindBytes
	KindTuple
	KindCode
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt32:
		return "Int32"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindTuple:
		return "Tuple"
	case KindCode:
		return "Code"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one node of an in-memory value tree. Values are immutable once
// constructed; the zero Value is None.
type Value struct {
	kind  Kind
	boolv bool
	intv  int32
	strv  string
	bytev []byte
	items []Value
	code  *Code
}

// None is the singleton none value.
var None = Value{kind: KindNone}

// NewBool returns a boolean Value.
func NewBool(b bool) Value {
	return Value{kind: KindBool, boolv: b}
}

// NewInt32 returns a 32-bit integer Value.
func NewInt32(n int32) Value {
	return Value{kind: KindInt32, intv: n}
}

// NewString returns a unicode string Value. The string is encoded as UTF-8
// on the wire; the length prefix counts encoded bytes, not code points.
func NewString(s string) Value {
	return Value{kind: KindString, strv: s}
}

// NewBytes returns a byte string Value. The payload is copied, so the
// caller may reuse the slice.
func NewBytes(b []byte) Value {
	return Value{kind: KindBytes, bytev: append([]byte(nil), b...)}
}

// NewTuple returns an ordered tuple Value over the given elements.
// The element slice is copied.
func NewTuple(items ...Value) Value {
	return Value{kind: KindTuple, items: append([]Value(nil), items...)}
}

// NewCode returns a Value wrapping a code object.
func NewCode(c *Code) Value {
	return Value{kind: KindCode, code: c}
}

// Kind returns the variant this Value holds.
func (v Value) Kind() Kind {
	return v.kind
}

// Bool returns the boolean payload. Valid only for KindBool.
func (v Value) Bool() bool {
	return v.boolv
}

// Int32 returns the integer payload. Valid only for KindInt32.
func (v Value) Int32() int32 {
	return v.intv
}

// Str returns the string payload. Valid only for KindString.
func (v Value) Str() string {
	return v.strv
}

// Bytes returns the byte-string payload. Valid only for KindBytes.
// The returned slice is owned by the Value and must not be mutated.
func (v Value) Bytes() []byte {
	return v.bytev
}

// Items returns the tuple elements. Valid only for KindTuple.
// The returned slice is owned by the Value and must not be mutated.
func (v Value) Items() []Value {
	return v.items
}

// Code returns the code object payload. Valid only for KindCode.
func (v Value) Code() *Code {
	return v.code
}

// Equal reports deep structural equality between two value trees.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.boolv == o.boolv
	case KindInt32:
		return v.intv == o.intv
	case KindString:
		return v.strv == o.strv
	case KindBytes:
		return bytes.Equal(v.bytev, o.bytev)
	case KindTuple:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindCode:
		return v.code.Equal(o.code)
	default:
		return false
	}
}

// String renders a short debugging representation.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.boolv {
			return "True"
		}
		return "False"
	case KindInt32:
		return fmt.Sprintf("Int32(%d)", v.intv)
	case KindString:
		return fmt.Sprintf("String(%q)", v.strv)
	case KindBytes:
		return fmt.Sprintf("Bytes(% x)", v.bytev)
	case KindTuple:
		return fmt.Sprintf("Tuple(len=%d)", len(v.items))
	case KindCode:
		if v.code != nil {
			return fmt.Sprintf("Code(%q)", v.code.Name)
		}
		return "Code(nil)"
	default:
		return v.kind.String()
	}
}

// ---------------------------------------------------------------------------
// Code: the compiled function/module record
// ---------------------------------------------------------------------------

// Code is the structured record describing one compiled function or module
// body. Field order here matches the fixed wire order.
type Code struct {
	// Scalar metadata
	ArgCount       int32
	KwOnlyArgCount int32
	NLocals        int32
	StackSize      int32
	Flags          int32

	// The assembled instruction stream.
	CodeBytes []byte

	// Constant pool; heterogeneous, may nest tuples and code objects.
	Consts []Value

	// Name tables.
	Names    []string
	VarNames []string
	FreeVars []string
	CellVars []string

	// Source identity
	Filename    string
	Name        string
	FirstLineNo int32

	// Opaque line-number table; passed through unchanged.
	Lnotab []byte
}

// Equal reports deep equality of two code objects.
func (c *Code) Equal(o *Code) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.ArgCount != o.ArgCount ||
		c.KwOnlyArgCount != o.KwOnlyArgCount ||
		c.NLocals != o.NLocals ||
		c.StackSize != o.StackSize ||
		c.Flags != o.Flags ||
		c.Filename != o.Filename ||
		c.Name != o.Name ||
		c.FirstLineNo != o.FirstLineNo {
		return false
	}
	if !bytes.Equal(c.CodeBytes, o.CodeBytes) || !bytes.Equal(c.Lnotab, o.Lnotab) {
		return false
	}
	if len(c.Consts) != len(o.Consts) {
		return false
	}
	for i := range c.Consts {
		if !c.Consts[i].Equal(o.Consts[i]) {
			return false
		}
	}
	return stringsEqual(c.Names, o.Names) &&
		stringsEqual(c.VarNames, o.VarNames) &&
		stringsEqual(c.FreeVars, o.FreeVars) &&
		stringsEqual(c.CellVars, o.CellVars)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
