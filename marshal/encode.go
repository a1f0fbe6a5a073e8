package marshal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Encoder: serializes a Value tree to wire bytes
// ---------------------------------------------------------------------------

// Encoder serializes Value trees. An Encoder may be reused; each call to
// Encode produces an independent buffer.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode serializes a value tree. On error no bytes are returned; the
// encoder never emits a truncated or malformed buffer.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	e.buf.Reset()
	if err := e.encodeValue(v); err != nil {
		return nil, err
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func (e *Encoder) encodeValue(v Value) error {
	switch v.kind {
	case KindNone:
		e.buf.WriteByte(TagNone)
		return nil

	case KindBool:
		if v.boolv {
			e.buf.WriteByte(TagTrue)
		} else {
			e.buf.WriteByte(TagFalse)
		}
		return nil

	case KindInt32:
		e.buf.WriteByte(TagInt32)
		e.writeUint32(uint32(v.intv))
		return nil

	case KindString:
		return e.encodeSized(TagString, []byte(v.strv))

	case KindBytes:
		return e.encodeSized(TagBytes, v.bytev)

	case KindTuple:
		return e.encodeTuple(v.items)

	case KindCode:
		return e.encodeCode(v.code)

	default:
		return fmt.Errorf("%w: cannot encode kind %s", ErrUnknownTag, v.kind)
	}
}

// encodeSized writes a tag, a 4-byte length and the raw payload.
func (e *Encoder) encodeSized(tag byte, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: payload of %d bytes exceeds length field", ErrInvalidLength, len(data))
	}
	e.buf.WriteByte(tag)
	e.writeUint32(uint32(len(data)))
	e.buf.Write(data)
	return nil
}

// encodeTuple picks the small form when the element count fits one byte.
func (e *Encoder) encodeTuple(items []Value) error {
	n := len(items)
	switch {
	case n <= math.MaxUint8:
		e.buf.WriteByte(TagTupleSmall)
		e.buf.WriteByte(byte(n))
	case uint64(n) <= math.MaxUint32:
		e.buf.WriteByte(TagTupleLarge)
		e.writeUint32(uint32(n))
	default:
		return fmt.Errorf("%w: tuple of %d elements exceeds count field", ErrInvalidLength, n)
	}
	for i := range items {
		if err := e.encodeValue(items[i]); err != nil {
			return err
		}
	}
	return nil
}

// encodeStringTuple writes a tuple whose elements are all unicode strings.
func (e *Encoder) encodeStringTuple(names []string) error {
	items := make([]Value, len(names))
	for i, s := range names {
		items[i] = NewString(s)
	}
	return e.encodeTuple(items)
}

// encodeCode writes the fixed code-object field sequence. Every field is a
// tagged value; the order is the wire contract, not self-describing.
func (e *Encoder) encodeCode(c *Code) error {
	if c == nil {
		return fmt.Errorf("%w: nil code object", ErrUnknownTag)
	}
	e.buf.WriteByte(TagCode)
	for _, n := range []int32{c.ArgCount, c.KwOnlyArgCount, c.NLocals, c.StackSize, c.Flags} {
		e.buf.WriteByte(TagInt32)
		e.writeUint32(uint32(n))
	}
	if err := e.encodeSized(TagBytes, c.CodeBytes); err != nil {
		return err
	}
	if err := e.encodeTuple(c.Consts); err != nil {
		return err
	}
	for _, names := range [][]string{c.Names, c.VarNames, c.FreeVars, c.CellVars} {
		if err := e.encodeStringTuple(names); err != nil {
			return err
		}
	}
	if err := e.encodeSized(TagString, []byte(c.Filename)); err != nil {
		return err
	}
	if err := e.encodeSized(TagString, []byte(c.Name)); err != nil {
		return err
	}
	e.buf.WriteByte(TagInt32)
	e.writeUint32(uint32(c.FirstLineNo))
	return e.encodeSized(TagBytes, c.Lnotab)
}

func (e *Encoder) writeUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.buf.Write(buf[:])
}

// Encode serializes a value tree with a fresh encoder.
func Encode(v Value) ([]byte, error) {
	return NewEncoder().Encode(v)
}
