package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Decoder: parses wire bytes into a Value tree
// ---------------------------------------------------------------------------

// Decoder reads values from an in-memory buffer with a monotonic cursor.
// Every length-prefixed read is bounds-checked against the remaining
// buffer, and recursion into tuples and code objects is capped by a
// configurable nesting limit. Decoded trees never alias the input buffer.
type Decoder struct {
	data     []byte
	offset   int
	maxDepth int
	depth    int
}

// NewDecoder creates a decoder over the given buffer with the default
// nesting limit.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth overrides the nesting limit. Values below 1 are ignored.
func (d *Decoder) SetMaxDepth(n int) {
	if n >= 1 {
		d.maxDepth = n
	}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.offset
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.offset
}

// Decode reads one value from the current cursor position. On failure the
// cursor position is unspecified and no partial tree is returned.
func (d *Decoder) Decode() (Value, error) {
	return d.decodeValue()
}

func (d *Decoder) decodeValue() (Value, error) {
	tag, err := d.readByte()
	if err != nil {
		return Value{}, err
	}

	switch tag {
	case TagNone:
		return None, nil

	case TagTrue:
		return NewBool(true), nil

	case TagFalse:
		return NewBool(false), nil

	case TagInt32:
		n, err := d.readUint32()
		if err != nil {
			return Value{}, err
		}
		return NewInt32(int32(n)), nil

	case TagString:
		data, err := d.readSized()
		if err != nil {
			return Value{}, err
		}
		return NewString(string(data)), nil

	case TagBytes:
		data, err := d.readSized()
		if err != nil {
			return Value{}, err
		}
		return NewBytes(data), nil

	case TagTupleLarge, TagTupleSmall:
		items, err := d.decodeTupleBody(tag)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTuple, items: items}, nil

	case TagCode:
		c, err := d.decodeCode()
		if err != nil {
			return Value{}, err
		}
		return NewCode(c), nil

	default:
		return Value{}, fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownTag, tag, d.offset-1)
	}
}

// decodeTupleBody reads the count prefix matching the tag, then the
// elements via general dispatch. Tuples are heterogeneous: any variant,
// including nested tuples and code objects, may appear as an element.
func (d *Decoder) decodeTupleBody(tag byte) ([]Value, error) {
	var count uint32
	if tag == TagTupleSmall {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		count = uint32(b)
	} else {
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		count = n
	}

	// Each element occupies at least one byte, so a count beyond the
	// remaining buffer cannot be satisfied.
	if uint64(count) > uint64(d.Remaining()) {
		return nil, fmt.Errorf("%w: tuple of %d elements with %d bytes remaining", ErrTruncatedInput, count, d.Remaining())
	}

	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	items := make([]Value, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

// decodeCode reads the fixed code-object field sequence. Field identity is
// positional; a field whose tag byte does not match its declared kind is a
// structural violation.
func (d *Decoder) decodeCode() (*Code, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	c := &Code{}

	scalars := []struct {
		name string
		dst  *int32
	}{
		{"argCount", &c.ArgCount},
		{"kwOnlyArgCount", &c.KwOnlyArgCount},
		{"nLocals", &c.NLocals},
		{"stackSize", &c.StackSize},
		{"flags", &c.Flags},
	}
	for _, f := range scalars {
		n, err := d.expectInt32(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = n
	}

	code, err := d.expectBytes("codeString")
	if err != nil {
		return nil, err
	}
	c.CodeBytes = code

	c.Consts, err = d.expectTuple("constants")
	if err != nil {
		return nil, err
	}

	nameFields := []struct {
		name string
		dst  *[]string
	}{
		{"names", &c.Names},
		{"varNames", &c.VarNames},
		{"freeVars", &c.FreeVars},
		{"cellVars", &c.CellVars},
	}
	for _, f := range nameFields {
		names, err := d.expectStringTuple(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = names
	}

	c.Filename, err = d.expectString("filename")
	if err != nil {
		return nil, err
	}
	c.Name, err = d.expectString("name")
	if err != nil {
		return nil, err
	}
	c.FirstLineNo, err = d.expectInt32("firstLineNo")
	if err != nil {
		return nil, err
	}
	c.Lnotab, err = d.expectBytes("lnotab")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// ---------------------------------------------------------------------------
// Fixed-position field readers
// ---------------------------------------------------------------------------

func (d *Decoder) expectTag(field string, want ...byte) (byte, error) {
	tag, err := d.readByte()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", field, err)
	}
	for _, w := range want {
		if tag == w {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%02X in %s slot", ErrUnknownTag, tag, field)
}

func (d *Decoder) expectInt32(field string) (int32, error) {
	if _, err := d.expectTag(field, TagInt32); err != nil {
		return 0, err
	}
	n, err := d.readUint32()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", field, err)
	}
	return int32(n), nil
}

func (d *Decoder) expectString(field string) (string, error) {
	if _, err := d.expectTag(field, TagString); err != nil {
		return "", err
	}
	data, err := d.readSized()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	return string(data), nil
}

func (d *Decoder) expectBytes(field string) ([]byte, error) {
	if _, err := d.expectTag(field, TagBytes); err != nil {
		return nil, err
	}
	data, err := d.readSized()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return data, nil
}

func (d *Decoder) expectTuple(field string) ([]Value, error) {
	tag, err := d.expectTag(field, TagTupleLarge, TagTupleSmall)
	if err != nil {
		return nil, err
	}
	items, err := d.decodeTupleBody(tag)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return items, nil
}

func (d *Decoder) expectStringTuple(field string) ([]string, error) {
	items, err := d.expectTuple(field)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(items))
	for i, v := range items {
		if v.Kind() != KindString {
			return nil, fmt.Errorf("%w: %s element %d is %s, want String", ErrUnknownTag, field, i, v.Kind())
		}
		names[i] = v.Str()
	}
	return names, nil
}

// ---------------------------------------------------------------------------
// Cursor primitives
// ---------------------------------------------------------------------------

func (d *Decoder) readByte() (byte, error) {
	if d.offset >= len(d.data) {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncatedInput, d.offset)
	}
	b := d.data[d.offset]
	d.offset++
	return b, nil
}

func (d *Decoder) readUint32() (uint32, error) {
	if d.offset+4 > len(d.data) {
		return 0, fmt.Errorf("%w: need 4 bytes at offset %d, have %d", ErrTruncatedInput, d.offset, d.Remaining())
	}
	v := binary.LittleEndian.Uint32(d.data[d.offset:])
	d.offset += 4
	return v, nil
}

// readSized reads a 4-byte length prefix and that many payload bytes,
// returning a copy that does not alias the input buffer.
func (d *Decoder) readSized() ([]byte, error) {
	length, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if uint64(length) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: length %d is unrepresentable", ErrInvalidLength, length)
	}
	n := int(length)
	if n > d.Remaining() {
		return nil, fmt.Errorf("%w: length %d with %d bytes remaining", ErrTruncatedInput, n, d.Remaining())
	}
	out := make([]byte, n)
	copy(out, d.data[d.offset:d.offset+n])
	d.offset += n
	return out, nil
}

func (d *Decoder) enter() error {
	if d.depth >= d.maxDepth {
		return fmt.Errorf("%w: exceeded limit of %d", ErrNestingTooDeep, d.maxDepth)
	}
	d.depth++
	return nil
}

func (d *Decoder) leave() {
	d.depth--
}

// ---------------------------------------------------------------------------
// Package-level convenience
// ---------------------------------------------------------------------------

// Decode parses exactly one value spanning the whole buffer. Trailing bytes
// after the top-level value are rejected; callers that hand over a larger
// buffer should use a Decoder and check Offset themselves.
func Decode(data []byte) (Value, error) {
	d := NewDecoder(data)
	v, err := d.Decode()
	if err != nil {
		return Value{}, err
	}
	if rem := d.Remaining(); rem != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after value", ErrInvalidLength, rem)
	}
	return v, nil
}
