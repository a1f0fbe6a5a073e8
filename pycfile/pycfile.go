// Package pycfile reads and writes the container file wrapping a compiled
// module payload: a 12-byte header (magic, source timestamp, source size)
// followed by the marshalled top-level code object.
package pycfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/minipy/pyc/marshal"
)

// MagicNumber is the format version word. It is bumped whenever the code
// format changes so stale compiled files are rejected rather than
// misinterpreted.
const MagicNumber uint16 = 3120

// HeaderSize is the container header size in bytes:
// magic word(2) + "\r\n"(2) + modTime(4) + sourceSize(4).
const HeaderSize = 12

// magicTail terminates the magic field. A file transferred in text mode
// corrupts these bytes, which turns silent damage into a clean error.
var magicTail = [2]byte{'\r', '\n'}

var (
	ErrShortHeader = errors.New("container header too short")
	ErrBadMagic    = errors.New("bad magic number")
	ErrBadVersion  = errors.New("container version mismatch")
	ErrNotCode     = errors.New("payload is not a code object")
)

// File is one parsed container: header fields plus the top-level code
// object of the compiled module.
type File struct {
	ModTime    uint32 // source modification time, seconds since epoch
	SourceSize uint32 // size of the source text the module was compiled from
	Code       *marshal.Code
}

// Encode serializes the container to bytes: header first, then the
// marshalled payload.
func Encode(f *File) ([]byte, error) {
	payload, err := marshal.Encode(marshal.NewCode(f.Code))
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:], MagicNumber)
	out[2] = magicTail[0]
	out[3] = magicTail[1]
	binary.LittleEndian.PutUint32(out[4:], f.ModTime)
	binary.LittleEndian.PutUint32(out[8:], f.SourceSize)
	return append(out, payload...), nil
}

// Decode parses a container from bytes. The payload range after the header
// must hold exactly one code object.
func Decode(data []byte) (*File, error) {
	f, _, err := decode(data, 0)
	return f, err
}

// DecodeWithDepth parses a container with an explicit payload nesting
// limit (0 means the default).
func DecodeWithDepth(data []byte, maxDepth int) (*File, error) {
	f, _, err := decode(data, maxDepth)
	return f, err
}

func decode(data []byte, maxDepth int) (*File, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}
	if data[2] != magicTail[0] || data[3] != magicTail[1] {
		return nil, 0, fmt.Errorf("%w: % X", ErrBadMagic, data[0:4])
	}
	if word := binary.LittleEndian.Uint16(data[0:]); word != MagicNumber {
		return nil, 0, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, word, MagicNumber)
	}

	f := &File{
		ModTime:    binary.LittleEndian.Uint32(data[4:]),
		SourceSize: binary.LittleEndian.Uint32(data[8:]),
	}

	d := marshal.NewDecoder(data[HeaderSize:])
	if maxDepth > 0 {
		d.SetMaxDepth(maxDepth)
	}
	v, err := d.Decode()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding payload: %w", err)
	}
	if rem := d.Remaining(); rem != 0 {
		return nil, 0, fmt.Errorf("%w: %d trailing bytes after payload", marshal.ErrInvalidLength, rem)
	}
	if v.Kind() != marshal.KindCode {
		return nil, 0, fmt.Errorf("%w: got %s", ErrNotCode, v.Kind())
	}
	f.Code = v.Code()
	return f, HeaderSize + d.Offset(), nil
}

// WriteFile encodes the container and writes it to path.
func WriteFile(path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and parses a container file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
