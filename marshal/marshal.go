// Package marshal implements the binary serialization format for the
// minipy interpreter's compiled-code values.
//
// The format is a tagged, recursive, length-prefixed encoding: every value
// starts with a single tag byte identifying its kind, followed by a
// fixed-size or length-prefixed payload. All multi-byte integers are
// little-endian. Tuples have two interchangeable wire forms (a 1-byte and a
// 4-byte count prefix); both decode to the same logical value.
package marshal

import "errors"

// Wire tags. Each value on the wire starts with exactly one of these.
const (
	TagNone       byte = 'N'
	TagTrue       byte = 'T'
	TagFalse      byte = 'F'
	TagInt32      byte = 'i'
	TagString     byte = 'u'
	TagBytes      byte = 's'
	TagTupleLarge byte = '(' // 4-byte element count
	TagTupleSmall byte = ')' // 1-byte element count
	TagCode       byte = 'c'
)

// DefaultMaxDepth is the default nesting limit enforced while decoding.
// It bounds recursion across tuples and code objects so corrupted or
// adversarial input cannot exhaust the stack.
const DefaultMaxDepth = 64

var (
	ErrTruncatedInput = errors.New("truncated input")
	ErrUnknownTag     = errors.New("unknown tag")
	ErrNestingTooDeep = errors.New("nesting too deep")
	ErrInvalidLength  = errors.New("invalid length")
)
