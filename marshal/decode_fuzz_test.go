package marshal

import "testing"

// ---------------------------------------------------------------------------
// FuzzDecode: ensure the decoder never panics or OOMs on arbitrary input.
// Errors are expected and acceptable; panics are bugs.
// ---------------------------------------------------------------------------

func FuzzDecode(f *testing.F) {
	// Well-formed seeds covering every tag, plus a full module payload.
	seeds := [][]byte{
		{'N'},
		{'T'},
		{'F'},
		{0x69, 0x05, 0x00, 0x00, 0x00},
		{0x75, 0x01, 0x00, 0x00, 0x00, 0x61},
		{0x73, 0x02, 0x00, 0x00, 0x00, 0xAA, 0xBB},
		{0x29, 0x02, 0x69, 0x00, 0x00, 0x00, 0x00, 0x69, 0x01, 0x00, 0x00, 0x00},
		{0x28, 0x01, 0x00, 0x00, 0x00, 'N'},
		printExprPayload(),
	}
	for _, seed := range seeds {
		f.Add(seed)
	}
	// Malformed seeds: truncations, a huge length prefix, an unknown tag.
	f.Add([]byte{0x69, 0x00, 0x00})
	f.Add([]byte{0x75, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x28, 0xFF, 0xFF, 0xFF, 0x7F})
	f.Add([]byte{'X'})
	f.Add([]byte{'c', 'c', 'c', 'c'})

	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := Decode(data)
		if err != nil {
			return
		}
		// Anything that decodes must re-encode, and the re-encoded form
		// must decode to an equal tree (the wire form may differ when the
		// input used the non-preferred tuple encoding).
		out, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode of decoded value failed: %v", err)
		}
		v2, err := Decode(out)
		if err != nil {
			t.Fatalf("Decode of re-encoded value failed: %v", err)
		}
		if !v.Equal(v2) {
			t.Fatalf("re-encode round trip mismatch: %v != %v", v, v2)
		}
	})
}
