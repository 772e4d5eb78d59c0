package tlv

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// Encodings from the sample tables of the Matter TLV appendix.
var encodeVectors = []struct {
	name     string
	write    func(w *Writer) error
	encoding []byte
}{
	{"false", func(w *Writer) error { return w.PutBool(Anonymous(), false) }, []byte{0x08}},
	{"true", func(w *Writer) error { return w.PutBool(Anonymous(), true) }, []byte{0x09}},
	{"int8 42", func(w *Writer) error { return w.PutInt(Anonymous(), 42) }, []byte{0x00, 0x2a}},
	{"int8 -17", func(w *Writer) error { return w.PutInt(Anonymous(), -17) }, []byte{0x00, 0xef}},
	{"uint8 42", func(w *Writer) error { return w.PutUint(Anonymous(), 42) }, []byte{0x04, 0x2a}},
	{"int32 -170000", func(w *Writer) error { return w.PutInt(Anonymous(), -170000) }, []byte{0x02, 0xf0, 0x67, 0xfd, 0xff}},
	{"int64 40000000000", func(w *Writer) error { return w.PutInt(Anonymous(), 40000000000) },
		[]byte{0x03, 0x00, 0x90, 0x2f, 0x50, 0x09, 0x00, 0x00, 0x00}},
	{"utf8 Hello!", func(w *Writer) error { return w.PutString(Anonymous(), "Hello!") },
		[]byte{0x0c, 0x06, 0x48, 0x65, 0x6c, 0x6c, 0x6f, 0x21}},
	{"utf8 Tschüs", func(w *Writer) error { return w.PutString(Anonymous(), "Tschüs") },
		[]byte{0x0c, 0x07, 0x54, 0x73, 0x63, 0x68, 0xc3, 0xbc, 0x73}},
	{"octets", func(w *Writer) error { return w.PutBytes(Anonymous(), []byte{0, 1, 2, 3, 4}) },
		[]byte{0x10, 0x05, 0x00, 0x01, 0x02, 0x03, 0x04}},
	{"null", func(w *Writer) error { return w.PutNull(Anonymous()) }, []byte{0x14}},
	{"float32 17.9", func(w *Writer) error { return w.PutFloat32(Anonymous(), 17.9) }, []byte{0x0a, 0x33, 0x33, 0x8f, 0x41}},
	{"empty struct", func(w *Writer) error {
		if err := w.StartStructure(Anonymous()); err != nil {
			return err
		}
		return w.EndContainer()
	}, []byte{0x15, 0x18}},
	{"struct two members", func(w *Writer) error {
		if err := w.StartStructure(Anonymous()); err != nil {
			return err
		}
		if err := w.PutInt(ContextTag(0), 42); err != nil {
			return err
		}
		if err := w.PutInt(ContextTag(1), -17); err != nil {
			return err
		}
		return w.EndContainer()
	}, []byte{0x15, 0x20, 0x00, 0x2a, 0x20, 0x01, 0xef, 0x18}},
	{"array of ints", func(w *Writer) error {
		if err := w.StartArray(Anonymous()); err != nil {
			return err
		}
		for i := int64(0); i <= 4; i++ {
			if err := w.PutInt(Anonymous(), i); err != nil {
				return err
			}
		}
		return w.EndContainer()
	}, []byte{0x16, 0x00, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x18}},
	{"context tag", func(w *Writer) error { return w.PutUint(ContextTag(1), 42) }, []byte{0x24, 0x01, 0x2a}},
	{"common profile 2", func(w *Writer) error { return w.PutUint(CommonProfileTag(1), 42) }, []byte{0x44, 0x01, 0x00, 0x2a}},
	{"common profile 4", func(w *Writer) error { return w.PutUint(CommonProfileTag(100000), 42) },
		[]byte{0x64, 0xa0, 0x86, 0x01, 0x00, 0x2a}},
	{"fully qualified 6", func(w *Writer) error { return w.PutUint(FullyQualifiedTag(0xFFF1, 0xDEED, 1), 42) },
		[]byte{0xc4, 0xf1, 0xff, 0xed, 0xde, 0x01, 0x00, 0x2a}},
	{"fully qualified 8", func(w *Writer) error { return w.PutUint(FullyQualifiedTag(0xFFF1, 0xDEED, 0xAA55FEED), 42) },
		[]byte{0xe4, 0xf1, 0xff, 0xed, 0xde, 0xed, 0xfe, 0x55, 0xaa, 0x2a}},
}

func TestEncodeVectors(t *testing.T) {
	for _, tc := range encodeVectors {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter(0)
			if err := tc.write(w); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := w.Finish()
			if err != nil {
				t.Fatalf("Finish: %v", err)
			}
			if !bytes.Equal(got, tc.encoding) {
				t.Errorf("encoding = % x, want % x", got, tc.encoding)
			}
		})
	}
}

func TestDecodeVectorsSkip(t *testing.T) {
	// Every vector must be consumable as exactly one top-level element.
	for _, tc := range encodeVectors {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(tc.encoding)
			if err := r.Next(); err != nil {
				t.Fatalf("Next: %v", err)
			}
			raw, err := r.RawBytes()
			if err != nil {
				t.Fatalf("RawBytes: %v", err)
			}
			if !bytes.Equal(raw, tc.encoding) {
				t.Errorf("RawBytes = % x, want % x", raw, tc.encoding)
			}
			if err := r.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("second Next = %v, want EOF", err)
			}
		})
	}
}

func TestTagRoundTrip(t *testing.T) {
	tags := []Tag{
		Anonymous(),
		ContextTag(7),
		CommonProfileTag(0x1234),
		CommonProfileTag(0x12345678),
		ImplicitProfileTag(9),
		ImplicitProfileTag(0x10000),
		FullyQualifiedTag(0xFFF1, 0xDEED, 3),
		FullyQualifiedTag(0xFFF1, 0xDEED, 0xAA55FEED),
	}
	for _, tag := range tags {
		t.Run(tag.String(), func(t *testing.T) {
			b := appendTag(nil, tag)
			if len(b) != tag.Control().Size() {
				t.Fatalf("len = %d, want %d", len(b), tag.Control().Size())
			}
			if got := parseTag(tag.Control(), b); got != tag {
				t.Errorf("parseTag = %v, want %v", got, tag)
			}
		})
	}
}
