package tlv

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Writer appends TLV elements to an internal buffer. A Writer created with a
// positive limit refuses any element that would take the encoding past that
// limit, leaving the buffer as it was before the failed call.
type Writer struct {
	buf        []byte
	limit      int
	reserved   int
	containers []ElementType
}

// NewWriter returns a Writer bounded to limit octets. A limit of zero or
// less means unbounded.
func NewWriter(limit int) *Writer {
	return &Writer{limit: limit}
}

// Bytes returns the encoded octets. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the Writer and forgets open containers and reservations.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.containers = w.containers[:0]
	w.reserved = 0
}

// Checkpoint captures the Writer state so a partially encoded element can
// be discarded with Rollback.
type Checkpoint struct {
	n, depth int
}

// Checkpoint records the current write position.
func (w *Writer) Checkpoint() Checkpoint {
	return Checkpoint{n: len(w.buf), depth: len(w.containers)}
}

// Rollback discards everything written after c.
func (w *Writer) Rollback(c Checkpoint) {
	w.buf = w.buf[:c.n]
	w.containers = w.containers[:c.depth]
}

// Reserve holds back n octets of the limit, typically for container end
// markers that must still fit once the payload is complete.
func (w *Writer) Reserve(n int) error {
	if w.limit > 0 && len(w.buf)+w.reserved+n > w.limit {
		return ErrBufferTooSmall
	}
	w.reserved += n
	return nil
}

// Unreserve gives back octets held by Reserve.
func (w *Writer) Unreserve(n int) {
	w.reserved -= n
	if w.reserved < 0 {
		w.reserved = 0
	}
}

// Finish verifies that every container was closed and returns the encoding.
func (w *Writer) Finish() ([]byte, error) {
	if len(w.containers) != 0 {
		return nil, ErrContainerOpen
	}
	return w.buf, nil
}

// commit checks the limit after an append that grew the buffer from n.
func (w *Writer) commit(n int) error {
	if w.limit > 0 && len(w.buf)+w.reserved > w.limit {
		w.buf = w.buf[:n]
		return ErrBufferTooSmall
	}
	return nil
}

func (w *Writer) put(typ ElementType, tag Tag, field []byte) error {
	n := len(w.buf)
	w.buf = append(w.buf, controlOctet(typ, tag.Control()))
	w.buf = appendTag(w.buf, tag)
	w.buf = append(w.buf, field...)
	return w.commit(n)
}

// PutInt writes v using the narrowest signed encoding.
func (w *Writer) PutInt(tag Tag, v int64) error {
	var b [8]byte
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		b[0] = byte(v)
		return w.put(ElementTypeInt8, tag, b[:1])
	case v >= math.MinInt16 && v <= math.MaxInt16:
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		return w.put(ElementTypeInt16, tag, b[:2])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return w.put(ElementTypeInt32, tag, b[:4])
	}
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return w.put(ElementTypeInt64, tag, b[:8])
}

// PutUint writes v using the narrowest unsigned encoding.
func (w *Writer) PutUint(tag Tag, v uint64) error {
	var b [8]byte
	switch {
	case v <= math.MaxUint8:
		b[0] = byte(v)
		return w.put(ElementTypeUInt8, tag, b[:1])
	case v <= math.MaxUint16:
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		return w.put(ElementTypeUInt16, tag, b[:2])
	case v <= math.MaxUint32:
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return w.put(ElementTypeUInt32, tag, b[:4])
	}
	binary.LittleEndian.PutUint64(b[:], v)
	return w.put(ElementTypeUInt64, tag, b[:8])
}

// PutUint16 always uses the two-octet encoding, for fields such as session
// ids whose width is fixed on the wire.
func (w *Writer) PutUint16(tag Tag, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.put(ElementTypeUInt16, tag, b[:])
}

func (w *Writer) PutBool(tag Tag, v bool) error {
	if v {
		return w.put(ElementTypeTrue, tag, nil)
	}
	return w.put(ElementTypeFalse, tag, nil)
}

func (w *Writer) PutFloat32(tag Tag, v float32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return w.put(ElementTypeFloat32, tag, b[:])
}

func (w *Writer) PutFloat64(tag Tag, v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return w.put(ElementTypeFloat64, tag, b[:])
}

func (w *Writer) PutNull(tag Tag) error {
	return w.put(ElementTypeNull, tag, nil)
}

// PutString writes a UTF-8 string.
func (w *Writer) PutString(tag Tag, s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	return w.putString(ElementTypeUTF8_1, tag, []byte(s))
}

// PutBytes writes an octet string.
func (w *Writer) PutBytes(tag Tag, b []byte) error {
	return w.putString(ElementTypeBytes1, tag, b)
}

// putString picks the length width and offsets base (the 1-octet variant).
func (w *Writer) putString(base ElementType, tag Tag, data []byte) error {
	var lenField [8]byte
	var typ ElementType
	var width int
	switch l := uint64(len(data)); {
	case l <= math.MaxUint8:
		typ, width = base, 1
		lenField[0] = byte(l)
	case l <= math.MaxUint16:
		typ, width = base+1, 2
		binary.LittleEndian.PutUint16(lenField[:], uint16(l))
	case l <= math.MaxUint32:
		typ, width = base+2, 4
		binary.LittleEndian.PutUint32(lenField[:], uint32(l))
	default:
		typ, width = base+3, 8
		binary.LittleEndian.PutUint64(lenField[:], l)
	}
	n := len(w.buf)
	w.buf = append(w.buf, controlOctet(typ, tag.Control()))
	w.buf = appendTag(w.buf, tag)
	w.buf = append(w.buf, lenField[:width]...)
	w.buf = append(w.buf, data...)
	return w.commit(n)
}

func (w *Writer) startContainer(typ ElementType, tag Tag) error {
	if err := w.put(typ, tag, nil); err != nil {
		return err
	}
	w.containers = append(w.containers, typ)
	return nil
}

func (w *Writer) StartStructure(tag Tag) error { return w.startContainer(ElementTypeStruct, tag) }
func (w *Writer) StartArray(tag Tag) error     { return w.startContainer(ElementTypeArray, tag) }
func (w *Writer) StartList(tag Tag) error      { return w.startContainer(ElementTypeList, tag) }

// EndContainer closes the innermost open container.
func (w *Writer) EndContainer() error {
	if len(w.containers) == 0 {
		return ErrNotInContainer
	}
	n := len(w.buf)
	w.buf = append(w.buf, byte(ElementTypeEnd))
	if err := w.commit(n); err != nil {
		return err
	}
	w.containers = w.containers[:len(w.containers)-1]
	return nil
}

// ContainerDepth returns the number of open containers.
func (w *Writer) ContainerDepth() int { return len(w.containers) }

// PutRaw writes a complete pre-encoded element under a new tag. raw must be
// the output of Reader.RawBytes or equivalent.
func (w *Writer) PutRaw(tag Tag, raw []byte) error {
	if len(raw) == 0 {
		return ErrUnexpectedEOF
	}
	typ, tc := parseControlOctet(raw[0])
	if !typ.IsValid() || typ == ElementTypeEnd {
		return ErrInvalidElementType
	}
	if len(raw) < 1+tc.Size() {
		return ErrUnexpectedEOF
	}
	n := len(w.buf)
	w.buf = append(w.buf, controlOctet(typ, tag.Control()))
	w.buf = appendTag(w.buf, tag)
	w.buf = append(w.buf, raw[1+tc.Size():]...)
	return w.commit(n)
}

// CopyElement writes the element under r's cursor with a new tag.
func (w *Writer) CopyElement(tag Tag, r *Reader) error {
	raw, err := r.RawBytes()
	if err != nil {
		return err
	}
	return w.PutRaw(tag, raw)
}
