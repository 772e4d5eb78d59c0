package tlv

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// maxContainerDepth bounds nesting so a Reader stays a fixed-size value.
const maxContainerDepth = 24

// header describes one encoded element located in a buffer.
type header struct {
	typ      ElementType
	tag      Tag
	valStart int // first value octet (first child for containers)
	valLen   int // octets of the fixed field or string payload
}

func (h header) end() int { return h.valStart + h.valLen }

func readHeader(buf []byte, pos int) (header, error) {
	if pos >= len(buf) {
		return header{}, ErrUnexpectedEOF
	}
	typ, tc := parseControlOctet(buf[pos])
	if !typ.IsValid() {
		return header{}, ErrInvalidElementType
	}
	pos++
	if len(buf)-pos < tc.Size() {
		return header{}, ErrUnexpectedEOF
	}
	h := header{typ: typ, tag: parseTag(tc, buf[pos:])}
	pos += tc.Size()

	w := typ.fieldWidth()
	if len(buf)-pos < w {
		return header{}, ErrUnexpectedEOF
	}
	if !typ.IsString() {
		h.valStart, h.valLen = pos, w
		return h, nil
	}

	var n uint64
	switch w {
	case 1:
		n = uint64(buf[pos])
	case 2:
		n = uint64(binary.LittleEndian.Uint16(buf[pos:]))
	case 4:
		n = uint64(binary.LittleEndian.Uint32(buf[pos:]))
	case 8:
		n = binary.LittleEndian.Uint64(buf[pos:])
	}
	pos += w
	if n > uint64(len(buf)-pos) {
		return header{}, ErrUnexpectedEOF
	}
	h.valStart, h.valLen = pos, int(n)
	return h, nil
}

// skipElement returns the offset following the element that starts at pos,
// including every nested child and the closing marker of a container.
func skipElement(buf []byte, pos int) (int, error) {
	depth := 0
	for {
		h, err := readHeader(buf, pos)
		if err != nil {
			return 0, err
		}
		pos = h.end()
		switch {
		case h.typ.IsContainer():
			depth++
		case h.typ == ElementTypeEnd:
			depth--
			if depth < 0 {
				return 0, ErrUnexpectedEndOfContainer
			}
		}
		if depth == 0 {
			return pos, nil
		}
	}
}

// Reader walks TLV elements held in a byte slice. The zero value reads
// nothing; use NewReader.
type Reader struct {
	buf []byte
	off int

	depth      int
	containers [maxContainerDepth]ElementType

	hasElement bool
	start      int
	cur        header
	// unentered is set while the current element is a container whose
	// children have not been consumed.
	unentered bool
}

// NewReader returns a Reader positioned before the first element of b.
// The Reader never modifies b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Clone returns an independent copy of the cursor.
func (r *Reader) Clone() *Reader {
	c := *r
	return &c
}

// Next advances to the next element of the current container. It returns
// io.EOF at the end of the input or when the enclosing container is
// exhausted; in the latter case the Reader stays on the closing marker until
// ExitContainer is called.
func (r *Reader) Next() error {
	if r.unentered {
		next, err := skipElement(r.buf, r.start)
		if err != nil {
			return err
		}
		r.off = next
		r.unentered = false
	}
	r.hasElement = false

	if r.off >= len(r.buf) {
		if r.depth > 0 {
			return ErrUnexpectedEOF
		}
		return io.EOF
	}

	h, err := readHeader(r.buf, r.off)
	if err != nil {
		return err
	}
	if h.typ == ElementTypeEnd {
		if r.depth == 0 {
			return ErrUnexpectedEndOfContainer
		}
		return io.EOF
	}

	r.start = r.off
	r.cur = h
	r.hasElement = true
	r.off = h.end()
	r.unentered = h.typ.IsContainer()
	return nil
}

// Expect advances to the next element and checks that it carries tag.
func (r *Reader) Expect(tag Tag) error {
	if err := r.Next(); err != nil {
		return err
	}
	if r.cur.tag != tag {
		return ErrUnexpectedTag
	}
	return nil
}

func (r *Reader) Type() ElementType { return r.cur.typ }
func (r *Reader) Tag() Tag          { return r.cur.tag }
func (r *Reader) HasElement() bool  { return r.hasElement }

// ContainerDepth returns the number of containers entered and not yet exited.
func (r *Reader) ContainerDepth() int { return r.depth }

// ContainerType returns the type of the innermost entered container.
func (r *Reader) ContainerType() (ElementType, bool) {
	if r.depth == 0 {
		return ElementTypeEnd, false
	}
	return r.containers[r.depth-1], true
}

func (r *Reader) value(check func(ElementType) bool) ([]byte, error) {
	if !r.hasElement {
		return nil, ErrNoElement
	}
	if !check(r.cur.typ) {
		return nil, ErrTypeMismatch
	}
	return r.buf[r.cur.valStart:r.cur.end()], nil
}

// Int returns the current signed integer.
func (r *Reader) Int() (int64, error) {
	v, err := r.value(ElementType.IsSignedInt)
	if err != nil {
		return 0, err
	}
	switch len(v) {
	case 1:
		return int64(int8(v[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(v))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(v))), nil
	default:
		return int64(binary.LittleEndian.Uint64(v)), nil
	}
}

// Uint returns the current unsigned integer.
func (r *Reader) Uint() (uint64, error) {
	v, err := r.value(ElementType.IsUnsignedInt)
	if err != nil {
		return 0, err
	}
	switch len(v) {
	case 1:
		return uint64(v[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(v)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(v)), nil
	default:
		return binary.LittleEndian.Uint64(v), nil
	}
}

// Uint16 reads an unsigned integer that must fit in 16 bits.
func (r *Reader) Uint16() (uint16, error) {
	v, err := r.Uint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, ErrOverflow
	}
	return uint16(v), nil
}

// Uint32 reads an unsigned integer that must fit in 32 bits.
func (r *Reader) Uint32() (uint32, error) {
	v, err := r.Uint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

func (r *Reader) Bool() (bool, error) {
	if _, err := r.value(ElementType.IsBool); err != nil {
		return false, err
	}
	return r.cur.typ == ElementTypeTrue, nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.value(func(e ElementType) bool { return e == ElementTypeFloat32 })
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v)), nil
}

// Float64 accepts either float width.
func (r *Reader) Float64() (float64, error) {
	v, err := r.value(ElementType.IsFloat)
	if err != nil {
		return 0, err
	}
	if len(v) == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v))), nil
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v)), nil
}

// String returns the current UTF-8 string.
func (r *Reader) String() (string, error) {
	v, err := r.value(ElementType.IsUTF8String)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(v) {
		return "", ErrInvalidUTF8
	}
	return string(v), nil
}

// Bytes returns a copy of the current octet string.
func (r *Reader) Bytes() ([]byte, error) {
	v, err := r.value(ElementType.IsBytes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (r *Reader) Null() error {
	_, err := r.value(func(e ElementType) bool { return e == ElementTypeNull })
	return err
}

// EnterContainer descends into the current structure, array or list.
func (r *Reader) EnterContainer() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if !r.cur.typ.IsContainer() {
		return ErrTypeMismatch
	}
	if r.depth == maxContainerDepth {
		return ErrTooDeep
	}
	r.containers[r.depth] = r.cur.typ
	r.depth++
	r.off = r.cur.valStart
	r.hasElement = false
	r.unentered = false
	return nil
}

// ExitContainer discards the rest of the innermost container and positions
// the Reader after its closing marker.
func (r *Reader) ExitContainer() error {
	if r.depth == 0 {
		return ErrNotInContainer
	}
	if r.unentered {
		next, err := skipElement(r.buf, r.start)
		if err != nil {
			return err
		}
		r.off = next
		r.unentered = false
	}
	for {
		h, err := readHeader(r.buf, r.off)
		if err != nil {
			return err
		}
		if h.typ == ElementTypeEnd {
			r.off = h.end()
			break
		}
		if r.off, err = skipElement(r.buf, r.off); err != nil {
			return err
		}
	}
	r.depth--
	r.hasElement = false
	return nil
}

// Skip consumes the current element. For a container every child is
// consumed as well.
func (r *Reader) Skip() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if r.unentered {
		next, err := skipElement(r.buf, r.start)
		if err != nil {
			return err
		}
		r.off = next
		r.unentered = false
	}
	return nil
}

// RawBytes returns a copy of the complete encoding of the current element,
// control octet and tag included. It does not move the Reader.
func (r *Reader) RawBytes() ([]byte, error) {
	if !r.hasElement {
		return nil, ErrNoElement
	}
	end := r.cur.end()
	if r.cur.typ.IsContainer() {
		var err error
		if end, err = skipElement(r.buf, r.start); err != nil {
			return nil, err
		}
	}
	out := make([]byte, end-r.start)
	copy(out, r.buf[r.start:end])
	return out, nil
}

// Remaining reports how many undecoded octets follow the Reader position.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}
