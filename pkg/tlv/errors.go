package tlv

import "errors"

var (
	// ErrBufferTooSmall is returned by a Writer whose size limit would be exceeded.
	ErrBufferTooSmall = errors.New("tlv: buffer too small")

	// ErrUnexpectedEOF is returned when an element is truncated.
	ErrUnexpectedEOF = errors.New("tlv: unexpected end of input")

	ErrInvalidElementType = errors.New("tlv: invalid element type")

	// ErrTypeMismatch is returned when a value is read as the wrong type.
	ErrTypeMismatch = errors.New("tlv: type mismatch")

	ErrNotInContainer = errors.New("tlv: not in container")

	// ErrUnexpectedEndOfContainer is returned for an end-of-container marker
	// at the outermost level.
	ErrUnexpectedEndOfContainer = errors.New("tlv: unexpected end of container")

	ErrContainerOpen = errors.New("tlv: container not closed")
	ErrInvalidUTF8   = errors.New("tlv: invalid UTF-8 string")
	ErrNoElement     = errors.New("tlv: no current element")
	ErrOverflow      = errors.New("tlv: value overflow")
	ErrTooDeep       = errors.New("tlv: container nesting too deep")

	// ErrUnexpectedTag is returned by Reader.Expect when the next element
	// carries a different tag.
	ErrUnexpectedTag = errors.New("tlv: unexpected element tag")
)
