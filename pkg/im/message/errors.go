package message

import "errors"

var (
	ErrInvalidType  = errors.New("im: invalid TLV type")
	ErrMissingField = errors.New("im: missing required field")
)
