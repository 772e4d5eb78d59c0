package tlv

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Dump writes the current element of r, and every element nested in it, as
// indented text. The tag of the current element itself is left out. r is
// left after the element.
func Dump(w io.Writer, r *Reader) error {
	return dump(w, r, 0)
}

func dump(w io.Writer, r *Reader, depth int) error {
	prefix := strings.Repeat("  ", depth)
	if depth > 0 && !r.Tag().IsAnonymous() {
		prefix += r.Tag().String() + " = "
	}
	typ := r.Type()

	if typ.IsContainer() {
		if _, err := fmt.Fprintf(w, "%s%s {\n", prefix, typ); err != nil {
			return err
		}
		if err := r.EnterContainer(); err != nil {
			return err
		}
		for {
			err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := dump(w, r, depth+1); err != nil {
				return err
			}
		}
		if err := r.ExitContainer(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%s}\n", strings.Repeat("  ", depth))
		return err
	}

	var value string
	switch {
	case typ.IsSignedInt():
		v, err := r.Int()
		if err != nil {
			return err
		}
		value = fmt.Sprintf("%d", v)
	case typ.IsUnsignedInt():
		v, err := r.Uint()
		if err != nil {
			return err
		}
		value = fmt.Sprintf("%d (0x%X)", v, v)
	case typ.IsBool():
		v, err := r.Bool()
		if err != nil {
			return err
		}
		value = fmt.Sprintf("%t", v)
	case typ.IsFloat():
		v, err := r.Float64()
		if err != nil {
			return err
		}
		value = fmt.Sprintf("%g", v)
	case typ.IsUTF8String():
		v, err := r.String()
		if err != nil {
			return err
		}
		value = fmt.Sprintf("%q", v)
	case typ.IsBytes():
		v, err := r.Bytes()
		if err != nil {
			return err
		}
		value = "hex:" + hex.EncodeToString(v)
	case typ == ElementTypeNull:
		value = "null"
	default:
		return fmt.Errorf("%w: %s", ErrInvalidElementType, typ)
	}
	_, err := fmt.Fprintf(w, "%s%s\n", prefix, value)
	return err
}
