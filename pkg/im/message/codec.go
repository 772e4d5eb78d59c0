package message

import (
	"io"

	"github.com/backkem/matter-core/pkg/tlv"
)

const tagRevision = 0xFF

// Encoder is implemented by top-level messages.
type Encoder interface {
	Encode(w *tlv.Writer) error
}

// Marshal encodes m into a fresh unbounded buffer.
func Marshal(m Encoder) ([]byte, error) {
	w := tlv.NewWriter(0)
	if err := m.Encode(w); err != nil {
		return nil, err
	}
	return w.Finish()
}

// encodeSteps runs the encoding steps in order and stops at the first error.
func encodeSteps(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func putOptionalUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](w *tlv.Writer, tag uint8, v *T) error {
	if v == nil {
		return nil
	}
	return w.PutUint(tlv.ContextTag(tag), uint64(*v))
}

// encodeArray writes n elements under tag with elem.
func encodeArray(w *tlv.Writer, tag uint8, n int, elem func(i int) error) error {
	if n == 0 {
		return nil
	}
	if err := w.StartArray(tlv.ContextTag(tag)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := elem(i); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

// decodeContainer enters the container under r, which must be of type typ,
// and calls field for every context-tagged member.
func decodeContainer(r *tlv.Reader, typ tlv.ElementType, field func(tag uint32) error) error {
	if r.Type() != typ {
		return ErrInvalidType
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}
	for {
		err := r.Next()
		if err == io.EOF {
			return r.ExitContainer()
		}
		if err != nil {
			return err
		}
		if !r.Tag().IsContext() {
			continue
		}
		if err := field(r.Tag().Number()); err != nil {
			return err
		}
	}
}

// decodeArray calls elem with r on each element of the array under r.
func decodeArray(r *tlv.Reader, elem func() error) error {
	if t := r.Type(); t != tlv.ElementTypeArray && t != tlv.ElementTypeList {
		return ErrInvalidType
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}
	for {
		err := r.Next()
		if err == io.EOF {
			return r.ExitContainer()
		}
		if err != nil {
			return err
		}
		if err := elem(); err != nil {
			return err
		}
	}
}

// decodeMessage reads the anonymous structure at the start of r.
func decodeMessage(r *tlv.Reader, field func(tag uint32) error) error {
	if err := r.Next(); err != nil {
		return err
	}
	return decodeContainer(r, tlv.ElementTypeStruct, field)
}

func readUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](r *tlv.Reader, dst *T) error {
	v, err := r.Uint()
	if err != nil {
		return err
	}
	*dst = T(v)
	if uint64(*dst) != v {
		return tlv.ErrOverflow
	}
	return nil
}

func readOptionalUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](r *tlv.Reader, dst **T) error {
	var v T
	if err := readUint(r, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// rawElement returns the element under r re-tagged as anonymous.
func rawElement(r *tlv.Reader) ([]byte, error) {
	raw, err := r.RawBytes()
	if err != nil {
		return nil, err
	}
	w := tlv.NewWriter(0)
	if err := w.PutRaw(tlv.Anonymous(), raw); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
