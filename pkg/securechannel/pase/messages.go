package pase

import (
	"io"

	"github.com/backkem/matter-core/pkg/tlv"
)

// Context tags of the handshake messages.
const (
	tagReqInitiatorRandom    = 1
	tagReqInitiatorSessionID = 2
	tagReqPasscodeID         = 3
	tagReqHasPBKDFParams     = 4

	tagRespInitiatorRandom    = 1
	tagRespResponderRandom    = 2
	tagRespResponderSessionID = 3
	tagRespPBKDFParams        = 4

	tagParamsIterations = 1
	tagParamsSalt       = 2
)

// Pake1..3 members are byte strings tagged 1, 2 in field order. Session
// parameter structures (tag 5 of both PBKDF messages) are skipped on decode
// and never sent.

// PBKDFParameters are the passcode stretching parameters.
type PBKDFParameters struct {
	Iterations uint32
	Salt       []byte
}

// PBKDFParamRequest opens the handshake.
type PBKDFParamRequest struct {
	InitiatorRandom    [RandomSize]byte
	InitiatorSessionID uint16
	PasscodeID         uint16
	HasPBKDFParameters bool
}

// PBKDFParamResponse answers the request. PBKDFParams is nil when the
// initiator announced it already has them.
type PBKDFParamResponse struct {
	InitiatorRandom    [RandomSize]byte
	ResponderRandom    [RandomSize]byte
	ResponderSessionID uint16
	PBKDFParams        *PBKDFParameters
}

// Pake1 carries the initiator's share pA.
type Pake1 struct {
	PA []byte
}

// Pake2 carries the responder's share pB and confirmation cB.
type Pake2 struct {
	PB []byte
	CB []byte
}

// Pake3 carries the initiator's confirmation cA.
type Pake3 struct {
	CA []byte
}

func encodeStruct(fields func(w *tlv.Writer) error) ([]byte, error) {
	w := tlv.NewWriter(0)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := fields(w); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return w.Finish()
}

// decodeStruct enters the anonymous top-level structure of data and calls
// field for every context-tagged member. Other members are skipped.
func decodeStruct(data []byte, field func(r *tlv.Reader, tag uint32) error) error {
	r := tlv.NewReader(data)
	if err := r.Next(); err != nil {
		return ErrInvalidMessage
	}
	if r.Type() != tlv.ElementTypeStruct {
		return ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}
	return decodeMembers(r, field)
}

func decodeMembers(r *tlv.Reader, field func(r *tlv.Reader, tag uint32) error) error {
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
		if err := field(r, r.Tag().Number()); err != nil {
			return err
		}
	}
}

func readRandom(r *tlv.Reader, dst *[RandomSize]byte) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	if len(b) != RandomSize {
		return ErrInvalidRandom
	}
	copy(dst[:], b)
	return nil
}

func (p *PBKDFParamRequest) Encode() ([]byte, error) {
	return encodeStruct(func(w *tlv.Writer) error {
		if err := w.PutBytes(tlv.ContextTag(tagReqInitiatorRandom), p.InitiatorRandom[:]); err != nil {
			return err
		}
		if err := w.PutUint16(tlv.ContextTag(tagReqInitiatorSessionID), p.InitiatorSessionID); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(tagReqPasscodeID), uint64(p.PasscodeID)); err != nil {
			return err
		}
		return w.PutBool(tlv.ContextTag(tagReqHasPBKDFParams), p.HasPBKDFParameters)
	})
}

func DecodePBKDFParamRequest(data []byte) (*PBKDFParamRequest, error) {
	p := &PBKDFParamRequest{}
	var seen int
	err := decodeStruct(data, func(r *tlv.Reader, tag uint32) (err error) {
		switch tag {
		case tagReqInitiatorRandom:
			seen++
			return readRandom(r, &p.InitiatorRandom)
		case tagReqInitiatorSessionID:
			seen++
			p.InitiatorSessionID, err = r.Uint16()
		case tagReqPasscodeID:
			p.PasscodeID, err = r.Uint16()
		case tagReqHasPBKDFParams:
			p.HasPBKDFParameters, err = r.Bool()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if seen != 2 {
		return nil, ErrInvalidMessage
	}
	return p, nil
}

func (p *PBKDFParamResponse) Encode() ([]byte, error) {
	return encodeStruct(func(w *tlv.Writer) error {
		if err := w.PutBytes(tlv.ContextTag(tagRespInitiatorRandom), p.InitiatorRandom[:]); err != nil {
			return err
		}
		if err := w.PutBytes(tlv.ContextTag(tagRespResponderRandom), p.ResponderRandom[:]); err != nil {
			return err
		}
		if err := w.PutUint16(tlv.ContextTag(tagRespResponderSessionID), p.ResponderSessionID); err != nil {
			return err
		}
		if p.PBKDFParams == nil {
			return nil
		}
		if err := w.StartStructure(tlv.ContextTag(tagRespPBKDFParams)); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(tagParamsIterations), uint64(p.PBKDFParams.Iterations)); err != nil {
			return err
		}
		if err := w.PutBytes(tlv.ContextTag(tagParamsSalt), p.PBKDFParams.Salt); err != nil {
			return err
		}
		return w.EndContainer()
	})
}

func DecodePBKDFParamResponse(data []byte) (*PBKDFParamResponse, error) {
	p := &PBKDFParamResponse{}
	var seen int
	err := decodeStruct(data, func(r *tlv.Reader, tag uint32) (err error) {
		switch tag {
		case tagRespInitiatorRandom:
			seen++
			return readRandom(r, &p.InitiatorRandom)
		case tagRespResponderRandom:
			seen++
			return readRandom(r, &p.ResponderRandom)
		case tagRespResponderSessionID:
			seen++
			p.ResponderSessionID, err = r.Uint16()
		case tagRespPBKDFParams:
			p.PBKDFParams, err = decodePBKDFParams(r)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if seen != 3 {
		return nil, ErrInvalidMessage
	}
	return p, nil
}

func decodePBKDFParams(r *tlv.Reader) (*PBKDFParameters, error) {
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	params := &PBKDFParameters{}
	err := decodeMembers(r, func(r *tlv.Reader, tag uint32) (err error) {
		switch tag {
		case tagParamsIterations:
			params.Iterations, err = r.Uint32()
		case tagParamsSalt:
			params.Salt, err = r.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if params.Iterations == 0 || len(params.Salt) == 0 {
		return nil, ErrInvalidMessage
	}
	return params, nil
}

// encodeBytes writes a structure of byte string members in tag order.
func encodeBytes(fields ...[]byte) ([]byte, error) {
	return encodeStruct(func(w *tlv.Writer) error {
		for i, b := range fields {
			if err := w.PutBytes(tlv.ContextTag(uint8(i+1)), b); err != nil {
				return err
			}
		}
		return nil
	})
}

// decodeBytes reads the byte string members tagged 1..len(dst). Every one
// must be present.
func decodeBytes(data []byte, dst ...*[]byte) error {
	err := decodeStruct(data, func(r *tlv.Reader, tag uint32) (err error) {
		if tag == 0 || int(tag) > len(dst) {
			return nil
		}
		*dst[tag-1], err = r.Bytes()
		return err
	})
	if err != nil {
		return err
	}
	for _, d := range dst {
		if len(*d) == 0 {
			return ErrInvalidMessage
		}
	}
	return nil
}

func (p *Pake1) Encode() ([]byte, error) { return encodeBytes(p.PA) }

func DecodePake1(data []byte) (*Pake1, error) {
	p := &Pake1{}
	if err := decodeBytes(data, &p.PA); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pake2) Encode() ([]byte, error) { return encodeBytes(p.PB, p.CB) }

func DecodePake2(data []byte) (*Pake2, error) {
	p := &Pake2{}
	if err := decodeBytes(data, &p.PB, &p.CB); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pake3) Encode() ([]byte, error) { return encodeBytes(p.CA) }

func DecodePake3(data []byte) (*Pake3, error) {
	p := &Pake3{}
	if err := decodeBytes(data, &p.CA); err != nil {
		return nil, err
	}
	return p, nil
}
