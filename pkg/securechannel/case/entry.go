package casesession

import (
	"errors"
	"io"
	"time"

	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/tlv"
)

const (
	// ResumptionIDSize is the length of a resumption id.
	ResumptionIDSize = 16
	// RandomSize is the length of the Sigma1 initiator random.
	RandomSize = 32

	entryVersion = 1
)

var (
	ErrInvalidEntry = errors.New("casesession: invalid resumption entry")
	ErrVersion      = errors.New("casesession: unsupported entry version")
)

// Key derivation labels of the resumption handshake.
var (
	sigma1ResumeInfo = []byte("Sigma1_Resume")
	sigma2ResumeInfo = []byte("Sigma2_Resume")
)

// ResumptionID identifies a resumable session.
type ResumptionID [ResumptionIDSize]byte

// ResumptionEntry is what a completed CASE session leaves behind for a
// later resumption.
type ResumptionEntry struct {
	ResumptionID   ResumptionID
	SharedSecret   []byte
	MessageDigest  []byte
	PeerNodeID     uint64
	LocalSessionID uint16
	PeerSessionID  uint16
	FabricIndex    uint8

	// SetupTime orders entries for eviction.
	SetupTime time.Time
}

const (
	tagVersion = iota + 1
	tagSharedSecret
	tagMessageDigest
	tagPeerNodeID
	tagLocalSessionID
	tagPeerSessionID
	tagResumptionID
	tagFabricIndex
	tagSetupTime
)

// MarshalBinary encodes the entry as a TLV structure.
func (e *ResumptionEntry) MarshalBinary() ([]byte, error) {
	w := tlv.NewWriter(0)
	steps := []func() error{
		func() error { return w.StartStructure(tlv.Anonymous()) },
		func() error { return w.PutUint(tlv.ContextTag(tagVersion), entryVersion) },
		func() error { return w.PutBytes(tlv.ContextTag(tagSharedSecret), e.SharedSecret) },
		func() error { return w.PutBytes(tlv.ContextTag(tagMessageDigest), e.MessageDigest) },
		func() error { return w.PutUint(tlv.ContextTag(tagPeerNodeID), e.PeerNodeID) },
		func() error { return w.PutUint16(tlv.ContextTag(tagLocalSessionID), e.LocalSessionID) },
		func() error { return w.PutUint16(tlv.ContextTag(tagPeerSessionID), e.PeerSessionID) },
		func() error { return w.PutBytes(tlv.ContextTag(tagResumptionID), e.ResumptionID[:]) },
		func() error { return w.PutUint(tlv.ContextTag(tagFabricIndex), uint64(e.FabricIndex)) },
		func() error { return w.PutInt(tlv.ContextTag(tagSetupTime), e.SetupTime.UnixMilli()) },
		w.EndContainer,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return w.Finish()
}

// UnmarshalBinary decodes an entry written by MarshalBinary.
func (e *ResumptionEntry) UnmarshalBinary(data []byte) error {
	r := tlv.NewReader(data)
	if err := r.Next(); err != nil || r.Type() != tlv.ElementTypeStruct {
		return ErrInvalidEntry
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}
	*e = ResumptionEntry{}
	var haveID bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if !r.Tag().IsContext() {
			continue
		}
		switch r.Tag().Number() {
		case tagVersion:
			v, err := r.Uint()
			if err != nil {
				return err
			}
			if v != entryVersion {
				return ErrVersion
			}
		case tagSharedSecret:
			e.SharedSecret, err = r.Bytes()
		case tagMessageDigest:
			e.MessageDigest, err = r.Bytes()
		case tagPeerNodeID:
			e.PeerNodeID, err = r.Uint()
		case tagLocalSessionID:
			e.LocalSessionID, err = r.Uint16()
		case tagPeerSessionID:
			e.PeerSessionID, err = r.Uint16()
		case tagResumptionID:
			var id []byte
			if id, err = r.Bytes(); err == nil {
				if len(id) != ResumptionIDSize {
					return ErrInvalidEntry
				}
				copy(e.ResumptionID[:], id)
				haveID = true
			}
		case tagFabricIndex:
			var v uint64
			if v, err = r.Uint(); err == nil {
				e.FabricIndex = uint8(v)
			}
		case tagSetupTime:
			var ms int64
			if ms, err = r.Int(); err == nil {
				e.SetupTime = time.UnixMilli(ms)
			}
		}
		if err != nil {
			return err
		}
	}
	if !haveID || len(e.SharedSecret) == 0 {
		return ErrInvalidEntry
	}
	return nil
}

// Sigma1ResumeKey derives the key of the initiator's resume MIC from the
// stored shared secret.
func (e *ResumptionEntry) Sigma1ResumeKey(initiatorRandom [RandomSize]byte) ([]byte, error) {
	return e.resumeKey(sigma1ResumeInfo, initiatorRandom, e.ResumptionID)
}

// Sigma2ResumeKey derives the key of the responder's resume MIC, salted
// with the resumption id the responder hands out next.
func (e *ResumptionEntry) Sigma2ResumeKey(initiatorRandom [RandomSize]byte, next ResumptionID) ([]byte, error) {
	return e.resumeKey(sigma2ResumeInfo, initiatorRandom, next)
}

func (e *ResumptionEntry) resumeKey(info []byte, random [RandomSize]byte, id ResumptionID) ([]byte, error) {
	salt := make([]byte, 0, RandomSize+ResumptionIDSize)
	salt = append(salt, random[:]...)
	salt = append(salt, id[:]...)
	return crypto.HKDFSHA256(e.SharedSecret, salt, info, crypto.SymmetricKeySize)
}
