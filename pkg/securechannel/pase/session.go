package pase

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/crypto/spake2p"
)

// Role is the side of the handshake a Session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "Initiator"
	case RoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// State is the handshake step a Session has reached.
type State int

const (
	StateInit                 State = iota
	StateWaitingPBKDFResponse       // initiator sent PBKDFParamRequest
	StateWaitingPake1               // responder sent PBKDFParamResponse
	StateWaitingPake2               // initiator sent Pake1
	StateWaitingPake3               // responder sent Pake2
	StateWaitingStatusReport        // initiator sent Pake3
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	"Init", "WaitingPBKDFResponse", "WaitingPake1", "WaitingPake2",
	"WaitingPake3", "WaitingStatusReport", "Complete", "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Session is one side of a handshake. Each Handle method checks role and
// state, consumes one message and returns the next one to send. Any error
// after Start leaves the session Failed. A Session is not safe for
// concurrent use.
type Session struct {
	role  Role
	state State

	passcode   uint32    // initiator
	verifier   *Verifier // responder
	salt       []byte
	iterations uint32

	localSessionID uint16
	peerSessionID  uint16

	localRandom [RandomSize]byte

	reqBytes  []byte
	respBytes []byte

	spake *spake2p.Party
	keys  *SessionKeys

	rand io.Reader
}

// NewInitiator returns a commissioner side that learns the PBKDF
// parameters from the responder.
func NewInitiator(passcode uint32) (*Session, error) {
	if err := ValidatePasscode(passcode); err != nil {
		return nil, err
	}
	return &Session{role: RoleInitiator, passcode: passcode, rand: rand.Reader}, nil
}

// NewInitiatorWithParams returns a commissioner side that already knows the
// PBKDF parameters, e.g. from an onboarding payload.
func NewInitiatorWithParams(passcode uint32, salt []byte, iterations uint32) (*Session, error) {
	if err := ValidatePasscode(passcode); err != nil {
		return nil, err
	}
	if err := validatePBKDFParams(salt, iterations); err != nil {
		return nil, err
	}
	return &Session{
		role:       RoleInitiator,
		passcode:   passcode,
		salt:       append([]byte(nil), salt...),
		iterations: iterations,
		rand:       rand.Reader,
	}, nil
}

// NewResponder returns the device side for verifier, which must have been
// generated with salt and iterations.
func NewResponder(verifier *Verifier, salt []byte, iterations uint32) (*Session, error) {
	if verifier == nil || len(verifier.W0) != spake2p.ScalarSize || len(verifier.L) != spake2p.PointSize {
		return nil, ErrInvalidMessage
	}
	if err := validatePBKDFParams(salt, iterations); err != nil {
		return nil, err
	}
	return &Session{
		role:       RoleResponder,
		verifier:   verifier,
		salt:       append([]byte(nil), salt...),
		iterations: iterations,
		rand:       rand.Reader,
	}, nil
}

func (s *Session) Role() Role             { return s.role }
func (s *Session) State() State           { return s.state }
func (s *Session) LocalSessionID() uint16 { return s.localSessionID }
func (s *Session) PeerSessionID() uint16  { return s.peerSessionID }

// SessionKeys returns the derived keys, or nil before completion.
func (s *Session) SessionKeys() *SessionKeys {
	if s.state != StateComplete {
		return nil
	}
	return s.keys
}

// SetRandom replaces the randomness source, for deterministic tests.
func (s *Session) SetRandom(r io.Reader) { s.rand = r }

func (s *Session) expect(role Role, state State) error {
	if s.role != role || s.state != state {
		return ErrInvalidState
	}
	return nil
}

// fail marks the session failed and returns err.
func (s *Session) fail(err error) error {
	s.state = StateFailed
	return err
}

// Start returns the PBKDFParamRequest that opens the handshake.
func (s *Session) Start(localSessionID uint16) ([]byte, error) {
	if err := s.expect(RoleInitiator, StateInit); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.rand, s.localRandom[:]); err != nil {
		return nil, err
	}
	s.localSessionID = localSessionID
	req := &PBKDFParamRequest{
		InitiatorRandom:    s.localRandom,
		InitiatorSessionID: localSessionID,
		PasscodeID:         DefaultPasscodeID,
		HasPBKDFParameters: s.salt != nil,
	}
	data, err := req.Encode()
	if err != nil {
		return nil, err
	}
	s.reqBytes = data
	s.state = StateWaitingPBKDFResponse
	return data, nil
}

// HandlePBKDFParamRequest answers the opening request with the responder's
// session id and, unless the initiator has them, the PBKDF parameters.
func (s *Session) HandlePBKDFParamRequest(data []byte, localSessionID uint16) ([]byte, error) {
	if err := s.expect(RoleResponder, StateInit); err != nil {
		return nil, err
	}
	req, err := DecodePBKDFParamRequest(data)
	if err != nil {
		return nil, s.fail(err)
	}
	if req.PasscodeID != DefaultPasscodeID {
		return nil, s.fail(ErrInvalidPasscodeID)
	}
	if _, err := io.ReadFull(s.rand, s.localRandom[:]); err != nil {
		return nil, s.fail(err)
	}
	s.localSessionID = localSessionID
	s.peerSessionID = req.InitiatorSessionID

	resp := &PBKDFParamResponse{
		InitiatorRandom:    req.InitiatorRandom,
		ResponderRandom:    s.localRandom,
		ResponderSessionID: localSessionID,
	}
	if !req.HasPBKDFParameters {
		resp.PBKDFParams = &PBKDFParameters{Iterations: s.iterations, Salt: s.salt}
	}
	out, err := resp.Encode()
	if err != nil {
		return nil, s.fail(err)
	}
	s.reqBytes, s.respBytes = append([]byte(nil), data...), out

	s.spake, err = spake2p.NewVerifier(s.context(), s.verifier.W0, s.verifier.L)
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateWaitingPake1
	return out, nil
}

// HandlePBKDFParamResponse derives w0 and w1 and returns Pake1.
func (s *Session) HandlePBKDFParamResponse(data []byte) ([]byte, error) {
	if err := s.expect(RoleInitiator, StateWaitingPBKDFResponse); err != nil {
		return nil, err
	}
	resp, err := DecodePBKDFParamResponse(data)
	if err != nil {
		return nil, s.fail(err)
	}
	if subtle.ConstantTimeCompare(resp.InitiatorRandom[:], s.localRandom[:]) != 1 {
		return nil, s.fail(ErrRandomMismatch)
	}
	if s.salt == nil {
		if resp.PBKDFParams == nil {
			return nil, s.fail(ErrInvalidMessage)
		}
		if err := validatePBKDFParams(resp.PBKDFParams.Salt, resp.PBKDFParams.Iterations); err != nil {
			return nil, s.fail(err)
		}
		s.salt, s.iterations = resp.PBKDFParams.Salt, resp.PBKDFParams.Iterations
	}
	s.peerSessionID = resp.ResponderSessionID
	s.respBytes = append([]byte(nil), data...)

	w0, w1 := spake2p.DeriveW0W1(s.passcode, s.salt, int(s.iterations))
	if s.spake, err = spake2p.NewProver(s.context(), w0, w1); err != nil {
		return nil, s.fail(err)
	}
	s.spake.SetRandom(s.rand)
	pA, err := s.spake.Share()
	if err != nil {
		return nil, s.fail(err)
	}
	out, err := (&Pake1{PA: pA}).Encode()
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateWaitingPake2
	return out, nil
}

// HandlePake1 returns Pake2 carrying the responder share and confirmation.
func (s *Session) HandlePake1(data []byte) ([]byte, error) {
	if err := s.expect(RoleResponder, StateWaitingPake1); err != nil {
		return nil, err
	}
	p1, err := DecodePake1(data)
	if err != nil {
		return nil, s.fail(err)
	}
	s.spake.SetRandom(s.rand)
	pB, err := s.spake.Share()
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.spake.Finish(p1.PA); err != nil {
		return nil, s.fail(err)
	}
	cB, err := s.spake.Confirmation()
	if err != nil {
		return nil, s.fail(err)
	}
	out, err := (&Pake2{PB: pB, CB: cB}).Encode()
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateWaitingPake3
	return out, nil
}

// HandlePake2 checks the responder confirmation and returns Pake3.
func (s *Session) HandlePake2(data []byte) ([]byte, error) {
	if err := s.expect(RoleInitiator, StateWaitingPake2); err != nil {
		return nil, err
	}
	p2, err := DecodePake2(data)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.spake.Finish(p2.PB); err != nil {
		return nil, s.fail(err)
	}
	if err := s.spake.VerifyConfirmation(p2.CB); err != nil {
		return nil, s.fail(ErrConfirmationFailed)
	}
	cA, err := s.spake.Confirmation()
	if err != nil {
		return nil, s.fail(err)
	}
	out, err := (&Pake3{CA: cA}).Encode()
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateWaitingStatusReport
	return out, nil
}

// HandlePake3 checks the initiator confirmation and derives the session
// keys. The caller answers with a success or failure StatusReport.
func (s *Session) HandlePake3(data []byte) error {
	if err := s.expect(RoleResponder, StateWaitingPake3); err != nil {
		return err
	}
	p3, err := DecodePake3(data)
	if err != nil {
		return s.fail(err)
	}
	if err := s.spake.VerifyConfirmation(p3.CA); err != nil {
		return s.fail(ErrConfirmationFailed)
	}
	return s.complete()
}

// HandleStatusReport completes the initiator side once the responder
// reported success.
func (s *Session) HandleStatusReport(success bool) error {
	if err := s.expect(RoleInitiator, StateWaitingStatusReport); err != nil {
		return err
	}
	if !success {
		return s.fail(ErrInvalidStatusReport)
	}
	return s.complete()
}

// context hashes the prefix and both PBKDF messages as sent.
func (s *Session) context() []byte {
	return crypto.SHA256([]byte(ContextPrefix), s.reqBytes, s.respBytes)
}

func (s *Session) complete() error {
	ke, err := s.spake.SharedSecret()
	if err != nil {
		return s.fail(ErrSessionNotReady)
	}
	okm, err := crypto.HKDFSHA256(ke, nil, []byte("SessionKeys"), 2*SessionKeySize+AttestationChallengeSize)
	if err != nil {
		return s.fail(err)
	}
	s.keys = &SessionKeys{
		I2RKey:               okm[:SessionKeySize],
		R2IKey:               okm[SessionKeySize : 2*SessionKeySize],
		AttestationChallenge: okm[2*SessionKeySize:],
	}
	s.state = StateComplete
	return nil
}
