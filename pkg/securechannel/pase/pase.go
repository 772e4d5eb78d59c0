// Package pase implements passcode-authenticated session establishment.
//
// A commissioner that knows the setup passcode (initiator) and a device
// holding the matching Verifier (responder) run SPAKE2+ over four messages
// and a closing StatusReport:
//
//	initiator                          responder
//	Start            PBKDFParamRequest  HandlePBKDFParamRequest
//	HandlePBKDF...   PBKDFParamResponse
//	                 Pake1              HandlePake1
//	HandlePake2      Pake2
//	                 Pake3              HandlePake3
//	HandleStatus...  StatusReport
//
// Session is the bare state machine. Pairing drives it over an exchange and
// installs the resulting secure session.
package pase

import (
	"errors"

	"github.com/backkem/matter-core/pkg/crypto"
)

const (
	// ContextPrefix starts the SPAKE2+ context hash.
	ContextPrefix = "CHIP PAKE V1 Commissioning"

	RandomSize        = 32
	DefaultPasscodeID = 0

	SessionKeySize           = crypto.SymmetricKeySize
	AttestationChallengeSize = 16
)

// Ranges accepted for the PBKDF salt and iteration count.
const (
	PBKDFMinSaltLength = 16
	PBKDFMaxSaltLength = 32
	PBKDFMinIterations = 1000
	PBKDFMaxIterations = 100000
)

var (
	ErrInvalidState        = errors.New("pase: invalid protocol state")
	ErrInvalidMessage      = errors.New("pase: invalid message")
	ErrInvalidPasscode     = errors.New("pase: invalid passcode")
	ErrInvalidSalt         = errors.New("pase: invalid salt length")
	ErrInvalidIterations   = errors.New("pase: invalid iteration count")
	ErrInvalidPasscodeID   = errors.New("pase: invalid passcode ID")
	ErrInvalidRandom       = errors.New("pase: invalid random value")
	ErrRandomMismatch      = errors.New("pase: initiator random mismatch")
	ErrConfirmationFailed  = errors.New("pase: key confirmation failed")
	ErrUnexpectedMessage   = errors.New("pase: unexpected message type")
	ErrSessionNotReady     = errors.New("pase: session not ready")
	ErrPeerBusy            = errors.New("pase: peer is busy")
	ErrInvalidStatusReport = errors.New("pase: peer reported failure")
	ErrTimeout             = errors.New("pase: peer did not respond")
	ErrPairingInProgress   = errors.New("pase: pairing already in progress")
	ErrCancelled           = errors.New("pase: pairing cancelled")
)

// SessionKeys are the outputs of a completed handshake.
type SessionKeys struct {
	I2RKey               []byte
	R2IKey               []byte
	AttestationChallenge []byte
}
