package pase

import (
	"github.com/backkem/matter-core/pkg/crypto/spake2p"
)

// VerifierSize is the serialized length of a Verifier: w0 followed by L.
const VerifierSize = spake2p.ScalarSize + spake2p.PointSize

// Verifier is what a commissionee stores instead of its passcode.
type Verifier struct {
	W0 []byte
	L  []byte
}

// GenerateVerifier derives the verifier for passcode. Salt and iteration
// count must be in range, and the passcode must not be a trivial one.
func GenerateVerifier(passcode uint32, salt []byte, iterations uint32) (*Verifier, error) {
	if err := ValidatePasscode(passcode); err != nil {
		return nil, err
	}
	if err := validatePBKDFParams(salt, iterations); err != nil {
		return nil, err
	}
	w0, w1 := spake2p.DeriveW0W1(passcode, salt, int(iterations))
	l, err := spake2p.ComputeL(w1)
	if err != nil {
		return nil, err
	}
	return &Verifier{W0: w0, L: l}, nil
}

var trivialPasscodes = map[uint32]bool{
	0: true, 11111111: true, 22222222: true, 33333333: true, 44444444: true,
	55555555: true, 66666666: true, 77777777: true, 88888888: true, 99999999: true,
	12345678: true, 87654321: true,
}

// ValidatePasscode rejects codes of more than eight digits, codes of one
// repeated digit and the two sequential codes.
func ValidatePasscode(passcode uint32) error {
	if passcode > 99999999 || trivialPasscodes[passcode] {
		return ErrInvalidPasscode
	}
	return nil
}

func validatePBKDFParams(salt []byte, iterations uint32) error {
	if len(salt) < PBKDFMinSaltLength || len(salt) > PBKDFMaxSaltLength {
		return ErrInvalidSalt
	}
	if iterations < PBKDFMinIterations || iterations > PBKDFMaxIterations {
		return ErrInvalidIterations
	}
	return nil
}

// Serialize returns w0 followed by L.
func (v *Verifier) Serialize() []byte {
	out := make([]byte, 0, VerifierSize)
	out = append(out, v.W0...)
	return append(out, v.L...)
}

// DeserializeVerifier parses the output of Serialize.
func DeserializeVerifier(data []byte) (*Verifier, error) {
	if len(data) != VerifierSize {
		return nil, ErrInvalidMessage
	}
	return &Verifier{
		W0: append([]byte(nil), data[:spake2p.ScalarSize]...),
		L:  append([]byte(nil), data[spake2p.ScalarSize:]...),
	}, nil
}
