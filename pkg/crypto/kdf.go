package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 iteration bounds accepted during PASE parameter exchange.
const (
	PBKDF2IterationsMin = 1000
	PBKDF2IterationsMax = 100000
)

// HKDFSHA256 derives length octets from inputKey (RFC 5869). salt and info
// may be empty.
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, inputKey, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// PBKDF2SHA256 stretches a passcode into keyLen octets.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}
