// Package crypto provides the primitives the messaging core builds on:
// AES-CCM, SHA-256 based key derivation and group key management.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

const HashSize = sha256.Size

// SHA256 hashes the concatenation of parts.
func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACSHA256 returns the MAC of message under key.
func HMACSHA256(key, message []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(message)
	return m.Sum(nil)
}

// HMACEqual compares MACs in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
