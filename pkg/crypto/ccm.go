package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// SymmetricKeySize is the AES-128 key length.
	SymmetricKeySize = 16
	// CCMNonceSize is the nonce length used by message security.
	CCMNonceSize = 13
	// CCMTagSize is the MIC length used by message security.
	CCMTagSize = 16

	blockSize = aes.BlockSize
)

var (
	ErrInvalidKeySize   = errors.New("crypto: key must be 16 bytes")
	ErrInvalidNonceSize = errors.New("crypto: invalid CCM nonce size")
	ErrInvalidTagSize   = errors.New("crypto: invalid CCM tag size")
	ErrOpen             = errors.New("crypto: message authentication failed")
)

// ccm implements AES-CCM (NIST SP 800-38C) as a cipher.AEAD.
type ccm struct {
	b       cipher.Block
	tagSize int
	lenSize int // L = 15 - nonce size
}

// NewCCM returns AES-128-CCM with a 13-byte nonce and 16-byte tag.
func NewCCM(key []byte) (cipher.AEAD, error) {
	return NewCCMWithSizes(key, CCMNonceSize, CCMTagSize)
}

// NewCCMWithSizes returns AES-128-CCM with the given nonce and tag lengths.
// The nonce must be 7 to 13 bytes and the tag an even length from 4 to 16.
func NewCCMWithSizes(key []byte, nonceSize, tagSize int) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidKeySize
	}
	if nonceSize < 7 || nonceSize > 13 {
		return nil, ErrInvalidNonceSize
	}
	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, ErrInvalidTagSize
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ccm{b: b, tagSize: tagSize, lenSize: 15 - nonceSize}, nil
}

func (c *ccm) NonceSize() int { return 15 - c.lenSize }
func (c *ccm) Overhead() int  { return c.tagSize }

func (c *ccm) maxLen() uint64 {
	if c.lenSize >= 8 {
		return 1<<63 - 1
	}
	return 1<<(8*c.lenSize) - 1
}

// counterBlock builds A_i for counter value i.
func (c *ccm) counterBlock(nonce []byte, i uint64) [blockSize]byte {
	var a [blockSize]byte
	a[0] = byte(c.lenSize - 1)
	copy(a[1:], nonce)
	for j := blockSize - 1; j > blockSize-1-c.lenSize; j-- {
		a[j] = byte(i)
		i >>= 8
	}
	return a
}

// mac computes the unencrypted CBC-MAC tag over aad and plaintext.
func (c *ccm) mac(nonce, plaintext, aad []byte) [blockSize]byte {
	var x [blockSize]byte
	x[0] = byte((c.tagSize-2)/2)<<3 | byte(c.lenSize-1)
	if len(aad) > 0 {
		x[0] |= 0x40
	}
	copy(x[1:], nonce)
	n := uint64(len(plaintext))
	for j := blockSize - 1; j > blockSize-1-c.lenSize; j-- {
		x[j] = byte(n)
		n >>= 8
	}
	c.b.Encrypt(x[:], x[:])

	absorb := func(p []byte) {
		for len(p) > 0 {
			k := subtle.XORBytes(x[:], x[:], p)
			c.b.Encrypt(x[:], x[:])
			p = p[k:]
		}
	}

	if len(aad) > 0 {
		var prefix []byte
		switch l := uint64(len(aad)); {
		case l < 0xFF00:
			prefix = binary.BigEndian.AppendUint16(nil, uint16(l))
		case l <= 0xFFFFFFFF:
			prefix = binary.BigEndian.AppendUint32([]byte{0xFF, 0xFE}, uint32(l))
		default:
			prefix = binary.BigEndian.AppendUint64([]byte{0xFF, 0xFF}, l)
		}
		// The encoded length and aad are absorbed as one zero-padded string.
		aadBlocks := append(prefix, aad...)
		absorb(aadBlocks)
	}
	absorb(plaintext)
	return x
}

// ctr XORs src with the key stream starting at counter 1.
func (c *ccm) ctr(nonce, dst, src []byte) {
	var ks [blockSize]byte
	for i := uint64(1); len(src) > 0; i++ {
		a := c.counterBlock(nonce, i)
		c.b.Encrypt(ks[:], a[:])
		n := subtle.XORBytes(dst, src, ks[:])
		dst, src = dst[n:], src[n:]
	}
}

// sliceForAppend extends in by n bytes and returns the whole slice and the
// newly added tail, reusing in's capacity when possible.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

// Seal encrypts and authenticates plaintext. dst and plaintext may overlap
// exactly, which lets callers encrypt a buffer in place.
func (c *ccm) Seal(dst, nonce, plaintext, aad []byte) []byte {
	if len(nonce) != c.NonceSize() {
		panic("crypto: incorrect nonce length given to CCM")
	}
	if uint64(len(plaintext)) > c.maxLen() {
		panic("crypto: message too large for CCM")
	}
	tag := c.mac(nonce, plaintext, aad)
	s0 := c.counterBlock(nonce, 0)
	c.b.Encrypt(s0[:], s0[:])

	ret, out := sliceForAppend(dst, len(plaintext)+c.tagSize)
	c.ctr(nonce, out, plaintext)
	subtle.XORBytes(out[len(plaintext):], tag[:c.tagSize], s0[:c.tagSize])
	return ret
}

// Open authenticates and decrypts ciphertext. On failure the output region
// is zeroed and ErrOpen returned.
func (c *ccm) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrOpen
	}
	ct := ciphertext[:len(ciphertext)-c.tagSize]
	var got [blockSize]byte
	copy(got[:], ciphertext[len(ct):])

	s0 := c.counterBlock(nonce, 0)
	c.b.Encrypt(s0[:], s0[:])
	subtle.XORBytes(got[:c.tagSize], got[:c.tagSize], s0[:c.tagSize])

	ret, out := sliceForAppend(dst, len(ct))
	c.ctr(nonce, out, ct)
	want := c.mac(nonce, out, aad)
	if subtle.ConstantTimeCompare(got[:c.tagSize], want[:c.tagSize]) != 1 {
		clear(out)
		return nil, ErrOpen
	}
	return ret, nil
}
