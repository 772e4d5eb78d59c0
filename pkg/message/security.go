package message

import (
	"encoding/binary"

	"github.com/backkem/matter-core/pkg/crypto"
)

// NonceSize is the length of the AES-CCM nonce built by GetIV.
const NonceSize = crypto.CCMNonceSize

// GetIV writes the nonce for h into iv: security flags, message counter and
// source node id, multi-octet fields little-endian. iv must be exactly
// NonceSize octets.
func GetIV(h *MessageHeader, iv []byte) error {
	if len(iv) != NonceSize {
		return ErrInvalidIVLength
	}
	iv[0] = h.SecurityFlags()
	binary.LittleEndian.PutUint32(iv[1:], h.MessageCounter)
	binary.LittleEndian.PutUint64(iv[5:], h.SourceNodeID)
	return nil
}

// GetAdditionalAuthData writes the encoded header into aad and returns the
// number of octets used.
func GetAdditionalAuthData(h *MessageHeader, aad []byte) (int, error) {
	if len(aad) < h.Size() {
		return 0, ErrAADTooSmall
	}
	return h.EncodeTo(aad), nil
}

func checkBuffer(buf *PacketBuffer) error {
	if buf == nil {
		return ErrNilBuffer
	}
	if buf.HasChainedBuffer() {
		return ErrBufferChained
	}
	return nil
}

func aeadInputs(pkt *MessageHeader) (iv []byte, aad []byte, err error) {
	iv = make([]byte, NonceSize)
	if err := GetIV(pkt, iv); err != nil {
		return nil, nil, err
	}
	aad = make([]byte, MaxHeaderSize)
	n, err := GetAdditionalAuthData(pkt, aad)
	if err != nil {
		return nil, nil, err
	}
	return iv, aad[:n], nil
}

// Encrypt prepends the payload header to the application data in buf,
// encrypts both in place under key and appends the MIC. The packet header
// itself is not written; it is authenticated as additional data.
func Encrypt(key []byte, pkt *MessageHeader, payload *ProtocolHeader, buf *PacketBuffer) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	tagLen := pkt.MICTagLength()
	if tagLen == 0 {
		return ErrNotSecured
	}
	if pkt.Size()+payload.Size()+buf.Len()+tagLen > MaxUDPMessageSize {
		return ErrBufferTooLarge
	}
	if buf.Tailroom() < tagLen {
		return ErrBufferTooLarge
	}
	aead, err := crypto.NewCCM(key)
	if err != nil {
		return ErrInvalidKey
	}
	iv, aad, err := aeadInputs(pkt)
	if err != nil {
		return err
	}
	if err := payload.PrependTo(buf); err != nil {
		return err
	}

	plain := buf.Bytes()
	sealed := aead.Seal(plain[:0], iv, plain, aad)
	if len(sealed) != len(plain)+tagLen || &sealed[0] != &plain[0] {
		return ErrEncryptionFailed
	}
	return buf.grow(tagLen)
}

// Decrypt authenticates and decrypts buf in place, which must hold the
// message payload and MIC with the packet header already consumed. On
// success the payload header is decoded into payload and consumed, leaving
// the application data in buf.
func Decrypt(key []byte, pkt *MessageHeader, payload *ProtocolHeader, buf *PacketBuffer) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	tagLen := pkt.MICTagLength()
	if tagLen == 0 {
		return ErrNotSecured
	}
	if buf.Len() < tagLen {
		return ErrInvalidMIC
	}
	aead, err := crypto.NewCCM(key)
	if err != nil {
		return ErrInvalidKey
	}
	iv, aad, err := aeadInputs(pkt)
	if err != nil {
		return err
	}

	sealed := buf.Bytes()
	if _, err := aead.Open(sealed[:0], iv, sealed, aad); err != nil {
		return ErrDecryptionFailed
	}
	if err := buf.trim(tagLen); err != nil {
		return err
	}
	return payload.DecodeFrom(buf)
}
