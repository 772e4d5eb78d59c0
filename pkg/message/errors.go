package message

import "errors"

var (
	ErrMessageTooShort     = errors.New("message: data too short")
	ErrInvalidVersion      = errors.New("message: unsupported version")
	ErrInvalidSessionType  = errors.New("message: reserved session type")
	ErrInvalidDSIZ         = errors.New("message: reserved destination size")
	ErrMissingSourceNodeID = errors.New("message: group message without source node id")
	ErrPayloadTooShort     = errors.New("message: payload too short for protocol header")

	// ErrNilBuffer, ErrBufferChained and ErrBufferTooLarge are the buffer
	// shapes message security refuses to operate on.
	ErrNilBuffer      = errors.New("message: nil packet buffer")
	ErrBufferChained  = errors.New("message: packet buffer is chained")
	ErrBufferTooLarge = errors.New("message: packet exceeds maximum size")
	ErrNoHeadroom     = errors.New("message: not enough headroom in packet buffer")

	ErrInvalidIVLength = errors.New("message: IV buffer must be exactly 13 bytes")
	ErrAADTooSmall     = errors.New("message: AAD buffer too small for header")
	ErrInvalidMIC      = errors.New("message: message shorter than its MIC")
	ErrInvalidKey      = errors.New("message: invalid encryption key")
	ErrNotSecured      = errors.New("message: header carries no MIC")

	// ErrDecryptionFailed covers every authentication or decryption failure.
	ErrDecryptionFailed = errors.New("message: decryption failed")
	ErrEncryptionFailed = errors.New("message: encryption failed")

	ErrCounterExhausted = errors.New("message: message counter exhausted")
)

const (
	MessageVersion uint8 = 0

	// MinHeaderSize covers flags, session id, security flags and counter.
	MinHeaderSize = 8
	// MaxHeaderSize adds a source node id and a node id destination.
	MaxHeaderSize = MinHeaderSize + 2*NodeIDSize

	// MinProtocolHeaderSize covers exchange flags, opcode, exchange id and
	// protocol id.
	MinProtocolHeaderSize = 6
	MaxProtocolHeaderSize = MinProtocolHeaderSize + 2 + 4

	// MaxUDPMessageSize is the IPv6 minimum MTU.
	MaxUDPMessageSize = 1280

	// MICSize is the AES-CCM tag length of every secured message.
	MICSize = 16

	NodeIDSize  = 8
	GroupIDSize = 2
)

const (
	flagDSIZMask      uint8 = 0x03
	flagSourcePresent uint8 = 0x04
	flagVersionShift        = 4

	secFlagSessionTypeMask uint8 = 0x03
	secFlagExtensions      uint8 = 0x20
	secFlagControl         uint8 = 0x40
	secFlagPrivacy         uint8 = 0x80

	exchFlagInitiator         uint8 = 0x01
	exchFlagAck               uint8 = 0x02
	exchFlagReliability       uint8 = 0x04
	exchFlagSecuredExtensions uint8 = 0x08
	exchFlagVendor            uint8 = 0x10
)
