package message

import "encoding/binary"

// MessageHeader is the unencrypted packet header. Multi-octet fields are
// little-endian on the wire.
type MessageHeader struct {
	SessionID      uint16
	MessageCounter uint32
	SessionType    SessionType

	// SourceNodeID is encoded only when SourcePresent is set. It always
	// feeds the AES-CCM nonce, so senders fill it with their own node id
	// and receivers with the session's peer node id.
	SourceNodeID  uint64
	SourcePresent bool

	DestinationType    DestinationType
	DestinationNodeID  uint64
	DestinationGroupID uint16

	Privacy    bool
	Control    bool
	Extensions bool
}

// Size returns the encoded length of the header.
func (h *MessageHeader) Size() int {
	n := MinHeaderSize + h.DestinationType.Size()
	if h.SourcePresent {
		n += NodeIDSize
	}
	return n
}

// IsSecure reports whether the header belongs to an encrypted session.
// Unicast session id 0 is the unsecured session.
func (h *MessageHeader) IsSecure() bool {
	return h.SessionType != SessionTypeUnicast || h.SessionID != 0
}

// MICTagLength returns the length of the authentication tag that follows
// the payload of a message carrying this header.
func (h *MessageHeader) MICTagLength() int {
	if !h.IsSecure() {
		return 0
	}
	return MICSize
}

// SecurityFlags returns the security flags octet.
func (h *MessageHeader) SecurityFlags() uint8 {
	f := uint8(h.SessionType) & secFlagSessionTypeMask
	if h.Extensions {
		f |= secFlagExtensions
	}
	if h.Control {
		f |= secFlagControl
	}
	if h.Privacy {
		f |= secFlagPrivacy
	}
	return f
}

func (h *MessageHeader) messageFlags() uint8 {
	f := MessageVersion<<flagVersionShift | uint8(h.DestinationType)&flagDSIZMask
	if h.SourcePresent {
		f |= flagSourcePresent
	}
	return f
}

// EncodeTo writes the header into b, which must hold Size octets, and
// returns the number of octets written.
func (h *MessageHeader) EncodeTo(b []byte) int {
	b[0] = h.messageFlags()
	binary.LittleEndian.PutUint16(b[1:], h.SessionID)
	b[3] = h.SecurityFlags()
	binary.LittleEndian.PutUint32(b[4:], h.MessageCounter)
	n := MinHeaderSize
	if h.SourcePresent {
		binary.LittleEndian.PutUint64(b[n:], h.SourceNodeID)
		n += NodeIDSize
	}
	switch h.DestinationType {
	case DestinationNodeID:
		binary.LittleEndian.PutUint64(b[n:], h.DestinationNodeID)
	case DestinationGroupID:
		binary.LittleEndian.PutUint16(b[n:], h.DestinationGroupID)
	}
	return n + h.DestinationType.Size()
}

func (h *MessageHeader) Encode() []byte {
	b := make([]byte, h.Size())
	h.EncodeTo(b)
	return b
}

// Decode parses a header from the start of data and returns its length.
func (h *MessageHeader) Decode(data []byte) (int, error) {
	if len(data) < MinHeaderSize {
		return 0, ErrMessageTooShort
	}
	flags := data[0]
	if flags>>flagVersionShift != MessageVersion {
		return 0, ErrInvalidVersion
	}
	dest := DestinationType(flags & flagDSIZMask)
	if !dest.IsValid() {
		return 0, ErrInvalidDSIZ
	}
	sec := data[3]
	st := SessionType(sec & secFlagSessionTypeMask)
	if !st.IsValid() {
		return 0, ErrInvalidSessionType
	}

	*h = MessageHeader{
		SessionID:       binary.LittleEndian.Uint16(data[1:]),
		MessageCounter:  binary.LittleEndian.Uint32(data[4:]),
		SessionType:     st,
		SourcePresent:   flags&flagSourcePresent != 0,
		DestinationType: dest,
		Privacy:         sec&secFlagPrivacy != 0,
		Control:         sec&secFlagControl != 0,
		Extensions:      sec&secFlagExtensions != 0,
	}
	if len(data) < h.Size() {
		return 0, ErrMessageTooShort
	}

	n := MinHeaderSize
	if h.SourcePresent {
		h.SourceNodeID = binary.LittleEndian.Uint64(data[n:])
		n += NodeIDSize
	}
	switch dest {
	case DestinationNodeID:
		h.DestinationNodeID = binary.LittleEndian.Uint64(data[n:])
	case DestinationGroupID:
		h.DestinationGroupID = binary.LittleEndian.Uint16(data[n:])
	}
	return n + dest.Size(), nil
}

// Validate rejects header combinations that cannot appear on the wire.
func (h *MessageHeader) Validate() error {
	if h.SessionType == SessionTypeGroup {
		if !h.SourcePresent {
			return ErrMissingSourceNodeID
		}
		if h.DestinationType != DestinationGroupID {
			return ErrInvalidDSIZ
		}
	}
	if h.SessionType == SessionTypeUnicast && h.DestinationType == DestinationGroupID {
		return ErrInvalidDSIZ
	}
	return nil
}

// PrependTo writes the header into the headroom of buf.
func (h *MessageHeader) PrependTo(buf *PacketBuffer) error {
	b, err := buf.Prepend(h.Size())
	if err != nil {
		return err
	}
	h.EncodeTo(b)
	return nil
}

// DecodeFrom parses the header at the start of buf and consumes it.
func (h *MessageHeader) DecodeFrom(buf *PacketBuffer) error {
	n, err := h.Decode(buf.Bytes())
	if err != nil {
		return err
	}
	return buf.Consume(n)
}
