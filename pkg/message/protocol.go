package message

import "encoding/binary"

// ProtocolHeader is the payload header: the first part of the message
// payload, encrypted together with the application data on secure sessions.
type ProtocolHeader struct {
	ExchangeID       uint16
	ProtocolID       ProtocolID
	ProtocolVendorID uint16
	ProtocolOpcode   uint8

	// AckedMessageCounter is meaningful only with Acknowledgement set.
	AckedMessageCounter uint32

	Initiator         bool
	Acknowledgement   bool
	Reliability       bool
	SecuredExtensions bool
	VendorPresent     bool
}

func (p *ProtocolHeader) Size() int {
	n := MinProtocolHeaderSize
	if p.VendorPresent {
		n += 2
	}
	if p.Acknowledgement {
		n += 4
	}
	return n
}

func (p *ProtocolHeader) exchangeFlags() uint8 {
	var f uint8
	for _, b := range [...]struct {
		set  bool
		mask uint8
	}{
		{p.Initiator, exchFlagInitiator},
		{p.Acknowledgement, exchFlagAck},
		{p.Reliability, exchFlagReliability},
		{p.SecuredExtensions, exchFlagSecuredExtensions},
		{p.VendorPresent, exchFlagVendor},
	} {
		if b.set {
			f |= b.mask
		}
	}
	return f
}

// EncodeTo writes the header into b, which must hold Size octets.
func (p *ProtocolHeader) EncodeTo(b []byte) int {
	b[0] = p.exchangeFlags()
	b[1] = p.ProtocolOpcode
	binary.LittleEndian.PutUint16(b[2:], p.ExchangeID)
	n := 4
	if p.VendorPresent {
		binary.LittleEndian.PutUint16(b[n:], p.ProtocolVendorID)
		n += 2
	}
	binary.LittleEndian.PutUint16(b[n:], uint16(p.ProtocolID))
	n += 2
	if p.Acknowledgement {
		binary.LittleEndian.PutUint32(b[n:], p.AckedMessageCounter)
		n += 4
	}
	return n
}

func (p *ProtocolHeader) Encode() []byte {
	b := make([]byte, p.Size())
	p.EncodeTo(b)
	return b
}

// Decode parses a payload header from the start of data and returns its
// length.
func (p *ProtocolHeader) Decode(data []byte) (int, error) {
	if len(data) < MinProtocolHeaderSize {
		return 0, ErrPayloadTooShort
	}
	f := data[0]
	*p = ProtocolHeader{
		ProtocolOpcode:    data[1],
		ExchangeID:        binary.LittleEndian.Uint16(data[2:]),
		Initiator:         f&exchFlagInitiator != 0,
		Acknowledgement:   f&exchFlagAck != 0,
		Reliability:       f&exchFlagReliability != 0,
		SecuredExtensions: f&exchFlagSecuredExtensions != 0,
		VendorPresent:     f&exchFlagVendor != 0,
	}
	if len(data) < p.Size() {
		return 0, ErrPayloadTooShort
	}
	n := 4
	if p.VendorPresent {
		p.ProtocolVendorID = binary.LittleEndian.Uint16(data[n:])
		n += 2
	}
	p.ProtocolID = ProtocolID(binary.LittleEndian.Uint16(data[n:]))
	n += 2
	if p.Acknowledgement {
		p.AckedMessageCounter = binary.LittleEndian.Uint32(data[n:])
		n += 4
	}
	return n, nil
}

// PrependTo writes the header into the headroom of buf.
func (p *ProtocolHeader) PrependTo(buf *PacketBuffer) error {
	b, err := buf.Prepend(p.Size())
	if err != nil {
		return err
	}
	p.EncodeTo(b)
	return nil
}

// DecodeFrom parses the payload header at the start of buf and consumes it.
func (p *ProtocolHeader) DecodeFrom(buf *PacketBuffer) error {
	n, err := p.Decode(buf.Bytes())
	if err != nil {
		return err
	}
	return buf.Consume(n)
}

// HasMessageType reports whether the header carries the given protocol and
// opcode under the common vendor.
func (p *ProtocolHeader) HasMessageType(proto ProtocolID, opcode uint8) bool {
	return p.ProtocolVendorID == VendorIDCommon && p.ProtocolID == proto && p.ProtocolOpcode == opcode
}
