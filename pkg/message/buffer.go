package message

// DefaultHeadroom leaves room for the largest packet and payload headers in
// front of application data.
const DefaultHeadroom = MaxHeaderSize + MaxProtocolHeaderSize

// PacketBuffer holds one message in a fixed backing array with reserved
// headroom for headers and tailroom for the MIC. Buffers may be chained;
// message security only operates on unchained buffers.
type PacketBuffer struct {
	data  []byte
	start int
	end   int
	next  *PacketBuffer
}

// NewPacketBuffer returns an empty buffer of MaxUDPMessageSize octets with
// headroom octets reserved in front.
func NewPacketBuffer(headroom int) *PacketBuffer {
	if headroom > MaxUDPMessageSize {
		headroom = MaxUDPMessageSize
	}
	return &PacketBuffer{data: make([]byte, MaxUDPMessageSize), start: headroom, end: headroom}
}

// NewPacketBufferWithData copies payload behind DefaultHeadroom.
func NewPacketBufferWithData(payload []byte) (*PacketBuffer, error) {
	b := NewPacketBuffer(DefaultHeadroom)
	if err := b.Append(payload); err != nil {
		return nil, err
	}
	return b, nil
}

// WrapPacket copies a received datagram into a buffer with no headroom.
func WrapPacket(datagram []byte) (*PacketBuffer, error) {
	b := NewPacketBuffer(0)
	if err := b.Append(datagram); err != nil {
		return nil, err
	}
	return b, nil
}

// Bytes returns the valid data. The slice aliases the buffer.
func (b *PacketBuffer) Bytes() []byte { return b.data[b.start:b.end] }

func (b *PacketBuffer) Len() int      { return b.end - b.start }
func (b *PacketBuffer) Headroom() int { return b.start }
func (b *PacketBuffer) Tailroom() int { return len(b.data) - b.end }

// Append copies p after the valid data.
func (b *PacketBuffer) Append(p []byte) error {
	if len(p) > b.Tailroom() {
		return ErrBufferTooLarge
	}
	b.end += copy(b.data[b.end:], p)
	return nil
}

// Prepend grows the valid data by n octets into the headroom and returns
// the new leading octets for the caller to fill.
func (b *PacketBuffer) Prepend(n int) ([]byte, error) {
	if n > b.start {
		return nil, ErrNoHeadroom
	}
	b.start -= n
	return b.data[b.start : b.start+n], nil
}

// Consume drops n leading octets.
func (b *PacketBuffer) Consume(n int) error {
	if n > b.Len() {
		return ErrMessageTooShort
	}
	b.start += n
	return nil
}

// grow extends the valid data by n octets of tailroom.
func (b *PacketBuffer) grow(n int) error {
	if n > b.Tailroom() {
		return ErrBufferTooLarge
	}
	b.end += n
	return nil
}

// trim drops n trailing octets.
func (b *PacketBuffer) trim(n int) error {
	if n > b.Len() {
		return ErrMessageTooShort
	}
	b.end -= n
	return nil
}

// Chain appends next to the end of b's chain.
func (b *PacketBuffer) Chain(next *PacketBuffer) {
	tail := b
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = next
}

func (b *PacketBuffer) Next() *PacketBuffer { return b.next }

// HasChainedBuffer reports whether more buffers follow b.
func (b *PacketBuffer) HasChainedBuffer() bool { return b.next != nil }

// Clone returns an unchained deep copy of b.
func (b *PacketBuffer) Clone() *PacketBuffer {
	c := &PacketBuffer{data: make([]byte, len(b.data)), start: b.start, end: b.end}
	copy(c.data, b.data)
	return c
}
