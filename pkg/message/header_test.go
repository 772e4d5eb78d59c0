package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHeaderCodec(t *testing.T) {
	cases := []struct {
		name string
		h    MessageHeader
		wire string
	}{
		{
			name: "unsecured minimal",
			h:    MessageHeader{MessageCounter: 1},
			wire: "0000000001000000",
		},
		{
			name: "source and node destination",
			h: MessageHeader{
				SessionID: 0x1234, MessageCounter: 0x01020304,
				SourcePresent: true, SourceNodeID: 0x0102030405060708,
				DestinationType: DestinationNodeID, DestinationNodeID: 0x1112131415161718,
			},
			wire: "05341200040302010807060504030201" + "1817161514131211",
		},
		{
			name: "group",
			h: MessageHeader{
				SessionID: 0xBEEF, MessageCounter: 2, SessionType: SessionTypeGroup,
				SourcePresent: true, SourceNodeID: 1,
				DestinationType: DestinationGroupID, DestinationGroupID: 0x0102,
				Control: true, Privacy: true,
			},
			wire: "06efbec1020000000100000000000000" + "0201",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.h.Validate())
			wire := mustHex(t, tc.wire)
			assert.Equal(t, wire, tc.h.Encode())
			assert.Equal(t, len(wire), tc.h.Size())

			var got MessageHeader
			n, err := got.Decode(append(wire, 0xAA))
			require.NoError(t, err)
			assert.Equal(t, len(wire), n)
			assert.Equal(t, tc.h, got)
		})
	}
}

func TestMessageHeaderDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		wire string
		err  error
	}{
		{"short", "00000000", ErrMessageTooShort},
		{"version", "1000000001000000", ErrInvalidVersion},
		{"dsiz", "0300000001000000", ErrInvalidDSIZ},
		{"session type", "0000000201000000", ErrInvalidSessionType},
		{"truncated source", "040000000100000001", ErrMessageTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var h MessageHeader
			_, err := h.Decode(mustHex(t, tc.wire))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestMessageHeaderValidate(t *testing.T) {
	assert.ErrorIs(t, (&MessageHeader{SessionType: SessionTypeGroup, DestinationType: DestinationGroupID}).Validate(), ErrMissingSourceNodeID)
	assert.ErrorIs(t, (&MessageHeader{SessionType: SessionTypeGroup, SourcePresent: true}).Validate(), ErrInvalidDSIZ)
	assert.ErrorIs(t, (&MessageHeader{DestinationType: DestinationGroupID}).Validate(), ErrInvalidDSIZ)
}

func TestMessageHeaderSecurity(t *testing.T) {
	assert.False(t, (&MessageHeader{}).IsSecure())
	assert.Equal(t, 0, (&MessageHeader{}).MICTagLength())
	assert.True(t, (&MessageHeader{SessionID: 1}).IsSecure())
	assert.True(t, (&MessageHeader{SessionType: SessionTypeGroup}).IsSecure())
	assert.Equal(t, MICSize, (&MessageHeader{SessionID: 1}).MICTagLength())
}

func TestProtocolHeaderCodec(t *testing.T) {
	cases := []struct {
		name string
		p    ProtocolHeader
		wire string
	}{
		{
			name: "initiator reliable",
			p:    ProtocolHeader{ExchangeID: 0x0eee, ProtocolID: 0x7d20, ProtocolOpcode: 0x64, Initiator: true, Reliability: true},
			wire: "0564ee0e207d",
		},
		{
			name: "vendor and ack",
			p: ProtocolHeader{
				ExchangeID: 1, ProtocolID: ProtocolInteractionModel, ProtocolVendorID: 0xFFF1, ProtocolOpcode: 5,
				VendorPresent: true, Acknowledgement: true, AckedMessageCounter: 0x0A0B0C0D,
			},
			wire: "12050100f1ff01000d0c0b0a",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := mustHex(t, tc.wire)
			assert.Equal(t, wire, tc.p.Encode())
			var got ProtocolHeader
			n, err := got.Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, len(wire), n)
			assert.Equal(t, tc.p, got)
		})
	}

	var p ProtocolHeader
	_, err := p.Decode(mustHex(t, "0200010001"))
	assert.ErrorIs(t, err, ErrPayloadTooShort)
	_, err = p.Decode(mustHex(t, "020001000100"))
	assert.ErrorIs(t, err, ErrPayloadTooShort)
}

func TestHasMessageType(t *testing.T) {
	p := ProtocolHeader{ProtocolID: ProtocolInteractionModel, ProtocolOpcode: 5}
	assert.True(t, p.HasMessageType(ProtocolInteractionModel, 5))
	assert.False(t, p.HasMessageType(ProtocolInteractionModel, 1))
	assert.False(t, p.HasMessageType(ProtocolSecureChannel, 5))
	p.VendorPresent, p.ProtocolVendorID = true, 0xFFF1
	assert.False(t, p.HasMessageType(ProtocolInteractionModel, 5))
}
