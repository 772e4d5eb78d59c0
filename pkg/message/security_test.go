package message

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// paseVector is the "secure pase message (no payload)" exchange from the
// reference SDK message encoding tests.
func paseVector() (*MessageHeader, *ProtocolHeader) {
	return &MessageHeader{SessionID: 0x0bb8, MessageCounter: 0x3039},
		&ProtocolHeader{
			ExchangeID:     0x0eee,
			ProtocolID:     0x7d20,
			ProtocolOpcode: 0x64,
			Initiator:      true,
			Reliability:    true,
		}
}

func seal(t *testing.T, key []byte, pkt *MessageHeader, payload *ProtocolHeader, app []byte) []byte {
	t.Helper()
	buf, err := NewPacketBufferWithData(app)
	require.NoError(t, err)
	require.NoError(t, Encrypt(key, pkt, payload, buf))
	require.NoError(t, pkt.PrependTo(buf))
	return append([]byte(nil), buf.Bytes()...)
}

func open(key []byte, datagram []byte) (*MessageHeader, *ProtocolHeader, []byte, error) {
	buf, err := WrapPacket(datagram)
	if err != nil {
		return nil, nil, nil, err
	}
	var pkt MessageHeader
	if err := pkt.DecodeFrom(buf); err != nil {
		return nil, nil, nil, err
	}
	var payload ProtocolHeader
	if err := Decrypt(key, &pkt, &payload, buf); err != nil {
		return nil, nil, nil, err
	}
	return &pkt, &payload, buf.Bytes(), nil
}

func TestGetIV(t *testing.T) {
	h := &MessageHeader{MessageCounter: 0x3039}
	iv := make([]byte, NonceSize)
	require.NoError(t, GetIV(h, iv))
	assert.Equal(t, mustHex(t, "00393000000000000000000000"), iv)

	h = &MessageHeader{
		SessionType:    SessionTypeGroup,
		MessageCounter: 0x01020304,
		SourceNodeID:   0x1122334455667788,
		Privacy:        true,
	}
	require.NoError(t, GetIV(h, iv))
	assert.Equal(t, mustHex(t, "81040302018877665544332211"), iv)

	assert.ErrorIs(t, GetIV(h, make([]byte, 12)), ErrInvalidIVLength)
	assert.ErrorIs(t, GetIV(h, make([]byte, 14)), ErrInvalidIVLength)
}

func TestGetAdditionalAuthData(t *testing.T) {
	h := &MessageHeader{SessionID: 0x0bb8, MessageCounter: 0x3039}
	aad := make([]byte, MaxHeaderSize)
	n, err := GetAdditionalAuthData(h, aad)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "00b80b0039300000"), aad[:n])

	h.SourcePresent = true
	_, err = GetAdditionalAuthData(h, make([]byte, MinHeaderSize))
	assert.ErrorIs(t, err, ErrAADTooSmall)
}

func TestEncryptKnownVector(t *testing.T) {
	key := mustHex(t, "5eded244e5532b3cdc23409dbad052d2")
	pkt, payload := paseVector()

	got := seal(t, key, pkt, payload, nil)
	want := mustHex(t, "00b80b0039300000"+"5a989ae42e8d"+"847f535c3007e6150cd65867f2b817db")
	assert.Equal(t, want, got)

	dpkt, dpayload, app, err := open(key, got)
	require.NoError(t, err)
	assert.Equal(t, *pkt, *dpkt)
	assert.Equal(t, *payload, *dpayload)
	assert.Empty(t, app)
}

func TestEncryptRoundTrip(t *testing.T) {
	key := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	cases := []struct {
		name string
		pkt  MessageHeader
		app  []byte
	}{
		{"unicast", MessageHeader{SessionID: 7, MessageCounter: 1}, []byte("read request")},
		{"with source", MessageHeader{SessionID: 7, MessageCounter: 99, SourcePresent: true, SourceNodeID: 0xABCD}, []byte{1, 2, 3}},
		{"group", MessageHeader{
			SessionID: 0x2222, MessageCounter: 5, SessionType: SessionTypeGroup,
			SourcePresent: true, SourceNodeID: 42,
			DestinationType: DestinationGroupID, DestinationGroupID: 0x0101,
		}, make([]byte, 200)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := &ProtocolHeader{ExchangeID: 3, ProtocolID: ProtocolInteractionModel, ProtocolOpcode: 2, Initiator: true}
			pkt := tc.pkt
			wire := seal(t, key, &pkt, payload, tc.app)
			assert.Len(t, wire, pkt.Size()+payload.Size()+len(tc.app)+MICSize)

			_, dpayload, app, err := open(key, wire)
			require.NoError(t, err)
			assert.Equal(t, *payload, *dpayload)
			assert.Equal(t, len(tc.app), len(app))
			if len(tc.app) > 0 {
				assert.Equal(t, tc.app, app)
			}
		})
	}
}

func TestDecryptRejectsAnyCorruption(t *testing.T) {
	key := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	pkt := &MessageHeader{SessionID: 9, MessageCounter: 77}
	payload := &ProtocolHeader{ExchangeID: 1, ProtocolID: ProtocolInteractionModel, ProtocolOpcode: 5}
	wire := seal(t, key, pkt, payload, []byte("attribute report"))

	for i := range wire {
		corrupt := append([]byte(nil), wire...)
		corrupt[i] ^= 0x01
		_, _, _, err := open(key, corrupt)
		assert.Error(t, err, "byte %d", i)
	}

	other := mustHex(t, "0f0e0d0c0b0a09080706050403020100")
	_, _, _, err := open(other, wire)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptBufferChecks(t *testing.T) {
	key := make([]byte, 16)
	pkt := &MessageHeader{SessionID: 1}
	payload := &ProtocolHeader{}

	assert.ErrorIs(t, Encrypt(key, pkt, payload, nil), ErrNilBuffer)
	assert.ErrorIs(t, Decrypt(key, pkt, payload, nil), ErrNilBuffer)

	chained := NewPacketBuffer(DefaultHeadroom)
	chained.Chain(NewPacketBuffer(0))
	assert.ErrorIs(t, Encrypt(key, pkt, payload, chained), ErrBufferChained)

	big := NewPacketBuffer(0)
	require.NoError(t, big.Append(make([]byte, MaxUDPMessageSize-MinHeaderSize-MICSize)))
	assert.ErrorIs(t, Encrypt(key, pkt, payload, big), ErrBufferTooLarge)

	buf, err := NewPacketBufferWithData([]byte{1})
	require.NoError(t, err)
	assert.ErrorIs(t, Encrypt(key[:15], pkt, payload, buf), ErrInvalidKey)

	short, err := WrapPacket(make([]byte, MICSize-1))
	require.NoError(t, err)
	assert.ErrorIs(t, Decrypt(key, pkt, payload, short), ErrInvalidMIC)
}

func TestSecurityRequiresSecuredHeader(t *testing.T) {
	key := make([]byte, 16)
	unsecured := &MessageHeader{MessageCounter: 1}
	require.Zero(t, unsecured.MICTagLength())

	buf, err := NewPacketBufferWithData([]byte("hello"))
	require.NoError(t, err)
	assert.ErrorIs(t, Encrypt(key, unsecured, &ProtocolHeader{}, buf), ErrNotSecured)
	assert.Equal(t, []byte("hello"), buf.Bytes())

	sealed, err := WrapPacket(make([]byte, 32))
	require.NoError(t, err)
	assert.ErrorIs(t, Decrypt(key, unsecured, &ProtocolHeader{}, sealed), ErrNotSecured)

	secured := &MessageHeader{SessionID: 1, MessageCounter: 1}
	buf, err = NewPacketBufferWithData([]byte("hello"))
	require.NoError(t, err)
	before := buf.Len()
	require.NoError(t, Encrypt(key, secured, &ProtocolHeader{}, buf))
	assert.Equal(t, before+(&ProtocolHeader{}).Size()+secured.MICTagLength(), buf.Len())
}
