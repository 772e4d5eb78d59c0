package session

import (
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/system"
	"github.com/backkem/matter-core/pkg/transport"
)

type sentDatagram struct {
	data []byte
	to   transport.PeerAddress
}

// captureTransport records datagrams instead of sending them.
type captureTransport struct {
	sent []sentDatagram
}

func (c *captureTransport) Send(data []byte, peer transport.PeerAddress) error {
	c.sent = append(c.sent, sentDatagram{append([]byte(nil), data...), peer})
	return nil
}

func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) last(t *testing.T) sentDatagram {
	t.Helper()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

type received struct {
	session *Session
	pkt     message.MessageHeader
	hdr     message.ProtocolHeader
	payload []byte
	dup     bool
}

type recordingDelegate struct {
	messages []received
	expired  []*Session
}

func (d *recordingDelegate) OnMessageReceived(s *Session, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte, dup bool) {
	d.messages = append(d.messages, received{s, *pkt, *hdr, append([]byte(nil), payload...), dup})
}

func (d *recordingDelegate) OnSessionExpired(s *Session) { d.expired = append(d.expired, s) }

type node struct {
	mgr *Manager
	tr  *captureTransport
	del *recordingDelegate
}

func newNode(t *testing.T, nodeID uint64, mutate func(*ManagerConfig)) *node {
	t.Helper()
	n := &node{tr: &captureTransport{}, del: &recordingDelegate{}}
	cfg := ManagerConfig{
		Transport:   n.tr,
		System:      system.NewLayer(system.Config{Clock: clock.NewMock()}),
		LocalNodeID: nodeID,
		MaxSessions: 4,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	mgr.SetDelegate(n.del)
	n.mgr = mgr
	return n
}

var (
	addrA = transport.UDPPeer(netip.MustParseAddr("fd00::1"), transport.DefaultPort, "")
	addrB = transport.UDPPeer(netip.MustParseAddr("fd00::2"), transport.DefaultPort, "")

	i2r = []byte("0123456789abcdef")
	r2i = []byte("fedcba9876543210")
)

func securePair(t *testing.T, typ SessionType, a, b *node) (*Session, *Session) {
	t.Helper()
	idA, err := a.mgr.AllocateSessionID()
	require.NoError(t, err)
	idB, err := b.mgr.AllocateSessionID()
	require.NoError(t, err)

	sa, err := a.mgr.NewSecureSession(SecureSessionConfig{
		Type: typ, Role: SessionRoleInitiator,
		LocalSessionID: idA, PeerSessionID: idB,
		I2RKey: i2r, R2IKey: r2i,
		LocalNodeID: a.mgr.LocalNodeID(), PeerNodeID: b.mgr.LocalNodeID(),
		PeerAddress: addrB,
	})
	require.NoError(t, err)
	sb, err := b.mgr.NewSecureSession(SecureSessionConfig{
		Type: typ, Role: SessionRoleResponder,
		LocalSessionID: idB, PeerSessionID: idA,
		I2RKey: i2r, R2IKey: r2i,
		LocalNodeID: b.mgr.LocalNodeID(), PeerNodeID: a.mgr.LocalNodeID(),
		PeerAddress: addrA,
	})
	require.NoError(t, err)
	return sa, sb
}

func header(exchange uint16, opcode uint8) *message.ProtocolHeader {
	return &message.ProtocolHeader{
		ExchangeID:     exchange,
		ProtocolID:     message.ProtocolForTesting,
		ProtocolOpcode: opcode,
		Initiator:      true,
	}
}

func TestSecureSessionRoundTrip(t *testing.T) {
	for _, typ := range []SessionType{SessionTypePASE, SessionTypeCASE} {
		t.Run(typ.String(), func(t *testing.T) {
			a := newNode(t, 0x1111, nil)
			b := newNode(t, 0x2222, nil)
			sa, sb := securePair(t, typ, a, b)

			require.NoError(t, a.mgr.SendMessage(sa, header(7, 0x10), []byte("ping")))
			d := a.tr.last(t)
			assert.True(t, d.to.Equal(addrB))

			require.NoError(t, b.mgr.HandleMessage(d.data, addrA))
			require.Len(t, b.del.messages, 1)
			got := b.del.messages[0]
			assert.Same(t, sb, got.session)
			assert.Equal(t, []byte("ping"), got.payload)
			assert.Equal(t, uint16(7), got.hdr.ExchangeID)
			assert.True(t, got.hdr.Initiator)
			assert.False(t, got.dup)

			// Replaying the same datagram is flagged, not dropped.
			require.NoError(t, b.mgr.HandleMessage(d.data, addrA))
			require.Len(t, b.del.messages, 2)
			assert.True(t, b.del.messages[1].dup)

			// And the reverse direction uses the other key.
			require.NoError(t, b.mgr.SendMessage(sb, header(7, 0x11), []byte("pong")))
			require.NoError(t, a.mgr.HandleMessage(b.tr.last(t).data, addrB))
			require.Len(t, a.del.messages, 1)
			assert.Equal(t, []byte("pong"), a.del.messages[0].payload)
		})
	}
}

func TestPASESessionsIgnoreNodeIDs(t *testing.T) {
	a := newNode(t, 0x1111, nil)
	b := newNode(t, 0x2222, nil)
	sa, sb := securePair(t, SessionTypePASE, a, b)
	assert.Equal(t, message.UnspecifiedNodeID, sa.LocalNodeID())
	assert.Equal(t, message.UnspecifiedNodeID, sb.PeerNodeID())
}

func TestCASENonceMismatchFails(t *testing.T) {
	a := newNode(t, 0x1111, nil)
	b := newNode(t, 0x2222, nil)
	sa, sb := securePair(t, SessionTypeCASE, a, b)
	sb.peerNodeID = 0x3333

	require.NoError(t, a.mgr.SendMessage(sa, header(1, 1), []byte("x")))
	err := b.mgr.HandleMessage(a.tr.last(t).data, addrA)
	assert.ErrorIs(t, err, message.ErrDecryptionFailed)
	assert.Empty(t, b.del.messages)
}

func TestUnknownSecureSession(t *testing.T) {
	a := newNode(t, 1, nil)
	b := newNode(t, 2, nil)
	sa, sb := securePair(t, SessionTypePASE, a, b)
	b.mgr.ExpireSession(sb)

	require.NoError(t, a.mgr.SendMessage(sa, header(1, 1), nil))
	assert.ErrorIs(t, b.mgr.HandleMessage(a.tr.last(t).data, addrA), ErrSessionNotFound)
}

func TestExpireSession(t *testing.T) {
	a := newNode(t, 1, nil)
	b := newNode(t, 2, nil)
	sa, _ := securePair(t, SessionTypePASE, a, b)

	a.mgr.ExpireSession(sa)
	a.mgr.ExpireSession(sa)
	assert.True(t, sa.IsExpired())
	assert.Equal(t, []*Session{sa}, a.del.expired)
	assert.Nil(t, a.mgr.FindSecureSession(sa.LocalSessionID()))
	assert.Equal(t, make([]byte, SessionKeySize), sa.encryptKey)
	assert.ErrorIs(t, a.mgr.SendMessage(sa, header(1, 1), nil), ErrSessionExpired)
}

func TestNewSecureSessionValidation(t *testing.T) {
	a := newNode(t, 1, nil)
	tests := []struct {
		name string
		cfg  SecureSessionConfig
		err  error
	}{
		{"type", SecureSessionConfig{Type: SessionTypeGroup, Role: SessionRoleInitiator, LocalSessionID: 1, I2RKey: i2r, R2IKey: r2i}, ErrInvalidSessionType},
		{"role", SecureSessionConfig{Type: SessionTypePASE, LocalSessionID: 1, I2RKey: i2r, R2IKey: r2i}, ErrInvalidRole},
		{"id", SecureSessionConfig{Type: SessionTypePASE, Role: SessionRoleInitiator, I2RKey: i2r, R2IKey: r2i}, ErrInvalidSessionID},
		{"key", SecureSessionConfig{Type: SessionTypePASE, Role: SessionRoleInitiator, LocalSessionID: 1, I2RKey: i2r[:8], R2IKey: r2i}, ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.mgr.NewSecureSession(tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	cfg := SecureSessionConfig{Type: SessionTypePASE, Role: SessionRoleInitiator, LocalSessionID: 9, I2RKey: i2r, R2IKey: r2i}
	_, err := a.mgr.NewSecureSession(cfg)
	require.NoError(t, err)
	_, err = a.mgr.NewSecureSession(cfg)
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestUnsecuredHandshakeRouting(t *testing.T) {
	a := newNode(t, 0, nil)
	b := newNode(t, 0xB, nil)

	sa, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)
	assert.NotZero(t, sa.LocalNodeID())
	assert.False(t, sa.IsSecure())

	require.NoError(t, a.mgr.SendMessage(sa, header(3, 0x20), []byte("hello")))
	require.NoError(t, b.mgr.HandleMessage(a.tr.last(t).data, addrA))
	require.Len(t, b.del.messages, 1)
	sb := b.del.messages[0].session
	assert.Equal(t, SessionRoleResponder, sb.Role())
	assert.Equal(t, sa.LocalNodeID(), sb.PeerNodeID())
	assert.Equal(t, sa.LocalNodeID(), b.del.messages[0].pkt.SourceNodeID)

	// A second message from the same initiator reuses the session.
	require.NoError(t, a.mgr.SendMessage(sa, header(3, 0x22), nil))
	require.NoError(t, b.mgr.HandleMessage(a.tr.last(t).data, addrA))
	assert.Same(t, sb, b.del.messages[1].session)

	reply := header(3, 0x21)
	reply.Initiator = false
	require.NoError(t, b.mgr.SendMessage(sb, reply, []byte("world")))
	require.NoError(t, a.mgr.HandleMessage(b.tr.last(t).data, addrB))
	require.Len(t, a.del.messages, 1)
	assert.Same(t, sa, a.del.messages[0].session)
	assert.Equal(t, []byte("world"), a.del.messages[0].payload)
}

func TestUnsecuredReplyToUnknownInitiator(t *testing.T) {
	a := newNode(t, 0, nil)
	b := newNode(t, 0xB, nil)
	sa, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)
	require.NoError(t, a.mgr.SendMessage(sa, header(3, 0x20), nil))
	require.NoError(t, b.mgr.HandleMessage(a.tr.last(t).data, addrA))

	a.mgr.ExpireSession(sa)
	assert.Equal(t, []*Session{sa}, a.del.expired)

	sb := b.del.messages[0].session
	require.NoError(t, b.mgr.SendMessage(sb, header(3, 0x21), nil))
	assert.ErrorIs(t, a.mgr.HandleMessage(b.tr.last(t).data, addrB), ErrSessionNotFound)
}

func TestUnsecuredPeerEviction(t *testing.T) {
	a := newNode(t, 0, func(c *ManagerConfig) { c.MaxUnsecuredPeers = 1 })
	first, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)
	second, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)

	assert.True(t, first.IsExpired())
	assert.False(t, second.IsExpired())
	assert.Equal(t, []*Session{first}, a.del.expired)
}

func TestGroupMessaging(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	keys := crypto.NewStaticGroupKeyProvider(mock)
	require.NoError(t, keys.SetKeySet(1, 0x0102, crypto.EpochKey{
		StartTime: mock.Now().Add(-time.Hour),
		Key:       []byte("group-epoch-key!"),
	}))
	withKeys := func(c *ManagerConfig) { c.GroupKeys = keys }

	a := newNode(t, 0xA, withKeys)
	b := newNode(t, 0xB, withKeys)
	ga, err := a.mgr.JoinGroup(1, 0x1122334455667788, 0x0102)
	require.NoError(t, err)
	gb, err := b.mgr.JoinGroup(1, 0x1122334455667788, 0x0102)
	require.NoError(t, err)
	assert.Equal(t, ga.LocalSessionID(), gb.LocalSessionID())
	assert.True(t, ga.PeerAddress().IsMulticast())

	again, err := a.mgr.JoinGroup(1, 0x1122334455667788, 0x0102)
	require.NoError(t, err)
	assert.Same(t, ga, again)

	require.NoError(t, a.mgr.SendMessage(ga, header(5, 0x01), []byte("all")))
	d := a.tr.last(t)
	require.NoError(t, b.mgr.HandleMessage(d.data, addrA))
	require.Len(t, b.del.messages, 1)
	got := b.del.messages[0]
	assert.Same(t, gb, got.session)
	assert.Equal(t, uint64(0xA), got.pkt.SourceNodeID)
	assert.Equal(t, []byte("all"), got.payload)
	assert.False(t, got.dup)

	require.NoError(t, b.mgr.HandleMessage(d.data, addrA))
	assert.True(t, b.del.messages[1].dup)

	b.mgr.LeaveGroup(1, 0x0102)
	assert.True(t, gb.IsExpired())
	assert.ErrorIs(t, b.mgr.HandleMessage(d.data, addrA), ErrUnknownGroup)
}

func TestJoinGroupRequiresKeys(t *testing.T) {
	a := newNode(t, 0xA, nil)
	_, err := a.mgr.JoinGroup(1, 1, 1)
	assert.ErrorIs(t, err, ErrNoGroupKeys)
}

func TestMalformedDatagram(t *testing.T) {
	b := newNode(t, 0xB, nil)
	assert.ErrorIs(t, b.mgr.HandleMessage([]byte{0x00, 0x01}, addrA), message.ErrMessageTooShort)
	assert.Empty(t, b.del.messages)
}

func TestOnTransportMessageTakesLock(t *testing.T) {
	a := newNode(t, 0, nil)
	b := newNode(t, 0xB, nil)
	sa, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)
	require.NoError(t, a.mgr.SendMessage(sa, header(1, 1), nil))

	b.mgr.OnTransportMessage(&transport.ReceivedMessage{Data: a.tr.last(t).data, PeerAddr: addrA})
	assert.Len(t, b.del.messages, 1)
	require.True(t, b.mgr.SystemLayer().TryLock())
	b.mgr.SystemLayer().Unlock()
}

func TestSendWithoutTransport(t *testing.T) {
	a := newNode(t, 0, func(c *ManagerConfig) { c.Transport = nil })
	a.mgr.SetTransport(nil)
	sa, err := a.mgr.NewUnsecuredSession(addrB)
	require.NoError(t, err)
	assert.ErrorIs(t, a.mgr.SendMessage(sa, header(1, 1), nil), ErrNoTransport)
}
