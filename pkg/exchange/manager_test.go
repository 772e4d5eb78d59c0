package exchange

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/system"
	"github.com/backkem/matter-core/pkg/transport"
)

type captureTransport struct {
	sent [][]byte
	err  error
}

func (c *captureTransport) Send(data []byte, _ transport.PeerAddress) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *captureTransport) Close() error { return nil }

type recorder struct {
	headers   []message.ProtocolHeader
	payloads  [][]byte
	timeouts  int
	closing   int
	onMessage func(ec *Context) error
}

func (r *recorder) OnMessageReceived(ec *Context, _ *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	r.headers = append(r.headers, *hdr)
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	if r.onMessage != nil {
		return r.onMessage(ec)
	}
	return nil
}

func (r *recorder) OnResponseTimeout(*Context) { r.timeouts++ }
func (r *recorder) OnExchangeClosing(*Context) { r.closing++ }

type fixture struct {
	clock    *clock.Mock
	layer    *system.Layer
	tr       *captureTransport
	sessions *session.Manager
	mgr      *Manager
	sess     *session.Session
}

var peerAddr = transport.UDPPeer(netip.MustParseAddr("fd00::2"), transport.DefaultPort, "")

func newFixture(t *testing.T, mutate func(*ManagerConfig)) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewMock(), tr: &captureTransport{}}
	f.layer = system.NewLayer(system.Config{Clock: f.clock})
	var err error
	f.sessions, err = session.NewManager(session.ManagerConfig{Transport: f.tr, System: f.layer})
	require.NoError(t, err)

	cfg := ManagerConfig{Sessions: f.sessions, MaxContexts: 4, MaxUnsolicitedHandlers: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	f.mgr, err = NewManager(cfg)
	require.NoError(t, err)

	f.sess, err = f.sessions.NewUnsecuredSession(peerAddr)
	require.NoError(t, err)
	return f
}

// deliver injects a message as if the session layer had decoded it.
func (f *fixture) deliver(exchangeID uint16, initiator bool, opcode uint8, dup bool) {
	pkt := &message.MessageHeader{SourceNodeID: f.sess.PeerNodeID()}
	hdr := &message.ProtocolHeader{
		ExchangeID:     exchangeID,
		ProtocolID:     message.ProtocolForTesting,
		ProtocolOpcode: opcode,
		Initiator:      initiator,
	}
	f.mgr.OnMessageReceived(f.sess, pkt, hdr, []byte{opcode}, dup)
}

func (f *fixture) lastSent(t *testing.T) (message.MessageHeader, message.ProtocolHeader) {
	t.Helper()
	require.NotEmpty(t, f.tr.sent)
	data := f.tr.sent[len(f.tr.sent)-1]
	var pkt message.MessageHeader
	n, err := pkt.Decode(data)
	require.NoError(t, err)
	var hdr message.ProtocolHeader
	_, err = hdr.Decode(data[n:])
	require.NoError(t, err)
	return pkt, hdr
}

func TestPoolConservation(t *testing.T) {
	f := newFixture(t, nil)
	rng := rand.New(rand.NewSource(1))
	var live []*Context

	for step := 0; step < 500; step++ {
		switch op := rng.Intn(4); {
		case op < 2:
			ec, err := f.mgr.NewContext(f.sess, &recorder{})
			if len(live) == f.mgr.Capacity() {
				require.ErrorIs(t, err, ErrNoMemory)
				require.Nil(t, ec)
			} else {
				require.NoError(t, err)
				live = append(live, ec)
			}
		case op == 2 && len(live) > 0:
			i := rng.Intn(len(live))
			live[i].Close()
			live = append(live[:i], live[i+1:]...)
		case op == 3 && len(live) > 0:
			ec := live[rng.Intn(len(live))]
			ec.Retain()
			ec.Release()
		}
		require.GreaterOrEqual(t, f.mgr.InUse(), 0)
		require.LessOrEqual(t, f.mgr.InUse(), f.mgr.Capacity())
		require.Equal(t, len(live), f.mgr.InUse())
	}
	for _, ec := range live {
		ec.Close()
	}
	assert.Equal(t, 0, f.mgr.InUse())
}

func TestRetainKeepsClosedContext(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)

	ec.Retain()
	ec.Close()
	ec.Close()
	assert.Equal(t, 1, rec.closing)
	assert.Nil(t, ec.Delegate())
	assert.Equal(t, ExchangeStateClosed, ec.State())
	assert.Equal(t, 1, f.mgr.InUse())
	assert.ErrorIs(t, ec.SendMessage(message.ProtocolForTesting, 1, nil, 0), ErrExchangeClosed)

	ec.Release()
	assert.Equal(t, 0, f.mgr.InUse())
	assert.Equal(t, ExchangeStateFree, ec.State())
}

func TestMatchExchangeSymmetry(t *testing.T) {
	f := newFixture(t, nil)
	const peer = 0x10
	a, err := f.mgr.Alloc(f.sess, 42, peer, true, nil)
	require.NoError(t, err)
	b, err := f.mgr.Alloc(f.sess, 42, peer, false, nil)
	require.NoError(t, err)

	pkt := &message.MessageHeader{SourceNodeID: peer}
	fromInitiator := &message.ProtocolHeader{ExchangeID: 42, Initiator: true}
	fromResponder := &message.ProtocolHeader{ExchangeID: 42, Initiator: false}

	assert.False(t, a.MatchExchange(f.sess, pkt, fromInitiator))
	assert.True(t, b.MatchExchange(f.sess, pkt, fromInitiator))
	assert.True(t, a.MatchExchange(f.sess, pkt, fromResponder))
	assert.False(t, b.MatchExchange(f.sess, pkt, fromResponder))

	other := &message.MessageHeader{SourceNodeID: peer + 1}
	assert.False(t, a.MatchExchange(f.sess, other, fromResponder))
	assert.False(t, a.MatchExchange(f.sess, pkt, &message.ProtocolHeader{ExchangeID: 43}))

	s2, err := f.sessions.NewUnsecuredSession(peerAddr)
	require.NoError(t, err)
	assert.False(t, a.MatchExchange(s2, pkt, fromResponder))

	wild, err := f.mgr.Alloc(f.sess, 7, message.AnyNodeID, true, nil)
	require.NoError(t, err)
	assert.True(t, wild.MatchExchange(f.sess, other, &message.ProtocolHeader{ExchangeID: 7}))
}

func TestExpectResponseState(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)
	send := func() error {
		return ec.SendMessage(message.ProtocolForTesting, 0x01, []byte("req"), ExpectResponse)
	}

	require.NoError(t, send())
	assert.Equal(t, ExchangeStateAwaitingResponse, ec.State())
	assert.ErrorIs(t, send(), ErrIncorrectState)

	// A response resolves the wait.
	f.deliver(ec.ExchangeID(), false, 0x02, false)
	require.Len(t, rec.headers, 1)
	assert.False(t, ec.IsResponseExpected())
	require.NoError(t, send())
	assert.ErrorIs(t, send(), ErrIncorrectState)

	// So does cancelling the timer and clearing the flag.
	ec.CancelResponseTimer()
	ec.SetResponseExpected(false)
	require.NoError(t, send())

	// Sends without the flag never conflict.
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x03, nil, 0))
	assert.Len(t, f.tr.sent, 4)
}

func TestDelegateCanExpectResponseAgain(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	rec.onMessage = func(ec *Context) error {
		return ec.SendMessage(message.ProtocolForTesting, 0x05, nil, ExpectResponse)
	}
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)
	ec.SetResponseTimeout(time.Second)
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse))

	f.deliver(ec.ExchangeID(), false, 0x02, false)
	assert.True(t, ec.IsResponseExpected())
	assert.Len(t, f.tr.sent, 2)
}

func TestSendHeaderFields(t *testing.T) {
	f := newFixture(t, nil)
	ec, err := f.mgr.NewContext(f.sess, &recorder{})
	require.NoError(t, err)
	next, err := f.mgr.NewContext(f.sess, &recorder{})
	require.NoError(t, err)
	assert.Equal(t, ec.ExchangeID()+1, next.ExchangeID())

	require.NoError(t, ec.SendMessage(message.ProtocolInteractionModel, 0x02, []byte{1}, 0))
	_, hdr := f.lastSent(t)
	assert.Equal(t, ec.ExchangeID(), hdr.ExchangeID)
	assert.Equal(t, message.ProtocolInteractionModel, hdr.ProtocolID)
	assert.Equal(t, uint8(0x02), hdr.ProtocolOpcode)
	assert.True(t, hdr.Initiator)

	responder, err := f.mgr.Alloc(f.sess, 99, message.AnyNodeID, false, nil)
	require.NoError(t, err)
	require.NoError(t, responder.SendMessage(message.ProtocolInteractionModel, 0x05, nil, 0))
	_, hdr = f.lastSent(t)
	assert.Equal(t, uint16(99), hdr.ExchangeID)
	assert.False(t, hdr.Initiator)
}

func TestSendFailureUnwindsResponseState(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)
	ec.SetResponseTimeout(time.Second)

	f.tr.err = errors.New("link down")
	err = ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse)
	require.Error(t, err)
	assert.False(t, ec.IsResponseExpected())
	assert.Nil(t, ec.timer)

	f.tr.err = nil
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse))
}

func TestResponseTimeoutKeepsWaiting(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(c *ManagerConfig) { c.Registerer = reg })
	rec := &recorder{}

	f.layer.Lock()
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)
	ec.SetResponseTimeout(500 * time.Millisecond)
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse))
	f.layer.Unlock()

	f.clock.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool {
		f.layer.Lock()
		defer f.layer.Unlock()
		return rec.timeouts == 1
	}, time.Second, time.Millisecond)

	f.layer.Lock()
	defer f.layer.Unlock()
	assert.True(t, ec.IsResponseExpected())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.mgr.metrics.responseTimeouts))

	// The late response is still delivered.
	f.deliver(ec.ExchangeID(), false, 0x02, false)
	assert.Len(t, rec.headers, 1)
	assert.False(t, ec.IsResponseExpected())
}

func TestCloseCancelsTimer(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}

	f.layer.Lock()
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)
	ec.SetResponseTimeout(time.Second)
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse))
	ec.Close()
	f.layer.Unlock()

	f.clock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	f.layer.Lock()
	defer f.layer.Unlock()
	assert.Zero(t, rec.timeouts)
	assert.Equal(t, 1, rec.closing)
	assert.Equal(t, 0, f.mgr.InUse())
}

func TestCloseFromDelegateFreesAfterDispatch(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	var inUseDuring int
	rec.onMessage = func(ec *Context) error {
		ec.Close()
		inUseDuring = f.mgr.InUse()
		return nil
	}
	ec, err := f.mgr.NewContext(f.sess, rec)
	require.NoError(t, err)

	f.deliver(ec.ExchangeID(), false, 0x02, false)
	assert.Equal(t, 1, inUseDuring)
	assert.Equal(t, 0, f.mgr.InUse())
}

func TestNoDelegateDropsMessage(t *testing.T) {
	f := newFixture(t, nil)
	ec, err := f.mgr.NewContext(f.sess, nil)
	require.NoError(t, err)
	require.NoError(t, ec.SendMessage(message.ProtocolForTesting, 0x01, nil, ExpectResponse))
	f.deliver(ec.ExchangeID(), false, 0x02, false)
	assert.False(t, ec.IsResponseExpected())
}

func TestUnsolicitedDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(c *ManagerConfig) { c.Registerer = reg })
	anyType, exact := &recorder{}, &recorder{}
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandler(message.ProtocolForTesting, anyType, false))
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 0x07, exact, false))

	f.deliver(100, true, 0x07, false)
	f.deliver(101, true, 0x08, false)
	require.Len(t, exact.headers, 1)
	require.Len(t, anyType.headers, 1)
	assert.Equal(t, uint8(0x08), anyType.headers[0].ProtocolOpcode)
	assert.Equal(t, 2, f.mgr.InUse())

	// The next message on exchange 100 goes to the open responder context.
	f.deliver(100, true, 0x09, false)
	assert.Len(t, exact.headers, 2)
	assert.Len(t, anyType.headers, 1)

	// Duplicates on a live exchange are dropped.
	f.deliver(100, true, 0x09, true)
	assert.Len(t, exact.headers, 2)

	// Unmatched responses and unknown protocols are dropped.
	f.deliver(555, false, 0x01, false)
	f.mgr.OnMessageReceived(f.sess, &message.MessageHeader{}, &message.ProtocolHeader{ProtocolID: message.ProtocolBDX, Initiator: true}, nil, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.mgr.metrics.unsolicitedDropped))
	assert.Equal(t, 2, f.mgr.InUse())
}

func TestUnsolicitedDuplicates(t *testing.T) {
	f := newFixture(t, nil)
	strict, lenient := &recorder{}, &recorder{}
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 1, strict, false))
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 2, lenient, true))

	f.deliver(10, true, 1, true)
	f.deliver(11, true, 2, true)
	assert.Empty(t, strict.headers)
	assert.Len(t, lenient.headers, 1)
}

func TestHandlerTable(t *testing.T) {
	f := newFixture(t, nil)
	d := &recorder{}
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandler(message.ProtocolForTesting, d, false))
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 1, d, false))
	// Re-registering replaces in place.
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 1, d, true))
	assert.ErrorIs(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 2, d, false), ErrHandlerTableFull)
	assert.ErrorIs(t, f.mgr.RegisterUnsolicitedMessageHandler(message.ProtocolBDX, nil, false), ErrInvalidArgument)

	require.NoError(t, f.mgr.UnregisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 1))
	assert.ErrorIs(t, f.mgr.UnregisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 1), ErrNoHandler)
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandlerForType(message.ProtocolForTesting, 2, d, false))
	require.NoError(t, f.mgr.UnregisterUnsolicitedMessageHandler(message.ProtocolForTesting))
	assert.ErrorIs(t, f.mgr.UnregisterUnsolicitedMessageHandler(message.ProtocolForTesting), ErrNoHandler)
}

func TestUnsolicitedPoolExhausted(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(c *ManagerConfig) { c.Registerer = reg })
	for i := 0; i < f.mgr.Capacity(); i++ {
		_, err := f.mgr.NewContext(f.sess, nil)
		require.NoError(t, err)
	}
	d := &recorder{}
	require.NoError(t, f.mgr.RegisterUnsolicitedMessageHandler(message.ProtocolForTesting, d, false))
	f.deliver(1, true, 1, false)
	assert.Empty(t, d.headers)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.mgr.metrics.allocFailures))
	assert.Equal(t, float64(f.mgr.Capacity()), testutil.ToFloat64(f.mgr.metrics.inUse))
}

func TestSessionExpiryAbortsExchanges(t *testing.T) {
	f := newFixture(t, nil)
	waiting, idle := &recorder{}, &recorder{}
	a, err := f.mgr.NewContext(f.sess, waiting)
	require.NoError(t, err)
	require.NoError(t, a.SendMessage(message.ProtocolForTesting, 1, nil, ExpectResponse))
	_, err = f.mgr.NewContext(f.sess, idle)
	require.NoError(t, err)

	f.sessions.ExpireSession(f.sess)
	assert.Equal(t, 1, waiting.timeouts)
	assert.Equal(t, 1, waiting.closing)
	assert.Zero(t, idle.timeouts)
	assert.Equal(t, 1, idle.closing)
	assert.Equal(t, 0, f.mgr.InUse())
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.NewContext(f.sess, &recorder{})
	require.NoError(t, err)
	held, err := f.mgr.NewContext(f.sess, &recorder{})
	require.NoError(t, err)
	held.Retain()

	err = f.mgr.Shutdown()
	assert.ErrorIs(t, err, ErrContextsLeaked)
	assert.Equal(t, 1, f.mgr.InUse())
	held.Release()
	assert.Equal(t, 0, f.mgr.InUse())
	assert.NoError(t, f.mgr.Shutdown())
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	f := newFixture(t, nil)
	_, err = f.mgr.NewContext(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
