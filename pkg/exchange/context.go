package exchange

import (
	"time"

	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/system"
)

// Delegate receives the events of an exchange.
type Delegate interface {
	// OnMessageReceived is called for every message delivered on the
	// exchange. The response timer is already cancelled, so the delegate
	// may send again with ExpectResponse right away.
	OnMessageReceived(ec *Context, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error

	// OnResponseTimeout is called when no message arrived within the
	// response timeout. The exchange keeps expecting a response.
	OnResponseTimeout(ec *Context)

	// OnExchangeClosing is called once when the exchange is closed or
	// aborted, before the delegate is detached.
	OnExchangeClosing(ec *Context)
}

// Context is one exchange. Contexts are obtained from Manager.NewContext or
// handed to an unsolicited handler, and must only be used with the stack
// lock held.
type Context struct {
	mgr      *Manager
	refCount int

	exchangeID uint16
	initiator  bool
	peerNodeID uint64
	session    *session.Session
	delegate   Delegate

	responseExpected bool
	responseTimeout  time.Duration
	timer            *system.Timer

	closed bool
}

// ExchangeID returns the id carried in the payload header of every
// message on the exchange.
func (ec *Context) ExchangeID() uint16 { return ec.exchangeID }

// IsInitiator reports whether this node opened the exchange.
func (ec *Context) IsInitiator() bool { return ec.initiator }

// PeerNodeID returns the node id of the other end.
func (ec *Context) PeerNodeID() uint64 { return ec.peerNodeID }

// Session returns the session the exchange runs over.
func (ec *Context) Session() *session.Session { return ec.session }

// Delegate returns the current delegate, nil once the exchange closed.
func (ec *Context) Delegate() Delegate { return ec.delegate }

// Manager returns the manager owning the context.
func (ec *Context) Manager() *Manager { return ec.mgr }

// SetDelegate replaces the delegate, e.g. when a handler hands an
// unsolicited exchange to another object.
func (ec *Context) SetDelegate(d Delegate) { ec.delegate = d }

// Role is the initiator flag as an ExchangeRole.
func (ec *Context) Role() ExchangeRole {
	if ec.initiator {
		return ExchangeRoleInitiator
	}
	return ExchangeRoleResponder
}

// State derives the lifecycle state from the reference count and flags.
func (ec *Context) State() ExchangeState {
	switch {
	case ec.refCount == 0:
		return ExchangeStateFree
	case ec.closed:
		return ExchangeStateClosed
	case ec.responseExpected:
		return ExchangeStateAwaitingResponse
	default:
		return ExchangeStateInitialized
	}
}

// SetResponseTimeout sets the timeout armed by later ExpectResponse sends.
// Zero waits indefinitely.
func (ec *Context) SetResponseTimeout(d time.Duration) { ec.responseTimeout = d }

// ResponseTimeout returns the timeout armed by ExpectResponse sends.
func (ec *Context) ResponseTimeout() time.Duration { return ec.responseTimeout }

// IsResponseExpected reports whether the exchange awaits a response.
func (ec *Context) IsResponseExpected() bool { return ec.responseExpected }

// SetResponseExpected sets or clears the awaiting-response flag without
// touching the timer.
func (ec *Context) SetResponseExpected(v bool) { ec.responseExpected = v }

// CancelResponseTimer stops a pending response timer.
func (ec *Context) CancelResponseTimer() {
	if ec.timer != nil {
		ec.timer.Cancel()
		ec.timer = nil
	}
}

// Retain takes an extra reference that keeps the slot allocated.
func (ec *Context) Retain() { ec.refCount++ }

// Release drops a reference. The last release returns the slot to the pool.
func (ec *Context) Release() {
	if ec.refCount == 0 {
		return
	}
	ec.refCount--
	if ec.refCount == 0 {
		ec.mgr.free(ec)
	}
}

// SendMessage sends payload on the exchange. The payload header carries the
// exchange id and the context's own initiator flag.
func (ec *Context) SendMessage(proto message.ProtocolID, msgType uint8, payload []byte, flags SendFlags) error {
	if ec.closed || ec.refCount == 0 {
		return ErrExchangeClosed
	}
	ec.Retain()
	defer ec.Release()

	expect := flags.Has(ExpectResponse)
	if expect {
		if ec.responseExpected {
			return ErrIncorrectState
		}
		ec.responseExpected = true
		if ec.responseTimeout > 0 {
			ec.startResponseTimer()
		}
	}

	hdr := message.ProtocolHeader{
		ExchangeID:     ec.exchangeID,
		ProtocolID:     proto,
		ProtocolOpcode: msgType,
		Initiator:      ec.initiator,
	}
	if err := ec.mgr.sessions.SendMessage(ec.session, &hdr, payload); err != nil {
		if expect {
			ec.CancelResponseTimer()
			ec.responseExpected = false
		}
		return err
	}
	return nil
}

// HandleMessage delivers an incoming message. Any message on the exchange
// resolves a pending response, whatever its type.
func (ec *Context) HandleMessage(pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	ec.Retain()
	defer ec.Release()

	ec.CancelResponseTimer()
	ec.responseExpected = false

	if ec.delegate == nil {
		if ec.mgr.log != nil {
			ec.mgr.log.Warnf("exchange %d: dropping %s opcode %#02x, no delegate", ec.exchangeID, hdr.ProtocolID, hdr.ProtocolOpcode)
		}
		return nil
	}
	return ec.delegate.OnMessageReceived(ec, pkt, hdr, payload)
}

// MatchExchange reports whether an incoming message belongs to this
// exchange: same id and session, a matching peer, and the I flag set by
// the other side's role.
func (ec *Context) MatchExchange(s *session.Session, pkt *message.MessageHeader, hdr *message.ProtocolHeader) bool {
	return ec.exchangeID == hdr.ExchangeID &&
		ec.session == s &&
		(ec.peerNodeID == message.AnyNodeID || ec.peerNodeID == pkt.SourceNodeID) &&
		hdr.Initiator != ec.initiator
}

// Close ends the exchange gracefully: the delegate is told and detached,
// the timer stopped and the allocation reference dropped.
func (ec *Context) Close() { ec.close(false) }

// Abort ends the exchange immediately.
func (ec *Context) Abort() { ec.close(true) }

func (ec *Context) close(abort bool) {
	if ec.closed || ec.refCount == 0 {
		return
	}
	ec.closed = true
	if ec.mgr.log != nil {
		ec.mgr.log.Debugf("exchange %d (%s) closed, abort=%v", ec.exchangeID, ec.Role(), abort)
	}
	if d := ec.delegate; d != nil {
		d.OnExchangeClosing(ec)
	}
	ec.delegate = nil
	ec.CancelResponseTimer()
	ec.Release()
}

func (ec *Context) startResponseTimer() {
	ec.CancelResponseTimer()
	ec.timer = ec.mgr.system.StartTimer(ec.responseTimeout, ec.onResponseTimeout)
}

func (ec *Context) onResponseTimeout() {
	ec.timer = nil
	ec.mgr.metrics.responseTimeouts.Inc()
	if ec.mgr.log != nil {
		ec.mgr.log.Debugf("exchange %d: response timeout", ec.exchangeID)
	}
	ec.Retain()
	defer ec.Release()
	// A late response is still accepted; only Close ends the wait.
	if ec.delegate != nil {
		ec.delegate.OnResponseTimeout(ec)
	}
}
