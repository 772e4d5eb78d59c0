package exchange

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/system"
)

const (
	DefaultMaxContexts            = 16
	DefaultMaxUnsolicitedHandlers = 8

	anyMessageType = -1
)

// SessionManager is what the exchange layer needs from the session layer.
type SessionManager interface {
	SendMessage(s *session.Session, hdr *message.ProtocolHeader, payload []byte) error
	SystemLayer() *system.Layer
	SetDelegate(d session.Delegate)
}

// ManagerConfig configures the exchange Manager.
type ManagerConfig struct {
	// Sessions carries messages. The manager installs itself as its
	// delegate. Required.
	Sessions SessionManager

	MaxContexts            int
	MaxUnsolicitedHandlers int

	// Registerer receives the pool metrics. Optional.
	Registerer prometheus.Registerer

	LoggerFactory logging.LoggerFactory
}

type unsolicitedHandler struct {
	inUse     bool
	protocol  message.ProtocolID
	msgType   int
	delegate  Delegate
	allowDups bool
}

// Manager owns the exchange context pool and the unsolicited handler table,
// and routes every message the session layer delivers.
type Manager struct {
	sessions SessionManager
	system   *system.Layer

	contexts []Context
	handlers []unsolicitedHandler

	nextExchangeID uint16

	metrics *metrics
	log     logging.LeveledLogger
}

// NewManager creates an exchange manager bound to a session manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Sessions == nil {
		return nil, fmt.Errorf("%w: nil session manager", ErrInvalidArgument)
	}
	if config.MaxContexts <= 0 {
		config.MaxContexts = DefaultMaxContexts
	}
	if config.MaxUnsolicitedHandlers <= 0 {
		config.MaxUnsolicitedHandlers = DefaultMaxUnsolicitedHandlers
	}

	m := &Manager{
		sessions: config.Sessions,
		system:   config.Sessions.SystemLayer(),
		contexts: make([]Context, config.MaxContexts),
		handlers: make([]unsolicitedHandler, config.MaxUnsolicitedHandlers),
		metrics:  newMetrics(),
	}
	if config.Registerer != nil {
		if err := m.metrics.register(config.Registerer); err != nil {
			return nil, err
		}
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("exchange")
	}

	// The first exchange id is random; later ones increment.
	var b [2]byte
	if _, err := rand.Read(b[:]); err == nil {
		m.nextExchangeID = binary.LittleEndian.Uint16(b[:])
	}

	config.Sessions.SetDelegate(m)
	return m, nil
}

// SystemLayer returns the system layer of the underlying session manager.
func (m *Manager) SystemLayer() *system.Layer { return m.system }

// NewContext opens an exchange this node initiates on s.
func (m *Manager) NewContext(s *session.Session, d Delegate) (*Context, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ErrInvalidArgument)
	}
	id := m.nextExchangeID
	m.nextExchangeID++
	return m.Alloc(s, id, s.PeerNodeID(), true, d)
}

// Alloc takes a context from the pool. It fails with ErrNoMemory rather
// than wait when the pool is exhausted.
func (m *Manager) Alloc(s *session.Session, exchangeID uint16, peerNodeID uint64, initiator bool, d Delegate) (*Context, error) {
	for i := range m.contexts {
		ec := &m.contexts[i]
		if ec.refCount != 0 {
			continue
		}
		*ec = Context{
			mgr:        m,
			refCount:   1,
			exchangeID: exchangeID,
			initiator:  initiator,
			peerNodeID: peerNodeID,
			session:    s,
			delegate:   d,
		}
		m.metrics.inUse.Inc()
		if m.log != nil {
			m.log.Debugf("exchange %d (%s) opened on %s", exchangeID, ec.Role(), s)
		}
		return ec, nil
	}
	m.metrics.allocFailures.Inc()
	if m.log != nil {
		m.log.Warnf("exchange pool exhausted (%d contexts)", len(m.contexts))
	}
	return nil, ErrNoMemory
}

func (m *Manager) free(ec *Context) {
	ec.CancelResponseTimer()
	*ec = Context{}
	m.metrics.inUse.Dec()
}

// InUse returns the number of allocated contexts.
func (m *Manager) InUse() int {
	n := 0
	for i := range m.contexts {
		if m.contexts[i].refCount > 0 {
			n++
		}
	}
	return n
}

// Capacity returns the pool size.
func (m *Manager) Capacity() int { return len(m.contexts) }

// RegisterUnsolicitedMessageHandler routes unsolicited messages of any type
// of a protocol to new exchanges with delegate d. allowDups also delivers
// messages whose counter was already seen.
func (m *Manager) RegisterUnsolicitedMessageHandler(proto message.ProtocolID, d Delegate, allowDups bool) error {
	return m.register(proto, anyMessageType, d, allowDups)
}

// RegisterUnsolicitedMessageHandlerForType narrows a handler to one message
// type. It takes precedence over a handler for any type.
func (m *Manager) RegisterUnsolicitedMessageHandlerForType(proto message.ProtocolID, msgType uint8, d Delegate, allowDups bool) error {
	return m.register(proto, int(msgType), d, allowDups)
}

// UnregisterUnsolicitedMessageHandler removes the protocol-wide handler for proto.
func (m *Manager) UnregisterUnsolicitedMessageHandler(proto message.ProtocolID) error {
	return m.unregister(proto, anyMessageType)
}

// UnregisterUnsolicitedMessageHandlerForType removes the handler for one message type.
func (m *Manager) UnregisterUnsolicitedMessageHandlerForType(proto message.ProtocolID, msgType uint8) error {
	return m.unregister(proto, int(msgType))
}

func (m *Manager) register(proto message.ProtocolID, msgType int, d Delegate, allowDups bool) error {
	if d == nil {
		return fmt.Errorf("%w: nil delegate", ErrInvalidArgument)
	}
	free := -1
	for i := range m.handlers {
		h := &m.handlers[i]
		if h.inUse && h.protocol == proto && h.msgType == msgType {
			h.delegate, h.allowDups = d, allowDups
			return nil
		}
		if !h.inUse && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return ErrHandlerTableFull
	}
	m.handlers[free] = unsolicitedHandler{inUse: true, protocol: proto, msgType: msgType, delegate: d, allowDups: allowDups}
	return nil
}

func (m *Manager) unregister(proto message.ProtocolID, msgType int) error {
	for i := range m.handlers {
		h := &m.handlers[i]
		if h.inUse && h.protocol == proto && h.msgType == msgType {
			*h = unsolicitedHandler{}
			return nil
		}
	}
	return ErrNoHandler
}

// findHandler prefers an exact message type over a protocol-wide handler.
func (m *Manager) findHandler(proto message.ProtocolID, msgType uint8) *unsolicitedHandler {
	var fallback *unsolicitedHandler
	for i := range m.handlers {
		h := &m.handlers[i]
		if !h.inUse || h.protocol != proto {
			continue
		}
		if h.msgType == int(msgType) {
			return h
		}
		if h.msgType == anyMessageType {
			fallback = h
		}
	}
	return fallback
}

// OnMessageReceived implements session.Delegate.
func (m *Manager) OnMessageReceived(s *session.Session, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte, duplicate bool) {
	for i := range m.contexts {
		ec := &m.contexts[i]
		if ec.refCount == 0 || ec.closed || !ec.MatchExchange(s, pkt, hdr) {
			continue
		}
		if duplicate {
			if m.log != nil {
				m.log.Debugf("exchange %d: dropping duplicate counter %d", ec.exchangeID, pkt.MessageCounter)
			}
			return
		}
		if err := ec.HandleMessage(pkt, hdr, payload); err != nil && m.log != nil {
			m.log.Errorf("exchange %d: %v", ec.exchangeID, err)
		}
		return
	}

	if !hdr.Initiator {
		m.drop(s, hdr, "no exchange for response")
		return
	}
	h := m.findHandler(hdr.ProtocolID, hdr.ProtocolOpcode)
	if h == nil {
		m.drop(s, hdr, "no unsolicited handler")
		return
	}
	if duplicate && !h.allowDups {
		m.drop(s, hdr, "duplicate")
		return
	}

	peer := pkt.SourceNodeID
	if s.IsGroup() && !pkt.SourcePresent {
		peer = message.AnyNodeID
	}
	ec, err := m.Alloc(s, hdr.ExchangeID, peer, false, h.delegate)
	if err != nil {
		m.drop(s, hdr, err.Error())
		return
	}
	if err := ec.HandleMessage(pkt, hdr, payload); err != nil && m.log != nil {
		m.log.Errorf("exchange %d: unsolicited %s opcode %#02x: %v", ec.exchangeID, hdr.ProtocolID, hdr.ProtocolOpcode, err)
	}
}

func (m *Manager) drop(s *session.Session, hdr *message.ProtocolHeader, reason string) {
	m.metrics.unsolicitedDropped.Inc()
	if m.log != nil {
		m.log.Warnf("dropping %s opcode %#02x exchange %d on %s: %s", hdr.ProtocolID, hdr.ProtocolOpcode, hdr.ExchangeID, s, reason)
	}
}

// OnSessionExpired implements session.Delegate. Exchanges on the session
// waiting for a response see a timeout, then every exchange is aborted.
func (m *Manager) OnSessionExpired(s *session.Session) {
	for i := range m.contexts {
		ec := &m.contexts[i]
		if ec.refCount == 0 || ec.closed || ec.session != s {
			continue
		}
		ec.Retain()
		if ec.responseExpected && ec.delegate != nil {
			ec.CancelResponseTimer()
			ec.delegate.OnResponseTimeout(ec)
		}
		ec.Abort()
		ec.Release()
	}
}

// Shutdown aborts every open exchange and reports contexts that stay
// retained afterwards.
func (m *Manager) Shutdown() error {
	var err error
	for i := range m.contexts {
		ec := &m.contexts[i]
		if ec.refCount == 0 {
			continue
		}
		ec.Abort()
		if ec.refCount != 0 {
			err = multierr.Append(err, fmt.Errorf("%w: exchange %d (%d refs)", ErrContextsLeaked, ec.exchangeID, ec.refCount))
		}
	}
	m.sessions.SetDelegate(nil)
	return err
}
