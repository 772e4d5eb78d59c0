package session

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/logging"

	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/system"
	"github.com/backkem/matter-core/pkg/transport"
)

// ErrPrivacyUnsupported is returned for messages with obfuscated headers.
var ErrPrivacyUnsupported = errors.New("session: privacy obfuscated messages are not supported")

// Delegate receives decrypted messages and session lifecycle events. It is
// implemented by the exchange manager.
type Delegate interface {
	// OnMessageReceived is called with the stack lock held. duplicate is
	// set when the message counter was already seen on the session.
	OnMessageReceived(s *Session, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte, duplicate bool)

	// OnSessionExpired is called once a session can no longer carry
	// messages.
	OnSessionExpired(s *Session)
}

// ManagerConfig configures the secure session manager.
type ManagerConfig struct {
	// Transport sends outgoing datagrams. It may be set later with
	// SetTransport when the transport needs the manager as its handler.
	Transport transport.Transport

	// System provides the stack lock and the clock. Required.
	System *system.Layer

	// LocalNodeID is the operational node id used by CASE and group
	// sessions.
	LocalNodeID uint64

	MaxSessions       int
	MaxUnsecuredPeers int
	MaxGroupPeers     int

	// GroupKeys resolves epoch keys for JoinGroup. Optional.
	GroupKeys crypto.GroupKeyProvider

	LoggerFactory logging.LoggerFactory
}

// Manager owns every session of the node and moves messages between the
// transport and the exchange layer.
type Manager struct {
	system      *system.Layer
	transport   transport.Transport
	delegate    Delegate
	localNodeID uint64

	secure           *Table
	unsecured        *lru.Cache[unsecuredKey, *Session]
	unsecuredCounter *message.LocalCounter

	groupKeys      crypto.GroupKeyProvider
	groups         map[groupRef]*groupMembership
	groupPeerCount int
	maxGroupPeers  int

	log logging.LeveledLogger
}

// NewManager creates a session manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.System == nil {
		return nil, errors.New("session: system layer is required")
	}
	if config.MaxUnsecuredPeers <= 0 {
		config.MaxUnsecuredPeers = DefaultMaxUnsecuredPeers
	}
	if config.MaxGroupPeers <= 0 {
		config.MaxGroupPeers = DefaultMaxGroupPeers
	}

	m := &Manager{
		system:           config.System,
		transport:        config.Transport,
		localNodeID:      config.LocalNodeID,
		secure:           NewTable(config.MaxSessions),
		unsecuredCounter: message.NewLocalCounter(),
		groupKeys:        config.GroupKeys,
		groups:           make(map[groupRef]*groupMembership),
		maxGroupPeers:    config.MaxGroupPeers,
	}
	cache, err := lru.NewWithEvict[unsecuredKey, *Session](config.MaxUnsecuredPeers, m.onUnsecuredEvicted)
	if err != nil {
		return nil, err
	}
	m.unsecured = cache
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("session")
	}
	return m, nil
}

func (m *Manager) SetTransport(t transport.Transport) { m.transport = t }
func (m *Manager) SetDelegate(d Delegate)             { m.delegate = d }
func (m *Manager) SystemLayer() *system.Layer         { return m.system }
func (m *Manager) LocalNodeID() uint64                { return m.localNodeID }

// AllocateSessionID reserves nothing; it returns an id that is free now.
// Handshakes call it before sending their session parameters and pass the
// id back in NewSecureSession.
func (m *Manager) AllocateSessionID() (uint16, error) {
	return m.secure.AllocateID()
}

// NewSecureSession installs the session produced by a completed handshake.
func (m *Manager) NewSecureSession(config SecureSessionConfig) (*Session, error) {
	s, err := newSecureSession(config, m.system.Now())
	if err != nil {
		return nil, err
	}
	if err := m.secure.Add(s); err != nil {
		return nil, err
	}
	if m.log != nil {
		m.log.Infof("established %s with %s", s, s.peerAddr)
	}
	return s, nil
}

// FindSecureSession returns the secure session with a local session id.
func (m *Manager) FindSecureSession(localSessionID uint16) *Session {
	return m.secure.FindByLocalID(localSessionID)
}

// SecureSessionCount returns the number of live secure sessions.
func (m *Manager) SecureSessionCount() int { return m.secure.Count() }

// ExpireSession removes s and zeroizes its keys. The delegate learns of it
// through OnSessionExpired so exchanges on it can be aborted.
func (m *Manager) ExpireSession(s *Session) {
	if s == nil || s.expired {
		return
	}
	switch s.typ {
	case SessionTypeUnsecured:
		// The eviction callback expires it.
		m.unsecured.Remove(s.unsecuredKey)
		return
	case SessionTypeGroup:
		m.LeaveGroup(s.fabricIndex, s.groupID)
		return
	default:
		m.secure.Remove(s.localSessionID)
	}
	m.expire(s)
}

func (m *Manager) expire(s *Session) {
	if s.expired {
		return
	}
	s.expired = true
	s.zeroize()
	if m.log != nil {
		m.log.Debugf("expired %s", s)
	}
	if m.delegate != nil {
		m.delegate.OnSessionExpired(s)
	}
}

// Shutdown expires every session.
func (m *Manager) Shutdown() {
	var all []*Session
	m.secure.ForEach(func(s *Session) bool {
		all = append(all, s)
		return true
	})
	for _, g := range m.groups {
		all = append(all, g.session)
	}
	for _, s := range all {
		m.ExpireSession(s)
	}
	m.unsecured.Purge()
}

// SendMessage frames payload behind hdr for s, encrypting it on secure
// sessions, and hands it to the transport.
func (m *Manager) SendMessage(s *Session, hdr *message.ProtocolHeader, payload []byte) error {
	if s == nil {
		return ErrSessionNotFound
	}
	if s.expired {
		return ErrSessionExpired
	}
	if m.transport == nil {
		return ErrNoTransport
	}
	buf, err := message.NewPacketBufferWithData(payload)
	if err != nil {
		return err
	}
	counter, err := s.counter.Next()
	if err != nil {
		return err
	}

	pkt := message.MessageHeader{MessageCounter: counter}
	switch s.typ {
	case SessionTypeUnsecured:
		if s.role == SessionRoleInitiator {
			pkt.SourcePresent = true
			pkt.SourceNodeID = s.localNodeID
		} else {
			pkt.DestinationType = message.DestinationNodeID
			pkt.DestinationNodeID = s.peerNodeID
		}
		if err := hdr.PrependTo(buf); err != nil {
			return err
		}
	case SessionTypeGroup:
		pkt.SessionType = message.SessionTypeGroup
		pkt.SessionID = s.localSessionID
		pkt.SourcePresent = true
		pkt.SourceNodeID = s.localNodeID
		pkt.DestinationType = message.DestinationGroupID
		pkt.DestinationGroupID = s.groupID
		if err := message.Encrypt(s.encryptKey, &pkt, hdr, buf); err != nil {
			return err
		}
	default:
		pkt.SessionID = s.peerSessionID
		pkt.SourceNodeID = s.localNodeID
		if err := message.Encrypt(s.encryptKey, &pkt, hdr, buf); err != nil {
			return err
		}
	}
	if err := pkt.PrependTo(buf); err != nil {
		return err
	}

	s.lastActivity = m.system.Now()
	if m.log != nil {
		m.log.Tracef("send %s counter=%d exchange=%d opcode=%#02x", s, counter, hdr.ExchangeID, hdr.ProtocolOpcode)
	}
	return m.transport.Send(buf.Bytes(), s.peerAddr)
}

// OnTransportMessage is the transport message handler. It takes the stack
// lock and drops messages that fail to decode, authenticate or route.
func (m *Manager) OnTransportMessage(msg *transport.ReceivedMessage) {
	m.system.Lock()
	defer m.system.Unlock()
	if err := m.HandleMessage(msg.Data, msg.PeerAddr); err != nil && m.log != nil {
		m.log.Debugf("dropped message from %s: %v", msg.PeerAddr, err)
	}
}

// HandleMessage decodes, authenticates and counter-checks one datagram and
// passes it to the delegate. Must be called with the stack lock held.
func (m *Manager) HandleMessage(data []byte, from transport.PeerAddress) error {
	buf, err := message.WrapPacket(data)
	if err != nil {
		return err
	}
	var pkt message.MessageHeader
	if err := pkt.DecodeFrom(buf); err != nil {
		return err
	}
	if err := pkt.Validate(); err != nil {
		return err
	}
	if pkt.Privacy {
		return ErrPrivacyUnsupported
	}

	switch {
	case pkt.SessionType == message.SessionTypeGroup:
		return m.handleGroup(&pkt, buf)
	case pkt.SessionID == 0:
		return m.handleUnsecured(&pkt, buf, from)
	default:
		return m.handleSecure(&pkt, buf, from)
	}
}

func (m *Manager) handleSecure(pkt *message.MessageHeader, buf *message.PacketBuffer, from transport.PeerAddress) error {
	s := m.secure.FindByLocalID(pkt.SessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	if !pkt.SourcePresent {
		pkt.SourceNodeID = s.peerNodeID
	}
	var hdr message.ProtocolHeader
	if err := message.Decrypt(s.decryptKey, pkt, &hdr, buf); err != nil {
		return err
	}

	dup := s.reception.IsDuplicate(pkt.MessageCounter)
	if !dup {
		s.reception.Commit(pkt.MessageCounter)
		if from.IsInitialized() {
			s.peerAddr = from
		}
	}
	s.lastActivity = m.system.Now()
	m.deliver(s, pkt, &hdr, buf.Bytes(), dup)
	return nil
}

func (m *Manager) handleUnsecured(pkt *message.MessageHeader, buf *message.PacketBuffer, from transport.PeerAddress) error {
	var hdr message.ProtocolHeader
	if err := hdr.DecodeFrom(buf); err != nil {
		return err
	}

	var s *Session
	switch {
	case pkt.DestinationType == message.DestinationNodeID:
		var ok bool
		if s, ok = m.unsecured.Get(unsecuredKey{SessionRoleInitiator, pkt.DestinationNodeID}); !ok {
			return ErrSessionNotFound
		}
		if !pkt.SourcePresent {
			pkt.SourceNodeID = s.peerNodeID
		}
	case pkt.SourcePresent:
		s = m.responderSession(pkt.SourceNodeID, from)
	default:
		return ErrUnknownSender
	}

	dup := s.reception.IsDuplicate(pkt.MessageCounter)
	s.reception.Commit(pkt.MessageCounter)
	if from.IsInitialized() {
		s.peerAddr = from
	}
	s.lastActivity = m.system.Now()
	m.deliver(s, pkt, &hdr, buf.Bytes(), dup)
	return nil
}

func (m *Manager) deliver(s *Session, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte, dup bool) {
	if m.log != nil {
		m.log.Tracef("recv %s counter=%d exchange=%d opcode=%#02x dup=%v", s, pkt.MessageCounter, hdr.ExchangeID, hdr.ProtocolOpcode, dup)
	}
	if m.delegate == nil {
		return
	}
	m.delegate.OnMessageReceived(s, pkt, hdr, payload, dup)
}
