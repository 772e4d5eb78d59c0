package session

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/transport"
)

// DefaultMaxUnsecuredPeers bounds the unsecured sessions tracked at once.
const DefaultMaxUnsecuredPeers = 32

// Operational node id range ephemeral initiator ids are drawn from.
const (
	minOperationalNodeID uint64 = 0x0000_0000_0000_0001
	maxOperationalNodeID uint64 = 0xFFFF_FFEF_FFFF_FFFF
)

// unsecuredKey identifies an unsecured session by the initiator's ephemeral
// node id and the local role.
type unsecuredKey struct {
	role   SessionRole
	nodeID uint64
}

// NewUnsecuredSession opens an unsecured session to peer for a handshake
// this node initiates. The session gets a random ephemeral node id that the
// responder echoes back as the destination of its replies.
func (m *Manager) NewUnsecuredSession(peer transport.PeerAddress) (*Session, error) {
	var id uint64
	for {
		var err error
		if id, err = ephemeralNodeID(); err != nil {
			return nil, err
		}
		if !m.unsecured.Contains(unsecuredKey{SessionRoleInitiator, id}) {
			break
		}
	}
	s := m.newUnsecured(SessionRoleInitiator, id, message.UnspecifiedNodeID, peer)
	m.unsecured.Add(unsecuredKey{SessionRoleInitiator, id}, s)
	if m.log != nil {
		m.log.Debugf("opened %s", s)
	}
	return s, nil
}

// responderSession returns the unsecured session for an initiator's
// ephemeral node id, creating it on first contact.
func (m *Manager) responderSession(initiator uint64, from transport.PeerAddress) *Session {
	key := unsecuredKey{SessionRoleResponder, initiator}
	if s, ok := m.unsecured.Get(key); ok {
		return s
	}
	s := m.newUnsecured(SessionRoleResponder, m.localNodeID, initiator, from)
	m.unsecured.Add(key, s)
	return s
}

func (m *Manager) newUnsecured(role SessionRole, local, peer uint64, addr transport.PeerAddress) *Session {
	s := &Session{
		typ:          SessionTypeUnsecured,
		role:         role,
		localNodeID:  local,
		peerNodeID:   peer,
		peerAddr:     addr,
		counter:      m.unsecuredCounter,
		reception:    message.NewReceptionState(message.ReceptionUnencrypted),
		lastActivity: m.system.Now(),
	}
	if role == SessionRoleInitiator {
		s.unsecuredKey = unsecuredKey{role, local}
	} else {
		s.unsecuredKey = unsecuredKey{role, peer}
	}
	return s
}

// onUnsecuredEvicted runs for sessions pushed out of the cache and for
// explicit removals.
func (m *Manager) onUnsecuredEvicted(_ unsecuredKey, s *Session) {
	m.expire(s)
}

func ephemeralNodeID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint64(b[:])
	return n%(maxOperationalNodeID-minOperationalNodeID) + minOperationalNodeID, nil
}
