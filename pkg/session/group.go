package session

import (
	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/transport"
)

// DefaultMaxGroupPeers bounds the senders whose group counters are tracked.
const DefaultMaxGroupPeers = 64

type groupRef struct {
	fabricIndex uint8
	groupID     uint16
}

// groupMembership is a joined group: the session used to send to it and
// the reception window of every sender heard on it.
type groupMembership struct {
	session *Session
	peers   map[uint64]*message.ReceptionState
}

// JoinGroup derives the operational key of a group from its active epoch
// key and returns the group session for it. Messages to the group are sent
// to its IPv6 multicast address.
func (m *Manager) JoinGroup(fabricIndex uint8, fabricID uint64, groupID uint16) (*Session, error) {
	if m.groupKeys == nil {
		return nil, ErrNoGroupKeys
	}
	ref := groupRef{fabricIndex, groupID}
	if g, ok := m.groups[ref]; ok {
		return g.session, nil
	}
	key, err := crypto.DeriveOperationalKey(m.groupKeys, fabricIndex, groupID)
	if err != nil {
		return nil, err
	}
	sessionID, err := crypto.DeriveSessionID(key)
	if err != nil {
		return nil, err
	}
	s := &Session{
		typ:            SessionTypeGroup,
		localSessionID: sessionID,
		peerSessionID:  sessionID,
		localNodeID:    m.localNodeID,
		peerNodeID:     message.AnyNodeID,
		fabricIndex:    fabricIndex,
		groupID:        groupID,
		peerAddr:       transport.Multicast(fabricID, groupID),
		encryptKey:     key,
		decryptKey:     append([]byte(nil), key...),
		counter:        message.NewLocalCounter(),
		lastActivity:   m.system.Now(),
	}
	m.groups[ref] = &groupMembership{session: s, peers: make(map[uint64]*message.ReceptionState)}
	if m.log != nil {
		m.log.Infof("joined group %#04x on fabric %d (session %d)", groupID, fabricIndex, sessionID)
	}
	return s, nil
}

// LeaveGroup drops a joined group and the counters of its senders.
func (m *Manager) LeaveGroup(fabricIndex uint8, groupID uint16) {
	ref := groupRef{fabricIndex, groupID}
	g, ok := m.groups[ref]
	if !ok {
		return
	}
	delete(m.groups, ref)
	m.groupPeerCount -= len(g.peers)
	m.expire(g.session)
}

// handleGroup tries every joined group whose session id and group id match
// the message; several groups may share a 16-bit session id.
func (m *Manager) handleGroup(pkt *message.MessageHeader, buf *message.PacketBuffer) error {
	for _, g := range m.groups {
		s := g.session
		if s.localSessionID != pkt.SessionID || s.groupID != pkt.DestinationGroupID {
			continue
		}
		attempt := buf.Clone()
		var hdr message.ProtocolHeader
		if err := message.Decrypt(s.decryptKey, pkt, &hdr, attempt); err != nil {
			continue
		}

		state, ok := g.peers[pkt.SourceNodeID]
		if !ok {
			if m.groupPeerCount >= m.maxGroupPeers {
				return ErrGroupPeerTableFull
			}
			state = message.NewReceptionState(message.ReceptionGroup)
			g.peers[pkt.SourceNodeID] = state
			m.groupPeerCount++
		}
		dup := state.IsDuplicate(pkt.MessageCounter)
		state.Commit(pkt.MessageCounter)
		s.lastActivity = m.system.Now()
		m.deliver(s, pkt, &hdr, attempt.Bytes(), dup)
		return nil
	}
	return ErrUnknownGroup
}
