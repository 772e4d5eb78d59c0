package session

import (
	"fmt"
	"time"

	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/transport"
)

// SessionKeySize is the length of the I2R and R2I keys.
const SessionKeySize = crypto.SymmetricKeySize

// Session is one session context: the peer, the keys of each direction, the
// outgoing message counter and the reception window of the peer's counter.
//
// Sessions are owned by the Manager. A Session handed out by the manager
// stays valid for reading after it expires; sends on it fail.
type Session struct {
	typ  SessionType
	role SessionRole

	localSessionID uint16
	peerSessionID  uint16

	localNodeID uint64
	peerNodeID  uint64
	fabricIndex uint8
	groupID     uint16

	peerAddr transport.PeerAddress

	encryptKey []byte
	decryptKey []byte

	counter   *message.LocalCounter
	reception *message.ReceptionState

	lastActivity time.Time
	expired      bool

	// unsecuredKey indexes unsecured sessions in the manager's peer cache.
	unsecuredKey unsecuredKey
}

func (s *Session) Type() SessionType                  { return s.typ }
func (s *Session) Role() SessionRole                  { return s.role }
func (s *Session) LocalSessionID() uint16             { return s.localSessionID }
func (s *Session) PeerSessionID() uint16              { return s.peerSessionID }
func (s *Session) LocalNodeID() uint64                { return s.localNodeID }
func (s *Session) PeerNodeID() uint64                 { return s.peerNodeID }
func (s *Session) FabricIndex() uint8                 { return s.fabricIndex }
func (s *Session) GroupID() uint16                    { return s.groupID }
func (s *Session) PeerAddress() transport.PeerAddress { return s.peerAddr }
func (s *Session) LastActivity() time.Time            { return s.lastActivity }
func (s *Session) IsExpired() bool                    { return s.expired }

// IsSecure reports whether messages on s are encrypted.
func (s *Session) IsSecure() bool { return s.typ != SessionTypeUnsecured }

// IsGroup reports whether s is a group session.
func (s *Session) IsGroup() bool { return s.typ == SessionTypeGroup }

// SetPeerAddress updates where messages on s are sent, e.g. after the peer
// was seen at a new address.
func (s *Session) SetPeerAddress(addr transport.PeerAddress) { s.peerAddr = addr }

func (s *Session) String() string {
	switch s.typ {
	case SessionTypeUnsecured:
		return fmt.Sprintf("unsecured(%016X@%s)", s.peerNodeID, s.peerAddr)
	case SessionTypeGroup:
		return fmt.Sprintf("group(%#04x/%d)", s.groupID, s.localSessionID)
	}
	return fmt.Sprintf("%s(%d->%d)", s.typ, s.localSessionID, s.peerSessionID)
}

// zeroize clears the key material of an expired session.
func (s *Session) zeroize() {
	for i := range s.encryptKey {
		s.encryptKey[i] = 0
	}
	for i := range s.decryptKey {
		s.decryptKey[i] = 0
	}
}

// SecureSessionConfig describes a secure session produced by a completed
// PASE or CASE handshake.
type SecureSessionConfig struct {
	Type           SessionType
	Role           SessionRole
	LocalSessionID uint16
	PeerSessionID  uint16
	I2RKey         []byte
	R2IKey         []byte

	// LocalNodeID and PeerNodeID feed the nonce of CASE sessions. PASE
	// sessions always use 0.
	LocalNodeID uint64
	PeerNodeID  uint64
	FabricIndex uint8

	PeerAddress transport.PeerAddress
}

func newSecureSession(config SecureSessionConfig, now time.Time) (*Session, error) {
	if !config.Type.IsSecureUnicast() {
		return nil, ErrInvalidSessionType
	}
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if config.LocalSessionID == 0 {
		return nil, ErrInvalidSessionID
	}
	if len(config.I2RKey) != SessionKeySize || len(config.R2IKey) != SessionKeySize {
		return nil, ErrInvalidKey
	}

	s := &Session{
		typ:            config.Type,
		role:           config.Role,
		localSessionID: config.LocalSessionID,
		peerSessionID:  config.PeerSessionID,
		localNodeID:    config.LocalNodeID,
		peerNodeID:     config.PeerNodeID,
		fabricIndex:    config.FabricIndex,
		peerAddr:       config.PeerAddress,
		counter:        message.NewLocalCounter(),
		reception:      message.NewReceptionState(message.ReceptionUnicast),
		lastActivity:   now,
	}
	if config.Type == SessionTypePASE {
		s.localNodeID = message.UnspecifiedNodeID
		s.peerNodeID = message.UnspecifiedNodeID
	}

	enc, dec := config.I2RKey, config.R2IKey
	if config.Role == SessionRoleResponder {
		enc, dec = dec, enc
	}
	s.encryptKey = append([]byte(nil), enc...)
	s.decryptKey = append([]byte(nil), dec...)
	return s, nil
}
