// Package session implements the secure session manager: the table of
// secure sessions, unsecured handshake sessions and group sessions, and the
// path between the transport and the exchange layer that encrypts,
// decrypts and counter-checks every message.
//
// The manager has no lock of its own. Callers hold the system layer lock;
// the transport receive path takes it in OnTransportMessage.
package session

// SessionType identifies how a session was established. It selects the
// keys and the nonce source node ids used for message security.
type SessionType int

const (
	SessionTypeUnknown SessionType = iota

	// SessionTypeUnsecured carries handshake messages in the clear.
	SessionTypeUnsecured

	// SessionTypePASE sessions use node id 0 in the encryption nonce.
	SessionTypePASE

	// SessionTypeCASE sessions use the operational node ids in the nonce.
	SessionTypeCASE

	// SessionTypeGroup sessions encrypt with a group operational key.
	SessionTypeGroup
)

func (s SessionType) String() string {
	switch s {
	case SessionTypeUnsecured:
		return "Unsecured"
	case SessionTypePASE:
		return "PASE"
	case SessionTypeCASE:
		return "CASE"
	case SessionTypeGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// IsSecureUnicast reports whether s is a PASE or CASE session type.
func (s SessionType) IsSecureUnicast() bool {
	return s == SessionTypePASE || s == SessionTypeCASE
}

// SessionRole identifies whether the local node initiated the session. It
// determines which of the two session keys encrypts.
type SessionRole int

const (
	SessionRoleUnknown SessionRole = iota

	// SessionRoleInitiator encrypts with I2RKey and decrypts with R2IKey.
	SessionRoleInitiator

	// SessionRoleResponder encrypts with R2IKey and decrypts with I2RKey.
	SessionRoleResponder
)

func (r SessionRole) String() string {
	switch r {
	case SessionRoleInitiator:
		return "Initiator"
	case SessionRoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

func (r SessionRole) IsValid() bool {
	return r == SessionRoleInitiator || r == SessionRoleResponder
}
