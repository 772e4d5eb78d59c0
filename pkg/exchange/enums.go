// Package exchange multiplexes request/response conversations (exchanges)
// over sessions.
//
// An exchange is identified by its exchange id, its session and the local
// role. Contexts come from a fixed pool owned by the Manager and are
// reference counted: the allocation holds one reference, Close or Abort
// drops it, and the slot returns to the pool once every Retain has been
// matched by a Release.
//
// Everything in this package runs with the system layer lock held.
package exchange

// ExchangeRole indicates whether this node sent the first message of an
// exchange. It is distinct from the session role: either side of a session
// can initiate exchanges on it.
type ExchangeRole int

const (
	ExchangeRoleUnknown ExchangeRole = iota

	// ExchangeRoleInitiator allocates the exchange id and sets the I flag
	// on every message it sends.
	ExchangeRoleInitiator

	// ExchangeRoleResponder answers an unsolicited message and never sets
	// the I flag.
	ExchangeRoleResponder
)

func (r ExchangeRole) String() string {
	switch r {
	case ExchangeRoleInitiator:
		return "Initiator"
	case ExchangeRoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// ExchangeState is the lifecycle state of a context.
type ExchangeState int

const (
	// ExchangeStateFree marks an unallocated pool slot.
	ExchangeStateFree ExchangeState = iota

	// ExchangeStateInitialized is an open exchange with no pending response.
	ExchangeStateInitialized

	// ExchangeStateAwaitingResponse follows a send with ExpectResponse and
	// lasts until a message arrives on the exchange or it is closed.
	ExchangeStateAwaitingResponse

	// ExchangeStateClosed is a closed exchange still retained by someone.
	ExchangeStateClosed
)

func (s ExchangeState) String() string {
	switch s {
	case ExchangeStateFree:
		return "Free"
	case ExchangeStateInitialized:
		return "Initialized"
	case ExchangeStateAwaitingResponse:
		return "AwaitingResponse"
	case ExchangeStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SendFlags modify SendMessage.
type SendFlags uint8

const (
	// ExpectResponse marks the exchange as awaiting a response and arms
	// the response timer when a timeout is configured.
	ExpectResponse SendFlags = 1 << iota
)

func (f SendFlags) Has(flag SendFlags) bool { return f&flag != 0 }
