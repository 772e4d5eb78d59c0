// Package message implements the message envelope of the secure messaging
// core: the unencrypted packet header, the payload (protocol) header, the
// packet buffer both are laid into, AES-CCM message security and message
// counters.
package message

// SessionType is carried in the low bits of the security flags.
type SessionType uint8

const (
	// SessionTypeUnicast covers PASE and CASE sessions. Session id 0 with
	// this type denotes an unsecured session.
	SessionTypeUnicast SessionType = 0
	SessionTypeGroup   SessionType = 1
)

func (s SessionType) String() string {
	switch s {
	case SessionTypeUnicast:
		return "Unicast"
	case SessionTypeGroup:
		return "Group"
	}
	return "Unknown"
}

func (s SessionType) IsValid() bool { return s <= SessionTypeGroup }

// DestinationType is the DSIZ field of the message flags.
type DestinationType uint8

const (
	DestinationNone    DestinationType = 0
	DestinationNodeID  DestinationType = 1
	DestinationGroupID DestinationType = 2
)

func (d DestinationType) String() string {
	switch d {
	case DestinationNone:
		return "None"
	case DestinationNodeID:
		return "NodeID"
	case DestinationGroupID:
		return "GroupID"
	}
	return "Unknown"
}

func (d DestinationType) IsValid() bool { return d <= DestinationGroupID }

// Size returns the octets the destination field occupies.
func (d DestinationType) Size() int {
	switch d {
	case DestinationNodeID:
		return NodeIDSize
	case DestinationGroupID:
		return GroupIDSize
	}
	return 0
}

// ProtocolID names the protocol that defines a message opcode.
type ProtocolID uint16

const (
	ProtocolSecureChannel    ProtocolID = 0x0000
	ProtocolInteractionModel ProtocolID = 0x0001
	ProtocolBDX              ProtocolID = 0x0002
	ProtocolForTesting       ProtocolID = 0x0004
)

func (p ProtocolID) String() string {
	switch p {
	case ProtocolSecureChannel:
		return "SecureChannel"
	case ProtocolInteractionModel:
		return "InteractionModel"
	case ProtocolBDX:
		return "BDX"
	case ProtocolForTesting:
		return "Testing"
	}
	return "Unknown"
}

// VendorIDCommon is the vendor of every standard protocol.
const VendorIDCommon uint16 = 0x0000

// Well-known node ids.
const (
	// UnspecifiedNodeID is the node id of a peer without an operational
	// identity, as during PASE.
	UnspecifiedNodeID uint64 = 0
	// AnyNodeID matches every peer when an exchange is bound to no node.
	AnyNodeID uint64 = 0xFFFFFFFFFFFFFFFF
)
