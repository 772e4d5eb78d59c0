package message

import "fmt"

// Status is an Interaction Model status code.
type Status uint8

const (
	StatusSuccess                Status = 0x00
	StatusFailure                Status = 0x01
	StatusInvalidSubscription    Status = 0x7d
	StatusUnsupportedAccess      Status = 0x7e
	StatusUnsupportedEndpoint    Status = 0x7f
	StatusInvalidAction          Status = 0x80
	StatusUnsupportedCommand     Status = 0x81
	StatusInvalidCommand         Status = 0x85
	StatusUnsupportedAttribute   Status = 0x86
	StatusConstraintError        Status = 0x87
	StatusUnsupportedWrite       Status = 0x88
	StatusResourceExhausted      Status = 0x89
	StatusNotFound               Status = 0x8b
	StatusUnreportableAttribute  Status = 0x8c
	StatusInvalidDataType        Status = 0x8d
	StatusUnsupportedRead        Status = 0x8f
	StatusDataVersionMismatch    Status = 0x92
	StatusTimeout                Status = 0x94
	StatusBusy                   Status = 0x9c
	StatusAccessRestricted       Status = 0x9d
	StatusUnsupportedCluster     Status = 0xc3
	StatusNoUpstreamSubscription Status = 0xc5
	StatusNeedsTimedInteraction  Status = 0xc6
	StatusUnsupportedEvent       Status = 0xc7
	StatusPathsExhausted         Status = 0xc8
	StatusTimedRequestMismatch   Status = 0xc9
	StatusFailsafeRequired       Status = 0xca
	StatusInvalidInState         Status = 0xcb
	StatusNoCommandResponse      Status = 0xcc
	StatusDynamicConstraintError Status = 0xcf
	StatusAlreadyExists          Status = 0xd0
	StatusInvalidTransportType   Status = 0xd1
)

var statusNames = map[Status]string{
	StatusSuccess:                "Success",
	StatusFailure:                "Failure",
	StatusInvalidSubscription:    "InvalidSubscription",
	StatusUnsupportedAccess:      "UnsupportedAccess",
	StatusUnsupportedEndpoint:    "UnsupportedEndpoint",
	StatusInvalidAction:          "InvalidAction",
	StatusUnsupportedCommand:     "UnsupportedCommand",
	StatusInvalidCommand:         "InvalidCommand",
	StatusUnsupportedAttribute:   "UnsupportedAttribute",
	StatusConstraintError:        "ConstraintError",
	StatusUnsupportedWrite:       "UnsupportedWrite",
	StatusResourceExhausted:      "ResourceExhausted",
	StatusNotFound:               "NotFound",
	StatusUnreportableAttribute:  "UnreportableAttribute",
	StatusInvalidDataType:        "InvalidDataType",
	StatusUnsupportedRead:        "UnsupportedRead",
	StatusDataVersionMismatch:    "DataVersionMismatch",
	StatusTimeout:                "Timeout",
	StatusBusy:                   "Busy",
	StatusAccessRestricted:       "AccessRestricted",
	StatusUnsupportedCluster:     "UnsupportedCluster",
	StatusNoUpstreamSubscription: "NoUpstreamSubscription",
	StatusNeedsTimedInteraction:  "NeedsTimedInteraction",
	StatusUnsupportedEvent:       "UnsupportedEvent",
	StatusPathsExhausted:         "PathsExhausted",
	StatusTimedRequestMismatch:   "TimedRequestMismatch",
	StatusFailsafeRequired:       "FailsafeRequired",
	StatusInvalidInState:         "InvalidInState",
	StatusNoCommandResponse:      "NoCommandResponse",
	StatusDynamicConstraintError: "DynamicConstraintError",
	StatusAlreadyExists:          "AlreadyExists",
	StatusInvalidTransportType:   "InvalidTransportType",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(0x%02x)", uint8(s))
}

func (s Status) IsSuccess() bool { return s == StatusSuccess }

// Error makes a failure status usable as an error value.
func (s Status) Error() string { return "im: status " + s.String() }
