package im

import (
	"errors"

	imsg "github.com/backkem/matter-core/pkg/im/message"
)

var (
	// ErrIncorrectState is returned when an operation is not valid in the
	// object's current state.
	ErrIncorrectState = errors.New("im: incorrect state")

	// ErrInvalidMessageType is reported when a message other than the one
	// awaited arrives on an exchange.
	ErrInvalidMessageType = errors.New("im: invalid message type")

	// ErrTimeout is reported when no response arrived in time.
	ErrTimeout = errors.New("im: response timeout")

	// ErrExchangeClosed is reported when the exchange of a pending read is
	// closed underneath it.
	ErrExchangeClosed = errors.New("im: exchange closed")

	// ErrNoMemory is returned when an object pool is exhausted.
	ErrNoMemory = errors.New("im: no memory")

	ErrInvalidArgument = errors.New("im: invalid argument")
	ErrReportTooLarge  = errors.New("im: attribute report exceeds maximum payload")

	ErrEndpointNotFound  = errors.New("im: endpoint not found")
	ErrClusterNotFound   = errors.New("im: cluster not found")
	ErrAttributeNotFound = errors.New("im: attribute not found")
	ErrBusy              = errors.New("im: busy")
	ErrResourceExhausted = errors.New("im: resource exhausted")
)

// ErrorToStatus maps an error to the status reported on the wire.
func ErrorToStatus(err error) imsg.Status {
	var status imsg.Status
	switch {
	case err == nil:
		return imsg.StatusSuccess
	case errors.As(err, &status):
		return status
	case errors.Is(err, ErrEndpointNotFound):
		return imsg.StatusUnsupportedEndpoint
	case errors.Is(err, ErrClusterNotFound):
		return imsg.StatusUnsupportedCluster
	case errors.Is(err, ErrAttributeNotFound):
		return imsg.StatusUnsupportedAttribute
	case errors.Is(err, ErrBusy):
		return imsg.StatusBusy
	case errors.Is(err, ErrResourceExhausted), errors.Is(err, ErrNoMemory):
		return imsg.StatusResourceExhausted
	case errors.Is(err, ErrTimeout):
		return imsg.StatusTimeout
	}
	return imsg.StatusFailure
}

// StatusToError maps a status received from a peer to an error. Statuses
// without a dedicated error come back as the Status value itself.
func StatusToError(status imsg.Status) error {
	switch status {
	case imsg.StatusSuccess:
		return nil
	case imsg.StatusUnsupportedEndpoint:
		return ErrEndpointNotFound
	case imsg.StatusUnsupportedCluster:
		return ErrClusterNotFound
	case imsg.StatusUnsupportedAttribute:
		return ErrAttributeNotFound
	case imsg.StatusBusy:
		return ErrBusy
	case imsg.StatusResourceExhausted:
		return ErrResourceExhausted
	}
	return status
}
