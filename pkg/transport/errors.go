package transport

import "errors"

var (
	ErrClosed         = errors.New("transport: closed")
	ErrInvalidAddress = errors.New("transport: invalid address")
	ErrNoHandler      = errors.New("transport: no message handler configured")
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrMessageTooLarge is returned for datagrams above the IPv6 minimum
	// MTU.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrTooManyDestinations is returned by AppendDestination once the
	// address holds MaxPeerDestinations entries. Callers stop appending.
	ErrTooManyDestinations = errors.New("transport: peer address destinations full")
)
