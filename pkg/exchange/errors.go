package exchange

import "errors"

var (
	// ErrNoMemory is returned when every context of the pool is in use.
	ErrNoMemory = errors.New("exchange: exchange context pool exhausted")

	// ErrIncorrectState covers calls made in a state that forbids them,
	// such as a second ExpectResponse send before the first is answered.
	ErrIncorrectState = errors.New("exchange: incorrect state")

	ErrExchangeClosed = errors.New("exchange: exchange is closed")

	ErrHandlerTableFull = errors.New("exchange: unsolicited handler table full")
	ErrNoHandler        = errors.New("exchange: no unsolicited handler registered")

	ErrInvalidArgument = errors.New("exchange: invalid argument")

	// ErrContextsLeaked is returned by Shutdown for contexts still retained.
	ErrContextsLeaked = errors.New("exchange: context still retained at shutdown")
)
