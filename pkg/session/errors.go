package session

import "errors"

var (
	ErrInvalidSessionType = errors.New("session: invalid session type")
	ErrInvalidRole        = errors.New("session: invalid session role")
	ErrInvalidKey         = errors.New("session: invalid key length")

	// ErrInvalidSessionID is returned for secure sessions with id 0.
	ErrInvalidSessionID = errors.New("session: invalid session ID")

	ErrSessionNotFound    = errors.New("session: session not found")
	ErrSessionExpired     = errors.New("session: session expired")
	ErrSessionTableFull   = errors.New("session: session table full")
	ErrSessionIDExhausted = errors.New("session: session ID space exhausted")
	ErrDuplicateSession   = errors.New("session: duplicate session ID")

	ErrGroupPeerTableFull = errors.New("session: group peer table full")
	ErrNoGroupKeys        = errors.New("session: no group key provider configured")
	ErrUnknownGroup       = errors.New("session: no joined group matches message")

	ErrNoTransport   = errors.New("session: no transport configured")
	ErrUnknownSender = errors.New("session: unsecured message without a known sender")
)
