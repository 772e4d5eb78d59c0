package matter

import "errors"

var (
	ErrAlreadyStarted = errors.New("matter: node already started")
	ErrNotStarted     = errors.New("matter: node not started")
	ErrAlreadyStopped = errors.New("matter: node already stopped")

	// ErrPairingInProgress is returned by PairPASE while another pairing
	// of the node is waiting for its outcome.
	ErrPairingInProgress = errors.New("matter: pairing already in progress")
)
