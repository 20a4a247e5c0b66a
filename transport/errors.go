package transport

import "errors"

var (
	// ErrUsedAfterDisposal is returned by every error-returning Peer
	// operation invoked after Dispose (TickResends and DrainSend have no
	// error result), and by Host.Connect after Close. It is fatal to the
	// caller; no state changes.
	ErrUsedAfterDisposal = errors.New("transport: peer used after disposal")

	// ErrTooManyPeers is returned by Host.Connect when MaxPeers is reached.
	ErrTooManyPeers = errors.New("transport: too many peers")
)
