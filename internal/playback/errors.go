package playback

import "errors"

// Domain errors for the playback package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, playback.ErrNoTargets) {
//	    // address matched nothing
//	}
var (
	// ErrNotRunning is returned when a request reaches a scheduler whose
	// Run loop has exited.
	ErrNotRunning = errors.New("playback: scheduler not running")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("playback: scheduler already started")

	// ErrNoTargets is returned when an address resolves to no actuators.
	// Nothing is installed or removed.
	ErrNoTargets = errors.New("playback: address matched no actuators")

	// ErrNilPattern is returned when StartPattern is given no usable pattern.
	ErrNilPattern = errors.New("playback: pattern is required")

	// ErrQueueFull is reported to observers when a command is dropped
	// because the dispatch queue is full.
	ErrQueueFull = errors.New("playback: dispatch queue full")

	// ErrInvariantViolation marks internal state the scheduler should never
	// reach. In strict mode the scheduler panics with an error wrapping it.
	ErrInvariantViolation = errors.New("playback: invariant violation")
)
