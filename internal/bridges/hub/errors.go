package hub

import "errors"

// Domain errors for the hub package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPublishFailed wraps any failure to hand a command to the broker.
	ErrPublishFailed = errors.New("hub: publish failed")

	// ErrInvalidCommand is returned when a status does not match the
	// category of the actuator it is addressed to.
	ErrInvalidCommand = errors.New("hub: invalid command")

	// ErrMissingDependency is returned by NewBridge when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("hub: missing dependency")

	// ErrNotStarted is returned when Send is called before Start.
	ErrNotStarted = errors.New("hub: bridge not started")
)
