package device

import "errors"

var (
	ErrDeviceNotFound      = errors.New("device: not found")
	ErrInvalidDevice       = errors.New("device: invalid")
	ErrInvalidName         = errors.New("device: invalid name")
	ErrInvalidCapability   = errors.New("device: invalid capability")
	ErrInvalidActuatorType = errors.New("device: unknown actuator type")
)

// ErrMalformedAddress prefixes diagnostics sent to an ErrorSink. It is
// never returned: address problems degrade the match instead of failing it.
var ErrMalformedAddress = errors.New("device: malformed address")
