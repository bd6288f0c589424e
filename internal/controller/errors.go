package controller

import "errors"

// Sentinel errors for gate controller I/O.
var (
	// ErrNoAddress is returned for HTTP gates without a controller_ip.
	ErrNoAddress = errors.New("controller: no controller address configured")

	// ErrUnreachable is returned when the controller could not be contacted.
	ErrUnreachable = errors.New("controller: unreachable")

	// ErrRejected is returned when the controller answered with a failure.
	ErrRejected = errors.New("controller: command rejected")

	// ErrNoAck is returned when an MQTT controller did not acknowledge in time.
	ErrNoAck = errors.New("controller: no acknowledgement")

	// ErrBadResponse is returned when a status answer cannot be parsed.
	ErrBadResponse = errors.New("controller: malformed response")

	// ErrUnsupported is returned for a control method with no transport.
	ErrUnsupported = errors.New("controller: control method not available")
)
