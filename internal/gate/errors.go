package gate

import "errors"

// Sentinel errors returned by the Actuator. Unknown gates return
// device.ErrNotFound.
var (
	// ErrUnauthorized is returned when no operator name is supplied.
	ErrUnauthorized = errors.New("gate: operator name is required")

	// ErrBusy is returned when another actuation of the same gate is in
	// flight. The request is not queued.
	ErrBusy = errors.New("gate: another command is in progress for this gate")

	// ErrHardware is returned when the controller rejected the command or
	// could not be reached. Gate status is left unchanged.
	ErrHardware = errors.New("gate: controller command failed")
)
