package control

import "errors"

var (
	// ErrSampleTime indicates a non-positive or non-finite sample time.
	ErrSampleTime = errors.New("control: sample time must be positive")

	// ErrOutputLimits indicates OutputMin >= OutputMax or a non-positive OutputMax.
	ErrOutputLimits = errors.New("control: invalid output limits")

	// ErrGains indicates a non-finite gain or setpoint.
	ErrGains = errors.New("control: value must be finite")

	// ErrUnknownParam indicates SetParam was called with an unsupported name.
	ErrUnknownParam = errors.New("control: unknown parameter")
)
