package quadrature

import "errors"

var (
	// ErrZeroPPR indicates a decoder configured with zero pulses per revolution.
	ErrZeroPPR = errors.New("quadrature: pulses per revolution must be positive")

	// ErrAttached indicates a decoder that is already bound to sensor lines.
	ErrAttached = errors.New("quadrature: decoder already attached")
)
