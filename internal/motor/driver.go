// Package motor drives a brushed DC motor through an H-bridge.
//
// The bridge takes two direction inputs and one PWM enable. The PWM
// peripheral is probed once at construction for the richest interface it
// offers; the chosen [Backend] is used for every later write.
package motor

import (
	"errors"
	"fmt"
	"math"
)

// MaxSpeed is the full-scale magnitude of a speed command.
const MaxSpeed = 100.0

var (
	// ErrNoPWMBackend indicates a PWM peripheral with none of the supported write methods.
	ErrNoPWMBackend = errors.New("motor: pwm peripheral has no supported duty interface")

	// ErrInvalidSpeed indicates a NaN speed command.
	ErrInvalidSpeed = errors.New("motor: invalid speed")
)

// Driver accepts a signed speed command in [-100, 100]. Implementations
// must be idempotent and cheap enough to call on every control cycle.
type Driver interface {
	SetSpeed(speed float64) error
	// Stop actively brakes the motor.
	Stop() error
	// Coast removes power without braking.
	Coast() error
}

// Output is a digital output pin.
type Output interface {
	Set(high bool) error
}

// DutyFractionSetter accepts a duty cycle in [0, 1].
type DutyFractionSetter interface {
	SetDutyFraction(f float64) error
}

// PulseWidthSetter accepts a high time in nanoseconds within Period.
type PulseWidthSetter interface {
	SetPulseWidth(ns uint32) error
	Period() uint32
}

// DutyCountSetter accepts a raw compare value in [0, Top].
type DutyCountSetter interface {
	SetDutyCount(n uint32) error
	Top() uint32
}

type Backend int

const (
	DutyFraction Backend = iota
	PulseWidth
	DutyCounts
)

func (b Backend) String() string {
	switch b {
	case DutyFraction:
		return "duty-fraction"
	case PulseWidth:
		return "pulse-width"
	case DutyCounts:
		return "duty-counts"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// Probe reports the preferred backend supported by pwm.
func Probe(pwm any) (Backend, error) {
	switch pwm.(type) {
	case DutyFractionSetter:
		return DutyFraction, nil
	case PulseWidthSetter:
		return PulseWidth, nil
	case DutyCountSetter:
		return DutyCounts, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrNoPWMBackend, pwm)
}

// ClampSpeed limits speed to [-MaxSpeed, MaxSpeed].
func ClampSpeed(speed float64) float64 {
	return math.Max(-MaxSpeed, math.Min(MaxSpeed, speed))
}
