package motor

import (
	"errors"
	"math"
	"sync"
)

// HBridge is an L298N-style bridge: IN1 high drives forward, IN2 high
// drives reverse, both high brakes and both low coasts.
type HBridge struct {
	mu sync.Mutex

	in1, in2 Output
	backend  Backend
	duty     func(frac float64) error

	speed float64
}

var _ Driver = (*HBridge)(nil)

func NewHBridge(in1, in2 Output, pwm any) (*HBridge, error) {
	backend, err := Probe(pwm)
	if err != nil {
		return nil, err
	}

	h := &HBridge{in1: in1, in2: in2, backend: backend}
	switch backend {
	case DutyFraction:
		p := pwm.(DutyFractionSetter)
		h.duty = p.SetDutyFraction
	case PulseWidth:
		p := pwm.(PulseWidthSetter)
		h.duty = func(frac float64) error {
			return p.SetPulseWidth(uint32(math.Round(frac * float64(p.Period()))))
		}
	case DutyCounts:
		p := pwm.(DutyCountSetter)
		h.duty = func(frac float64) error {
			return p.SetDutyCount(uint32(math.Round(frac * float64(p.Top()))))
		}
	}
	return h, nil
}

func (h *HBridge) Backend() Backend { return h.backend }

// SetSpeed drives the motor at speed percent of full scale. Zero brakes.
func (h *HBridge) SetSpeed(speed float64) error {
	if math.IsNaN(speed) {
		return ErrInvalidSpeed
	}
	speed = ClampSpeed(speed)
	if speed == 0 {
		return h.Stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	forward := speed > 0
	if err := h.pins(forward, !forward); err != nil {
		return err
	}
	if err := h.duty(math.Abs(speed) / MaxSpeed); err != nil {
		return err
	}
	h.speed = speed
	return nil
}

// Stop brakes by driving both inputs high at full duty.
func (h *HBridge) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speed = 0
	return errors.Join(h.pins(true, true), h.duty(1))
}

// Coast drives both inputs low with zero duty.
func (h *HBridge) Coast() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speed = 0
	return errors.Join(h.duty(0), h.pins(false, false))
}

// Speed returns the last applied speed command.
func (h *HBridge) Speed() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speed
}

func (h *HBridge) pins(a, b bool) error {
	if err := h.in1.Set(a); err != nil {
		return err
	}
	return h.in2.Set(b)
}
