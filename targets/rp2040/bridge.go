//go:build rp2040

package main

import (
	"machine"
	"sync"

	"tinygo.org/x/drivers/l293x"

	"github.com/san-kum/hallservo/internal/motor"
)

// pwmGroup is the subset of machine's PWM slices the bridge uses.
type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// bridge drives an L293/L298 style H-bridge. Drive and coast go through
// the l293x driver; braking shorts the winding with both inputs high.
type bridge struct {
	mu  sync.Mutex
	dev l293x.PWMDevice
	in1 machine.Pin
	in2 machine.Pin
	pwm pwmGroup
	ch  uint8
}

var _ motor.Driver = (*bridge)(nil)

func newBridge(in1, in2, en machine.Pin, pwm pwmGroup, periodNs uint64) (*bridge, error) {
	if err := pwm.Configure(machine.PWMConfig{Period: periodNs}); err != nil {
		return nil, err
	}
	dev := l293x.NewWithSpeed(in1, in2, en, pwm)
	if err := dev.Configure(); err != nil {
		return nil, err
	}
	ch, err := pwm.Channel(en)
	if err != nil {
		return nil, err
	}
	return &bridge{dev: dev, in1: in1, in2: in2, pwm: pwm, ch: ch}, nil
}

func (b *bridge) counts(speed float64) uint32 {
	if speed < 0 {
		speed = -speed
	}
	return uint32(speed / motor.MaxSpeed * float64(b.pwm.Top()))
}

func (b *bridge) SetSpeed(speed float64) error {
	speed = motor.ClampSpeed(speed)
	if speed == 0 {
		return b.Stop()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if speed > 0 {
		b.dev.Forward(b.counts(speed))
	} else {
		b.dev.Backward(b.counts(speed))
	}
	return nil
}

func (b *bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in1.High()
	b.in2.High()
	b.pwm.Set(b.ch, b.pwm.Top())
	return nil
}

func (b *bridge) Coast() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dev.Stop()
	return nil
}
