// Package position holds a motor shaft at a commanded angle.
//
// A Controller has three modes. IDLE leaves the motor braked, MANUAL
// passes an open-loop speed to the driver, and AUTO closes the loop
// through the PID regulator on every Update. Any driver error in AUTO
// brakes the motor and drops back to IDLE before it is returned.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/motor"
)

var ErrTimeout = errors.New("position: target not reached in time")

type Mode int

const (
	Idle Mode = iota
	Manual
	Auto
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case Manual:
		return "MANUAL"
	case Auto:
		return "AUTO"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Sensor is the shaft encoder.
type Sensor interface {
	Angle() (float64, error)
	RPM() float64
	Reset()
}

type Status struct {
	Mode    Mode
	Target  float64
	Current float64
	Error   float64
	Output  float64
	RPM     float64
}

func (s Status) String() string {
	return fmt.Sprintf("mode:%-6s | target:%6.1f° | current:%6.1f° | error:%6.1f° | output:%6.1f%%",
		s.Mode, s.Target, s.Current, s.Error, s.Output)
}

// Controller is safe for use from several goroutines; Update and the
// mode changes serialize on an internal lock.
type Controller struct {
	mu sync.Mutex

	enc    Sensor
	drv    motor.Driver
	pid    *control.PID
	clk    clock.Clock
	period time.Duration

	mode       Mode
	target     float64
	speed      float64
	lastUpdate time.Time
}

func New(enc Sensor, drv motor.Driver, pid *control.PID, clk clock.Clock, period time.Duration) *Controller {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Controller{
		enc:        enc,
		drv:        drv,
		pid:        pid,
		clk:        clk,
		period:     period,
		target:     pid.Setpoint(),
		lastUpdate: clk.Now(),
	}
}

func (c *Controller) SetTarget(angle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = angle
	c.pid.SetSetpoint(angle)
}

// Start enters AUTO with a fresh regulator whose first cycle runs on the
// next Update. Calling it while running is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Auto {
		return
	}
	c.mode = Auto
	c.pid.Reset()
	c.pid.Arm()
	c.lastUpdate = c.clk.Now().Add(-c.period)
}

// Stop brakes the motor and enters IDLE.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

// stopOnPanic brakes the motor when a loop unwinds by panic, then
// resumes the panic.
func (c *Controller) stopOnPanic() {
	if r := recover(); r != nil {
		_ = c.Stop()
		panic(r)
	}
}

func (c *Controller) stopLocked() error {
	c.mode = Idle
	c.speed = 0
	return c.drv.Stop()
}

// Manual drives the motor open loop at speed and enters MANUAL.
func (c *Controller) Manual(speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Manual
	c.speed = motor.ClampSpeed(speed)
	if err := c.drv.SetSpeed(c.speed); err != nil {
		return errors.Join(err, c.stopLocked())
	}
	return nil
}

// Update runs one control cycle if the controller is in AUTO and at
// least one period has passed since the last cycle.
func (c *Controller) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Auto {
		return nil
	}
	now := c.clk.Now()
	if now.Sub(c.lastUpdate) < c.period {
		return nil
	}
	c.lastUpdate = now

	angle, err := c.enc.Angle()
	if err != nil {
		return errors.Join(err, c.stopLocked())
	}
	out := c.pid.Update(angle)
	if err := c.drv.SetSpeed(out); err != nil {
		return errors.Join(fmt.Errorf("position: set speed %.1f: %w", out, err), c.stopLocked())
	}
	c.speed = out
	return nil
}

// Calibrate declares the current shaft position to be zero.
func (c *Controller) Calibrate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc.Reset()
	c.pid.Reset()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	angle, _ := c.enc.Angle()
	s := Status{
		Mode:    c.mode,
		Target:  c.target,
		Current: angle,
		Error:   c.target - angle,
		Output:  c.speed,
		RPM:     c.enc.RPM(),
	}
	return s
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Tune changes a regulator parameter while the loop runs.
func (c *Controller) Tune(name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pid.SetParam(name, value); err != nil {
		return err
	}
	if name == "Setpoint" {
		c.target = value
	}
	return nil
}

func (c *Controller) Params() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid.GetParams()
}

// MoveTo enters AUTO, commands target and runs the loop until the error
// is within tolerance. The loop keeps holding the target on return; on
// timeout or cancellation the motor is stopped.
func (c *Controller) MoveTo(ctx context.Context, target, tolerance float64, timeout time.Duration) (Status, error) {
	defer c.stopOnPanic()
	c.Start()
	c.SetTarget(target)

	start := c.clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			return c.Status(), errors.Join(err, c.Stop())
		}
		if err := c.Update(); err != nil {
			return c.Status(), err
		}
		st := c.Status()
		if math.Abs(st.Error) < tolerance {
			return st, nil
		}
		if clock.Since(c.clk, start) >= timeout {
			return st, errors.Join(fmt.Errorf("%w: %.1f° from %.1f°", ErrTimeout, st.Error, target), c.Stop())
		}
		c.clk.Sleep(c.period)
	}
}

// Hold runs the loop for d without changing the target.
func (c *Controller) Hold(ctx context.Context, d time.Duration) error {
	defer c.stopOnPanic()
	start := c.clk.Now()
	for clock.Since(c.clk, start) < d {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, c.Stop())
		}
		if err := c.Update(); err != nil {
			return err
		}
		c.clk.Sleep(c.period)
	}
	return nil
}

// Run keeps the loop going until ctx is done, then stops the motor.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopOnPanic()
	for ctx.Err() == nil {
		if err := c.Update(); err != nil {
			return err
		}
		c.clk.Sleep(c.period)
	}
	return c.Stop()
}

// Sequence visits each target in turn, dwelling at each one, and stops
// the motor at the end. A target that times out is reported and the
// sequence moves on.
func (c *Controller) Sequence(ctx context.Context, targets []float64, tolerance float64, timeout, dwell time.Duration, visit func(Status, error)) error {
	defer c.stopOnPanic()
	for _, target := range targets {
		st, err := c.MoveTo(ctx, target, tolerance, timeout)
		if visit != nil {
			visit(st, err)
		}
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
		if err == nil {
			if err := c.Hold(ctx, dwell); err != nil {
				return err
			}
		}
	}
	return c.Stop()
}
