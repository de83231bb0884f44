package control

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
)

const (
	// DerivativeAlpha is the weight of the newest raw derivative in the
	// one-pole derivative filter.
	DerivativeAlpha = 0.1

	// IntegralFraction bounds the integral accumulator to this share of OutputMax.
	IntegralFraction = 0.8
)

type Config struct {
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Kd       float64 `yaml:"kd"`
	Setpoint float64 `yaml:"setpoint"`

	OutputMin float64 `yaml:"output_min"`
	OutputMax float64 `yaml:"output_max"`

	// SampleTime is the update cadence in seconds.
	SampleTime float64 `yaml:"sample_time"`
}

// Validate reports configuration errors that would make the regulator
// divide by zero or clamp to an empty range.
func (c Config) Validate() error {
	if !(c.SampleTime > 0) || math.IsInf(c.SampleTime, 0) {
		return fmt.Errorf("%w: %v", ErrSampleTime, c.SampleTime)
	}
	if !(c.OutputMin < c.OutputMax) || !(c.OutputMax > 0) {
		return fmt.Errorf("%w: [%v, %v]", ErrOutputLimits, c.OutputMin, c.OutputMax)
	}
	if !finite(c.Kp) || !finite(c.Ki) || !finite(c.Kd) || !finite(c.Setpoint) {
		return fmt.Errorf("%w: kp=%v ki=%v kd=%v setpoint=%v", ErrGains, c.Kp, c.Ki, c.Kd, c.Setpoint)
	}
	return nil
}

// Snapshot is the state of the last accepted update.
type Snapshot struct {
	Error    float64
	P        float64
	I        float64
	D        float64
	Output   float64
	Setpoint float64
}

type PID struct {
	kp, ki, kd float64
	setpoint   float64

	outMin, outMax float64
	integralLimit  float64
	sampleTime     time.Duration
	sampleSecs     float64

	integral   float64
	lastError  float64
	derivative float64
	output     float64
	lastUpdate time.Time
	last       Snapshot

	clk clock.Clock
}

func NewPID(cfg Config, clk clock.Clock) (*PID, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	p := &PID{
		kp:            cfg.Kp,
		ki:            cfg.Ki,
		kd:            cfg.Kd,
		setpoint:      cfg.Setpoint,
		outMin:        cfg.OutputMin,
		outMax:        cfg.OutputMax,
		integralLimit: IntegralFraction * cfg.OutputMax,
		sampleTime:    time.Duration(cfg.SampleTime * float64(time.Second)),
		sampleSecs:    cfg.SampleTime,
		clk:           clk,
	}
	p.lastUpdate = clk.Now()
	p.last.Setpoint = p.setpoint
	return p, nil
}

// Update runs one regulator cycle for the measured value. Calls made less
// than one sample time after the previous accepted update return the
// previous output, as do non-finite measurements and cycles whose terms
// overflow to NaN. A rejected cycle leaves the regulator state untouched.
func (p *PID) Update(measured float64) float64 {
	now := p.clk.Now()
	if now.Sub(p.lastUpdate) < p.sampleTime {
		return p.output
	}
	if math.IsNaN(measured) || math.IsInf(measured, 0) {
		return p.output
	}

	err := p.setpoint - measured
	pTerm := p.kp * err

	integral := clamp(p.integral+err*p.sampleSecs, -p.integralLimit, p.integralLimit)
	iTerm := p.ki * integral

	raw := (err - p.lastError) / p.sampleSecs
	derivative := DerivativeAlpha*raw + (1-DerivativeAlpha)*p.derivative
	dTerm := p.kd * derivative

	sum := pTerm + iTerm + dTerm
	if math.IsNaN(sum) || !finite(integral) || !finite(derivative) {
		return p.output
	}
	p.integral = integral
	p.derivative = derivative
	p.output = clamp(sum, p.outMin, p.outMax)

	p.lastError = err
	p.lastUpdate = now
	p.last = Snapshot{
		Error:    err,
		P:        pTerm,
		I:        iTerm,
		D:        dTerm,
		Output:   p.output,
		Setpoint: p.setpoint,
	}
	return p.output
}

// SetGains replaces all three gains, or none of them if any is non-finite.
func (p *PID) SetGains(kp, ki, kd float64) error {
	if !finite(kp) || !finite(ki) || !finite(kd) {
		return fmt.Errorf("%w: kp=%v ki=%v kd=%v", ErrGains, kp, ki, kd)
	}
	p.kp, p.ki, p.kd = kp, ki, kd
	return nil
}

// SetSetpoint changes the target and clears the integral accumulator.
func (p *PID) SetSetpoint(v float64) {
	p.setpoint = v
	p.integral = 0
	p.last.Setpoint = v
}

func (p *PID) Setpoint() float64 { return p.setpoint }

// Reset clears all dynamic state and restarts the sample timer.
func (p *PID) Reset() {
	p.integral = 0
	p.lastError = 0
	p.derivative = 0
	p.output = 0
	p.lastUpdate = p.clk.Now()
	p.last = Snapshot{Setpoint: p.setpoint}
}

// Arm backdates the sample timer so the next Update runs a full cycle
// instead of returning the previous output.
func (p *PID) Arm() {
	p.lastUpdate = p.clk.Now().Add(-p.sampleTime)
}

func (p *PID) Debug() Snapshot { return p.last }

func (p *PID) Integral() float64 { return p.integral }

func (p *PID) Output() float64 { return p.output }

func (p *PID) Gains() (kp, ki, kd float64) {
	return p.kp, p.ki, p.kd
}

func (p *PID) Limits() (lo, hi float64) {
	return p.outMin, p.outMax
}

// Config returns the configuration that reproduces the current gains,
// setpoint and limits.
func (p *PID) Config() Config {
	return Config{
		Kp:         p.kp,
		Ki:         p.ki,
		Kd:         p.kd,
		Setpoint:   p.setpoint,
		OutputMin:  p.outMin,
		OutputMax:  p.outMax,
		SampleTime: p.sampleSecs,
	}
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":       p.kp,
		"Ki":       p.ki,
		"Kd":       p.kd,
		"Setpoint": p.setpoint,
	}
}

// SetParam adjusts a PID parameter by name.
func (p *PID) SetParam(name string, value float64) error {
	if !finite(value) {
		return fmt.Errorf("%w: %s=%v", ErrGains, name, value)
	}
	switch name {
	case "Kp":
		p.kp = value
	case "Ki":
		p.ki = value
	case "Kd":
		p.kd = value
	case "Setpoint":
		p.SetSetpoint(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
