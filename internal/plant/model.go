package plant

import (
	"math"

	"github.com/san-kum/hallservo/internal/dynamo"
)

// Params describes the simulated motor at its output shaft.
type Params struct {
	// NoLoadRPM is the output shaft speed at full duty.
	NoLoadRPM float64 `yaml:"no_load_rpm"`
	// TimeConstant is the speed lag under drive, in seconds.
	TimeConstant float64 `yaml:"time_constant"`
	// BrakeTimeConstant and CoastTimeConstant are the decay lags with the
	// bridge shorted and open.
	BrakeTimeConstant float64 `yaml:"brake_time_constant"`
	CoastTimeConstant float64 `yaml:"coast_time_constant"`
	// Deadband is the duty fraction needed to overcome static friction.
	Deadband float64 `yaml:"deadband"`

	PulsesPerRev uint32 `yaml:"pulses_per_rev"`

	// BounceRate is the probability that an edge chatters once before settling.
	BounceRate float64 `yaml:"bounce_rate"`
	// MissRate is the probability that an edge is never reported.
	MissRate float64 `yaml:"miss_rate"`
	Seed     int64   `yaml:"seed"`

	Integrator string  `yaml:"integrator"`
	MaxStep    float64 `yaml:"max_step"`
}

// DefaultParams is a 12 V 333 RPM motor behind a 30:1 gearbox with an
// 11-pulse hall sensor.
func DefaultParams() Params {
	return Params{
		NoLoadRPM:         333.0 / 30.0,
		TimeConstant:      0.25,
		BrakeTimeConstant: 0.02,
		CoastTimeConstant: 0.5,
		Deadband:          0.05,
		PulsesPerRev:      11 * 30,
		Integrator:        "rk4",
		MaxStep:           0.001,
	}
}

// Bridge input modes.
const (
	modeDrive = iota
	modeBrake
	modeCoast
)

// GearMotor is the ODE for the output shaft.
//
// State:   [angle deg, speed deg/s]
// Control: [mode, signed duty fraction]
type GearMotor struct {
	p        Params
	maxSpeed float64
}

var _ dynamo.System = (*GearMotor)(nil)

func NewGearMotor(p Params) *GearMotor {
	return &GearMotor{p: p, maxSpeed: p.NoLoadRPM * 6}
}

func (g *GearMotor) StateDim() int   { return 2 }
func (g *GearMotor) ControlDim() int { return 2 }

func (g *GearMotor) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	speed := x[1]
	var accel float64
	switch int(u[0]) {
	case modeBrake:
		accel = -speed / g.p.BrakeTimeConstant
	case modeCoast:
		accel = -speed / g.p.CoastTimeConstant
	default:
		accel = (g.targetSpeed(u[1]) - speed) / g.p.TimeConstant
	}
	return dynamo.State{speed, accel}
}

// targetSpeed is the steady-state speed for a signed duty fraction.
func (g *GearMotor) targetSpeed(duty float64) float64 {
	mag := math.Abs(duty)
	if mag <= g.p.Deadband {
		return 0
	}
	eff := (mag - g.p.Deadband) / (1 - g.p.Deadband)
	return math.Copysign(math.Min(eff, 1)*g.maxSpeed, duty)
}
