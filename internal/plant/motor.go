package plant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/dynamo"
	"github.com/san-kum/hallservo/internal/integrators"
	"github.com/san-kum/hallservo/internal/motor"
	"github.com/san-kum/hallservo/internal/quadrature"
)

var (
	ErrClosed = errors.New("plant: closed")

	// ErrParams indicates physically meaningless motor parameters.
	ErrParams = errors.New("plant: invalid parameters")
)

// gray is the sensor phase for a count modulo four.
var gray = [4]quadrature.Phase{0b00, 0b01, 0b11, 0b10}

func phaseAt(count int64) quadrature.Phase {
	return gray[((count%4)+4)%4]
}

// Motor is a simulated gear motor with its H-bridge inputs and hall sensor.
type Motor struct {
	mu sync.Mutex

	sys   *GearMotor
	integ dynamo.Integrator
	p     Params
	x     dynamo.State
	t     float64

	in1, in2 bool
	duty     float64

	count  int64
	notify func()
	rng    *rand.Rand
	closed bool

	phase  atomic.Uint32
	edges  atomic.Uint64
	missed atomic.Uint64
}

var _ quadrature.Lines = (*Motor)(nil)

func New(p Params) (*Motor, error) {
	if p.NoLoadRPM <= 0 || p.TimeConstant <= 0 || p.BrakeTimeConstant <= 0 ||
		p.CoastTimeConstant <= 0 || p.Deadband < 0 || p.Deadband >= 1 || p.PulsesPerRev == 0 {
		return nil, fmt.Errorf("%w: %+v", ErrParams, p)
	}
	integ, ok := integrators.ByName(p.Integrator)
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator %q", ErrParams, p.Integrator)
	}
	if p.MaxStep <= 0 {
		p.MaxStep = 0.001
	}
	sys := NewGearMotor(p)
	x := dynamo.State{0, 0}
	if err := dynamo.Check(sys, x, dynamo.Control{0, 0}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParams, err)
	}
	return &Motor{
		sys:   sys,
		integ: integ,
		p:     p,
		x:     x,
		rng:   rand.New(rand.NewSource(p.Seed)),
	}, nil
}

// Attach steps the motor every time clk advances.
func (m *Motor) Attach(clk *clock.Virtual) {
	clk.Subscribe(m.Step)
}

// Run steps the motor in real time until ctx is done.
func (m *Motor) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Step(now.Sub(last))
			last = now
		}
	}
}

// Step advances the model by dt and reports the resulting sensor edges.
func (m *Motor) Step(dt time.Duration) {
	m.mu.Lock()
	if m.closed || dt <= 0 {
		m.mu.Unlock()
		return
	}
	u := m.control()
	remaining := dt.Seconds()
	for remaining > 1e-12 {
		h := math.Min(remaining, m.p.MaxStep)
		next := m.integ.Step(m.sys, m.x, u, m.t, h)
		if !next.IsValid() {
			break
		}
		m.x = next
		m.t += h
		remaining -= h
	}

	target := int64(math.Floor(m.x[0] / 360 * float64(m.p.PulsesPerRev)))
	var edges []quadrature.Phase
	for m.count != target {
		prev := phaseAt(m.count)
		if target > m.count {
			m.count++
		} else {
			m.count--
		}
		next := phaseAt(m.count)
		switch {
		case m.p.MissRate > 0 && m.rng.Float64() < m.p.MissRate:
			m.missed.Add(1)
			edges = append(edges, next|missedEdge)
		case m.p.BounceRate > 0 && m.rng.Float64() < m.p.BounceRate:
			edges = append(edges, next, prev, next)
		default:
			edges = append(edges, next)
		}
	}
	fn := m.notify
	m.mu.Unlock()

	for _, e := range edges {
		m.phase.Store(uint32(e &^ missedEdge))
		m.edges.Add(1)
		if fn != nil && e&missedEdge == 0 {
			fn()
		}
	}
}

// missedEdge marks an edge whose phase changes without a notification.
const missedEdge quadrature.Phase = 0x80

func (m *Motor) control() dynamo.Control {
	switch {
	case m.in1 && m.in2:
		return dynamo.Control{modeBrake, 0}
	case m.in1:
		return dynamo.Control{modeDrive, m.duty}
	case m.in2:
		return dynamo.Control{modeDrive, -m.duty}
	}
	return dynamo.Control{modeCoast, 0}
}

// Read returns the sensor lines.
func (m *Motor) Read() (a, b bool) {
	p := m.phase.Load()
	return p&0b10 != 0, p&0b01 != 0
}

// Notify registers fn for every sensor edge. Only one callback is kept.
func (m *Motor) Notify(fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.notify = fn
	return nil
}

// Close detaches the sensor callback and freezes the model.
func (m *Motor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.notify = nil
	return nil
}

// Angle is the true shaft angle in degrees.
func (m *Motor) Angle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x[0]
}

// Speed is the true shaft speed in degrees per second.
func (m *Motor) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x[1]
}

// Edges returns the sensor edges generated so far, and how many of them
// were not reported.
func (m *Motor) Edges() (total, missed uint64) {
	return m.edges.Load(), m.missed.Load()
}

// In1 and In2 are the bridge direction inputs.
func (m *Motor) In1() motor.Output { return pin{m, 1} }
func (m *Motor) In2() motor.Output { return pin{m, 2} }

// PWM is the bridge enable input.
func (m *Motor) PWM() motor.DutyFractionSetter { return pwm{m} }

type pin struct {
	m   *Motor
	idx int
}

func (p pin) Set(high bool) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.closed {
		return ErrClosed
	}
	if p.idx == 1 {
		p.m.in1 = high
	} else {
		p.m.in2 = high
	}
	return nil
}

type pwm struct{ m *Motor }

func (p pwm) SetDutyFraction(f float64) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.closed {
		return ErrClosed
	}
	p.m.duty = math.Max(0, math.Min(1, f))
	return nil
}

// Bridge returns an H-bridge driver wired to the motor's inputs.
func (m *Motor) Bridge() (*motor.HBridge, error) {
	return motor.NewHBridge(m.In1(), m.In2(), m.PWM())
}
