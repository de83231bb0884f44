package quadrature

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/san-kum/hallservo/internal/clock"
)

// Phase is the 2-bit sample of the sensor lines, A in bit 1 and B in bit 0.
type Phase uint8

func PhaseOf(a, b bool) Phase {
	var p Phase
	if a {
		p |= 0b10
	}
	if b {
		p |= 0b01
	}
	return p
}

// transitions is indexed by (previous<<2 | current). Forward order is
// 00 -> 01 -> 11 -> 10 -> 00.
var transitions = [16]int8{
	0b0000: 0, 0b0001: +1, 0b0010: -1, 0b0011: 0,
	0b0100: -1, 0b0101: 0, 0b0110: 0, 0b0111: +1,
	0b1000: +1, 0b1001: 0, 0b1010: 0, 0b1011: -1,
	0b1100: 0, 0b1101: -1, 0b1110: +1, 0b1111: 0,
}

// Delta returns the count change for a transition from prev to cur.
func Delta(prev, cur Phase) int {
	return int(transitions[(prev<<2|cur)&0x0f])
}

// Lines is a pair of hall sensor inputs that can report both edges.
type Lines interface {
	Read() (a, b bool)
	// Notify registers fn to run on every rising and falling edge of either line.
	Notify(fn func()) error
	io.Closer
}

type Decoder struct {
	ppr uint32

	count     atomic.Int64
	edges     atomic.Uint64
	ambiguous atomic.Uint64

	cs   critical
	last Phase

	lines Lines
	vel   velocity
}

// New creates a decoder for a sensor producing pulsesPerRev counts per
// output shaft revolution (sensor pulses times gear ratio).
func New(pulsesPerRev uint32, clk clock.Clock) (*Decoder, error) {
	if pulsesPerRev == 0 {
		return nil, ErrZeroPPR
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	d := &Decoder{ppr: pulsesPerRev}
	d.vel.clk = clk
	d.vel.prevTime = clk.Now()
	return d, nil
}

// Attach creates a decoder bound to lines. The current line state seeds the
// last phase so the first edge is classified against reality.
func Attach(lines Lines, pulsesPerRev uint32, clk clock.Clock) (*Decoder, error) {
	d, err := New(pulsesPerRev, clk)
	if err != nil {
		return nil, err
	}
	if err := d.Bind(lines); err != nil {
		return nil, err
	}
	return d, nil
}

// Bind connects the decoder to lines and starts counting their edges.
func (d *Decoder) Bind(lines Lines) error {
	if d.lines != nil {
		return ErrAttached
	}
	s := d.cs.enter()
	d.last = PhaseOf(lines.Read())
	d.cs.exit(s)

	d.lines = lines
	return lines.Notify(func() {
		d.EdgePhase(PhaseOf(lines.Read()))
	})
}

// Edge classifies a new sample of the A and B lines.
func (d *Decoder) Edge(a, b bool) {
	d.EdgePhase(PhaseOf(a, b))
}

// EdgePhase classifies the transition from the last phase to cur. It is the
// interrupt-time entry point and never blocks beyond the critical section.
func (d *Decoder) EdgePhase(cur Phase) {
	cur &= 0b11
	s := d.cs.enter()
	prev := d.last
	delta := transitions[prev<<2|cur]
	if delta != 0 {
		d.count.Add(int64(delta))
	} else if prev != cur {
		d.ambiguous.Add(1)
	}
	d.last = cur
	d.edges.Add(1)
	d.cs.exit(s)
}

// Count returns the net ticks since the last reset.
func (d *Decoder) Count() int64 {
	return d.count.Load()
}

// Edges returns the number of classified edges since the last reset.
func (d *Decoder) Edges() uint64 {
	return d.edges.Load()
}

// Ambiguous returns how many non-adjacent phase jumps were ignored since
// the last reset.
func (d *Decoder) Ambiguous() uint64 {
	return d.ambiguous.Load()
}

func (d *Decoder) PulsesPerRevolution() uint32 {
	return d.ppr
}

// Reset zeroes the count and the velocity baseline. The last phase is kept
// because it mirrors the physical lines.
func (d *Decoder) Reset() {
	s := d.cs.enter()
	d.count.Store(0)
	d.edges.Store(0)
	d.ambiguous.Store(0)
	d.cs.exit(s)

	d.vel.reset(0)
}

// Angle returns the output shaft angle in degrees.
func (d *Decoder) Angle() (float64, error) {
	if d.ppr == 0 {
		return 0, ErrZeroPPR
	}
	return float64(d.Count()) / float64(d.ppr) * 360.0, nil
}

func (d *Decoder) Revolutions() (float64, error) {
	if d.ppr == 0 {
		return 0, ErrZeroPPR
	}
	return float64(d.Count()) / float64(d.ppr), nil
}

func (d *Decoder) Radians() (float64, error) {
	if d.ppr == 0 {
		return 0, ErrZeroPPR
	}
	return float64(d.Count()) / float64(d.ppr) * 2 * math.Pi, nil
}

// RPM returns the output shaft speed in revolutions per minute.
func (d *Decoder) RPM() float64 {
	if d.ppr == 0 {
		return 0
	}
	return d.vel.sample(d.Count(), d.ppr)
}

func (d *Decoder) DegreesPerSecond() float64 {
	return d.RPM() * 360.0 / 60.0
}

// Close detaches the decoder from its sensor lines.
func (d *Decoder) Close() error {
	if d.lines == nil {
		return nil
	}
	err := d.lines.Close()
	d.lines = nil
	return err
}
