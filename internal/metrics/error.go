package metrics

import "math"

// IAE is the integral of absolute error in degree-seconds, using the
// spacing between observations.
type IAE struct {
	sum   float64
	lastT float64
	seen  bool
}

func NewIAE() *IAE { return &IAE{} }

func (e *IAE) Name() string { return "iae" }

func (e *IAE) Observe(t, measured, err, output float64) {
	if e.seen {
		e.sum += math.Abs(err) * (t - e.lastT)
	}
	e.lastT = t
	e.seen = true
}

func (e *IAE) Value() float64 { return e.sum }

func (e *IAE) Reset() {
	e.sum = 0
	e.lastT = 0
	e.seen = false
}

// PeakError is the largest absolute error seen.
type PeakError struct {
	peak float64
}

func NewPeakError() *PeakError { return &PeakError{} }

func (p *PeakError) Name() string { return "peak_error" }

func (p *PeakError) Observe(t, measured, err, output float64) {
	p.peak = math.Max(p.peak, math.Abs(err))
}

func (p *PeakError) Value() float64 { return p.peak }

func (p *PeakError) Reset() { p.peak = 0 }
