package tuner

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// SteadyStateFraction is the tail share of samples averaged for the
	// steady-state value.
	SteadyStateFraction = 0.10

	// SettlingBand is the settling tolerance as a fraction of the target.
	SettlingBand = 0.02

	riseLow  = 0.10
	riseHigh = 0.90
)

// AnalyzeOptions tunes the reduction.
type AnalyzeOptions struct {
	// OscillationDeadband in degrees. Samples whose error magnitude is at
	// or below it do not take part in sign-change counting, so noise
	// around zero error is not counted as ringing.
	OscillationDeadband float64 `yaml:"oscillation_deadband"`
}

func DefaultAnalyzeOptions() AnalyzeOptions {
	return AnalyzeOptions{OscillationDeadband: 0.5}
}

// Analyze reduces a time-ordered recording to a scored Result. A negative
// target is analyzed as the mirror image of the positive step.
func Analyze(samples []Sample, target float64, opts AnalyzeOptions) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoSamples
	}
	if target == 0 || math.IsNaN(target) {
		return Result{}, ErrZeroTarget
	}

	sign := 1.0
	if target < 0 {
		sign = -1
	}
	goal := sign * target

	angles := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	for i, s := range samples {
		angles[i] = sign * s.Angle
		errs[i] = sign * s.Error
	}

	r := Result{Target: target}

	lo, hi := angles[0], angles[0]
	for _, a := range angles[1:] {
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	if hi > goal {
		r.Overshoot = (hi - goal) / goal * 100
	}
	if lo < 0 {
		r.Undershoot = -lo / goal * 100
	}

	tail := int(float64(len(angles)) * SteadyStateFraction)
	if tail < 1 {
		tail = 1
	}
	ss := stat.Mean(angles[len(angles)-tail:], nil)
	r.SteadyStateValue = sign * ss
	r.SteadyStateError = math.Abs(goal - ss)

	r.Oscillations = CountOscillations(errs, opts.OscillationDeadband)
	r.RiseTime = riseTime(samples, angles, goal)
	r.SettlingTime = settlingTime(samples, angles, goal)
	r.Score = Score(r)
	return r, nil
}

// CountOscillations counts sign changes of errs, ignoring values whose
// magnitude is within deadband.
func CountOscillations(errs []float64, deadband float64) int {
	deadband = math.Abs(deadband)
	count := 0
	last := 0
	for _, e := range errs {
		if math.Abs(e) <= deadband {
			continue
		}
		sign := 1
		if e < 0 {
			sign = -1
		}
		if last != 0 && sign != last {
			count++
		}
		last = sign
	}
	return count
}

func riseTime(samples []Sample, angles []float64, goal float64) Metric {
	start := -1
	for i, a := range angles {
		if a >= riseLow*goal {
			start = i
			break
		}
	}
	if start < 0 {
		return Unavailable()
	}
	for i := start; i < len(angles); i++ {
		if angles[i] >= riseHigh*goal {
			return Available(samples[i].Time - samples[start].Time)
		}
	}
	return Unavailable()
}

// settlingTime scans backward for the last sample outside the band. The
// response settles at the sample after it; a recording that ends outside
// the band never settled.
func settlingTime(samples []Sample, angles []float64, goal float64) Metric {
	band := SettlingBand * goal
	for i := len(angles) - 1; i >= 0; i-- {
		if math.Abs(angles[i]-goal) > band {
			if i == len(angles)-1 {
				return Unavailable()
			}
			return Available(samples[i+1].Time)
		}
	}
	return Available(samples[0].Time)
}

// Score awards up to 25 points in each of four bands: overshoot,
// steady-state error, oscillations and rise time.
func Score(r Result) int {
	score := band(r.Overshoot < 10, r.Overshoot < 20, r.Overshoot < 30)
	score += band(r.SteadyStateError < 1, r.SteadyStateError < 2, r.SteadyStateError < 5)
	score += band(r.Oscillations <= 1, r.Oscillations <= 2, r.Oscillations <= 4)
	if r.RiseTime.OK {
		rt := r.RiseTime.Value
		score += band(rt < 1, rt < 2, rt < 3)
	}
	return score
}

func band(best, good, fair bool) int {
	switch {
	case best:
		return 25
	case good:
		return 20
	case fair:
		return 10
	}
	return 0
}
