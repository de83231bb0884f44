package tuner

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSamples indicates an experiment that recorded nothing.
	ErrNoSamples = errors.New("tuner: no samples")

	// ErrZeroTarget indicates a step target of zero, for which percentage
	// metrics are undefined.
	ErrZeroTarget = errors.New("tuner: zero step target")

	// ErrOptions indicates an invalid tuner configuration.
	ErrOptions = errors.New("tuner: invalid options")
)

// Sample is one control cycle of an experiment.
type Sample struct {
	// Time is the offset from the start of the experiment in seconds.
	Time   float64 `json:"time"`
	Angle  float64 `json:"angle"`
	Error  float64 `json:"error"`
	Output float64 `json:"output"`
}

type Gains struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`
}

func (g Gains) String() string {
	return fmt.Sprintf("Kp=%.3f Ki=%.3f Kd=%.3f", g.Kp, g.Ki, g.Kd)
}

// Metric is a value that may not be computable from a recording.
type Metric struct {
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
}

func Unavailable() Metric { return Metric{} }

func Available(v float64) Metric { return Metric{Value: v, OK: true} }

func (m Metric) String() string {
	if !m.OK {
		return "n/a"
	}
	return fmt.Sprintf("%.2fs", m.Value)
}

// Result summarizes one experiment.
type Result struct {
	Gains    Gains   `json:"gains"`
	StepSize float64 `json:"step_size"`
	Target   float64 `json:"target"`

	// Overshoot and Undershoot are percentages of the target.
	Overshoot        float64 `json:"overshoot"`
	Undershoot       float64 `json:"undershoot"`
	SteadyStateValue float64 `json:"steady_state_value"`
	SteadyStateError float64 `json:"steady_state_error"`
	Oscillations     int     `json:"oscillations"`

	RiseTime     Metric `json:"rise_time"`
	SettlingTime Metric `json:"settling_time"`

	Score int `json:"score"`

	// Metrics holds the streaming metrics observed during the run.
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Grade is the verbal rating of a score.
func (r Result) Grade() string {
	switch {
	case r.Score >= 80:
		return "excellent"
	case r.Score >= 60:
		return "good"
	case r.Score >= 40:
		return "fair"
	}
	return "poor"
}
