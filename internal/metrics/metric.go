// Package metrics holds streaming reductions observed once per control
// cycle of a step experiment. They complement the transient-response
// metrics computed after the run.
package metrics

// Metric accumulates one number over a run.
type Metric interface {
	Name() string
	Observe(t, measured, err, output float64)
	Value() float64
	Reset()
}

// Set is an ordered collection of metrics observed together.
type Set []Metric

func (s Set) Observe(t, measured, err, output float64) {
	for _, m := range s {
		m.Observe(t, measured, err, output)
	}
}

func (s Set) Reset() {
	for _, m := range s {
		m.Reset()
	}
}

// Values returns the current value of every metric keyed by name.
func (s Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s))
	for _, m := range s {
		out[m.Name()] = m.Value()
	}
	return out
}

// Default is the metric set recorded for every step experiment.
func Default(limit float64) Set {
	return Set{NewControlEffort(), NewSaturation(limit), NewIAE(), NewPeakError()}
}
