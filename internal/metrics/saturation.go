package metrics

import "math"

// Saturation is the fraction of cycles whose output sat on the limit.
type Saturation struct {
	name      string
	limit     float64
	saturated int
	samples   int
}

func NewSaturation(limit float64) *Saturation {
	return &Saturation{
		name:  "saturation",
		limit: math.Abs(limit),
	}
}

func (s *Saturation) Name() string {
	return s.name
}

func (s *Saturation) Observe(t, measured, err, output float64) {
	s.samples++
	if math.Abs(output) >= s.limit {
		s.saturated++
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.saturated = 0
	s.samples = 0
}
