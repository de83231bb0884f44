package metrics

import (
	"math"
	"testing"
)

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	if m.Value() != 0 {
		t.Error("expected zero effort before observations")
	}
	m.Observe(0, 0, 0, 40)
	m.Observe(0.01, 0, 0, -80)
	if m.Value() != 60 {
		t.Errorf("effort = %v, want 60", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero effort after reset")
	}
}

func TestSaturation(t *testing.T) {
	m := NewSaturation(-80)
	for _, out := range []float64{80, -80, 79.9, 10} {
		m.Observe(0, 0, 0, out)
	}
	if m.Value() != 0.5 {
		t.Errorf("saturation = %v, want 0.5", m.Value())
	}
}

func TestIAE(t *testing.T) {
	m := NewIAE()
	m.Observe(0, 0, 10, 0)
	m.Observe(0.5, 0, -4, 0)
	m.Observe(1.0, 0, 2, 0)
	// 4*0.5 + 2*0.5
	if math.Abs(m.Value()-3) > 1e-12 {
		t.Errorf("iae = %v, want 3", m.Value())
	}
}

func TestSetValues(t *testing.T) {
	s := Default(80)
	s.Observe(0, 0, 90, 80)
	s.Observe(0.01, 1, 89, 80)

	v := s.Values()
	if len(v) != 4 {
		t.Fatalf("values = %v", v)
	}
	if v["saturation"] != 1 || v["peak_error"] != 90 || v["control_effort"] != 80 {
		t.Errorf("values = %v", v)
	}
	s.Reset()
	if s.Values()["peak_error"] != 0 {
		t.Error("reset did not clear peak error")
	}
}
