package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/hallservo/internal/dynamo"
)

// lag is a first-order lag dx/dt = (u - x) / tau.
type lag struct{ tau float64 }

func (l lag) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{(u[0] - x[0]) / l.tau}
}

func (lag) StateDim() int   { return 1 }
func (lag) ControlDim() int { return 1 }

func TestStepResponseAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		integ dynamo.Integrator
		tol   float64
	}{
		{"rk4", NewRK4(), 1e-9},
		{"euler", NewEuler(), 5e-3},
	}

	sys := lag{tau: 0.25}
	dt := 0.001
	steps := 500

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := dynamo.State{0}
			u := dynamo.Control{1}
			for i := 0; i < steps; i++ {
				x = tt.integ.Step(sys, x, u, float64(i)*dt, dt)
			}
			want := 1 - math.Exp(-float64(steps)*dt/sys.tau)
			if math.Abs(x[0]-want) > tt.tol {
				t.Errorf("x = %.9f, want %.9f", x[0], want)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"rk4", "euler", ""} {
		if _, ok := ByName(name); !ok {
			t.Errorf("ByName(%q) not found", name)
		}
	}
	if _, ok := ByName("verlet"); ok {
		t.Error("unexpected integrator")
	}
}

func TestCheck(t *testing.T) {
	sys := lag{tau: 1}
	if err := dynamo.Check(sys, dynamo.State{0}, dynamo.Control{1}); err != nil {
		t.Errorf("valid check: %v", err)
	}
	if err := dynamo.Check(sys, dynamo.State{0, 1}, dynamo.Control{1}); err == nil {
		t.Error("expected dimension mismatch")
	}
	if err := dynamo.Check(sys, dynamo.State{math.NaN()}, dynamo.Control{1}); err == nil {
		t.Error("expected invalid state")
	}
}
