package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(sys System, x State, u Control, t float64, dt float64) State
}

// Check validates x and u against the dimensions of sys.
func Check(sys System, x State, u Control) error {
	if len(x) != sys.StateDim() || len(u) != sys.ControlDim() {
		return fmt.Errorf("%w: state %d/%d, control %d/%d",
			ErrDimensionMismatch, len(x), sys.StateDim(), len(u), sys.ControlDim())
	}
	if !x.IsValid() {
		return ErrInvalidState
	}
	return nil
}
