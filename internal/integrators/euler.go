package integrators

import "github.com/san-kum/hallservo/internal/dynamo"

// Euler is the explicit first-order stepper. Cheap, and adequate when dt
// is well below the plant's fastest time constant.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	dx := sys.Derive(x, u, t)
	next := make(dynamo.State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}

// ByName returns the integrator registered under name.
func ByName(name string) (dynamo.Integrator, bool) {
	switch name {
	case "rk4", "":
		return NewRK4(), true
	case "euler":
		return NewEuler(), true
	}
	return nil, false
}
