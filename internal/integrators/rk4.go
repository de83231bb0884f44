package integrators

import "github.com/san-kum/hallservo/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta stepper. It keeps scratch
// buffers between calls and is not safe for concurrent use.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

// stage evaluates sys at x + h*k into dst.
func (r *RK4) stage(dst dynamo.State, sys dynamo.System, x, k dynamo.State, h float64, u dynamo.Control, t float64) {
	for i := range x {
		r.scratch[i] = x[i] + h*k[i]
	}
	copy(dst, sys.Derive(r.scratch, u, t))
}

func (r *RK4) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, sys.Derive(x, u, t))
	r.stage(r.k2, sys, x, r.k1, dt/2, u, t+dt/2)
	r.stage(r.k3, sys, x, r.k2, dt/2, u, t+dt/2)
	r.stage(r.k4, sys, x, r.k3, dt, u, t+dt)

	next := make(dynamo.State, n)
	for i := range x {
		next[i] = x[i] + dt/6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return next
}
