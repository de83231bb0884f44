package integrators

import (
	"testing"

	"github.com/san-kum/hallservo/internal/dynamo"
)

func BenchmarkEuler(b *testing.B) {
	integ := NewEuler()
	sys := lag{tau: 0.25}
	x := dynamo.State{0}
	u := dynamo.Control{1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integ.Step(sys, x, u, 0, 0.001)
	}
}

func BenchmarkRK4(b *testing.B) {
	integ := NewRK4()
	sys := lag{tau: 0.25}
	x := dynamo.State{0}
	u := dynamo.Control{1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integ.Step(sys, x, u, 0, 0.001)
	}
}
