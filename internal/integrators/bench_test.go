package integrators

import (
	"testing"

	"github.com/san-kum/ctlkit/internal/plant"
)

type benchDynamics struct{}

func (b *benchDynamics) StateDim() int   { return 2 }
func (b *benchDynamics) ControlDim() int { return 0 }
func (b *benchDynamics) Derivative(x plant.State, u plant.Control, t float64) plant.State {
	return plant.State{x[1], -x[0]}
}

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := &benchDynamics{}
	x := plant.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, nil, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &benchDynamics{}
	x := plant.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, nil, 0, 0.01)
	}
}

func BenchmarkHeun(b *testing.B) {
	integrator := NewHeun()
	dyn := &benchDynamics{}
	x := plant.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, nil, 0, 0.01)
	}
}
