package integrators

import (
	"fmt"

	"github.com/san-kum/ctlkit/internal/plant"
)

// Integrator advances a plant by one step of length dt seconds.
type Integrator interface {
	Name() string
	Step(dyn plant.Dynamics, x plant.State, u plant.Control, t, dt float64) plant.State
}

// Substep splits one control period into n integrator steps so a stiff
// plant can be resolved finer than the controller tick.
func Substep(integ Integrator, dyn plant.Dynamics, x plant.State, u plant.Control, t, dt float64, n int) plant.State {
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		x = integ.Step(dyn, x, u, t+float64(i)*h, h)
	}
	return x
}

func New(name string) (Integrator, error) {
	switch name {
	case "rk4", "":
		return NewRK4(), nil
	case "heun":
		return NewHeun(), nil
	case "euler":
		return NewEuler(), nil
	}
	return nil, fmt.Errorf("integrators: unknown integrator %q", name)
}

func Names() []string {
	return []string{"euler", "heun", "rk4"}
}
