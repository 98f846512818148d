package metrics

import (
	"math"

	"github.com/san-kum/ctlkit/internal/sim"
)

// ActuatorEnergy integrates the squared command, sum of u_i^2 dt.
type ActuatorEnergy struct {
	name  string
	dt    float64
	total float64
}

func NewActuatorEnergy(dt float64) *ActuatorEnergy {
	return &ActuatorEnergy{
		name: "actuator_energy",
		dt:   dt,
	}
}

func (e *ActuatorEnergy) Name() string { return e.name }

func (e *ActuatorEnergy) Observe(s sim.Sample) {
	for _, u := range s.U {
		e.total += u * u * e.dt
	}
}

func (e *ActuatorEnergy) Value() float64 { return e.total }

func (e *ActuatorEnergy) Reset() { e.total = 0 }

// Travel is the accumulated absolute command change, a proxy for actuator
// wear. Rate and jerk limits bound it from above.
type Travel struct {
	name    string
	last    []float64
	total   float64
	samples int
}

func NewTravel() *Travel {
	return &Travel{name: "travel"}
}

func (t *Travel) Name() string { return t.name }

func (t *Travel) Observe(s sim.Sample) {
	if t.samples == 0 {
		t.last = append(t.last[:0], s.U...)
		t.samples++
		return
	}
	for i, u := range s.U {
		t.total += math.Abs(u - t.last[i])
		t.last[i] = u
	}
	t.samples++
}

func (t *Travel) Value() float64 { return t.total }

func (t *Travel) Reset() {
	t.last = t.last[:0]
	t.total = 0
	t.samples = 0
}
