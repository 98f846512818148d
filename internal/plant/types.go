package plant

import "math"

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

// Dynamics is a continuous-time plant: dx/dt = f(x, u, t).
type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Plant is Dynamics with a measurement map and a dead time in seconds.
type Plant interface {
	Dynamics
	OutputDim() int
	Output(x State, y []float64)
	DeadTime() float64
}

// DeadTimeSteps rounds a dead time to whole ticks of length dt seconds.
func DeadTimeSteps(p Plant, dt float64) int {
	if dt <= 0 || p.DeadTime() <= 0 {
		return 0
	}
	return int(math.Round(p.DeadTime() / dt))
}
