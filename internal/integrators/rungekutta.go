package integrators

import "github.com/san-kum/ctlkit/internal/plant"

// tableau is the Butcher tableau of an explicit Runge-Kutta method. a is
// strictly lower triangular: row s holds the weights of stages 0..s-1.
type tableau struct {
	name string
	a    [][]float64
	b    []float64
	c    []float64
}

func (tb *tableau) stages() int { return len(tb.b) }

var (
	eulerTableau = tableau{
		name: "euler",
		a:    [][]float64{{}},
		b:    []float64{1},
		c:    []float64{0},
	}
	heunTableau = tableau{
		name: "heun",
		a:    [][]float64{{}, {1}},
		b:    []float64{0.5, 0.5},
		c:    []float64{0, 1},
	}
	rk4Tableau = tableau{
		name: "rk4",
		a:    [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		b:    []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		c:    []float64{0, 0.5, 0.5, 1},
	}
)

// RungeKutta steps a plant with an explicit method, holding the input
// constant over the interval. Stage buffers are reused between steps of the
// same state dimension; the returned state is always a fresh slice.
type RungeKutta struct {
	tab   *tableau
	k     []plant.State
	stage plant.State
}

func newRungeKutta(tab *tableau) *RungeKutta {
	return &RungeKutta{tab: tab, k: make([]plant.State, tab.stages())}
}

// NewRK4 is the classic fourth-order method.
func NewRK4() *RungeKutta { return newRungeKutta(&rk4Tableau) }

// NewHeun is the second-order trapezoidal predictor-corrector.
func NewHeun() *RungeKutta { return newRungeKutta(&heunTableau) }

// NewEuler is the explicit first-order step.
func NewEuler() *RungeKutta { return newRungeKutta(&eulerTableau) }

func (r *RungeKutta) Name() string { return r.tab.name }

func (r *RungeKutta) resize(n int) {
	if len(r.stage) == n {
		return
	}
	r.stage = make(plant.State, n)
	for s := range r.k {
		r.k[s] = make(plant.State, n)
	}
}

func (r *RungeKutta) Step(dyn plant.Dynamics, x plant.State, u plant.Control, t, dt float64) plant.State {
	r.resize(len(x))

	for s, row := range r.tab.a {
		at := x
		if s > 0 {
			copy(r.stage, x)
			for j, w := range row {
				if w == 0 {
					continue
				}
				axpy(r.stage, dt*w, r.k[j])
			}
			at = r.stage
		}
		// Derivative may hand back an internal buffer; keep our own copy.
		copy(r.k[s], dyn.Derivative(at, u, t+r.tab.c[s]*dt))
	}

	next := make(plant.State, len(x))
	copy(next, x)
	for s, w := range r.tab.b {
		axpy(next, dt*w, r.k[s])
	}
	return next
}

func axpy(dst plant.State, alpha float64, v plant.State) {
	for i := range dst {
		dst[i] += alpha * v[i]
	}
}
