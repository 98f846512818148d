package plant

import "fmt"

const (
	DefaultGain     = 1.0
	DefaultTau      = 0.5
	DefaultDeadTime = 0.05
)

// FOPDT is a bank of independent first-order-plus-dead-time channels:
// tau_i dx_i/dt = -x_i + K_i u_i(t - theta), y_i = x_i.
type FOPDT struct {
	K     []float64
	Tau   []float64
	Theta float64
}

func NewFOPDT(k, tau, theta float64) *FOPDT {
	return &FOPDT{K: []float64{k}, Tau: []float64{tau}, Theta: theta}
}

// NewFOPDTBank builds n identical channels.
func NewFOPDTBank(n int, k, tau, theta float64) *FOPDT {
	ks := make([]float64, n)
	taus := make([]float64, n)
	for i := range ks {
		ks[i] = k
		taus[i] = tau
	}
	return &FOPDT{K: ks, Tau: taus, Theta: theta}
}

func (f *FOPDT) Validate() error {
	if len(f.K) == 0 || len(f.K) != len(f.Tau) {
		return fmt.Errorf("plant: fopdt needs matching K and Tau, got %d and %d", len(f.K), len(f.Tau))
	}
	for i, tau := range f.Tau {
		if tau <= 0 {
			return fmt.Errorf("plant: fopdt channel %d tau must be positive, got %g", i, tau)
		}
	}
	if f.Theta < 0 {
		return fmt.Errorf("plant: dead time must be non-negative, got %g", f.Theta)
	}
	return nil
}

func (f *FOPDT) StateDim() int     { return len(f.K) }
func (f *FOPDT) ControlDim() int   { return len(f.K) }
func (f *FOPDT) OutputDim() int    { return len(f.K) }
func (f *FOPDT) DeadTime() float64 { return f.Theta }

func (f *FOPDT) Derivative(x State, u Control, t float64) State {
	dx := make(State, len(x))
	for i := range x {
		in := 0.0
		if i < len(u) {
			in = u[i]
		}
		dx[i] = (-x[i] + f.K[i]*in) / f.Tau[i]
	}
	return dx
}

func (f *FOPDT) Output(x State, y []float64) {
	copy(y, x)
}
