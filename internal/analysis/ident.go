package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrNoResponse = errors.New("analysis: output did not respond to the step")

// FOPDT is a first-order-plus-dead-time model y/u = K e^{-theta s} / (tau s + 1).
type FOPDT struct {
	K     float64
	Tau   float64
	Theta float64
}

// Fractions of the final change an FOPDT reaches one third of a time
// constant and one time constant after its dead time.
var (
	frac28 = 1 - math.Exp(-1.0/3)
	frac63 = 1 - math.Exp(-1)
)

// FitFOPDT identifies an FOPDT model from an open-loop step applied at
// stepAt seconds, using the two-point 28.3%/63.2% method. The final value
// is the mean of the last tail fraction of the record, so the response
// should be settled by then.
func FitFOPDT(times, u, y []float64, stepAt float64) (FOPDT, error) {
	n := len(times)
	if len(u) != n || len(y) != n {
		return FOPDT{}, fmt.Errorf("analysis: %d times, %d inputs and %d outputs", n, len(u), len(y))
	}
	if n < 8 {
		return FOPDT{}, fmt.Errorf("%w: %d samples", ErrShortSignal, n)
	}

	k0 := 0
	for k0 < n && times[k0] < stepAt {
		k0++
	}
	if k0 >= n-4 {
		return FOPDT{}, fmt.Errorf("analysis: step at %gs leaves no response in the record", stepAt)
	}

	tail := max(n/20, 1)
	y0 := y[max(k0-1, 0)]
	u0 := u[max(k0-1, 0)]
	if k0 == 0 {
		y0, u0 = y[0], 0
	}
	yss := stat.Mean(y[n-tail:], nil)
	uss := stat.Mean(u[n-tail:], nil)

	du := uss - u0
	dy := yss - y0
	if math.Abs(du) < 1e-12 {
		return FOPDT{}, errors.New("analysis: input did not change")
	}
	if math.Abs(dy) < 1e-9*math.Max(1, math.Abs(y0)) {
		return FOPDT{}, ErrNoResponse
	}

	t28, ok28 := crossing(times, y, k0, y0+frac28*dy, dy > 0)
	t63, ok63 := crossing(times, y, k0, y0+frac63*dy, dy > 0)
	if !ok28 || !ok63 {
		return FOPDT{}, ErrNoResponse
	}

	tau := 1.5 * (t63 - t28)
	theta := math.Max(t63-tau-stepAt, 0)
	return FOPDT{K: dy / du, Tau: tau, Theta: theta}, nil
}

// crossing returns the first time from index k0 at which y passes level,
// interpolated linearly between samples.
func crossing(times, y []float64, k0 int, level float64, rising bool) (float64, bool) {
	passed := func(v float64) bool {
		if rising {
			return v >= level
		}
		return v <= level
	}
	for k := max(k0, 1); k < len(y); k++ {
		if !passed(y[k]) {
			continue
		}
		if passed(y[k-1]) || y[k] == y[k-1] {
			return times[k], true
		}
		f := (level - y[k-1]) / (y[k] - y[k-1])
		return times[k-1] + f*(times[k]-times[k-1]), true
	}
	return 0, false
}
