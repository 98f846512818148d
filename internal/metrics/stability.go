package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/ctlkit/internal/sim"
)

// Stability is the fraction of ticks on which every measured output stayed
// within bound of the origin. NaN and Inf outputs always count as outside.
type Stability struct {
	bound      float64
	ticks      int
	violations int
	firstT     float64
}

func NewStability(bound float64) *Stability {
	return &Stability{bound: bound, firstT: math.Inf(1)}
}

func (*Stability) Name() string { return "stability" }

func (s *Stability) Observe(smp sim.Sample) {
	s.ticks++
	if s.within(smp.Y) {
		return
	}
	if s.violations == 0 {
		s.firstT = smp.T
	}
	s.violations++
}

func (s *Stability) within(y []float64) bool {
	if floats.HasNaN(y) {
		return false
	}
	return len(y) == 0 || floats.Norm(y, math.Inf(1)) <= s.bound
}

func (s *Stability) Value() float64 {
	if s.ticks == 0 {
		return 1
	}
	return float64(s.ticks-s.violations) / float64(s.ticks)
}

func (s *Stability) Violations() int { return s.violations }

// FirstViolation is the sample time of the first tick outside the bound,
// +Inf while none has occurred.
func (s *Stability) FirstViolation() float64 { return s.firstT }

func (s *Stability) Reset() {
	s.ticks = 0
	s.violations = 0
	s.firstT = math.Inf(1)
}
