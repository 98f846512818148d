package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/ctlkit/internal/sim"
)

// ControlEffort averages |u_i| per channel over automatic ticks. Its value
// is the sum of the channel means, i.e. the mean L1 norm of the command.
// Ticks under manual override are not charged to the controller.
type ControlEffort struct {
	abs   []float64
	peak  float64
	ticks int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (*ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s sim.Sample) {
	if s.Manual {
		return
	}
	if len(c.abs) < len(s.U) {
		c.abs = append(c.abs, make([]float64, len(s.U)-len(c.abs))...)
	}
	for i, u := range s.U {
		a := math.Abs(u)
		c.abs[i] += a
		c.peak = math.Max(c.peak, a)
	}
	c.ticks++
}

func (c *ControlEffort) Value() float64 {
	if c.ticks == 0 {
		return 0
	}
	return floats.Sum(c.abs) / float64(c.ticks)
}

// Channel is the mean |u| on one channel, 0 for a channel never seen.
func (c *ControlEffort) Channel(i int) float64 {
	if c.ticks == 0 || i < 0 || i >= len(c.abs) {
		return 0
	}
	return c.abs[i] / float64(c.ticks)
}

// Peak is the largest |u_i| seen on any automatic tick.
func (c *ControlEffort) Peak() float64 { return c.peak }

func (c *ControlEffort) Reset() {
	c.abs = c.abs[:0]
	c.peak = 0
	c.ticks = 0
}

type peakEffort struct{ *ControlEffort }

func (peakEffort) Name() string     { return "peak_effort" }
func (p peakEffort) Value() float64 { return p.Peak() }

// NewPeakEffort reports the largest automatic command magnitude.
func NewPeakEffort() sim.Metric { return peakEffort{NewControlEffort()} }
