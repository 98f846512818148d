package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/ctlkit/internal/sim"
)

// DefaultSettlingBand is the settling tolerance as a fraction of the step.
const DefaultSettlingBand = 0.02

// StepResponse records one channel of a setpoint step and derives the
// classic transient figures from it. The step is taken from the first
// sample to the final setpoint.
type StepResponse struct {
	channel int
	band    float64
	t       []float64
	r       []float64
	y       []float64
}

func NewStepResponse(channel int, band float64) *StepResponse {
	if band <= 0 {
		band = DefaultSettlingBand
	}
	return &StepResponse{channel: channel, band: band}
}

func (s *StepResponse) Observe(smp sim.Sample) {
	if s.channel >= len(smp.Y) {
		return
	}
	s.t = append(s.t, smp.T)
	s.r = append(s.r, smp.R[s.channel])
	s.y = append(s.y, smp.Y[s.channel])
}

func (s *StepResponse) Reset() {
	s.t = s.t[:0]
	s.r = s.r[:0]
	s.y = s.y[:0]
}

func (s *StepResponse) span() (y0, rf, amp float64, ok bool) {
	if len(s.y) == 0 {
		return 0, 0, 0, false
	}
	y0 = s.y[0]
	rf = s.r[len(s.r)-1]
	amp = rf - y0
	return y0, rf, amp, amp != 0
}

// stepTime is the first instant the setpoint reached its final value.
func (s *StepResponse) stepTime(rf float64) float64 {
	for i, r := range s.r {
		if r == rf {
			return s.t[i]
		}
	}
	return s.t[0]
}

// Overshoot is the peak excursion past the final setpoint as a percentage
// of the step amplitude.
func (s *StepResponse) Overshoot() float64 {
	_, rf, amp, ok := s.span()
	if !ok {
		return 0
	}
	var peak float64
	if amp > 0 {
		peak = floats.Max(s.y) - rf
	} else {
		peak = rf - floats.Min(s.y)
	}
	return math.Max(0, peak/math.Abs(amp)*100)
}

// SettlingTime is the time from the step until the output last enters the
// band around the final setpoint. It is +Inf if the run ends outside the
// band.
func (s *StepResponse) SettlingTime() float64 {
	_, rf, amp, ok := s.span()
	if !ok {
		return 0
	}
	tol := s.band * math.Abs(amp)
	last := -1
	for i, y := range s.y {
		if math.Abs(y-rf) > tol {
			last = i
		}
	}
	switch {
	case last == len(s.y)-1:
		return math.Inf(1)
	case last < 0:
		return 0
	}
	return math.Max(0, s.t[last+1]-s.stepTime(rf))
}

// RiseTime is the 10% to 90% rise time of the response.
func (s *StepResponse) RiseTime() float64 {
	y0, _, amp, ok := s.span()
	if !ok {
		return 0
	}
	t10, t90 := -1.0, -1.0
	for i, y := range s.y {
		frac := (y - y0) / amp
		if t10 < 0 && frac >= 0.1 {
			t10 = s.t[i]
		}
		if t90 < 0 && frac >= 0.9 {
			t90 = s.t[i]
			break
		}
	}
	if t10 < 0 || t90 < 0 {
		return math.Inf(1)
	}
	return t90 - t10
}

// Overshoot and settling exposed as single-valued metrics for the
// simulator's metric table.

type overshoot struct{ *StepResponse }

func (overshoot) Name() string     { return "overshoot_pct" }
func (o overshoot) Value() float64 { return o.Overshoot() }

type settling struct{ *StepResponse }

func (settling) Name() string     { return "settling_time" }
func (s settling) Value() float64 { return s.SettlingTime() }

// NewOvershoot reports the percentage overshoot on one channel.
func NewOvershoot(channel int) sim.Metric {
	return overshoot{NewStepResponse(channel, DefaultSettlingBand)}
}

// NewSettlingTime reports the 2% settling time on one channel.
func NewSettlingTime(channel int) sim.Metric {
	return settling{NewStepResponse(channel, DefaultSettlingBand)}
}

// Standard is the metric set attached to every closed-loop run.
func Standard(dt float64, settleFrom float64) []sim.Metric {
	return []sim.Metric{
		NewIAE(0, dt),
		NewISE(0, dt),
		NewITAE(0, dt),
		NewOvershoot(0),
		NewSettlingTime(0),
		NewErrorSpread(0, settleFrom),
		NewControlEffort(),
		NewPeakEffort(),
		NewActuatorEnergy(dt),
		NewTravel(),
	}
}
