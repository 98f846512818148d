package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/ctlkit/internal/sim"
)

type errorKind int

const (
	absError errorKind = iota
	squaredError
	timeWeightedAbsError
)

// Integral accumulates a rectangle-rule error integral on one channel.
type Integral struct {
	name    string
	kind    errorKind
	channel int
	dt      float64
	sum     float64
}

// NewIAE integrates |r - y| dt.
func NewIAE(channel int, dt float64) *Integral {
	return &Integral{name: "iae", kind: absError, channel: channel, dt: dt}
}

// NewISE integrates (r - y)^2 dt.
func NewISE(channel int, dt float64) *Integral {
	return &Integral{name: "ise", kind: squaredError, channel: channel, dt: dt}
}

// NewITAE integrates t |r - y| dt.
func NewITAE(channel int, dt float64) *Integral {
	return &Integral{name: "itae", kind: timeWeightedAbsError, channel: channel, dt: dt}
}

func (m *Integral) Name() string { return m.name }

func (m *Integral) Observe(s sim.Sample) {
	if m.channel >= len(s.Y) {
		return
	}
	e := s.R[m.channel] - s.Y[m.channel]
	switch m.kind {
	case absError:
		m.sum += math.Abs(e) * m.dt
	case squaredError:
		m.sum += e * e * m.dt
	case timeWeightedAbsError:
		m.sum += s.T * math.Abs(e) * m.dt
	}
}

func (m *Integral) Value() float64 { return m.sum }

func (m *Integral) Reset() { m.sum = 0 }

// ErrorSpread is the standard deviation of the tracking error after From
// seconds, which for a settled loop is the noise the controller passes
// through.
type ErrorSpread struct {
	name    string
	channel int
	from    float64
	errs    []float64
}

func NewErrorSpread(channel int, from float64) *ErrorSpread {
	return &ErrorSpread{name: "error_std", channel: channel, from: from}
}

func (m *ErrorSpread) Name() string { return m.name }

func (m *ErrorSpread) Observe(s sim.Sample) {
	if s.T < m.from || m.channel >= len(s.Y) {
		return
	}
	m.errs = append(m.errs, s.R[m.channel]-s.Y[m.channel])
}

func (m *ErrorSpread) Value() float64 {
	if len(m.errs) < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(m.errs, nil)
	return std
}

func (m *ErrorSpread) Reset() { m.errs = m.errs[:0] }
