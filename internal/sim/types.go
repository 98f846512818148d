package sim

import (
	"time"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/models"
)

// Controller is anything driven by the kernel tick contract.
type Controller interface {
	Update(ctx *core.UpdateContext, out *core.Result) error
	Kpi() *core.KpiCounters
}

// Aligner is implemented by controllers that support bumpless handover.
type Aligner interface {
	AlignBumpless(uHold, r0, y0 []float64) error
}

// Sample is one closed-loop tick as seen by metrics and observers. The
// slices are reused between ticks and must be copied to be retained.
type Sample struct {
	Tick     int
	T        float64
	R        []float64
	Y        []float64
	U        []float64
	Health   core.Health
	Rejected bool
	Manual   bool
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(s Sample)
}

// Window is a half-open time interval [From, To). An empty window never
// contains anything.
type Window struct {
	From time.Duration
	To   time.Duration
}

func (w Window) Contains(t time.Duration) bool {
	return w.To > w.From && t >= w.From && t < w.To
}

// Handover holds the plant at a manual command until At, then aligns the
// controller to that command and blends over BlendTicks.
type Handover struct {
	At         time.Duration
	Hold       []float64
	BlendTicks int
}

type Config struct {
	Dt       time.Duration
	Duration time.Duration
	Substeps int
	Seed     int64

	Setpoint []float64
	StepAt   time.Duration

	NoiseStd     float64
	SensorScale  models.AffineScale
	FilterCutoff float64

	// Every JitterEvery-th tick is stamped one period late.
	JitterEvery int
	// Measurement channel 0 is reported invalid inside this window.
	InterlockDrop Window

	Handover *Handover
}

type Result struct {
	Times    []float64
	R        [][]float64
	Y        [][]float64
	U        [][]float64
	Health   core.Health
	Kpi      core.KpiCounters
	Metrics  map[string]float64
	Steps    int
	Rejected int
}
