package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/edaniels/golog"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/filter"
	"github.com/san-kum/ctlkit/internal/integrators"
	"github.com/san-kum/ctlkit/internal/models"
	"github.com/san-kum/ctlkit/internal/plant"
	"github.com/san-kum/ctlkit/internal/safety"
)

// Simulator closes the loop between a controller and a continuous-time
// plant with actuator dead time and an optional measurement chain.
type Simulator struct {
	plant      plant.Plant
	integrator integrators.Integrator
	controller Controller
	metrics    []Metric
	observers  []Observer
	logger     golog.Logger
}

func New(p plant.Plant, integrator integrators.Integrator, controller Controller, logger golog.Logger) *Simulator {
	return &Simulator{
		plant:      p,
		integrator: integrator,
		controller: controller,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		logger:     logger,
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// signal chain state for one run
type loop struct {
	delays  []*models.FifoDelay
	filters []*filter.IIR
	locks   *safety.Interlocks
	mixer   *safety.BumplessMixer
	rng     *rand.Rand
}

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	ny, nu := s.plant.OutputDim(), s.plant.ControlDim()
	steps := int(cfg.Duration / cfg.Dt)
	dts := cfg.Dt.Seconds()
	substeps := max(cfg.Substeps, 1)

	l, err := s.newLoop(cfg, ny, nu)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Times:   make([]float64, 0, steps),
		R:       make([][]float64, 0, steps),
		Y:       make([][]float64, 0, steps),
		U:       make([][]float64, 0, steps),
		Metrics: make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := make(plant.State, s.plant.StateDim())
	yRaw := make([]float64, ny)
	yMeas := make([]float64, ny)
	r := make([]float64, ny)
	u := make([]float64, nu)
	uPlant := make(plant.Control, nu)
	out := &core.Result{U: make([]float64, nu)}
	uctx := &core.UpdateContext{
		Plant: core.PlantState{Y: yMeas},
		SP:    core.Setpoint{R: r},
	}

	manual := cfg.Handover != nil
	var hold []float64
	if manual {
		hold = cfg.Handover.Hold
		copy(u, hold)
	}

	s.logger.Infof("closed loop: %d channels, dt=%v, %d ticks, dead time %d ticks",
		nu, cfg.Dt, steps, l.delays[0].Delay())

	var lateness time.Duration
	rejecting := false
	for k := 0; k < steps; k++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		now := time.Duration(k) * cfg.Dt
		t := now.Seconds()
		if cfg.JitterEvery > 0 && k > 0 && k%cfg.JitterEvery == 0 {
			lateness += cfg.Dt
		}

		s.plant.Output(x, yRaw)
		if err := s.measure(cfg, l, yRaw, yMeas); err != nil {
			return result, &TickError{Tick: k, Time: t, State: x.Clone(), Wrapped: err}
		}
		setpoint(cfg, now, r)
		l.locks.Write(1, !cfg.InterlockDrop.Contains(now))
		uctx.Plant.T = int64(now + lateness)
		uctx.Plant.ValidBits = l.locks.Bits()

		if manual && now >= cfg.Handover.At {
			manual = false
			if a, ok := s.controller.(Aligner); ok {
				if err := a.AlignBumpless(hold, r, yMeas); err != nil {
					return result, &TickError{Tick: k, Time: t, State: x.Clone(), Wrapped: err}
				}
			}
			s.logger.Infof("handover to automatic at t=%.3fs", t)
		}

		rejected := false
		if !manual {
			err := s.controller.Update(uctx, out)
			switch core.StatusOf(err) {
			case core.OK:
				if hold != nil && !l.mixer.Done() {
					l.mixer.Mix(hold, out.U, u)
					l.mixer.StepAlpha(blendStep(cfg.Handover))
				} else {
					copy(u, out.U)
				}
			case core.PreconditionFail:
				// measurement rejected, hold the last command
				rejected = true
				result.Rejected++
				if !rejecting {
					s.logger.Debugf("tick %d: measurement rejected, holding last command", k)
				}
			default:
				return result, &TickError{Tick: k, Time: t, State: x.Clone(), Wrapped: err}
			}
		}

		if rejecting && !rejected && !manual {
			s.logger.Debugf("tick %d: measurement valid again", k)
		}
		rejecting = rejected

		for i := range u {
			uPlant[i] = l.delays[i].Push(u[i])
		}
		x = integrators.Substep(s.integrator, s.plant, x, uPlant, t, dts, substeps)
		if !x.IsValid() {
			return result, &TickError{Tick: k, Time: t, State: x.Clone(), Wrapped: ErrDiverged}
		}

		sample := Sample{
			Tick:     k,
			T:        t,
			R:        r,
			Y:        yMeas,
			U:        u,
			Health:   out.Health,
			Rejected: rejected,
			Manual:   manual,
		}
		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, obs := range s.observers {
			obs.OnTick(sample)
		}

		result.Times = append(result.Times, t)
		result.R = append(result.R, clone(r))
		result.Y = append(result.Y, clone(yMeas))
		result.U = append(result.U, clone(u))
		result.Steps++
	}

	result.Health = out.Health
	result.Kpi = *s.controller.Kpi()
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	s.logger.Infof("closed loop finished: %d ticks, %d rejected, %d deadline misses",
		result.Steps, result.Rejected, result.Health.DeadlineMissCount)
	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidConfig, cfg.Dt)
	}
	if cfg.Duration < cfg.Dt {
		return fmt.Errorf("%w: duration must cover at least one tick, got %v", ErrInvalidConfig, cfg.Duration)
	}
	if cfg.NoiseStd < 0 {
		return fmt.Errorf("%w: noise std must be non-negative, got %g", ErrInvalidConfig, cfg.NoiseStd)
	}
	if nyq := 0.5 / cfg.Dt.Seconds(); cfg.FilterCutoff < 0 || cfg.FilterCutoff >= nyq {
		return fmt.Errorf("%w: filter cutoff must be in [0, %g) Hz, got %g", ErrInvalidConfig, nyq, cfg.FilterCutoff)
	}

	ny, nu := s.plant.OutputDim(), s.plant.ControlDim()
	if nu <= 0 {
		return fmt.Errorf("%w: plant has no inputs", ErrDimensionMismatch)
	}
	if ny != nu {
		return fmt.Errorf("%w: plant has %d outputs and %d inputs", ErrDimensionMismatch, ny, nu)
	}
	if len(cfg.Setpoint) != 1 && len(cfg.Setpoint) != ny {
		return fmt.Errorf("%w: %d setpoints for %d channels", ErrDimensionMismatch, len(cfg.Setpoint), ny)
	}
	if cfg.Handover != nil && len(cfg.Handover.Hold) != nu {
		return fmt.Errorf("%w: handover hold has %d values for %d channels", ErrDimensionMismatch, len(cfg.Handover.Hold), nu)
	}
	if len(cfg.SensorScale.S) > 0 || len(cfg.SensorScale.B) > 0 {
		if err := cfg.SensorScale.Validate(ny); err != nil {
			return fmt.Errorf("%w: sensor scale: %v", ErrDimensionMismatch, err)
		}
	}
	return nil
}

// newLoop carves every per-run buffer from one arena sized up front.
func (s *Simulator) newLoop(cfg Config, ny, nu int) (*loop, error) {
	n := plant.DeadTimeSteps(s.plant, cfg.Dt.Seconds())
	size := nu * nextPow2(n+1) * 8
	if cfg.FilterCutoff > 0 {
		size += ny * 7 * 8
	}
	a := arena.New(size + 64)

	l := &loop{
		delays: make([]*models.FifoDelay, nu),
		locks:  safety.NewInterlocks(core.ChannelMask(ny)),
		mixer:  safety.NewBumplessMixer(1),
		rng:    rand.New(rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15)),
	}
	l.locks.Set(core.ChannelMask(ny))
	if h := cfg.Handover; h != nil && h.BlendTicks > 0 {
		l.mixer.SetAlpha(0)
	}

	for i := range l.delays {
		d, err := models.NewFifoDelay(n, a)
		if err != nil {
			return nil, fmt.Errorf("sim: dead time line: %w", err)
		}
		l.delays[i] = d
	}

	if cfg.FilterCutoff > 0 {
		sec := filter.LowPass(cfg.FilterCutoff, 1/cfg.Dt.Seconds())
		l.filters = make([]*filter.IIR, ny)
		for i := range l.filters {
			f, err := filter.NewIIR([]filter.Biquad{sec}, a, true)
			if err != nil {
				return nil, fmt.Errorf("sim: measurement filter: %w", err)
			}
			l.filters[i] = f
		}
	}
	return l, nil
}

// measure maps plant outputs through the sensor chain: scaling, filtering
// and additive Gaussian noise.
func (s *Simulator) measure(cfg Config, l *loop, yRaw, yMeas []float64) error {
	if len(cfg.SensorScale.S) > 0 {
		if err := cfg.SensorScale.Apply(yRaw, yMeas); err != nil {
			return err
		}
	} else {
		copy(yMeas, yRaw)
	}
	for i, f := range l.filters {
		yMeas[i] = f.Step(yMeas[i])
	}
	if cfg.NoiseStd > 0 {
		for i := range yMeas {
			yMeas[i] += cfg.NoiseStd * l.rng.NormFloat64()
		}
	}
	return nil
}

func setpoint(cfg Config, now time.Duration, r []float64) {
	for i := range r {
		r[i] = 0
		if now >= cfg.StepAt {
			r[i] = cfg.Setpoint[min(i, len(cfg.Setpoint)-1)]
		}
	}
}

func blendStep(h *Handover) float64 {
	if h == nil || h.BlendTicks <= 0 {
		return 1
	}
	return 1 / float64(h.BlendTicks)
}

func nextPow2(x int) int {
	p := 1
	for p < x {
		p <<= 1
	}
	return p
}

func clone(s []float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	return c
}
