package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/edaniels/golog"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/control/pid"
	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/evidence"
	"github.com/san-kum/ctlkit/internal/integrators"
	"github.com/san-kum/ctlkit/internal/metrics"
	"github.com/san-kum/ctlkit/internal/plant"
	"github.com/san-kum/ctlkit/internal/sim"
)

// Experiment is one scenario wired into a ready-to-run closed loop: plant,
// integrator, a started PID and the standard metric set.
type Experiment struct {
	name       string
	cfg        *config.Config
	plant      plant.Plant
	integrator integrators.Integrator
	controller *pid.PID
	pidCfg     pid.Config
	simulator  *sim.Simulator
	stability  *metrics.Stability
	logger     golog.Logger
}

func New(name string, cfg *config.Config, logger golog.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := cfg.BuildPlant()
	if err != nil {
		return nil, err
	}
	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	pc, err := cfg.PIDConfig()
	if err != nil {
		return nil, err
	}
	ctrl, err := newController(cfg, pc)
	if err != nil {
		return nil, err
	}
	logger.Infof("%s: pid configured on %d channels, kp=%v ki=%v kd=%v, anti-windup %v",
		name, cfg.Channels(), pc.Kp, pc.Ki, pc.Kd, pc.AWMode)

	e := &Experiment{
		name:       name,
		cfg:        cfg,
		plant:      p,
		integrator: integ,
		controller: ctrl,
		pidCfg:     pc,
		logger:     logger,
	}
	e.simulator = sim.New(p, integ, ctrl, logger)
	for _, m := range e.Metrics() {
		if st, ok := m.(*metrics.Stability); ok {
			e.stability = st
		}
		e.simulator.AddMetric(m)
	}
	return e, nil
}

func newController(cfg *config.Config, pc pid.Config) (*pid.PID, error) {
	nu := cfg.Channels()
	ctrl := pid.New()
	dims := core.Dims{NY: nu, NU: nu}
	if err := ctrl.Init(dims, cfg.Dt.D().Nanoseconds(), arena.New(cfg.ArenaBytes), core.Hooks{}); err != nil {
		return nil, fmt.Errorf("experiment: init controller: %w", err)
	}
	if err := ctrl.Configure(pc); err != nil {
		return nil, fmt.Errorf("experiment: configure controller: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return nil, fmt.Errorf("experiment: start controller: %w", err)
	}
	return ctrl, nil
}

// Metrics builds a fresh standard metric set for the scenario. Error spread
// is taken over the second half of the post-step window.
func (e *Experiment) Metrics() []sim.Metric {
	dt := e.cfg.Dt.D().Seconds()
	step := e.cfg.StepAt.D().Seconds()
	settleFrom := step + (e.cfg.Duration.D().Seconds()-step)/2

	bound := 1.0
	for _, r := range e.cfg.Setpoint {
		bound = math.Max(bound, math.Abs(r))
	}
	return append(metrics.Standard(dt, settleFrom), metrics.NewStability(10*bound))
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	res, err := e.simulator.Run(ctx, e.cfg.SimConfig())
	if err != nil {
		return res, err
	}
	if st := e.stability; st != nil && st.Violations() > 0 {
		e.logger.Warnf("%s: outputs left the stability bound at t=%.4gs on %d ticks", e.name, st.FirstViolation(), st.Violations())
	}
	if k := res.Kpi; k.WatchdogTrips > 0 {
		e.logger.Warnf("%s: watchdog tripped %d times, %d fallback entries", e.name, k.WatchdogTrips, k.FallbackEntries)
	}
	return res, nil
}

func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

func (e *Experiment) Controller() *pid.PID { return e.controller }

func (e *Experiment) PIDConfig() pid.Config { return e.pidCfg }

func (e *Experiment) SimConfig() sim.Config { return e.cfg.SimConfig() }

func (e *Experiment) Name() string { return e.name }

func (e *Experiment) Info() evidence.RunInfo {
	model := e.cfg.Plant.Model
	if model == "" {
		model = "fopdt"
	}
	return evidence.RunInfo{
		Preset:     e.name,
		Plant:      model,
		Integrator: e.integrator.Name(),
		Controller: "pid",
		Mode:       e.controller.Mode().String(),
		Seed:       e.cfg.Seed,
		Dt:         e.cfg.Dt.D(),
		Duration:   e.cfg.Duration.D(),
	}
}

// Ensemble repeats the scenario under numRuns noise seeds. Every member
// gets its own controller and plant.
func Ensemble(name string, cfg *config.Config, numRuns int, logger golog.Logger) *sim.Ensemble {
	build := func(seed int64) (*sim.Simulator, error) {
		c := *cfg
		c.Seed = seed
		e, err := New(name, &c, logger)
		if err != nil {
			return nil, err
		}
		return e.simulator, nil
	}
	return sim.NewEnsemble(build, numRuns, cfg.Seed)
}
