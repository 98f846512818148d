package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/experiment"
	"github.com/san-kum/ctlkit/internal/optim"
	"github.com/san-kum/ctlkit/internal/sim"
)

var ErrDiverged = errors.New("automation: closed loop left its stability bound")

// Suite is a scripted list of closed-loop scenarios with acceptance limits.
type Suite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step names either a preset as model/preset or a scenario file, plus
// parameter overrides and metric limits the run has to meet.
type Step struct {
	Name   string             `yaml:"name"`
	Preset string             `yaml:"preset,omitempty"`
	Config string             `yaml:"config,omitempty"`
	Set    map[string]float64 `yaml:"set,omitempty"`
	Max    map[string]float64 `yaml:"max,omitempty"`
	Min    map[string]float64 `yaml:"min,omitempty"`
}

type StepResult struct {
	Name     string
	Result   *sim.Result
	Failures []string
}

func (r StepResult) Passed() bool { return len(r.Failures) == 0 }

func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("automation: %s: %w", path, err)
	}
	if len(suite.Steps) == 0 {
		return nil, fmt.Errorf("automation: %s has no steps", path)
	}
	return &suite, nil
}

func (s Step) scenario() (*config.Config, error) {
	switch {
	case s.Config != "" && s.Preset != "":
		return nil, fmt.Errorf("step %q sets both preset and config", s.Name)
	case s.Config != "":
		return config.Load(s.Config)
	case s.Preset != "":
		model, name, ok := strings.Cut(s.Preset, "/")
		if !ok {
			return nil, fmt.Errorf("step %q: preset must be model/name, got %q", s.Name, s.Preset)
		}
		cfg := config.GetPreset(model, name)
		if cfg == nil {
			return nil, fmt.Errorf("step %q: unknown preset %q", s.Name, s.Preset)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("step %q names no scenario", s.Name)
}

// RunSuite executes every step in order. A step that cannot be built or
// fails to run stops the suite; limit violations are recorded and the
// suite carries on.
func RunSuite(ctx context.Context, suite *Suite, logger golog.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(suite.Steps))

	for i, step := range suite.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		logger.Infof("running step %d/%d: %s", i+1, len(suite.Steps), name)

		cfg, err := step.scenario()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		for _, k := range sortedKeys(step.Set) {
			if err := cfg.Set(k, step.Set[k]); err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
		}

		exp, err := experiment.New(name, cfg, logger)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{
			Name:     name,
			Result:   result,
			Failures: check(step, result.Metrics),
		})
	}
	return results, nil
}

func check(step Step, m map[string]float64) []string {
	var failures []string
	for _, k := range sortedKeys(step.Max) {
		v, ok := m[k]
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("%s: no such metric", k))
		case !(v <= step.Max[k]):
			failures = append(failures, fmt.Sprintf("%s = %.6g, limit %.6g", k, v, step.Max[k]))
		}
	}
	for _, k := range sortedKeys(step.Min) {
		v, ok := m[k]
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("%s: no such metric", k))
		case !(v >= step.Min[k]):
			failures = append(failures, fmt.Sprintf("%s = %.6g, floor %.6g", k, v, step.Min[k]))
		}
	}
	return failures
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MonteCarloConfig perturbs the plant model around the scenario values to
// check that fixed controller gains tolerate model mismatch.
type MonteCarloConfig struct {
	Trials int
	// Relative half-width of the uniform perturbation on K, tau and theta.
	Perturbation float64
	Seed         uint64
}

type Trial struct {
	ID     int
	K      float64
	Tau    float64
	Theta  float64
	Stable bool
	IAE    float64
	Err    error
}

// RunMonteCarlo runs the trials in sequence. Gains are resolved once from
// the nominal model, so IMC tuning does not follow the perturbation.
func RunMonteCarlo(ctx context.Context, base *config.Config, mc MonteCarloConfig, logger golog.Logger) ([]Trial, error) {
	if mc.Trials <= 0 {
		return nil, fmt.Errorf("automation: trials must be positive, got %d", mc.Trials)
	}
	if mc.Perturbation < 0 || mc.Perturbation >= 1 {
		return nil, fmt.Errorf("automation: perturbation must be in [0, 1), got %g", mc.Perturbation)
	}
	if m := base.Plant.Model; m != "" && m != "fopdt" {
		return nil, fmt.Errorf("automation: model perturbation needs an fopdt plant, got %q", m)
	}

	nominal, err := base.PIDConfig()
	if err != nil {
		return nil, err
	}
	fixed := *base
	fixed.Tune = config.TuneConfig{}
	fixed.Controller.Kp, fixed.Controller.Ki, fixed.Controller.Kd = nominal.Kp, nominal.Ki, nominal.Kd
	fixed.Controller.TauF, fixed.Controller.N = nominal.TauF, nominal.N

	rng := rand.New(rand.NewPCG(mc.Seed, 0x5851f42d4c957f2d))
	perturb := func(v float64) float64 {
		return v * (1 + (2*rng.Float64()-1)*mc.Perturbation)
	}

	trials := make([]Trial, 0, mc.Trials)
	for i := 0; i < mc.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return trials, err
		}

		cfg := fixed
		cfg.Plant.K = perturb(base.Plant.K)
		cfg.Plant.Tau = perturb(base.Plant.Tau)
		cfg.Plant.Theta = perturb(base.Plant.Theta)
		tr := Trial{ID: i, K: cfg.Plant.K, Tau: cfg.Plant.Tau, Theta: cfg.Plant.Theta}

		exp, err := experiment.New(fmt.Sprintf("trial-%d", i), &cfg, logger)
		if err != nil {
			return trials, err
		}
		result, err := exp.Run(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return trials, ctx.Err()
		case err != nil:
			tr.Err = err
		case result.Metrics["stability"] < 1:
			tr.Err = ErrDiverged
			tr.IAE = result.Metrics["iae"]
		default:
			tr.Stable = true
			tr.IAE = result.Metrics["iae"]
		}
		trials = append(trials, tr)
	}
	return trials, nil
}

// MonteCarloStats counts stable trials and averages IAE over them.
func MonteCarloStats(trials []Trial) (stable, unstable int, meanIAE, stdIAE float64) {
	iae := make([]float64, 0, len(trials))
	for _, t := range trials {
		if t.Stable {
			stable++
			iae = append(iae, t.IAE)
		} else {
			unstable++
		}
	}
	switch len(iae) {
	case 0:
	case 1:
		meanIAE = iae[0]
	default:
		meanIAE, stdIAE = stat.MeanStdDev(iae, nil)
	}
	return stable, unstable, meanIAE, stdIAE
}

// TuneAndCheck is a convenience used by suites that search gains first:
// it runs the grid and returns the scenario with the winning values set.
func TuneAndCheck(ctx context.Context, base *config.Config, metric string, logger golog.Logger, axes ...optim.Axis) (*config.Config, *optim.Best, error) {
	best, err := optim.NewGridSearch(logger, axes...).Search(ctx, base, metric)
	if err != nil {
		return nil, nil, err
	}
	cfg := *base
	for _, k := range sortedKeys(best.Params) {
		if err := cfg.Set(k, best.Params[k]); err != nil {
			return nil, nil, err
		}
	}
	return &cfg, best, nil
}
