package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/ctlkit/internal/control/pid"
	"github.com/san-kum/ctlkit/internal/integrators"
	"github.com/san-kum/ctlkit/internal/models"
	"github.com/san-kum/ctlkit/internal/plant"
	"github.com/san-kum/ctlkit/internal/safety"
	"github.com/san-kum/ctlkit/internal/sim"
)

const (
	DefaultDt       = time.Millisecond
	DefaultDuration = 3 * time.Second
	DefaultKp       = 2.0
	DefaultKi       = 4.0
	DefaultKd       = 0.0
	DefaultKt       = 1.0
	DefaultArena    = 1 << 16
	DefaultRunsDir  = "runs"
)

// Duration is a time.Duration that reads and writes Go duration strings
// such as "1ms" or "2.5s".
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Plant      PlantConfig     `yaml:"plant"`
	Integrator string          `yaml:"integrator"`
	Substeps   int             `yaml:"substeps,omitempty"`
	Dt         Duration        `yaml:"dt"`
	Duration   Duration        `yaml:"duration"`
	Seed       int64           `yaml:"seed"`
	Setpoint   []float64       `yaml:"setpoint"`
	StepAt     Duration        `yaml:"step_at,omitempty"`
	Sensor     SensorConfig    `yaml:"sensor,omitempty"`
	Faults     FaultConfig     `yaml:"faults,omitempty"`
	Handover   *HandoverConfig `yaml:"handover,omitempty"`
	Controller PIDParams       `yaml:"controller"`
	Tune       TuneConfig      `yaml:"tune,omitempty"`
	ArenaBytes int             `yaml:"arena_bytes,omitempty"`
	RunsDir    string          `yaml:"runs_dir,omitempty"`
}

type PlantConfig struct {
	Model    string  `yaml:"model"`
	Channels int     `yaml:"channels,omitempty"`
	K        float64 `yaml:"k,omitempty"`
	Tau      float64 `yaml:"tau,omitempty"`
	Theta    float64 `yaml:"theta,omitempty"`
	Mass     float64 `yaml:"mass,omitempty"`
	Stiff    float64 `yaml:"stiffness,omitempty"`
	Damping  float64 `yaml:"damping,omitempty"`
	Length   float64 `yaml:"length,omitempty"`
}

type SensorConfig struct {
	NoiseStd     float64   `yaml:"noise_std,omitempty"`
	FilterCutoff float64   `yaml:"filter_cutoff_hz,omitempty"`
	Scale        []float64 `yaml:"scale,omitempty"`
	Bias         []float64 `yaml:"bias,omitempty"`
}

type FaultConfig struct {
	JitterEvery int      `yaml:"jitter_every,omitempty"`
	DropFrom    Duration `yaml:"drop_from,omitempty"`
	DropTo      Duration `yaml:"drop_to,omitempty"`
}

type HandoverConfig struct {
	At         Duration  `yaml:"at"`
	Hold       []float64 `yaml:"hold"`
	BlendTicks int       `yaml:"blend_ticks,omitempty"`
}

type ScheduleConfig struct {
	BP    []float64 `yaml:"bp"`
	Kp    []float64 `yaml:"kp"`
	Ki    []float64 `yaml:"ki"`
	Kd    []float64 `yaml:"kd"`
	Beta  []float64 `yaml:"beta,omitempty"`
	Gamma []float64 `yaml:"gamma,omitempty"`
}

type PIDParams struct {
	Kp    []float64 `yaml:"kp"`
	Ki    []float64 `yaml:"ki"`
	Kd    []float64 `yaml:"kd"`
	Beta  []float64 `yaml:"beta,omitempty"`
	TauF  []float64 `yaml:"tau_f,omitempty"`
	N     []float64 `yaml:"n,omitempty"`
	Bias  []float64 `yaml:"bias,omitempty"`
	Umin  []float64 `yaml:"umin,omitempty"`
	Umax  []float64 `yaml:"umax,omitempty"`
	DuMax []float64 `yaml:"du_max,omitempty"`
	DdMax []float64 `yaml:"ddu_max,omitempty"`

	AntiWindup string  `yaml:"anti_windup,omitempty"`
	Kt         float64 `yaml:"kt,omitempty"`

	MissThreshold  uint32    `yaml:"miss_threshold,omitempty"`
	WatchdogSlack  Duration  `yaml:"watchdog_slack,omitempty"`
	SafeU          []float64 `yaml:"safe_u,omitempty"`
	FallbackRamp   float64   `yaml:"fallback_ramp,omitempty"`
	FallbackOnTrip bool      `yaml:"fallback_on_trip,omitempty"`

	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// TuneConfig selects offline IMC synthesis. Zero model fields are taken
// from an FOPDT plant.
type TuneConfig struct {
	Method string  `yaml:"method,omitempty"`
	Lambda float64 `yaml:"lambda,omitempty"`
	C      float64 `yaml:"c,omitempty"`
	K      float64 `yaml:"k,omitempty"`
	Tau    float64 `yaml:"tau,omitempty"`
	Theta  float64 `yaml:"theta,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Plant: PlantConfig{
			Model:    "fopdt",
			Channels: 1,
			K:        plant.DefaultGain,
			Tau:      plant.DefaultTau,
			Theta:    plant.DefaultDeadTime,
		},
		Integrator: "rk4",
		Dt:         Duration(DefaultDt),
		Duration:   Duration(DefaultDuration),
		Setpoint:   []float64{1},
		Controller: PIDParams{
			Kp:         []float64{DefaultKp},
			Ki:         []float64{DefaultKi},
			Kd:         []float64{DefaultKd},
			AntiWindup: safety.BackCalc.String(),
			Kt:         DefaultKt,
		},
		ArenaBytes: DefaultArena,
		RunsDir:    DefaultRunsDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Channels is the number of control channels the plant exposes.
func (c *Config) Channels() int {
	switch c.Plant.Model {
	case "mass_spring", "pendulum":
		return 1
	}
	return max(c.Plant.Channels, 1)
}

// Validate reports every problem found in the scenario at once. Controller
// parameters are checked by the PID itself.
func (c *Config) Validate() error {
	var err error
	if c.Dt <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: dt must be positive, got %v", c.Dt.D()))
	}
	if c.Duration < c.Dt {
		err = multierr.Append(err, fmt.Errorf("config: duration %v shorter than dt", c.Duration.D()))
	}
	if c.Substeps < 0 {
		err = multierr.Append(err, fmt.Errorf("config: substeps must be non-negative, got %d", c.Substeps))
	}
	if _, e := integrators.New(c.Integrator); e != nil {
		err = multierr.Append(err, fmt.Errorf("config: %w", e))
	}
	if _, e := c.BuildPlant(); e != nil {
		err = multierr.Append(err, e)
	}
	nu := c.Channels()
	if len(c.Setpoint) != 1 && len(c.Setpoint) != nu {
		err = multierr.Append(err, fmt.Errorf("config: %d setpoints for %d channels", len(c.Setpoint), nu))
	}
	if c.Handover != nil && len(c.Handover.Hold) != nu {
		err = multierr.Append(err, fmt.Errorf("config: handover hold needs %d values, got %d", nu, len(c.Handover.Hold)))
	}
	for _, v := range []struct {
		name string
		n    int
	}{{"scale", len(c.Sensor.Scale)}, {"bias", len(c.Sensor.Bias)}} {
		if v.n > 1 && v.n != nu {
			err = multierr.Append(err, fmt.Errorf("config: sensor %s needs 1 or %d values, got %d", v.name, nu, v.n))
		}
	}
	if c.Faults.DropTo < c.Faults.DropFrom {
		err = multierr.Append(err, fmt.Errorf("config: sensor drop window ends before it starts"))
	}
	if c.ArenaBytes <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: arena_bytes must be positive, got %d", c.ArenaBytes))
	}
	if _, e := safety.ParseAWMode(c.Controller.AntiWindup); e != nil {
		err = multierr.Append(err, fmt.Errorf("config: %w", e))
	}
	switch c.Tune.Method {
	case "", "imc":
	default:
		err = multierr.Append(err, fmt.Errorf("config: unknown tuning method %q", c.Tune.Method))
	}
	return err
}

func (c *Config) BuildPlant() (plant.Plant, error) {
	switch c.Plant.Model {
	case "fopdt", "":
		p := plant.NewFOPDTBank(c.Channels(), c.Plant.K, c.Plant.Tau, c.Plant.Theta)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return p, nil
	case "mass_spring":
		p := plant.NewMassSpring()
		if c.Plant.Mass != 0 {
			p.Mass = c.Plant.Mass
		}
		if c.Plant.Stiff != 0 {
			p.Stiffness = c.Plant.Stiff
		}
		if c.Plant.Damping != 0 {
			p.Damping = c.Plant.Damping
		}
		p.Theta = c.Plant.Theta
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return p, nil
	case "pendulum":
		p := plant.NewPendulum()
		if c.Plant.Mass != 0 {
			p.Mass = c.Plant.Mass
		}
		if c.Plant.Length != 0 {
			p.Length = c.Plant.Length
		}
		if c.Plant.Damping != 0 {
			p.Damping = c.Plant.Damping
		}
		p.Theta = c.Plant.Theta
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("config: unknown plant model %q", c.Plant.Model)
}

// IMCInputs resolves the tuning model, falling back to the FOPDT plant
// parameters for fields left at zero.
func (c *Config) IMCInputs() pid.IMCInputs {
	in := pid.IMCInputs{
		K:      c.Tune.K,
		Tau:    c.Tune.Tau,
		Theta:  c.Tune.Theta,
		Lambda: c.Tune.Lambda,
		DtNs:   c.Dt.D().Nanoseconds(),
		C:      c.Tune.C,
	}
	if c.Plant.Model == "fopdt" || c.Plant.Model == "" {
		if in.K == 0 {
			in.K = c.Plant.K
		}
		if in.Tau == 0 {
			in.Tau = c.Plant.Tau
		}
		if in.Theta == 0 {
			in.Theta = c.Plant.Theta
		}
	}
	return in
}

// PIDConfig converts the controller section. With tune.method imc the
// gains and derivative filter come from IMC synthesis and the remaining
// fields are kept.
func (c *Config) PIDConfig() (pid.Config, error) {
	p := c.Controller
	mode, err := safety.ParseAWMode(p.AntiWindup)
	if err != nil {
		return pid.Config{}, fmt.Errorf("config: %w", err)
	}

	out := pid.Config{
		Kp:               p.Kp,
		Ki:               p.Ki,
		Kd:               p.Kd,
		Beta:             p.Beta,
		TauF:             p.TauF,
		N:                p.N,
		UffBias:          p.Bias,
		Umin:             p.Umin,
		Umax:             p.Umax,
		DuMax:            p.DuMax,
		DduMax:           p.DdMax,
		AWMode:           mode,
		Kt:               p.Kt,
		MissThreshold:    p.MissThreshold,
		WatchdogSlack:    p.WatchdogSlack.D().Nanoseconds(),
		SafeU:            p.SafeU,
		FallbackRampRate: p.FallbackRamp,
		FallbackOnTrip:   p.FallbackOnTrip,
	}
	if s := p.Schedule; s != nil {
		out.Schedule = pid.Schedule{
			BP:       s.BP,
			KpTab:    s.Kp,
			KiTab:    s.Ki,
			KdTab:    s.Kd,
			BetaTab:  orFill(s.Beta, len(s.BP), 1),
			GammaTab: orFill(s.Gamma, len(s.BP), 0),
		}
	}

	if c.Tune.Method == "imc" {
		g, err := pid.Synthesize(c.IMCInputs())
		if err != nil {
			return pid.Config{}, fmt.Errorf("config: tune: %w", err)
		}
		tuned := g.Config()
		out.Kp, out.Ki, out.Kd, out.TauF, out.N = tuned.Kp, tuned.Ki, tuned.Kd, tuned.TauF, nil
	}
	return out, nil
}

// SimConfig converts the scenario into a closed-loop run description.
func (c *Config) SimConfig() sim.Config {
	cfg := sim.Config{
		Dt:           c.Dt.D(),
		Duration:     c.Duration.D(),
		Substeps:     c.Substeps,
		Seed:         c.Seed,
		Setpoint:     c.Setpoint,
		StepAt:       c.StepAt.D(),
		NoiseStd:     c.Sensor.NoiseStd,
		FilterCutoff: c.Sensor.FilterCutoff,
		JitterEvery:  c.Faults.JitterEvery,
		InterlockDrop: sim.Window{
			From: c.Faults.DropFrom.D(),
			To:   c.Faults.DropTo.D(),
		},
	}
	if len(c.Sensor.Scale) > 0 || len(c.Sensor.Bias) > 0 {
		cfg.SensorScale = models.AffineScale{
			S: broadcast(c.Sensor.Scale, c.Channels(), 1),
			B: broadcast(c.Sensor.Bias, c.Channels(), 0),
		}
	}
	if h := c.Handover; h != nil {
		cfg.Handover = &sim.Handover{At: h.At.D(), Hold: h.Hold, BlendTicks: h.BlendTicks}
	}
	return cfg
}

// orFill lets schedule files omit the beta and gamma tables.
func orFill(v []float64, n int, def float64) []float64 {
	if len(v) > 0 {
		return v
	}
	return broadcast(nil, n, def)
}

func broadcast(v []float64, n int, def float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		switch {
		case len(v) == 0:
			out[i] = def
		case len(v) == 1:
			out[i] = v[0]
		case i < len(v):
			out[i] = v[i]
		default:
			out[i] = def
		}
	}
	return out
}

// Tunables lists the scalar parameters accepted by Set.
var Tunables = []string{"kp", "ki", "kd", "beta", "tau_f", "kt", "lambda", "noise_std", "theta"}

// Set overrides one scalar parameter by name, broadcasting per-channel
// gains to every channel.
func (c *Config) Set(name string, v float64) error {
	switch name {
	case "kp":
		c.Controller.Kp = []float64{v}
	case "ki":
		c.Controller.Ki = []float64{v}
	case "kd":
		c.Controller.Kd = []float64{v}
	case "beta":
		c.Controller.Beta = []float64{v}
	case "tau_f":
		c.Controller.TauF = []float64{v}
	case "kt":
		c.Controller.Kt = v
	case "lambda":
		c.Tune.Lambda = v
	case "noise_std":
		c.Sensor.NoiseStd = v
	case "theta":
		c.Plant.Theta = v
	default:
		return fmt.Errorf("config: unknown parameter %q (tunable: %v)", name, Tunables)
	}
	return nil
}
