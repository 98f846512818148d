package config

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Plant.Model != "fopdt" {
		t.Errorf("expected model fopdt, got %s", cfg.Plant.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("fopdt", "deadtime")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Plant.Theta != 0.2 {
		t.Errorf("expected theta 0.2, got %f", cfg.Plant.Theta)
	}

	cfg.Plant.Theta = 9
	if Presets["fopdt"]["deadtime"].Plant.Theta != 0.2 {
		t.Error("GetPreset must not hand out the shared preset")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("fopdt", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "step"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("fopdt")
	if len(presets) == 0 {
		t.Fatal("expected presets for fopdt")
	}
	if !slices.IsSorted(presets) {
		t.Errorf("expected sorted names, got %v", presets)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
	if got := Models(); !slices.Equal(got, []string{"fopdt", "mass_spring", "pendulum"}) {
		t.Errorf("unexpected models %v", got)
	}
}

func TestAllPresetsValidate(t *testing.T) {
	for _, model := range Models() {
		for _, name := range ListPresets(model) {
			t.Run(model+"/"+name, func(t *testing.T) {
				cfg := GetPreset(model, name)
				if err := cfg.Validate(); err != nil {
					t.Fatalf("scenario invalid: %v", err)
				}
				pc, err := cfg.PIDConfig()
				if err != nil {
					t.Fatalf("controller conversion failed: %v", err)
				}
				if err := pc.Validate(cfg.Channels()); err != nil {
					t.Fatalf("controller config invalid: %v", err)
				}
			})
		}
	}
}

func TestValidateAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dt = 0
	cfg.Integrator = "midpoint"
	cfg.Setpoint = []float64{1, 2}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected 3 errors, got %d: %v", n, err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *Config)
	}{
		{"unknown plant", func(c *Config) { c.Plant.Model = "boiler" }},
		{"bad tau", func(c *Config) { c.Plant.Tau = 0 }},
		{"short duration", func(c *Config) { c.Duration = Duration(time.Microsecond) }},
		{"hold length", func(c *Config) { c.Handover = &HandoverConfig{Hold: []float64{1, 2}} }},
		{"sensor scale length", func(c *Config) { c.Plant.Channels = 3; c.Setpoint = []float64{1}; c.Sensor.Scale = []float64{1, 2} }},
		{"inverted drop window", func(c *Config) { c.Faults.DropFrom = Duration(time.Second) }},
		{"anti windup mode", func(c *Config) { c.Controller.AntiWindup = "clamp" }},
		{"tuning method", func(c *Config) { c.Tune.Method = "ziegler" }},
		{"arena", func(c *Config) { c.ArenaBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	cfg := GetPreset("fopdt", "handover")
	cfg.Seed = 11

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got.Dt != cfg.Dt || got.Duration != cfg.Duration {
		t.Errorf("timing mismatch: got %v/%v want %v/%v", got.Dt.D(), got.Duration.D(), cfg.Dt.D(), cfg.Duration.D())
	}
	if got.Seed != 11 {
		t.Errorf("expected seed 11, got %d", got.Seed)
	}
	if got.Handover == nil || got.Handover.At.D() != 500*time.Millisecond || got.Handover.BlendTicks != 100 {
		t.Errorf("handover not preserved: %+v", got.Handover)
	}
}

func TestLoadDurationStrings(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	data := []byte("dt: 2ms\nduration: 1.5s\nplant:\n  model: fopdt\n  k: 2\n  tau: 0.1\n")
	if err := os.WriteFile(good, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(good)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Dt.D() != 2*time.Millisecond {
		t.Errorf("expected dt 2ms, got %v", cfg.Dt.D())
	}
	if cfg.Duration.D() != 1500*time.Millisecond {
		t.Errorf("expected duration 1.5s, got %v", cfg.Duration.D())
	}
	if cfg.Plant.K != 2 || cfg.Integrator != "rk4" {
		t.Errorf("file values should overlay defaults, got %+v", cfg.Plant)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("dt: fast\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed duration")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPIDConfigIMC(t *testing.T) {
	cfg := GetPreset("fopdt", "deadtime")
	pc, err := cfg.PIDConfig()
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}

	// lambda 0.3, theta 0.2, K 1, tau 0.5
	want := map[string]float64{"kp": 1, "ki": 2, "kd": 0.2, "tau_f": 0.05}
	got := map[string]float64{"kp": pc.Kp[0], "ki": pc.Ki[0], "kd": pc.Kd[0], "tau_f": pc.TauF[0]}
	for k, w := range want {
		if math.Abs(got[k]-w) > 1e-12 {
			t.Errorf("%s: expected %g, got %g", k, w, got[k])
		}
	}
	if pc.Kt != DefaultKt {
		t.Errorf("tuning should keep anti-windup gain, got %g", pc.Kt)
	}
}

func TestPIDConfigIMCNeedsModel(t *testing.T) {
	cfg := GetPreset("mass_spring", "step")
	cfg.Tune.Method = "imc"
	if _, err := cfg.PIDConfig(); err == nil {
		t.Error("expected error without a tuning model")
	}

	cfg.Tune.K, cfg.Tune.Tau = 0.1, 0.05
	if _, err := cfg.PIDConfig(); err != nil {
		t.Errorf("explicit model should tune: %v", err)
	}
}

func TestPIDConfigScheduleDefaults(t *testing.T) {
	pc, err := GetPreset("mass_spring", "scheduled").PIDConfig()
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if !slices.Equal(pc.Schedule.BetaTab, []float64{1, 1, 1}) {
		t.Errorf("expected unit beta table, got %v", pc.Schedule.BetaTab)
	}
	if !slices.Equal(pc.Schedule.GammaTab, []float64{0, 0, 0}) {
		t.Errorf("expected zero gamma table, got %v", pc.Schedule.GammaTab)
	}
}

func TestSimConfig(t *testing.T) {
	cfg := GetPreset("fopdt", "dropout")
	cfg.Plant.Channels = 2
	cfg.Setpoint = []float64{1}
	cfg.Sensor.Scale = []float64{2}

	sc := cfg.SimConfig()
	if sc.Dt != time.Millisecond {
		t.Errorf("expected 1ms, got %v", sc.Dt)
	}
	if !sc.InterlockDrop.Contains(1100 * time.Millisecond) {
		t.Error("drop window should cover 1.1s")
	}
	if !slices.Equal(sc.SensorScale.S, []float64{2, 2}) || !slices.Equal(sc.SensorScale.B, []float64{0, 0}) {
		t.Errorf("unexpected sensor scale %+v", sc.SensorScale)
	}
	if sc.Handover != nil {
		t.Error("no handover configured")
	}
}

func TestSet(t *testing.T) {
	cfg := DefaultConfig()
	for _, name := range Tunables {
		if err := cfg.Set(name, 0.25); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if cfg.Controller.Kp[0] != 0.25 || cfg.Tune.Lambda != 0.25 || cfg.Plant.Theta != 0.25 {
		t.Errorf("values not applied: %+v", cfg.Controller)
	}
	if err := cfg.Set("gain", 1); err == nil {
		t.Error("expected error for unknown parameter")
	}
}
