package config

import (
	"maps"
	"slices"
	"time"
)

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"fopdt": {
		"step": preset(func(c *Config) {}),
		"deadtime": preset(func(c *Config) {
			c.Plant.Theta = 0.2
			c.Duration = Duration(5 * time.Second)
			c.Tune = TuneConfig{Method: "imc", Lambda: 0.3}
		}),
		"noisy": preset(func(c *Config) {
			c.Sensor = SensorConfig{NoiseStd: 0.01, FilterCutoff: 50}
			c.Controller.Kd = []float64{0.05}
			c.Controller.TauF = []float64{0.01}
			c.Seed = 7
		}),
		"saturated": preset(func(c *Config) {
			c.Setpoint = []float64{2}
			c.Controller.Kp = []float64{4}
			c.Controller.Ki = []float64{8}
			c.Controller.Umin = []float64{-2.5}
			c.Controller.Umax = []float64{2.5}
			c.Controller.DuMax = []float64{20}
		}),
		"dropout": preset(func(c *Config) {
			c.Faults.DropFrom = Duration(time.Second)
			c.Faults.DropTo = Duration(1200 * time.Millisecond)
		}),
		"jitter": preset(func(c *Config) {
			c.Faults.JitterEvery = 50
			c.Controller.MissThreshold = 3
			c.Controller.SafeU = []float64{0}
			c.Controller.FallbackRamp = 2
			c.Controller.FallbackOnTrip = true
		}),
		"handover": preset(func(c *Config) {
			c.Handover = &HandoverConfig{
				At:         Duration(500 * time.Millisecond),
				Hold:       []float64{0.5},
				BlendTicks: 100,
			}
		}),
		"multichannel": preset(func(c *Config) {
			c.Plant.Channels = 3
			c.Setpoint = []float64{1, 0.5, -1}
			c.Tune = TuneConfig{Method: "imc"}
		}),
	},
	"mass_spring": {
		"step": preset(func(c *Config) {
			c.Plant = PlantConfig{Model: "mass_spring"}
			c.Setpoint = []float64{0.1}
			c.Controller.Kp = []float64{40}
			c.Controller.Ki = []float64{30}
			c.Controller.Kd = []float64{4}
			c.Controller.TauF = []float64{0.005}
		}),
		"scheduled": preset(func(c *Config) {
			c.Plant = PlantConfig{Model: "mass_spring"}
			c.Setpoint = []float64{0.2}
			c.Controller.Kp = nil
			c.Controller.Ki = nil
			c.Controller.Kd = nil
			c.Controller.TauF = []float64{0.005}
			c.Controller.Schedule = &ScheduleConfig{
				BP: []float64{0, 0.1, 0.2},
				Kp: []float64{60, 40, 30},
				Ki: []float64{40, 30, 20},
				Kd: []float64{5, 4, 3},
			}
		}),
	},
	"pendulum": {
		"step": preset(func(c *Config) {
			c.Plant = PlantConfig{Model: "pendulum"}
			c.Setpoint = []float64{0.5}
			c.Controller.Kp = []float64{40}
			c.Controller.Ki = []float64{30}
			c.Controller.Kd = []float64{4}
			c.Controller.TauF = []float64{0.005}
		}),
		// gains rise with angle to make up for the lost gravity stiffness
		"scheduled": preset(func(c *Config) {
			c.Plant = PlantConfig{Model: "pendulum"}
			c.Setpoint = []float64{1.2}
			c.Controller.Kp = nil
			c.Controller.Ki = nil
			c.Controller.Kd = nil
			c.Controller.TauF = []float64{0.005}
			c.Controller.Umin = []float64{-20}
			c.Controller.Umax = []float64{20}
			c.Controller.Schedule = &ScheduleConfig{
				BP: []float64{0, 0.6, 1.2},
				Kp: []float64{40, 45, 50},
				Ki: []float64{30, 35, 40},
				Kd: []float64{4, 4.5, 5},
			}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(modelPresets))
}

func Models() []string {
	return slices.Sorted(maps.Keys(Presets))
}
