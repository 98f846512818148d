package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/optim"
)

func writeSuite(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSuiteLimits(t *testing.T) {
	path := writeSuite(t, `
name: regression
steps:
  - name: nominal
    preset: fopdt/step
    max: {iae: 10}
    min: {stability: 1}
  - preset: fopdt/step
    set: {kp: 1.5}
    max: {iae: -1, bogus: 1}
`)
	suite, err := LoadSuite(path)
	require.NoError(t, err)
	assert.Equal(t, "regression", suite.Name)

	results, err := RunSuite(context.Background(), suite, golog.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "nominal", results[0].Name)
	assert.True(t, results[0].Passed(), results[0].Failures)

	assert.Equal(t, "step-2", results[1].Name)
	assert.False(t, results[1].Passed())
	require.Len(t, results[1].Failures, 2)
	assert.Contains(t, results[1].Failures[0], "bogus: no such metric")
	assert.Contains(t, results[1].Failures[1], "iae =")
}

func TestSuiteFromScenarioFile(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, config.Save(scenario, config.DefaultConfig()))

	suite := &Suite{Steps: []Step{{Name: "file", Config: scenario, Min: map[string]float64{"stability": 1}}}}
	results, err := RunSuite(context.Background(), suite, golog.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed())
}

func TestSuiteErrors(t *testing.T) {
	_, err := LoadSuite(writeSuite(t, "name: empty\n"))
	assert.ErrorContains(t, err, "no steps")

	_, err = LoadSuite(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, tc := range []struct {
		name string
		step Step
		want string
	}{
		{"both", Step{Name: "x", Preset: "fopdt/step", Config: "a.yaml"}, "both preset and config"},
		{"neither", Step{Name: "x"}, "names no scenario"},
		{"malformed", Step{Name: "x", Preset: "step"}, "model/name"},
		{"unknown", Step{Name: "x", Preset: "fopdt/nope"}, "unknown preset"},
		{"bad param", Step{Name: "x", Preset: "fopdt/step", Set: map[string]float64{"gain": 1}}, "unknown parameter"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			results, err := RunSuite(context.Background(), &Suite{Steps: []Step{tc.step}}, golog.NewTestLogger(t))
			assert.ErrorContains(t, err, tc.want)
			assert.Empty(t, results)
		})
	}
}

func TestMonteCarlo(t *testing.T) {
	base := config.GetPreset("fopdt", "step")
	require.NotNil(t, base)
	mc := MonteCarloConfig{Trials: 4, Perturbation: 0.1, Seed: 3}

	trials, err := RunMonteCarlo(context.Background(), base, mc, golog.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, trials, 4)
	for _, tr := range trials {
		assert.True(t, tr.Stable, "trial %d: %v", tr.ID, tr.Err)
		assert.InEpsilon(t, base.Plant.K, tr.K, 0.1+1e-9)
		assert.InEpsilon(t, base.Plant.Tau, tr.Tau, 0.1+1e-9)
	}
	assert.NotEqual(t, trials[0].K, trials[1].K)

	again, err := RunMonteCarlo(context.Background(), base, mc, golog.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, trials, again)

	stable, unstable, mean, _ := MonteCarloStats(trials)
	assert.Equal(t, 4, stable)
	assert.Zero(t, unstable)
	assert.Greater(t, mean, 0.0)
}

func TestMonteCarloRejects(t *testing.T) {
	logger := golog.NewTestLogger(t)
	base := config.GetPreset("fopdt", "step")

	_, err := RunMonteCarlo(context.Background(), base, MonteCarloConfig{Trials: 0}, logger)
	assert.Error(t, err)
	_, err = RunMonteCarlo(context.Background(), base, MonteCarloConfig{Trials: 1, Perturbation: 1}, logger)
	assert.Error(t, err)
	_, err = RunMonteCarlo(context.Background(), config.GetPreset("mass_spring", "step"), MonteCarloConfig{Trials: 1}, logger)
	assert.ErrorContains(t, err, "fopdt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trials, err := RunMonteCarlo(ctx, base, MonteCarloConfig{Trials: 2}, logger)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trials)
}

func TestMonteCarloStats(t *testing.T) {
	stable, unstable, mean, std := MonteCarloStats([]Trial{
		{Stable: true, IAE: 1},
		{Stable: true, IAE: 3},
		{Err: ErrDiverged},
	})
	assert.Equal(t, 2, stable)
	assert.Equal(t, 1, unstable)
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, 1.4142135623730951, std, 1e-12)

	stable, _, mean, std = MonteCarloStats(nil)
	assert.Zero(t, stable)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestTuneAndCheck(t *testing.T) {
	base := config.GetPreset("fopdt", "step")
	cfg, best, err := TuneAndCheck(context.Background(), base, "iae", golog.NewTestLogger(t),
		optim.Axis{Name: "kp", Values: []float64{0.5, 2}},
		optim.Axis{Name: "ki", Values: []float64{4}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, best.Evaluated)
	assert.Equal(t, []float64{best.Params["kp"]}, cfg.Controller.Kp)
	assert.Equal(t, []float64{4.0}, cfg.Controller.Ki)
	assert.Equal(t, []float64{2.0}, base.Controller.Kp, "base scenario must not change")
}
