package experiment

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ctlkit/internal/config"
)

func TestPresetsRun(t *testing.T) {
	for _, model := range config.Models() {
		for _, name := range config.ListPresets(model) {
			t.Run(model+"/"+name, func(t *testing.T) {
				g := NewWithT(t)
				cfg := config.GetPreset(model, name)
				e, err := New(model+"/"+name, cfg, golog.NewTestLogger(t))
				g.Expect(err).NotTo(HaveOccurred())

				res, err := e.Run(context.Background())
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(res.Steps).To(Equal(int(cfg.Duration.D() / cfg.Dt.D())))
				g.Expect(res.Metrics).To(HaveKey("iae"))
				g.Expect(res.Metrics["stability"]).To(Equal(1.0))
			})
		}
	}
}

func TestStepPresetTracks(t *testing.T) {
	g := NewWithT(t)
	e, err := New("fopdt/step", config.GetPreset("fopdt", "step"), golog.NewTestLogger(t))
	g.Expect(err).NotTo(HaveOccurred())

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	last := res.Y[len(res.Y)-1][0]
	g.Expect(last).To(BeNumerically("~", 1, 0.02))
	g.Expect(math.IsInf(res.Metrics["settling_time"], 1)).To(BeFalse())
	g.Expect(res.Kpi.Updates).To(Equal(uint64(res.Steps)))
	g.Expect(res.Rejected).To(BeZero())
}

func TestDropoutPresetRejects(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("fopdt", "dropout")
	e, err := New("fopdt/dropout", cfg, golog.NewTestLogger(t))
	g.Expect(err).NotTo(HaveOccurred())

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	window := cfg.Faults.DropTo.D() - cfg.Faults.DropFrom.D()
	g.Expect(res.Rejected).To(Equal(int(window / cfg.Dt.D())))
	g.Expect(res.Kpi.Updates).To(Equal(uint64(res.Steps - res.Rejected)))
}

func TestNewRejectsInvalid(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Dt = 0
	_, err := New("bad", cfg, golog.NewTestLogger(t))
	g.Expect(err).To(HaveOccurred())

	cfg = config.DefaultConfig()
	cfg.Controller.Umin = []float64{1}
	cfg.Controller.Umax = []float64{-1}
	_, err = New("bad", cfg, golog.NewTestLogger(t))
	g.Expect(err).To(MatchError(ContainSubstring("configure controller")))
}

func TestInfo(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("mass_spring", "step")
	cfg.Seed = 5
	e, err := New("mass_spring/step", cfg, golog.NewTestLogger(t))
	g.Expect(err).NotTo(HaveOccurred())

	info := e.Info()
	g.Expect(info.Plant).To(Equal("mass_spring"))
	g.Expect(info.Integrator).To(Equal("rk4"))
	g.Expect(info.Seed).To(Equal(int64(5)))
	g.Expect(info.Dt).To(Equal(time.Millisecond))
	g.Expect(info.Mode).To(Equal("primary"))
}

func TestEnsembleVariesNoise(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("fopdt", "noisy")
	cfg.Duration = config.Duration(200 * time.Millisecond)

	results, err := Ensemble("fopdt/noisy", cfg, 3, golog.NewTestLogger(t)).Run(context.Background(), cfg.SimConfig())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))
	g.Expect(results[0].Y[100][0]).NotTo(Equal(results[1].Y[100][0]))
}

func TestBumpTestRecoversPlant(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Duration = config.Duration(5 * time.Second)
	cfg.StepAt = config.Duration(200 * time.Millisecond)

	model, res, err := BumpTest(context.Background(), cfg, 0.5, 0, golog.NewTestLogger(t))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Steps).To(Equal(5000))
	g.Expect(res.U[0][0]).To(Equal(0.0))
	g.Expect(res.U[len(res.U)-1][0]).To(Equal(0.5))

	g.Expect(model.K).To(BeNumerically("~", cfg.Plant.K, 0.01))
	g.Expect(model.Tau).To(BeNumerically("~", cfg.Plant.Tau, 0.01))
	g.Expect(model.Theta).To(BeNumerically("~", cfg.Plant.Theta, 0.005))
}

func TestBumpTestRejects(t *testing.T) {
	g := NewWithT(t)
	logger := golog.NewTestLogger(t)

	_, _, err := BumpTest(context.Background(), config.DefaultConfig(), 0, 0, logger)
	g.Expect(err).To(MatchError(ContainSubstring("amplitude")))
	_, _, err = BumpTest(context.Background(), config.DefaultConfig(), 1, 3, logger)
	g.Expect(err).To(MatchError(ContainSubstring("channel")))
}
