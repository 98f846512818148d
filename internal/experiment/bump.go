package experiment

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"

	"github.com/san-kum/ctlkit/internal/analysis"
	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/control"
	"github.com/san-kum/ctlkit/internal/integrators"
	"github.com/san-kum/ctlkit/internal/sim"
)

// BumpTest runs the scenario's plant open loop, stepping every input by
// amplitude at the scenario's step time, and fits an FOPDT model to the
// response of channel ch.
func BumpTest(ctx context.Context, cfg *config.Config, amplitude float64, ch int, logger golog.Logger) (analysis.FOPDT, *sim.Result, error) {
	if err := cfg.Validate(); err != nil {
		return analysis.FOPDT{}, nil, err
	}
	nu := cfg.Channels()
	if ch < 0 || ch >= nu {
		return analysis.FOPDT{}, nil, fmt.Errorf("experiment: channel %d out of range for %d channels", ch, nu)
	}
	if amplitude == 0 {
		return analysis.FOPDT{}, nil, fmt.Errorf("experiment: bump amplitude must be non-zero")
	}

	p, err := cfg.BuildPlant()
	if err != nil {
		return analysis.FOPDT{}, nil, err
	}
	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return analysis.FOPDT{}, nil, err
	}

	manual := control.NewManual(make([]float64, nu))
	step := make([]float64, nu)
	for i := range step {
		step[i] = amplitude
	}
	if err := manual.StepTo(cfg.StepAt.D().Nanoseconds(), step); err != nil {
		return analysis.FOPDT{}, nil, err
	}

	simCfg := cfg.SimConfig()
	simCfg.Handover = nil
	simCfg.JitterEvery = 0
	simCfg.InterlockDrop = sim.Window{}

	logger.Infof("bump test: %d channels, amplitude %g at %v", nu, amplitude, cfg.StepAt.D())
	result, err := sim.New(p, integ, manual, logger).Run(ctx, simCfg)
	if err != nil {
		return analysis.FOPDT{}, result, err
	}

	u := make([]float64, len(result.U))
	y := make([]float64, len(result.Y))
	for i := range result.U {
		u[i], y[i] = result.U[i][ch], result.Y[i][ch]
	}
	model, err := analysis.FitFOPDT(result.Times, u, y, cfg.StepAt.D().Seconds())
	if err != nil {
		return analysis.FOPDT{}, result, err
	}
	logger.Infof("bump test fit: K=%.4g tau=%.4g theta=%.4g", model.K, model.Tau, model.Theta)
	return model, result, nil
}
