package pid

import (
	"fmt"
	"math"

	"github.com/san-kum/ctlkit/internal/core"
)

// DefaultLambdaFloor multiplies dt to give the smallest allowed lambda.
const DefaultLambdaFloor = 4.0

// IMCInputs describes a first-order-plus-dead-time plant and the desired
// closed-loop time constant Lambda. All times are in seconds except DtNs.
type IMCInputs struct {
	K      float64
	Tau    float64
	Theta  float64
	Lambda float64
	DtNs   int64
	// C scales the dt floor on lambda; zero selects DefaultLambdaFloor.
	C float64
}

type IMCOutputs struct {
	Kp   float64
	Ki   float64
	Kd   float64
	TauF float64
	// Lambda is the horizon actually used after flooring.
	Lambda float64
}

// Synthesize computes IMC PID gains offline. Lambda is floored to
// max(Lambda, Theta, C*dt).
func Synthesize(in IMCInputs) (IMCOutputs, error) {
	switch {
	case in.K == 0 || !finite(in.K):
		return IMCOutputs{}, fmt.Errorf("pid: imc: process gain must be finite and non-zero, got %g: %w", in.K, core.ErrInvalidArg)
	case !(in.Tau > 0) || math.IsInf(in.Tau, 1):
		return IMCOutputs{}, fmt.Errorf("pid: imc: tau must be positive, got %g: %w", in.Tau, core.ErrInvalidArg)
	case !(in.Theta >= 0) || math.IsInf(in.Theta, 1):
		return IMCOutputs{}, fmt.Errorf("pid: imc: dead time must be non-negative, got %g: %w", in.Theta, core.ErrInvalidArg)
	case math.IsNaN(in.Lambda) || in.DtNs < 0 || in.C < 0:
		return IMCOutputs{}, fmt.Errorf("pid: imc: bad tuning horizon: %w", core.ErrInvalidArg)
	}

	c := in.C
	if c == 0 {
		c = DefaultLambdaFloor
	}
	lam := max(in.Lambda, in.Theta, c*core.SecondsFromNanos(in.DtNs))

	den := lam + in.Theta
	if !(den > 0) {
		den = 1
	}

	var out IMCOutputs
	out.Lambda = lam
	out.Kp = in.Tau / (in.K * den)
	out.Kd = out.Kp * in.Theta
	out.Ki = out.Kp / in.Tau
	out.TauF = min(in.Tau, 0.1*(lam+in.Theta))
	return out, nil
}

// Config returns a single-value configuration carrying the synthesized
// gains. Limits and anti-windup settings are left at their defaults.
func (o IMCOutputs) Config() Config {
	return Config{
		Kp:   []float64{o.Kp},
		Ki:   []float64{o.Ki},
		Kd:   []float64{o.Kd},
		TauF: []float64{o.TauF},
	}
}
