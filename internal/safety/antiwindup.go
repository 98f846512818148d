package safety

import "fmt"

type AWMode uint8

const (
	// BackCalc integrates normally and feeds Kt*(u_sat-u_unsat) back.
	BackCalc AWMode = iota
	// Conditional freezes the integrator on saturated channels.
	Conditional
	// Off integrates with no correction. Test use only.
	Off
)

func (m AWMode) String() string {
	switch m {
	case BackCalc:
		return "backcalc"
	case Conditional:
		return "conditional"
	case Off:
		return "off"
	}
	return "unknown"
}

func ParseAWMode(s string) (AWMode, error) {
	switch s {
	case "backcalc", "back_calc", "":
		return BackCalc, nil
	case "conditional":
		return Conditional, nil
	case "off", "none":
		return Off, nil
	}
	return BackCalc, fmt.Errorf("safety: unknown anti-windup mode %q", s)
}

func BackCalcTerm(uUnsat, uSat, kt float64) float64 {
	return (uSat - uUnsat) * kt
}

func ConditionalTerm(uUnsat, uSat, kt float64) float64 {
	if uSat != uUnsat {
		return (uSat - uUnsat) * kt
	}
	return 0
}

// BackCalcTerms writes the back-calculation correction for every channel.
func BackCalcTerms(uUnsat, uSat []float64, kt float64, out []float64) {
	n := min(len(uUnsat), len(uSat), len(out))
	for i := 0; i < n; i++ {
		out[i] = BackCalcTerm(uUnsat[i], uSat[i], kt)
	}
}

func ConditionalTerms(uUnsat, uSat []float64, kt float64, out []float64) {
	n := min(len(uUnsat), len(uSat), len(out))
	for i := 0; i < n; i++ {
		out[i] = ConditionalTerm(uUnsat[i], uSat[i], kt)
	}
}
