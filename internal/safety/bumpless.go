package safety

// BumplessMixer crossfades from a held command to a new one:
// u = (1-alpha)*u_hold + alpha*u_new with alpha in [0, 1].
type BumplessMixer struct {
	alpha float64
}

func NewBumplessMixer(alpha float64) *BumplessMixer {
	return &BumplessMixer{alpha: clamp01(alpha)}
}

func Mix(uHold, uNew, uOut []float64, alpha float64) {
	a := clamp01(alpha)
	b := 1 - a
	n := min(len(uHold), len(uNew), len(uOut))
	for i := 0; i < n; i++ {
		uOut[i] = b*uHold[i] + a*uNew[i]
	}
}

func (m *BumplessMixer) Mix(uHold, uNew, uOut []float64) {
	Mix(uHold, uNew, uOut, m.alpha)
}

// StepAlpha advances alpha by delta. Negative steps are ignored.
func (m *BumplessMixer) StepAlpha(delta float64) {
	m.alpha = clamp01(m.alpha + max(0, delta))
}

func (m *BumplessMixer) Alpha() float64     { return m.alpha }
func (m *BumplessMixer) SetAlpha(a float64) { m.alpha = clamp01(a) }
func (m *BumplessMixer) Done() bool         { return m.alpha >= 1 }

func clamp01(v float64) float64 {
	if v != v {
		return 0
	}
	return min(max(v, 0), 1)
}
