package pid

import (
	"math"

	"github.com/san-kum/ctlkit/internal/core"
)

// AlignBumpless prepares a handover from another source that is currently
// holding uHold. The derivative memories are cleared, the previous samples
// are set to (r0, y0) and the integrator is solved so the law continues
// from uHold. The next tick at (r0, y0) emits uHold itself, bit for bit,
// on every channel whose samples match. Rate, jerk and fallback memories
// are seeded with uHold as well.
func (p *PID) AlignBumpless(uHold, r0, y0 []float64) error {
	if !p.configured {
		return core.ErrNotReady
	}
	nu := p.Dims().NU
	if len(uHold) != nu || len(r0) != nu || len(y0) != nu {
		return core.ErrInvalidArg
	}

	var g gains
	scheduled := len(p.sched.bp) > 0
	if scheduled {
		g = p.sched.at(y0[0])
	}
	dts := core.SecondsFromNanos(p.Dt())

	ch := &p.ch
	for i := 0; i < nu; i++ {
		if !scheduled {
			g = gains{ch.kp[i], ch.ki[i], ch.kd[i], ch.beta[i], ch.gamma[i]}
		}
		kidt := ch.kidt[i]
		if scheduled {
			kidt = g.ki * dts
		}

		ch.yPrev[i], ch.rPrev[i] = y0[i], r0[i]
		ch.dyf[i], ch.drf[i] = 0, 0

		// what the next tick will see for these samples
		e := g.beta*r0[i] - y0[i]
		dy := filtered(ch.b[i], ch.a1[i], y0[i], y0[i], 0)
		dr := filtered(ch.b[i], ch.a1[i], r0[i], r0[i], 0)
		prop, pending, deriv := g.kp*e, kidt*e, -g.kd*(dy-g.gamma*dr)

		ch.e[i] = e
		ch.kidt[i] = kidt
		ch.integ[i] = solveIntegrator(uHold[i], prop, pending, deriv, ch.uff[i])
		ch.uLast[i] = uHold[i]
		ch.hold[i] = uHold[i]
	}
	p.holdArmed = true

	if p.rate != nil {
		p.rate.Reset(uHold)
	}
	if p.jerk != nil {
		p.jerk.Reset(uHold)
	}
	if p.fb != nil {
		p.fb.ResetTo(uHold)
	}
	return nil
}

// solveIntegrator finds I with output(prop, I, pending, deriv, uff) == target.
// A few correction steps absorb rounding; the final walk is one ulp at a time.
func solveIntegrator(target, prop, pending, deriv, uff float64) float64 {
	integ := target - uff - deriv - prop - pending
	if !finite(integ) {
		return integ
	}
	for range 4 {
		got := output(prop, integ, pending, deriv, uff)
		if got == target || !finite(got) {
			return integ
		}
		integ += target - got
	}
	for range 64 {
		got := output(prop, integ, pending, deriv, uff)
		switch {
		case got == target:
			return integ
		case got < target:
			integ = math.Nextafter(integ, math.Inf(1))
		default:
			integ = math.Nextafter(integ, math.Inf(-1))
		}
	}
	return integ
}
