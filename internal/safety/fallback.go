package safety

import (
	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

// FallbackPolicy replaces a command with a bounded ramp toward a known safe
// vector. It holds the currently emitted value per channel and is a no-op
// while disengaged.
type FallbackPolicy struct {
	safe    []float64
	rmax    float64
	dt      int64
	held    []float64
	engaged bool
}

// NewFallbackPolicy seeds the held value with safeU. Channels beyond
// len(safeU) target zero.
func NewFallbackPolicy(safeU []float64, rmax float64, dtNs int64, a arena.Allocator, nu int) (*FallbackPolicy, error) {
	if nu <= 0 || dtNs <= 0 || rmax < 0 {
		return nil, core.ErrInvalidArg
	}
	held, ok := arena.Float64s(a, nu)
	if !ok {
		return nil, core.ErrNoMem
	}
	f := &FallbackPolicy{safe: safeU, rmax: rmax, dt: dtNs, held: held}
	for i := range held {
		held[i] = f.target(i)
	}
	return f, nil
}

func (f *FallbackPolicy) target(i int) float64 {
	if i < len(f.safe) {
		return f.safe[i]
	}
	return 0
}

func (f *FallbackPolicy) Engage()       { f.engaged = true }
func (f *FallbackPolicy) Disengage()    { f.engaged = false }
func (f *FallbackPolicy) Engaged() bool { return f.engaged }

// Apply moves each held value toward its target by at most rmax*dt and
// writes it to uOut.
func (f *FallbackPolicy) Apply(uOut []float64) {
	if !f.engaged {
		return
	}
	step := f.rmax * core.SecondsFromNanos(f.dt)
	for i := range f.held {
		if i >= len(uOut) {
			return
		}
		du := min(max(f.target(i)-f.held[i], -step), step)
		f.held[i] += du
		uOut[i] = f.held[i]
	}
}

// ResetTo makes the ramp start from uNow.
func (f *FallbackPolicy) ResetTo(uNow []float64) {
	for i := range f.held {
		f.held[i] = 0
		if i < len(uNow) {
			f.held[i] = uNow[i]
		}
	}
}

