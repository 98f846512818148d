package safety

import (
	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

// RateLimiter bounds how far each channel may move per tick. The previous
// accepted output lives in arena memory.
type RateLimiter struct {
	rmax    []float64
	dt      int64
	prev    []float64
	lastMag float64
}

// NewRateLimiter takes per-channel rates in units per second; a single
// element broadcasts.
func NewRateLimiter(rmax []float64, dtNs int64, a arena.Allocator, nu int) (*RateLimiter, error) {
	if nu <= 0 || dtNs <= 0 || !broadcastOK(rmax, nu) {
		return nil, core.ErrInvalidArg
	}
	for _, r := range rmax {
		if r < 0 {
			return nil, core.ErrInvalidArg
		}
	}
	prev, ok := arena.Float64s(a, nu)
	if !ok {
		return nil, core.ErrNoMem
	}
	return &RateLimiter{rmax: rmax, dt: dtNs, prev: prev}, nil
}

// Apply clamps u in place and returns the number of clipped channels.
func (r *RateLimiter) Apply(u []float64) uint64 {
	var hits uint64
	r.lastMag = 0
	dts := core.SecondsFromNanos(r.dt)
	for i := range u {
		c := RateClip(u[i], r.prev[i], at(r.rmax, i)*dts)
		u[i] = c.Val
		r.prev[i] = c.Val
		if c.Hit {
			hits++
			r.lastMag = max(r.lastMag, c.Mag)
		}
	}
	return hits
}

// Reset seeds the previous output; missing channels start at zero.
func (r *RateLimiter) Reset(u0 []float64) {
	for i := range r.prev {
		r.prev[i] = 0
		if i < len(u0) {
			r.prev[i] = u0[i]
		}
	}
	r.lastMag = 0
}

func (r *RateLimiter) LastClipMag() float64 { return r.lastMag }
