package safety

import (
	"math"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

// JerkLimiter bounds both the first and second difference of each channel.
// A rate of +Inf leaves only the jerk bound active.
type JerkLimiter struct {
	rmax    []float64
	jmax    []float64
	dt      int64
	prev    []float64
	dprev   []float64
	lastMag float64
}

func NewJerkLimiter(rmax, jmax []float64, dtNs int64, a arena.Allocator, nu int) (*JerkLimiter, error) {
	if nu <= 0 || dtNs <= 0 || !broadcastOK(rmax, nu) || !broadcastOK(jmax, nu) {
		return nil, core.ErrInvalidArg
	}
	for _, v := range rmax {
		if v < 0 || math.IsNaN(v) {
			return nil, core.ErrInvalidArg
		}
	}
	for _, v := range jmax {
		if v < 0 || math.IsNaN(v) {
			return nil, core.ErrInvalidArg
		}
	}
	mem, ok := arena.Float64s(a, 2*nu)
	if !ok {
		return nil, core.ErrNoMem
	}
	return &JerkLimiter{
		rmax:  rmax,
		jmax:  jmax,
		dt:    dtNs,
		prev:  mem[:nu:nu],
		dprev: mem[nu:],
	}, nil
}

func (j *JerkLimiter) Apply(u []float64) uint64 {
	var hits uint64
	j.lastMag = 0
	dts := core.SecondsFromNanos(j.dt)
	for i := range u {
		rstep := at(j.rmax, i) * dts
		uRate := u[i]
		if !math.IsInf(rstep, 1) {
			uRate = min(max(uRate, j.prev[i]-rstep), j.prev[i]+rstep)
		}
		c := JerkClip(uRate, j.prev[i], j.dprev[i], at(j.jmax, i)*dts)
		u[i] = c.Val
		j.dprev[i] = u[i] - j.prev[i]
		j.prev[i] = u[i]
		if c.Hit {
			hits++
			j.lastMag = max(j.lastMag, c.Mag)
		}
	}
	return hits
}

func (j *JerkLimiter) Reset(u0 []float64) {
	for i := range j.prev {
		j.prev[i] = 0
		if i < len(u0) {
			j.prev[i] = u0[i]
		}
		j.dprev[i] = 0
	}
	j.lastMag = 0
}

func (j *JerkLimiter) LastClipMag() float64 { return j.lastMag }
