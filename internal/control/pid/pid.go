package pid

import (
	"math"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/safety"
)

// channels is the per-channel runtime state. Every slice is a window into a
// single arena block carved by Configure.
type channels struct {
	kp, ki, kd  []float64
	beta, gamma []float64
	uff         []float64

	integ        []float64
	yPrev, rPrev []float64
	dyf, drf     []float64
	a1, b        []float64
	e, kidt      []float64
	uLast        []float64
	hold         []float64

	umin, umax []float64
	du, ddu    []float64
	safe       []float64
}

const channelSlices = 21

type schedule struct {
	bp, kp, ki, kd, beta, gamma []float64
}

const scheduleTables = 6

type block struct {
	mem []float64
	off int
}

func (b *block) take(n int) []float64 {
	s := b.mem[b.off : b.off+n : b.off+n]
	b.off += n
	return s
}

// PID is a per-channel two-degree-of-freedom PID law running inside a
// core.Kernel. Channel i is driven by measurement i and reference i.
type PID struct {
	*core.Kernel

	ch    channels
	sched schedule

	sat  *safety.Saturation
	rate *safety.RateLimiter
	jerk *safety.JerkLimiter
	fb   *safety.FallbackPolicy
	wd   safety.Watchdog

	awMode         safety.AWMode
	kt             float64
	fallbackOnTrip bool
	tripSeen       bool
	configured     bool
	// hold is emitted on the first tick after AlignBumpless whose samples
	// match the alignment point.
	holdArmed bool
}

func New() *PID {
	p := &PID{}
	p.Kernel = core.NewKernel(p)
	return p
}

// Init sizes the kernel buffers. PID runs one loop per channel, so NU must
// equal NY. Any previous configuration is discarded.
func (p *PID) Init(dims core.Dims, dtNs int64, a arena.Allocator, hooks core.Hooks) error {
	if dims.NU != dims.NY {
		return core.ErrInvalidArg
	}
	if err := p.Kernel.Init(dims, dtNs, a, hooks); err != nil {
		return err
	}
	p.configured = false
	return nil
}

// Configure validates cfg in full, then carves all memory the law and its
// safety stages need. On any error the previous configuration is kept.
func (p *PID) Configure(cfg Config) error {
	if p.State() == core.Uninitialized {
		return core.ErrNotReady
	}
	if !p.Configurable() {
		return core.ErrPreconditionFail
	}

	nu := p.Dims().NU
	if err := cfg.Validate(nu); err != nil {
		return err
	}

	a := p.Alloc()
	dt := p.Dt()
	nb := len(cfg.Schedule.BP)
	mem, ok := arena.Float64s(a, channelSlices*nu+scheduleTables*nb)
	if !ok {
		return core.ErrNoMem
	}

	blk := block{mem: mem}
	var ch channels
	for _, s := range []*[]float64{
		&ch.kp, &ch.ki, &ch.kd, &ch.beta, &ch.gamma, &ch.uff,
		&ch.integ, &ch.yPrev, &ch.rPrev, &ch.dyf, &ch.drf,
		&ch.a1, &ch.b, &ch.e, &ch.kidt, &ch.uLast, &ch.hold,
		&ch.umin, &ch.umax, &ch.du, &ch.ddu,
	} {
		*s = blk.take(nu)
	}

	var sc schedule
	if nb > 0 {
		for _, t := range []struct {
			dst *[]float64
			src []float64
		}{
			{&sc.bp, cfg.Schedule.BP},
			{&sc.kp, cfg.Schedule.KpTab},
			{&sc.ki, cfg.Schedule.KiTab},
			{&sc.kd, cfg.Schedule.KdTab},
			{&sc.beta, cfg.Schedule.BetaTab},
			{&sc.gamma, cfg.Schedule.GammaTab},
		} {
			*t.dst = blk.take(nb)
			copy(*t.dst, t.src)
		}
	}

	fill(ch.kp, cfg.Kp, 0)
	fill(ch.ki, cfg.Ki, 0)
	fill(ch.kd, cfg.Kd, 0)
	fill(ch.beta, cfg.Beta, 1)
	fill(ch.gamma, cfg.Gamma, 0)
	fill(ch.uff, cfg.UffBias, 0)
	fill(ch.umin, cfg.Umin, math.Inf(-1))
	fill(ch.umax, cfg.Umax, math.Inf(1))
	fill(ch.du, cfg.DuMax, math.Inf(1))
	fill(ch.ddu, cfg.DduMax, math.Inf(1))

	dts := core.SecondsFromNanos(dt)
	for i := 0; i < nu; i++ {
		ch.a1[i], ch.b[i] = tustin(filterTau(cfg, i), dts)
		ch.kidt[i] = ch.ki[i] * dts
	}

	var (
		sat  *safety.Saturation
		rate *safety.RateLimiter
		jerk *safety.JerkLimiter
		fb   *safety.FallbackPolicy
		err  error
	)
	if len(cfg.Umin) > 0 || len(cfg.Umax) > 0 {
		if sat, err = safety.NewSaturation(ch.umin, ch.umax); err != nil {
			return err
		}
	}
	if len(cfg.DuMax) > 0 {
		if rate, err = safety.NewRateLimiter(ch.du, dt, a, nu); err != nil {
			return err
		}
	}
	if len(cfg.DduMax) > 0 {
		if jerk, err = safety.NewJerkLimiter(ch.du, ch.ddu, dt, a, nu); err != nil {
			return err
		}
	}
	if len(cfg.SafeU) > 0 || cfg.FallbackOnTrip {
		safe, ok := arena.Float64s(a, nu)
		if !ok {
			return core.ErrNoMem
		}
		fill(safe, cfg.SafeU, 0)
		if fb, err = safety.NewFallbackPolicy(safe, cfg.FallbackRampRate, dt, a, nu); err != nil {
			return err
		}
		ch.safe = safe
	}

	p.ch = ch
	p.sched = sc
	p.sat, p.rate, p.jerk, p.fb = sat, rate, jerk, fb
	p.wd = safety.NewWatchdog(dt, cfg.MissThreshold, cfg.WatchdogSlack)
	p.awMode = cfg.AWMode
	p.kt = cfg.Kt
	p.fallbackOnTrip = cfg.FallbackOnTrip
	p.tripSeen = false
	p.holdArmed = false
	p.configured = true
	return nil
}

// filterTau is the derivative filter time constant for channel i. N only
// applies when no TauF is given.
func filterTau(cfg Config, i int) float64 {
	if len(cfg.TauF) == 0 && len(cfg.N) > 0 {
		if n := pick(cfg.N, i, 0); n > 0 {
			return 1 / n
		}
		return 0
	}
	return pick(cfg.TauF, i, 0)
}

// tustin discretizes 1/(tau s + 1) applied to a first difference.
func tustin(tau, dts float64) (a1, b float64) {
	den := 2*tau + dts
	if den <= 0 {
		return 0, 0
	}
	return (2*tau - dts) / den, 2 / den
}

func (p *PID) Start() error {
	if !p.configured {
		return core.ErrNotReady
	}
	if err := p.Kernel.Start(); err != nil {
		return err
	}
	p.wd.Clear()
	p.tripSeen = false
	if p.fb != nil {
		p.fb.Disengage()
	}
	return nil
}

func (p *PID) Compute(ctx *core.UpdateContext, u []float64) error {
	nu := len(u)
	mask := core.ChannelMask(nu)
	if ctx.Plant.ValidBits&mask != mask {
		return core.ErrPreconditionFail
	}

	if p.wd.Tick(ctx.Plant.T) && !p.tripSeen {
		p.onTrip()
	}

	var g gains
	scheduled := len(p.sched.bp) > 0
	if scheduled {
		g = p.sched.at(ctx.Plant.Y[0])
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

		y, r := ctx.Plant.Y[i], ctx.SP.R[i]
		atHold := p.holdArmed && y == ch.yPrev[i] && r == ch.rPrev[i]
		e := g.beta*r - y
		dy := filtered(ch.b[i], ch.a1[i], y, ch.yPrev[i], ch.dyf[i])
		dr := filtered(ch.b[i], ch.a1[i], r, ch.rPrev[i], ch.drf[i])

		ch.dyf[i], ch.drf[i] = dy, dr
		ch.yPrev[i], ch.rPrev[i] = y, r
		ch.e[i] = e
		ch.kidt[i] = kidt

		if atHold {
			u[i] = ch.hold[i]
			continue
		}
		u[i] = output(g.kp*e, ch.integ[i], kidt*e, -g.kd*(dy-g.gamma*dr), ch.uff[i])
	}
	p.holdArmed = false

	if p.fb != nil && p.fb.Engaged() {
		p.fb.Apply(u)
		p.Health().FallbackActive = true
	}
	return nil
}

func filtered(b, a1, x, xPrev, xf float64) float64 {
	return b*(x-xPrev) + a1*xf
}

// output sums the terms in a fixed order so alignment can reproduce it.
// integ is the committed integrator and pending this tick's increment.
func output(prop, integ, pending, deriv, uff float64) float64 {
	return prop + (integ + pending) + deriv + uff
}

func (p *PID) onTrip() {
	p.tripSeen = true
	p.Kpi().WatchdogTrips++
	p.Health().FallbackActive = true
	if p.fallbackOnTrip && p.fb != nil && !p.fb.Engaged() {
		p.engage()
	}
}

func (p *PID) engage() {
	p.fb.ResetTo(p.ch.uLast)
	p.fb.Engage()
	p.Kpi().FallbackEntries++
	p.Health().FallbackActive = true
}

func (p *PID) ApplySaturation(u []float64) core.SatStep {
	if p.sat == nil {
		return core.SatStep{}
	}
	rep := p.sat.Apply(u)
	return core.SatStep{Hits: rep.Hits, Pct: rep.SaturationPct}
}

func (p *PID) ApplyRateLimit(u []float64) uint64 {
	if p.rate == nil {
		return 0
	}
	return p.rate.Apply(u)
}

func (p *PID) ApplyJerkLimit(u []float64) uint64 {
	if p.jerk == nil {
		return 0
	}
	return p.jerk.Apply(u)
}

// AntiWindupUpdate commits this tick's integration once the safety chain has
// decided the emitted command. The integrator is frozen under fallback.
func (p *PID) AntiWindupUpdate(_ *core.UpdateContext, uUnsat, uSat []float64) {
	ch := &p.ch
	frozen := p.fb != nil && p.fb.Engaged()
	for i := range uSat {
		ch.uLast[i] = uSat[i]
		if frozen {
			continue
		}
		step := ch.kidt[i] * ch.e[i]
		switch p.awMode {
		case safety.BackCalc:
			ch.integ[i] += step
			ch.integ[i] += safety.BackCalcTerm(uUnsat[i], uSat[i], p.kt)
		case safety.Conditional:
			if uSat[i] == uUnsat[i] {
				ch.integ[i] += step
			}
		default:
			ch.integ[i] += step
		}
	}
}

// EngageFallback starts ramping from the last emitted command toward the
// configured safe vector.
func (p *PID) EngageFallback() error {
	if !p.configured {
		return core.ErrNotReady
	}
	if p.fb == nil {
		return core.ErrPreconditionFail
	}
	if !p.fb.Engaged() {
		p.engage()
	}
	return nil
}

func (p *PID) DisengageFallback() {
	if p.fb == nil {
		return
	}
	p.fb.Disengage()
	p.Health().FallbackActive = p.wd.Tripped()
}

func (p *PID) FallbackEngaged() bool { return p.fb != nil && p.fb.Engaged() }
func (p *PID) WatchdogTripped() bool { return p.wd.Tripped() }
func (p *PID) Configured() bool      { return p.configured }

// Integrator returns the committed integrator of channel i.
func (p *PID) Integrator(i int) float64 {
	if i < 0 || i >= len(p.ch.integ) {
		return 0
	}
	return p.ch.integ[i]
}

// LastOutput returns the last command that left the safety chain.
func (p *PID) LastOutput(i int) float64 {
	if i < 0 || i >= len(p.ch.uLast) {
		return 0
	}
	return p.ch.uLast[i]
}
