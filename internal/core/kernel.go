package core

import (
	"math"

	"github.com/san-kum/ctlkit/internal/arena"
)

// Law computes the unconstrained command for one tick. Returning a non-nil
// error aborts the tick before any safety stage runs.
type Law interface {
	Compute(ctx *UpdateContext, u []float64) error
}

type SatStep struct {
	Hits uint64
	Pct  float64
}

// Optional stages. A Law that implements one of these has it called at its
// fixed position in the pipeline; otherwise the position is a no-op.
type (
	SaturationStage interface {
		ApplySaturation(u []float64) SatStep
	}
	RateStage interface {
		ApplyRateLimit(u []float64) uint64
	}
	JerkStage interface {
		ApplyJerkLimit(u []float64) uint64
	}
	AntiWindupStage interface {
		AntiWindupUpdate(ctx *UpdateContext, uUnsat, uSat []float64)
	}
)

type State uint8

const (
	Uninitialized State = iota
	Initialized
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Kernel owns the lifecycle and the fixed tick pipeline around a Law:
// Compute, PreClamp, Saturation, Rate, Jerk, AntiWindup, PostArbitrate.
type Kernel struct {
	law  Law
	sat  SaturationStage
	rate RateStage
	jerk JerkStage
	aw   AntiWindupStage

	dims  Dims
	dt    int64
	hooks Hooks
	alloc arena.Allocator

	state    State
	lastT    int64
	haveLast bool
	health   Health
	kpi    KpiCounters

	pre   []float64
	work  []float64
	stage []float64
}

func NewKernel(law Law) *Kernel {
	k := &Kernel{law: law}
	k.sat, _ = law.(SaturationStage)
	k.rate, _ = law.(RateStage)
	k.jerk, _ = law.(JerkStage)
	k.aw, _ = law.(AntiWindupStage)
	return k
}

func (k *Kernel) Init(dims Dims, dtNs int64, alloc arena.Allocator, hooks Hooks) error {
	if !dims.Valid() || dtNs <= 0 || alloc == nil {
		return ErrInvalidArg
	}
	if k.state == Started {
		return ErrPreconditionFail
	}

	pre, ok1 := arena.Float64s(alloc, dims.NU)
	work, ok2 := arena.Float64s(alloc, dims.NU)
	stage, ok3 := arena.Float64s(alloc, dims.NU)
	if !ok1 || !ok2 || !ok3 {
		return ErrNoMem
	}

	k.dims = dims
	k.dt = dtNs
	k.hooks = hooks
	k.alloc = alloc
	k.pre, k.work, k.stage = pre, work, stage
	k.haveLast = false
	k.health = Health{}
	k.kpi = KpiCounters{}
	k.state = Initialized
	return nil
}

func (k *Kernel) Start() error {
	if k.state != Initialized && k.state != Stopped {
		return ErrNotReady
	}
	k.haveLast = false
	k.health = Health{}
	k.state = Started
	return nil
}

func (k *Kernel) Stop() error {
	if k.state == Uninitialized {
		return ErrNotReady
	}
	if k.state == Started {
		k.state = Stopped
	}
	return nil
}

func (k *Kernel) Reset() error {
	if k.state == Uninitialized {
		return ErrNotReady
	}
	k.haveLast = false
	k.health.clearTick()
	return nil
}

// Update runs one tick. It performs no heap or arena allocation.
func (k *Kernel) Update(ctx *UpdateContext, out *Result) error {
	k.health.clearTick()

	if k.state != Started {
		return ErrNotReady
	}
	if ctx == nil || out == nil {
		return ErrInvalidArg
	}
	nu := k.dims.NU
	if len(out.U) != nu || len(ctx.Plant.Y) != k.dims.NY || len(ctx.SP.R) != k.dims.NY {
		return ErrInvalidArg
	}
	if len(ctx.Plant.Xhat) != 0 && len(ctx.Plant.Xhat) != k.dims.NX {
		return ErrInvalidArg
	}

	t := ctx.Plant.T
	if k.haveLast {
		if d := t - k.lastT; d != k.dt {
			k.health.DeadlineMissCount += skippedPeriods(d, k.dt)
		}
	}
	k.lastT, k.haveLast = t, true

	if err := k.law.Compute(ctx, out.U); err != nil {
		return err
	}

	if k.hooks.PreClamp != nil {
		k.hooks.PreClamp(out.U)
	}

	copy(k.pre, out.U)
	copy(k.work, k.pre)

	var sat SatStep
	copy(k.stage, k.work)
	if k.sat != nil {
		sat = k.sat.ApplySaturation(k.work)
	}
	k.health.LastClampMag = maxAbsDiff(k.work, k.stage)

	var rateHits uint64
	copy(k.stage, k.work)
	if k.rate != nil {
		rateHits = k.rate.ApplyRateLimit(k.work)
	}
	k.health.LastRateClipMag = maxAbsDiff(k.work, k.stage)

	var jerkHits uint64
	copy(k.stage, k.work)
	if k.jerk != nil {
		jerkHits = k.jerk.ApplyJerkLimit(k.work)
	}
	k.health.LastJerkClipMag = maxAbsDiff(k.work, k.stage)

	if k.aw != nil {
		k.aw.AntiWindupUpdate(ctx, k.pre, k.work)
	}

	k.health.SaturationPct = sat.Pct
	k.health.RateLimitHits += rateHits
	k.health.JerkLimitHits += jerkHits
	aw := 0.0
	for i := 0; i < nu; i++ {
		aw += math.Abs(k.work[i] - k.pre[i])
	}
	k.health.AWTermMag = aw

	copy(out.U, k.work)

	if k.hooks.PostArbitrate != nil {
		k.hooks.PostArbitrate(k.pre, out.U)
	}

	k.kpi.Updates++
	k.kpi.LimitHits += sat.Hits + rateHits + jerkHits
	out.Health = k.health
	return nil
}

// skippedPeriods counts whole periods lost between two ticks, at least one.
func skippedPeriods(d, dt int64) uint64 {
	n := d/dt - 1
	if n < 1 {
		return 1
	}
	return uint64(n)
}

func maxAbsDiff(a, b []float64) float64 {
	m := 0.0
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

func (k *Kernel) Dims() Dims             { return k.dims }
func (k *Kernel) Dt() int64              { return k.dt }
func (k *Kernel) Alloc() arena.Allocator { return k.alloc }
func (k *Kernel) State() State           { return k.state }
func (k *Kernel) Health() *Health        { return &k.health }
func (k *Kernel) Kpi() *KpiCounters      { return &k.kpi }
func (k *Kernel) Started() bool          { return k.state == Started }
func (k *Kernel) Configurable() bool     { return k.state == Initialized || k.state == Stopped }

// Mode reports how the law's command reaches the plant. The kernel always
// drives it directly; the run metadata records the value.
func (k *Kernel) Mode() CommandMode { return Primary }
