package pid_test

import (
	"math"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/control/pid"
	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/safety"
)

const dt = int64(1_000_000)

var _ = Describe("PID", func() {
	var (
		p   *pid.PID
		u   []float64
		ctx core.UpdateContext
	)

	start := func(nu int, cfg pid.Config, hooks core.Hooks) {
		p = pid.New()
		Expect(p.Init(core.Dims{NY: nu, NU: nu}, dt, arena.New(1<<14), hooks)).To(Succeed())
		Expect(p.Configure(cfg)).To(Succeed())
		Expect(p.Start()).To(Succeed())
		u = make([]float64, nu)
		ctx = core.UpdateContext{
			Plant: core.PlantState{Y: make([]float64, nu), ValidBits: core.ChannelMask(nu)},
			SP:    core.Setpoint{R: make([]float64, nu)},
		}
	}

	tick := func(t int64) error {
		ctx.Plant.T = t
		return p.Update(&ctx, &core.Result{U: u})
	}

	Describe("step response", func() {
		It("adds one tick of integration to the proportional step", func() {
			start(1, pid.Config{Kp: []float64{2}, Ki: []float64{1}}, core.Hooks{})

			Expect(tick(0)).To(Succeed())
			u0 := u[0]
			Expect(u0).To(BeZero())

			ctx.SP.R[0] = 1
			Expect(tick(dt)).To(Succeed())
			Expect(u[0] - u0).To(BeNumerically("~", 2.001, 1e-9))
			Expect(p.Integrator(0)).To(BeNumerically("~", 0.001, 1e-12))
		})

		It("does not kick on a setpoint step through the derivative", func() {
			start(1, pid.Config{Kd: []float64{3}, TauF: []float64{0.01}}, core.Hooks{})

			Expect(tick(0)).To(Succeed())
			ctx.SP.R[0] = 5
			Expect(tick(dt)).To(Succeed())
			Expect(u[0]).To(BeZero())
		})
	})

	Describe("anti-windup", func() {
		var uPre, uOut float64
		hooks := core.Hooks{PostArbitrate: func(pre, out []float64) {
			uPre, uOut = pre[0], out[0]
		}}

		saturated := func(mode safety.AWMode) pid.Config {
			return pid.Config{
				Kp:     []float64{5},
				Ki:     []float64{2},
				Umax:   []float64{0.1},
				AWMode: mode,
				Kt:     1,
			}
		}

		It("reports the clamp as anti-windup magnitude", func() {
			start(1, saturated(safety.BackCalc), hooks)
			ctx.SP.R[0] = 10

			Expect(tick(0)).To(Succeed())
			Expect(u[0]).To(Equal(0.1))
			Expect(uPre).To(BeNumerically("~", 50.02, 1e-9))
			Expect(p.Health().AWTermMag).To(BeNumerically("~", 49.92, 1e-6))
			Expect(p.Health().AWTermMag).To(BeNumerically("~", math.Abs(uOut-uPre), 1e-12))
			Expect(p.Health().SaturationPct).To(Equal(100.0))
		})

		It("back-calculates the integrator toward the clamp", func() {
			start(1, saturated(safety.BackCalc), hooks)
			ctx.SP.R[0] = 10

			Expect(tick(0)).To(Succeed())
			Expect(p.Integrator(0)).To(BeNumerically("~", 0.02+(0.1-50.02), 1e-9))
		})

		It("freezes the integrator while saturated in conditional mode", func() {
			start(1, saturated(safety.Conditional), hooks)
			ctx.SP.R[0] = 10

			for k := int64(0); k < 5; k++ {
				Expect(tick(k * dt)).To(Succeed())
			}
			Expect(p.Integrator(0)).To(BeZero())
		})

		It("integrates without correction when off", func() {
			start(1, saturated(safety.Off), hooks)
			ctx.SP.R[0] = 10

			Expect(tick(0)).To(Succeed())
			Expect(p.Integrator(0)).To(BeNumerically("~", 0.02, 1e-12))
		})
	})

	Describe("gain scheduling", func() {
		It("keeps the output change small across nearby operating points", func() {
			start(1, pid.Config{Schedule: pid.Schedule{
				BP:       []float64{0, 1},
				KpTab:    []float64{1, 3},
				KiTab:    []float64{0, 0},
				KdTab:    []float64{0, 0},
				BetaTab:  []float64{1, 1},
				GammaTab: []float64{0, 0},
			}}, core.Hooks{})
			ctx.SP.R[0] = 1

			kp, _, _, ok := p.ScheduledGains(0.2)
			Expect(ok).To(BeTrue())
			Expect(kp).To(BeNumerically("~", 1.4, 1e-12))

			ctx.Plant.Y[0] = 0.2
			Expect(tick(0)).To(Succeed())
			u1 := u[0]
			Expect(u1).To(BeNumerically("~", 1.12, 1e-9))

			ctx.Plant.Y[0] = 0.3
			Expect(tick(dt)).To(Succeed())
			Expect(u[0]).To(BeNumerically("~", 1.12, 1e-9))
			Expect(math.Abs(u[0] - u1)).To(BeNumerically("<=", 0.14))
		})
	})

	Describe("channel validity", func() {
		It("rejects a tick with a missing channel and leaves the output alone", func() {
			start(2, pid.Config{Kp: []float64{1}}, core.Hooks{})
			ctx.SP.R[0], ctx.SP.R[1] = 1, 1
			ctx.Plant.ValidBits = 0x1

			Expect(tick(0)).To(MatchError(core.ErrPreconditionFail))
			Expect(u).To(Equal([]float64{0, 0}))
			Expect(p.Kpi().Updates).To(BeZero())

			ctx.Plant.ValidBits = 0x3
			Expect(tick(dt)).To(Succeed())
			Expect(u).To(Equal([]float64{1, 1}))
		})
	})

	Describe("watchdog and fallback", func() {
		cfg := pid.Config{
			Kp:               []float64{1},
			MissThreshold:    2,
			SafeU:            []float64{0},
			FallbackRampRate: 10,
			FallbackOnTrip:   true,
		}

		BeforeEach(func() {
			start(1, cfg, core.Hooks{})
			ctx.SP.R[0] = 1
			Expect(tick(0)).To(Succeed())
			Expect(tick(dt)).To(Succeed())
			Expect(u[0]).To(Equal(1.0))
		})

		It("ramps toward the safe command after the watchdog trips", func() {
			Expect(tick(5 * dt)).To(Succeed())
			Expect(p.FallbackEngaged()).To(BeFalse())

			Expect(tick(10 * dt)).To(Succeed())
			Expect(p.WatchdogTripped()).To(BeTrue())
			Expect(p.FallbackEngaged()).To(BeTrue())
			Expect(u[0]).To(BeNumerically("~", 0.99, 1e-12))
			Expect(p.Health().FallbackActive).To(BeTrue())
			Expect(p.Kpi().WatchdogTrips).To(Equal(uint64(1)))
			Expect(p.Kpi().FallbackEntries).To(Equal(uint64(1)))

			Expect(tick(11 * dt)).To(Succeed())
			Expect(u[0]).To(BeNumerically("~", 0.98, 1e-12))
			Expect(p.Kpi().WatchdogTrips).To(Equal(uint64(1)))
		})

		It("hands control back on disengage", func() {
			Expect(p.EngageFallback()).To(Succeed())
			Expect(tick(2 * dt)).To(Succeed())
			Expect(u[0]).To(BeNumerically("~", 0.99, 1e-12))

			p.DisengageFallback()
			Expect(p.Health().FallbackActive).To(BeFalse())
			Expect(tick(3 * dt)).To(Succeed())
			Expect(u[0]).To(Equal(1.0))
		})

		It("clears the trip on restart", func() {
			Expect(tick(5 * dt)).To(Succeed())
			Expect(tick(10 * dt)).To(Succeed())
			Expect(p.WatchdogTripped()).To(BeTrue())

			Expect(p.Stop()).To(Succeed())
			Expect(p.Start()).To(Succeed())
			Expect(p.WatchdogTripped()).To(BeFalse())
			Expect(p.FallbackEngaged()).To(BeFalse())
			Expect(p.Health().FallbackActive).To(BeFalse())
		})
	})

	Describe("bumpless transfer", func() {
		It("reproduces the held command exactly in the simple case", func() {
			start(1, pid.Config{Kp: []float64{2}, DuMax: []float64{1}}, core.Hooks{})

			Expect(p.AlignBumpless([]float64{3.5}, []float64{1}, []float64{0.5})).To(Succeed())
			ctx.SP.R[0], ctx.Plant.Y[0] = 1, 0.5
			Expect(tick(0)).To(Succeed())
			Expect(u[0]).To(Equal(3.5))
			Expect(p.Health().LastRateClipMag).To(BeZero())
		})

		It("matches the held command after running", func() {
			start(1, pid.Config{
				Kp:      []float64{1.3},
				Ki:      []float64{0.7},
				Kd:      []float64{0.05},
				TauF:    []float64{0.01},
				Beta:    []float64{0.8},
				UffBias: []float64{0.1},
			}, core.Hooks{})

			for k := int64(0); k < 50; k++ {
				ctx.SP.R[0] = 1
				ctx.Plant.Y[0] = math.Sin(float64(k) * 0.1)
				Expect(tick(k * dt)).To(Succeed())
			}

			hold := 0.123456789
			Expect(p.AlignBumpless([]float64{hold}, []float64{0.77}, []float64{0.31})).To(Succeed())
			ctx.SP.R[0], ctx.Plant.Y[0] = 0.77, 0.31
			Expect(tick(50 * dt)).To(Succeed())
			Expect(u[0]).To(Equal(hold))
		})

		It("reproduces the held command bit for bit across random gains and states", func() {
			rng := rand.New(rand.NewPCG(7, 11))
			span := func(lo, hi float64) float64 { return lo + (hi-lo)*rng.Float64() }

			for trial := 0; trial < 500; trial++ {
				const nu = 2
				cfg := pid.Config{
					Kp:      []float64{span(-5, 5), span(0, 20)},
					Ki:      []float64{span(0, 10), span(0, 100)},
					Kd:      []float64{span(0, 1), span(0, 0.2)},
					TauF:    []float64{span(0.001, 0.1), span(0.001, 0.1)},
					Beta:    []float64{span(0, 1), span(0, 1)},
					UffBias: []float64{span(-1, 1), span(-10, 10)},
				}
				start(nu, cfg, core.Hooks{})

				steps := int64(rng.IntN(40))
				for k := int64(0); k < steps; k++ {
					for i := 0; i < nu; i++ {
						ctx.SP.R[i] = span(-3, 3)
						ctx.Plant.Y[i] = span(-3, 3)
					}
					Expect(tick(k * dt)).To(Succeed())
				}

				hold := []float64{span(-100, 100), span(-1e-3, 1e-3)}
				r0 := []float64{span(-50, 50), span(-1, 1)}
				y0 := []float64{span(-50, 50), span(-1, 1)}
				Expect(p.AlignBumpless(hold, r0, y0)).To(Succeed())

				copy(ctx.SP.R, r0)
				copy(ctx.Plant.Y, y0)
				Expect(tick(steps * dt)).To(Succeed())
				Expect(u).To(Equal(hold), "trial %d, config %+v", trial, cfg)
			}
		})

		It("holds only the first matching tick and keeps the law running", func() {
			start(1, pid.Config{Kp: []float64{1.1}, Ki: []float64{3}}, core.Hooks{})

			hold := 0.7
			Expect(p.AlignBumpless([]float64{hold}, []float64{1}, []float64{0.2})).To(Succeed())
			ctx.SP.R[0], ctx.Plant.Y[0] = 1, 0.2
			Expect(tick(0)).To(Succeed())
			Expect(u[0]).To(Equal(hold))

			Expect(tick(dt)).To(Succeed())
			Expect(u[0]).To(BeNumerically(">", hold), "integral action continues from the hold")
			Expect(u[0]).To(BeNumerically("~", hold, 0.01))
		})

		It("runs the law when the samples moved off the alignment point", func() {
			start(1, pid.Config{Kp: []float64{2}}, core.Hooks{})

			Expect(p.AlignBumpless([]float64{3.5}, []float64{1}, []float64{0.5})).To(Succeed())
			ctx.SP.R[0], ctx.Plant.Y[0] = 1, 0.25
			Expect(tick(0)).To(Succeed())
			Expect(u[0]).To(BeNumerically("~", 4.0, 1e-12))
		})

		It("rejects mismatched lengths", func() {
			start(2, pid.Config{Kp: []float64{1}}, core.Hooks{})
			err := p.AlignBumpless([]float64{1}, []float64{0, 0}, []float64{0, 0})
			Expect(err).To(MatchError(core.ErrInvalidArg))
		})
	})

	Describe("reconfiguration", func() {
		It("requires a stop", func() {
			start(1, pid.Config{Kp: []float64{1}}, core.Hooks{})
			Expect(p.Configure(pid.Config{Kp: []float64{2}})).To(MatchError(core.ErrPreconditionFail))

			Expect(p.Stop()).To(Succeed())
			Expect(p.Configure(pid.Config{Kp: []float64{2}})).To(Succeed())
			Expect(p.Start()).To(Succeed())

			ctx.SP.R[0] = 1
			Expect(tick(0)).To(Succeed())
			Expect(u[0]).To(Equal(2.0))
		})
	})
})
