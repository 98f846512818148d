// Package core provides the controller lifecycle kernel and its value types.
//
// A control law implements [Law] and is wrapped by a [Kernel], which runs
// the fixed tick pipeline:
//
//	Compute → PreClamp → Saturation → Rate → Jerk → AntiWindup → PostArbitrate
//
// Safety positions are filled by optional interfaces the law may implement:
//
//   - [SaturationStage]
//   - [RateStage]
//   - [JerkStage]
//   - [AntiWindupStage]
//
// Failures are reported as [Status] values boxed in pre-allocated errors
// ([ErrInvalidArg], [ErrNotReady], ...) so the tick path never allocates.
//
// # Usage
//
//	a := arena.New(4096)
//	k := core.NewKernel(law)
//	k.Init(core.Dims{NY: 1, NU: 1}, 1_000_000, a, core.Hooks{})
//	k.Start()
//	err := k.Update(&ctx, &res)
package core
