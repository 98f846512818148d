// Package safety provides the bounded-rate stages that sit between a control
// law and the actuator.
//
// Kernel pipeline stages:
//
//   - [Saturation]: per-channel or broadcast clamp
//   - [RateLimiter]: first-difference bound
//   - [JerkLimiter]: first and second difference bound
//   - [AWMode]: anti-windup policy selector
//
// Supervisory helpers:
//
//   - [Watchdog]: tick-interval monitor with a latching trip
//   - [FallbackPolicy]: bounded ramp toward a safe command
//   - [Interlocks]: required-condition bitmask
//   - [BumplessMixer]: crossfade between a held and a new command
//
// Stages that keep memory carve it from an [arena.Allocator] at
// construction and never allocate afterwards.
package safety
