// Package filter provides arena-backed discrete filters for measurement
// conditioning.
//
//   - [IIR]: biquad cascade in direct form II transposed
//   - [LowPass]: Butterworth section design helper
package filter
