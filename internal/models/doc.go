// Package models provides allocation-free signal models used around a
// controller in closed loop.
//
//   - [FifoDelay]: fixed dead time as a ring buffer carved from an arena
//   - [AffineScale]: per-channel engineering unit conversion y = s*x + b
package models
