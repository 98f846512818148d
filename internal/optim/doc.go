// Package optim searches controller parameters by simulation. Each grid
// point is a full closed-loop run scored by one of the standard metrics.
package optim
