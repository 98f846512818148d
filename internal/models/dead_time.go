package models

import (
	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

// FifoDelay is an n-step dead-time line over a power-of-two ring buffer.
type FifoDelay struct {
	data []float64
	mask int
	widx int
	n    int
}

func NewFifoDelay(nSteps int, a arena.Allocator) (*FifoDelay, error) {
	if nSteps < 0 {
		return nil, core.ErrInvalidArg
	}
	size := nextPow2(nSteps + 1)
	data, ok := arena.Float64s(a, size)
	if !ok {
		return nil, core.ErrNoMem
	}
	return &FifoDelay{data: data, mask: size - 1, n: nSteps}, nil
}

func nextPow2(x int) int {
	p := 1
	for p < x {
		p <<= 1
	}
	return p
}

// Push stores x and returns the sample pushed n calls earlier, or zero
// while the line is still filling.
func (f *FifoDelay) Push(x float64) float64 {
	if f.n == 0 {
		return x
	}
	y := f.data[(f.widx-f.n)&f.mask]
	f.data[f.widx&f.mask] = x
	f.widx++
	return y
}

// Peek returns the k-th pending sample, oldest first, without consuming it.
func (f *FifoDelay) Peek(k int) (float64, bool) {
	if k < 0 || k >= f.n {
		return 0, false
	}
	return f.data[(f.widx-f.n+k)&f.mask], true
}

func (f *FifoDelay) Reset() {
	clear(f.data)
	f.widx = 0
}

func (f *FifoDelay) Delay() int { return f.n }
