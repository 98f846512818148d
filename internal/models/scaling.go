package models

import "github.com/san-kum/ctlkit/internal/core"

// AffineScale maps engineering units y = s*x + b per channel. A single
// element in S or B broadcasts to every channel.
type AffineScale struct {
	S []float64
	B []float64
}

func (a AffineScale) Validate(n int) error {
	sOK := len(a.S) == 1 || len(a.S) == n
	bOK := len(a.B) == 1 || len(a.B) == n
	if !sOK || !bOK {
		return core.ErrInvalidArg
	}
	return nil
}

func (a AffineScale) gain(i int) float64 {
	if len(a.S) == 1 {
		return a.S[0]
	}
	return a.S[i]
}

func (a AffineScale) bias(i int) float64 {
	if len(a.B) == 1 {
		return a.B[0]
	}
	return a.B[i]
}

func (a AffineScale) Apply(x, y []float64) error {
	if len(y) != len(x) {
		return core.ErrInvalidArg
	}
	if err := a.Validate(len(x)); err != nil {
		return err
	}
	for i := range x {
		y[i] = a.gain(i)*x[i] + a.bias(i)
	}
	return nil
}

// Invert recovers x from y. A zero gain on any channel is rejected before
// anything is written.
func (a AffineScale) Invert(y, x []float64) error {
	if len(x) != len(y) {
		return core.ErrInvalidArg
	}
	if err := a.Validate(len(y)); err != nil {
		return err
	}
	for i := range y {
		if a.gain(i) == 0 {
			return core.ErrInvalidArg
		}
	}
	for i := range y {
		x[i] = (y[i] - a.bias(i)) / a.gain(i)
	}
	return nil
}

// Identity reports whether the scale leaves values unchanged.
func (a AffineScale) Identity() bool {
	for _, s := range a.S {
		if s != 1 {
			return false
		}
	}
	for _, b := range a.B {
		if b != 0 {
			return false
		}
	}
	return true
}
