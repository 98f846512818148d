package filter

import (
	"math"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

// Biquad is one second-order section:
// H(z) = (b0 + b1 z^-1 + b2 z^-2) / (1 + a1 z^-1 + a2 z^-2).
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// stabilityMargin bounds pole magnitudes strictly inside the unit circle.
const stabilityMargin = 1 - 1e-7

const denormEpsilon = 1e-300

// layout of one section in the state block
const (
	offB0 = iota
	offB1
	offB2
	offA1
	offA2
	offZ1
	offZ2
	sectionWidth
)

// IIR is a cascade of biquads in direct form II transposed. Coefficients
// and delay state live in a single arena block.
type IIR struct {
	mem   []float64
	nsec  int
	flush bool
}

// NewIIR validates every section and rejects poles on or outside the
// stability margin before touching the arena.
func NewIIR(sos []Biquad, a arena.Allocator, flushDenormals bool) (*IIR, error) {
	if len(sos) == 0 {
		return nil, core.ErrInvalidArg
	}
	for _, s := range sos {
		if !s.finite() || !s.Stable() {
			return nil, core.ErrInvalidArg
		}
	}
	mem, ok := arena.Float64s(a, sectionWidth*len(sos))
	if !ok {
		return nil, core.ErrNoMem
	}
	for i, s := range sos {
		sec := mem[i*sectionWidth : (i+1)*sectionWidth]
		sec[offB0], sec[offB1], sec[offB2] = s.B0, s.B1, s.B2
		sec[offA1], sec[offA2] = s.A1, s.A2
	}
	return &IIR{mem: mem, nsec: len(sos), flush: flushDenormals}, nil
}

func (s Biquad) finite() bool {
	for _, v := range [...]float64{s.B0, s.B1, s.B2, s.A1, s.A2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Stable reports whether both poles of z^2 + a1 z + a2 lie inside the
// stability margin.
func (s Biquad) Stable() bool {
	disc := s.A1*s.A1 - 4*s.A2
	if disc >= 0 {
		sq := math.Sqrt(disc)
		r1 := math.Abs((-s.A1 + sq) / 2)
		r2 := math.Abs((-s.A1 - sq) / 2)
		return r1 < stabilityMargin && r2 < stabilityMargin
	}
	// complex pair: |r|^2 = a2
	return math.Sqrt(s.A2) < stabilityMargin
}

func (f *IIR) Step(x float64) float64 {
	y := x
	for i := 0; i < f.nsec; i++ {
		sec := f.mem[i*sectionWidth : (i+1)*sectionWidth : (i+1)*sectionWidth]
		out := sec[offB0]*y + sec[offZ1]
		z1 := sec[offB1]*y - sec[offA1]*out + sec[offZ2]
		z2 := sec[offB2]*y - sec[offA2]*out
		if f.flush {
			if math.Abs(z1) < denormEpsilon {
				z1 = 0
			}
			if math.Abs(z2) < denormEpsilon {
				z2 = 0
			}
			if math.IsNaN(out) || math.IsInf(out, 0) {
				out = 0
			}
		}
		sec[offZ1], sec[offZ2] = z1, z2
		y = out
	}
	return y
}

func (f *IIR) Reset() {
	for i := 0; i < f.nsec; i++ {
		f.mem[i*sectionWidth+offZ1] = 0
		f.mem[i*sectionWidth+offZ2] = 0
	}
}

func (f *IIR) SetFlushDenormals(on bool) { f.flush = on }
func (f *IIR) Sections() int             { return f.nsec }

// LowPass returns a single-section Butterworth low-pass with cutoff fc
// (Hz) for sample rate fs (Hz), designed with the bilinear transform.
func LowPass(fc, fs float64) Biquad {
	k := math.Tan(math.Pi * fc / fs)
	q := math.Sqrt2 / 2
	norm := 1 / (1 + k/q + k*k)
	b0 := k * k * norm
	return Biquad{
		B0: b0,
		B1: 2 * b0,
		B2: b0,
		A1: 2 * (k*k - 1) * norm,
		A2: (1 - k/q + k*k) * norm,
	}
}
