package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

var ErrShortSignal = errors.New("analysis: signal too short for a spectrum")

// Spectrum is a one-sided power spectrum. Freq is in Hz.
type Spectrum struct {
	Freq  []float64
	Power []float64
}

// PowerSpectrum removes the mean of x, sampled every dt seconds, and
// returns |X_k|^2 / n for k = 0..n/2.
func PowerSpectrum(x []float64, dt float64) (*Spectrum, error) {
	if len(x) < 4 {
		return nil, fmt.Errorf("%w: %d samples", ErrShortSignal, len(x))
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("analysis: sample period must be positive, got %g", dt)
	}

	n := len(x)
	mean := stat.Mean(x, nil)
	centered := make([]float64, n)
	for i, v := range x {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)

	s := &Spectrum{
		Freq:  make([]float64, len(coeff)),
		Power: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		s.Freq[i] = fft.Freq(i) / dt
		s.Power[i] = (real(c)*real(c) + imag(c)*imag(c)) / float64(n)
	}
	return s, nil
}

// ErrorSpectrum is the power spectrum of the tracking error r - y.
func ErrorSpectrum(r, y []float64, dt float64) (*Spectrum, error) {
	if len(r) != len(y) {
		return nil, fmt.Errorf("analysis: %d setpoints for %d measurements", len(r), len(y))
	}
	e := make([]float64, len(y))
	for i := range y {
		e[i] = r[i] - y[i]
	}
	return PowerSpectrum(e, dt)
}

// Dominant returns the strongest non-DC component. A loop ringing or
// limit-cycling shows up as a sharp peak here.
func (s *Spectrum) Dominant() (freq, power float64) {
	for i := 1; i < len(s.Power); i++ {
		if s.Power[i] > power {
			freq, power = s.Freq[i], s.Power[i]
		}
	}
	return freq, power
}
