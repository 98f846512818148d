package analysis

import (
	"math"
	"testing"
)

func TestPowerSpectrumFindsTone(t *testing.T) {
	const (
		n  = 1024
		dt = 0.001
	)
	x := make([]float64, n)
	for i := range x {
		x[i] = 3 + math.Sin(2*math.Pi*50*float64(i)*dt)
	}

	s, err := PowerSpectrum(x, dt)
	if err != nil {
		t.Fatalf("spectrum failed: %v", err)
	}
	if len(s.Freq) != n/2+1 {
		t.Fatalf("expected %d bins, got %d", n/2+1, len(s.Freq))
	}
	if math.Abs(s.Freq[len(s.Freq)-1]-500) > 1e-9 {
		t.Errorf("last bin should be Nyquist, got %g", s.Freq[len(s.Freq)-1])
	}
	if s.Power[0] > 1e-9 {
		t.Errorf("mean should be removed, DC power %g", s.Power[0])
	}

	f, p := s.Dominant()
	binWidth := 1 / (n * dt)
	if math.Abs(f-50) > binWidth {
		t.Errorf("expected peak near 50 Hz, got %g", f)
	}
	if p <= 0 {
		t.Errorf("expected positive peak power, got %g", p)
	}
}

func TestErrorSpectrum(t *testing.T) {
	r := make([]float64, 256)
	y := make([]float64, 256)
	for i := range y {
		r[i] = 1
		y[i] = 1 - 0.1*math.Cos(2*math.Pi*float64(i)/16)
	}

	s, err := ErrorSpectrum(r, y, 0.01)
	if err != nil {
		t.Fatalf("spectrum failed: %v", err)
	}
	// period 16 samples at 100 Hz
	if f, _ := s.Dominant(); math.Abs(f-6.25) > 1e-9 {
		t.Errorf("expected 6.25 Hz, got %g", f)
	}
}

func TestSpectrumRejects(t *testing.T) {
	tests := []struct {
		name string
		r, y []float64
		dt   float64
	}{
		{"short", []float64{1, 1}, []float64{0, 0}, 0.1},
		{"length mismatch", make([]float64, 8), make([]float64, 9), 0.1},
		{"zero dt", make([]float64, 8), make([]float64, 8), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ErrorSpectrum(tt.r, tt.y, tt.dt); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
