package models

import (
	"testing"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

func TestFifoDelayRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"passthrough", 0},
		{"one step", 1},
		{"power of two", 4},
		{"odd", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFifoDelay(tt.n, arena.New(1024))
			if err != nil {
				t.Fatalf("NewFifoDelay(%d) failed: %v", tt.n, err)
			}
			for k := 0; k < 40; k++ {
				got := f.Push(float64(k + 1))
				want := 0.0
				if k >= tt.n {
					want = float64(k - tt.n + 1)
				}
				if got != want {
					t.Fatalf("push %d: expected %f, got %f", k, want, got)
				}
			}
		})
	}
}

func TestFifoDelayPeek(t *testing.T) {
	f, err := NewFifoDelay(3, arena.New(1024))
	if err != nil {
		t.Fatal(err)
	}
	f.Push(1)
	f.Push(2)
	f.Push(3)

	for k, want := range []float64{1, 2, 3} {
		got, ok := f.Peek(k)
		if !ok || got != want {
			t.Errorf("Peek(%d) = %f, %v; want %f", k, got, ok, want)
		}
	}
	if _, ok := f.Peek(3); ok {
		t.Error("expected Peek past the line to fail")
	}
	if got := f.Push(4); got != 1 {
		t.Errorf("expected oldest sample 1, got %f", got)
	}

	f.Reset()
	if got := f.Push(9); got != 0 {
		t.Errorf("expected zero after reset, got %f", got)
	}
}

func TestFifoDelayErrors(t *testing.T) {
	if _, err := NewFifoDelay(-1, arena.New(64)); err != core.ErrInvalidArg {
		t.Errorf("expected ErrInvalidArg, got %v", err)
	}
	if _, err := NewFifoDelay(16, arena.New(64)); err != core.ErrNoMem {
		t.Errorf("expected ErrNoMem, got %v", err)
	}
}

func TestAffineScaleRoundTrip(t *testing.T) {
	s := AffineScale{S: []float64{2, 0.5}, B: []float64{1}}
	x := []float64{3, -4}
	y := make([]float64, 2)
	if err := s.Apply(x, y); err != nil {
		t.Fatal(err)
	}
	if y[0] != 7 || y[1] != -1 {
		t.Errorf("expected [7 -1], got %v", y)
	}

	back := make([]float64, 2)
	if err := s.Invert(y, back); err != nil {
		t.Fatal(err)
	}
	for i := range x {
		if back[i] != x[i] {
			t.Errorf("channel %d: expected %f, got %f", i, x[i], back[i])
		}
	}
}

func TestAffineScaleValidation(t *testing.T) {
	tests := []struct {
		name  string
		scale AffineScale
		n     int
		ok    bool
	}{
		{"broadcast", AffineScale{S: []float64{1}, B: []float64{0}}, 3, true},
		{"per channel", AffineScale{S: []float64{1, 2, 3}, B: []float64{0, 0, 0}}, 3, true},
		{"wrong length", AffineScale{S: []float64{1, 2}, B: []float64{0}}, 3, false},
		{"missing bias", AffineScale{S: []float64{1}}, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scale.Validate(tt.n)
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestAffineScaleZeroGainInvert(t *testing.T) {
	s := AffineScale{S: []float64{1, 0}, B: []float64{0}}
	x := []float64{42, 42}
	if err := s.Invert([]float64{1, 1}, x); err != core.ErrInvalidArg {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
	if x[0] != 42 || x[1] != 42 {
		t.Errorf("expected output untouched, got %v", x)
	}
}

func TestAffineScaleIdentity(t *testing.T) {
	if !(AffineScale{S: []float64{1}, B: []float64{0}}).Identity() {
		t.Error("expected identity")
	}
	if (AffineScale{S: []float64{1}, B: []float64{0.1}}).Identity() {
		t.Error("expected non-identity")
	}
}
