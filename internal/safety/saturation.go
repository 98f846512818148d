package safety

import "github.com/san-kum/ctlkit/internal/core"

type SatReport struct {
	Hits          uint64
	SaturationPct float64
}

// Saturation clamps every channel to [umin, umax]. It is memoryless.
type Saturation struct {
	umin []float64
	umax []float64
}

// NewSaturation takes per-channel bounds; a single element broadcasts.
func NewSaturation(umin, umax []float64) (*Saturation, error) {
	if len(umin) == 0 || len(umax) == 0 {
		return nil, core.ErrInvalidArg
	}
	if len(umin) > 1 && len(umax) > 1 && len(umin) != len(umax) {
		return nil, core.ErrInvalidArg
	}
	n := max(len(umin), len(umax))
	for i := 0; i < n; i++ {
		if at(umin, i) > at(umax, i) {
			return nil, core.ErrInvalidArg
		}
	}
	return &Saturation{umin: umin, umax: umax}, nil
}

// NewUniformSaturation applies one bound pair to every channel.
func NewUniformSaturation(lo, hi float64) (*Saturation, error) {
	return NewSaturation([]float64{lo}, []float64{hi})
}

// Fits reports whether the bounds can serve n channels.
func (s *Saturation) Fits(n int) bool {
	return broadcastOK(s.umin, n) && broadcastOK(s.umax, n)
}

func (s *Saturation) Apply(u []float64) SatReport {
	var rep SatReport
	for i := range u {
		lo, hi := at(s.umin, i), at(s.umax, i)
		if u[i] < lo {
			u[i] = lo
			rep.Hits++
		} else if u[i] > hi {
			u[i] = hi
			rep.Hits++
		}
	}
	if len(u) > 0 {
		rep.SaturationPct = 100 * float64(rep.Hits) / float64(len(u))
	}
	return rep
}
