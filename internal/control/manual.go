package control

import (
	"fmt"

	"github.com/san-kum/ctlkit/internal/core"
)

// Manual drives the plant open loop with an operator-set command. An
// optional step switches to a second command once the tick timestamp
// reaches it, which is what bump tests need.
type Manual struct {
	u      []float64
	next   []float64
	stepAt int64
	kpi    core.KpiCounters
}

func NewManual(u []float64) *Manual {
	m := &Manual{u: make([]float64, len(u))}
	copy(m.u, u)
	return m
}

// SetControl replaces the held command immediately.
func (m *Manual) SetControl(u []float64) error {
	if len(u) != len(m.u) {
		return fmt.Errorf("%w: %d values for %d channels", core.ErrInvalidArg, len(u), len(m.u))
	}
	copy(m.u, u)
	return nil
}

// StepTo schedules a switch to u at time at (ns).
func (m *Manual) StepTo(at int64, u []float64) error {
	if len(u) != len(m.u) {
		return fmt.Errorf("%w: %d values for %d channels", core.ErrInvalidArg, len(u), len(m.u))
	}
	m.next = make([]float64, len(u))
	copy(m.next, u)
	m.stepAt = at
	return nil
}

func (m *Manual) Update(ctx *core.UpdateContext, out *core.Result) error {
	if len(out.U) != len(m.u) {
		return core.ErrInvalidArg
	}
	if m.next != nil && ctx.Plant.T >= m.stepAt {
		copy(m.u, m.next)
		m.next = nil
	}
	copy(out.U, m.u)
	out.Health = core.Health{}
	m.kpi.Updates++
	return nil
}

func (m *Manual) Kpi() *core.KpiCounters { return &m.kpi }
