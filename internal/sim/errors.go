package sim

import (
	"errors"
	"fmt"

	"github.com/san-kum/ctlkit/internal/plant"
)

var (
	ErrInvalidConfig     = errors.New("sim: invalid config")
	ErrDiverged          = errors.New("sim: plant state diverged (NaN or Inf detected)")
	ErrDimensionMismatch = errors.New("sim: dimension mismatch between plant and config")
)

// TickError wraps a failure with the closed-loop tick it happened on.
type TickError struct {
	Tick    int
	Time    float64
	State   plant.State
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d (t=%.4fs): %v", e.Tick, e.Time, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
