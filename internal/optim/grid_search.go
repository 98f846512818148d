package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/edaniels/golog"

	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/experiment"
)

var (
	ErrNoCandidate   = errors.New("optim: no candidate completed")
	ErrUnknownMetric = errors.New("optim: unknown metric")
)

// Axis is one searched parameter and the values it takes.
type Axis struct {
	Name   string
	Values []float64
}

// Best is the winning grid point.
type Best struct {
	Params    map[string]float64
	Value     float64
	Evaluated int
	Failed    int
}

// GridSearch runs the closed loop at every point of a parameter grid and
// keeps the point with the smallest metric. Candidates that fail to
// configure or diverge are counted and skipped.
type GridSearch struct {
	axes   []Axis
	logger golog.Logger
}

func NewGridSearch(logger golog.Logger, axes ...Axis) *GridSearch {
	return &GridSearch{axes: axes, logger: logger}
}

func (g *GridSearch) Size() int {
	n := 1
	for _, a := range g.axes {
		n *= len(a.Values)
	}
	return n
}

func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string) (*Best, error) {
	trial := *base
	for _, a := range g.axes {
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("optim: axis %s has no values", a.Name)
		}
		if err := trial.Set(a.Name, a.Values[0]); err != nil {
			return nil, fmt.Errorf("optim: %w", err)
		}
	}

	best := &Best{Value: math.Inf(1)}
	if err := g.searchRecursive(ctx, 0, base, make(map[string]float64), metricName, best); err != nil {
		return nil, err
	}
	if best.Params == nil {
		return best, fmt.Errorf("%w: %d of %d failed", ErrNoCandidate, best.Failed, best.Evaluated)
	}
	return best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	base *config.Config,
	current map[string]float64,
	metricName string,
	best *Best,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.axes) {
		best.Evaluated++
		val, err := g.evaluate(ctx, base, current, metricName)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrUnknownMetric) {
				return err
			}
			best.Failed++
			g.logger.Debugf("candidate %v rejected: %v", current, err)
			return nil
		}
		if val < best.Value {
			best.Value = val
			best.Params = maps.Clone(current)
		}
		return nil
	}

	axis := g.axes[depth]
	for _, val := range axis.Values {
		current[axis.Name] = val
		if err := g.searchRecursive(ctx, depth+1, base, current, metricName, best); err != nil {
			return err
		}
	}
	delete(current, axis.Name)
	return nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, params map[string]float64, metricName string) (float64, error) {
	cfg := *base
	for name, v := range params {
		if err := cfg.Set(name, v); err != nil {
			return 0, err
		}
	}

	exp, err := experiment.New("grid", &cfg, g.logger)
	if err != nil {
		return 0, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}

	val, ok := result.Metrics[metricName]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownMetric, metricName)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("optim: metric %s is %v", metricName, val)
	}
	return val, nil
}
