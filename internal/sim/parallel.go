package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Factory builds an independent simulator for one ensemble member.
// Controllers hold per-run state, so members never share one.
type Factory func(seed int64) (*Simulator, error)

// Ensemble repeats a run under different noise seeds in parallel.
type Ensemble struct {
	build     Factory
	numRuns   int
	seedStart int64
}

func NewEnsemble(build Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart}
}

func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			s, err := e.build(cfgCopy.Seed)
			if err != nil {
				errs[idx] = fmt.Errorf("run %d: %w", idx, err)
				return
			}
			results[idx], errs[idx] = s.Run(ctx, cfgCopy)
		}(i)
	}

	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	return results, nil
}
