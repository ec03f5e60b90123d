package expfit

import (
	"context"
	"runtime"
	"sync"

	"expfit/domain/fit"
	apperrors "expfit/internal/errors"

	"golang.org/x/sync/semaphore"
)

// Series is one named sample set of a batch.
type Series struct {
	Name string    `yaml:"name"`
	X    []float64 `yaml:"x"`
	Y    []float64 `yaml:"y"`
}

// BatchResult pairs a series with its decision, or with the error that
// prevented one.
type BatchResult struct {
	Name     string
	Decision *fit.Decision
	Err      error
}

// EvaluateBatch evaluates every series with at most workers evaluations in
// flight (GOMAXPROCS when workers <= 0). Results keep the input order. A
// series that fails validation gets its error in Err and does not stop the
// others; once ctx is done the remaining series report ctx's error.
func (e *Evaluator) EvaluateBatch(ctx context.Context, series []Series, opts fit.Options, workers int) []BatchResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := semaphore.NewWeighted(int64(workers))
	results := make([]BatchResult, len(series))

	var wg sync.WaitGroup
	for i, s := range series {
		results[i].Name = s.Name
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = apperrors.Wrapf(err, "series %q not evaluated", s.Name)
			continue
		}

		wg.Add(1)
		go func(i int, s Series) {
			defer wg.Done()
			defer sem.Release(1)

			decision, err := e.Evaluate(ctx, s.X, s.Y, opts)
			if err != nil {
				results[i].Err = apperrors.Wrapf(err, "series %q", s.Name)
				return
			}
			results[i].Decision = decision
		}(i, s)
	}
	wg.Wait()

	e.logger.Debug("batch of %d series evaluated with %d workers", len(series), workers)
	return results
}
