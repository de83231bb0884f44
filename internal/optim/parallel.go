package optim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/san-kum/hallservo/internal/tuner"
)

// Factory builds an independent experiment, typically on a fresh
// simulated rig, and the function that releases it.
type Factory func() (Experiment, func() error, error)

// points lists the grid in Search order.
func (g *GridSearch) points() []tuner.Gains {
	var out []tuner.Gains
	axes := [][]float64{g.Kp, g.Ki, g.Kd}
	g.searchRecursive(context.Background(), 0, make([]float64, len(axes)), axes, func(v []float64) error {
		out = append(out, tuner.Gains{Kp: v[0], Ki: v[1], Kd: v[2]})
		return nil
	})
	return out
}

// SearchParallel runs the grid on up to workers experiments at once. It
// returns what Search would: trials in grid order up to the first
// failure, and the first highest-scoring one.
func (g *GridSearch) SearchParallel(parent context.Context, factory Factory, workers int) (Trial, []Trial, error) {
	pts := g.points()
	if len(pts) == 0 {
		return Trial{}, nil, ErrEmptyGrid
	}
	workers = max(1, min(workers, len(pts)))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([]tuner.Result, len(pts))
	errs := make([]error, len(pts))
	ran := make([]bool, len(pts))
	setupErrs := make([]error, workers)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, release, err := factory()
			if err != nil {
				setupErrs[w] = err
				cancel()
				return
			}
			defer release()
			for idx := range jobs {
				results[idx], errs[idx] = run(ctx, pts[idx])
				ran[idx] = true
				if errs[idx] != nil {
					cancel()
				}
			}
		}()
	}

feed:
	for i := range pts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(setupErrs...); err != nil {
		return Trial{}, nil, err
	}

	// the failure that cancelled the others, if any
	var cause error
	for i, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			cause = fmt.Errorf("optim: %v: %w", pts[i], err)
			break
		}
	}

	trials := make([]Trial, 0, len(pts))
	best := -1
	for i, gains := range pts {
		if !ran[i] || errs[i] != nil {
			break
		}
		trials = append(trials, Trial{Gains: gains, Result: results[i]})
		if best < 0 || results[i].Score > trials[best].Result.Score {
			best = len(trials) - 1
		}
	}

	err := cause
	if err == nil && len(trials) < len(pts) {
		if err = parent.Err(); err == nil {
			err = context.Canceled
		}
	}
	if best < 0 {
		return Trial{}, trials, err
	}
	return trials[best], trials, err
}
