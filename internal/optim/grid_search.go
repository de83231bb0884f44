// Package optim searches regulator gains by running step experiments.
package optim

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/hallservo/internal/tuner"
)

var ErrEmptyGrid = errors.New("optim: empty grid")

// Experiment runs one step response with the given gains.
type Experiment func(ctx context.Context, g tuner.Gains) (tuner.Result, error)

// Trial is one point of the grid and its outcome.
type Trial struct {
	Gains  tuner.Gains
	Result tuner.Result
}

// GridSearch tries every combination of the listed gains.
type GridSearch struct {
	Kp, Ki, Kd []float64
}

func NewGridSearch(kp, ki, kd []float64) *GridSearch {
	return &GridSearch{Kp: kp, Ki: ki, Kd: kd}
}

func (g *GridSearch) Size() int {
	return len(g.Kp) * len(g.Ki) * len(g.Kd)
}

// Search runs every point and returns the highest-scoring one. Ties keep
// the earlier point; the first experiment error ends the search.
func (g *GridSearch) Search(ctx context.Context, run Experiment, visit func(Trial)) (Trial, []Trial, error) {
	if g.Size() == 0 {
		return Trial{}, nil, ErrEmptyGrid
	}

	trials := make([]Trial, 0, g.Size())
	best := -1
	axes := [][]float64{g.Kp, g.Ki, g.Kd}
	err := g.searchRecursive(ctx, 0, make([]float64, len(axes)), axes, func(v []float64) error {
		gains := tuner.Gains{Kp: v[0], Ki: v[1], Kd: v[2]}
		res, err := run(ctx, gains)
		if err != nil {
			return fmt.Errorf("optim: %v: %w", gains, err)
		}
		t := Trial{Gains: gains, Result: res}
		trials = append(trials, t)
		if best < 0 || res.Score > trials[best].Result.Score {
			best = len(trials) - 1
		}
		if visit != nil {
			visit(t)
		}
		return nil
	})
	if best < 0 {
		return Trial{}, trials, err
	}
	return trials[best], trials, err
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current []float64, axes [][]float64, leaf func([]float64) error) error {
	if depth == len(axes) {
		return leaf(current)
	}
	for _, val := range axes[depth] {
		if err := ctx.Err(); err != nil {
			return err
		}
		current[depth] = val
		if err := g.searchRecursive(ctx, depth+1, current, axes, leaf); err != nil {
			return err
		}
	}
	return nil
}

// Around builds a grid of n points per gain spread ±spread around g.
func Around(g tuner.Gains, spread float64, n int) *GridSearch {
	axis := func(v float64) []float64 {
		if n <= 1 {
			return []float64{v}
		}
		out := make([]float64, n)
		lo, hi := v*(1-spread), v*(1+spread)
		for i := range out {
			out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		return out
	}
	return NewGridSearch(axis(g.Kp), axis(g.Ki), axis(g.Kd))
}
