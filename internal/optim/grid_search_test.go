package optim

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/san-kum/hallservo/internal/tuner"
)

func TestSearchPicksHighestScore(t *testing.T) {
	g := NewGridSearch([]float64{1, 2, 3}, []float64{0, 0.5}, []float64{0.1})
	run := func(_ context.Context, gains tuner.Gains) (tuner.Result, error) {
		score := 0
		if gains.Kp == 2 {
			score = 70
		}
		if gains.Ki == 0.5 {
			score += 10
		}
		return tuner.Result{Gains: gains, Score: score}, nil
	}

	var visited int
	best, trials, err := g.Search(context.Background(), run, func(Trial) { visited++ })
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 6 || visited != 6 {
		t.Fatalf("ran %d trials, visited %d", len(trials), visited)
	}
	want := tuner.Gains{Kp: 2, Ki: 0.5, Kd: 0.1}
	if best.Gains != want || best.Result.Score != 80 {
		t.Errorf("best = %+v", best)
	}
}

func TestSearchKeepsFirstOnTie(t *testing.T) {
	g := NewGridSearch([]float64{1, 2}, []float64{0}, []float64{0})
	run := func(_ context.Context, gains tuner.Gains) (tuner.Result, error) {
		return tuner.Result{Score: 50}, nil
	}
	best, _, err := g.Search(context.Background(), run, nil)
	if err != nil {
		t.Fatal(err)
	}
	if best.Gains.Kp != 1 {
		t.Errorf("best Kp = %v, want 1", best.Gains.Kp)
	}
}

func TestSearchStopsOnError(t *testing.T) {
	boom := errors.New("stall")
	g := NewGridSearch([]float64{1, 2, 3}, []float64{0}, []float64{0})
	calls := 0
	run := func(_ context.Context, gains tuner.Gains) (tuner.Result, error) {
		calls++
		if gains.Kp == 2 {
			return tuner.Result{}, boom
		}
		return tuner.Result{Score: 10}, nil
	}
	best, trials, err := g.Search(context.Background(), run, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 || len(trials) != 1 || best.Gains.Kp != 1 {
		t.Errorf("calls=%d trials=%d best=%+v", calls, len(trials), best)
	}
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGridSearch([]float64{1}, []float64{0}, []float64{0})
	_, _, err := g.Search(ctx, func(context.Context, tuner.Gains) (tuner.Result, error) {
		t.Fatal("ran after cancel")
		return tuner.Result{}, nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestEmptyGrid(t *testing.T) {
	_, _, err := NewGridSearch(nil, []float64{1}, []float64{1}).Search(context.Background(), nil, nil)
	if !errors.Is(err, ErrEmptyGrid) {
		t.Errorf("err = %v", err)
	}
}

func TestAround(t *testing.T) {
	g := Around(tuner.Gains{Kp: 2, Ki: 0.4, Kd: 0.1}, 0.5, 3)
	if g.Size() != 27 {
		t.Fatalf("size = %d", g.Size())
	}
	wantKp := []float64{1, 2, 3}
	for i, v := range g.Kp {
		if v != wantKp[i] {
			t.Errorf("Kp[%d] = %v, want %v", i, v, wantKp[i])
		}
	}
	if g := Around(tuner.Gains{Kp: 2}, 0.5, 1); g.Size() != 1 || g.Kp[0] != 2 {
		t.Errorf("single point grid = %+v", g)
	}
}

func TestSearchParallelMatchesSearch(t *testing.T) {
	g := NewGridSearch([]float64{1, 2, 3, 4}, []float64{0, 0.5, 1}, []float64{0, 0.1})
	score := func(gains tuner.Gains) int {
		return int(gains.Kp*10) - int(gains.Ki*20) + int(gains.Kd*100)
	}
	run := func(_ context.Context, gains tuner.Gains) (tuner.Result, error) {
		return tuner.Result{Gains: gains, Score: score(gains)}, nil
	}

	wantBest, wantTrials, err := g.Search(context.Background(), run, nil)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	built, released := 0, 0
	factory := func() (Experiment, func() error, error) {
		mu.Lock()
		built++
		mu.Unlock()
		return run, func() error {
			mu.Lock()
			released++
			mu.Unlock()
			return nil
		}, nil
	}
	best, trials, err := g.SearchParallel(context.Background(), factory, 4)
	if err != nil {
		t.Fatal(err)
	}
	if best.Gains != wantBest.Gains || best.Result.Score != wantBest.Result.Score {
		t.Errorf("best = %+v, want %+v", best, wantBest)
	}
	if len(trials) != len(wantTrials) {
		t.Fatalf("trials = %d, want %d", len(trials), len(wantTrials))
	}
	for i := range trials {
		if trials[i].Gains != wantTrials[i].Gains {
			t.Errorf("trial %d = %v, want %v", i, trials[i].Gains, wantTrials[i].Gains)
		}
	}
	if built != 4 || released != 4 {
		t.Errorf("built %d released %d", built, released)
	}
}

func TestSearchParallelReportsFailure(t *testing.T) {
	boom := errors.New("stall")
	g := NewGridSearch([]float64{1, 2, 3}, []float64{0}, []float64{0})
	factory := func() (Experiment, func() error, error) {
		return func(ctx context.Context, gains tuner.Gains) (tuner.Result, error) {
			if gains.Kp == 2 {
				return tuner.Result{}, boom
			}
			return tuner.Result{Score: 10}, ctx.Err()
		}, func() error { return nil }, nil
	}
	_, _, err := g.SearchParallel(context.Background(), factory, 1)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestSearchParallelSetupError(t *testing.T) {
	boom := errors.New("no rig")
	g := NewGridSearch([]float64{1, 2}, []float64{0}, []float64{0})
	_, _, err := g.SearchParallel(context.Background(), func() (Experiment, func() error, error) {
		return nil, nil, boom
	}, 2)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
