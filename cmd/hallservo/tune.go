package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hallservo/internal/config"
	"github.com/san-kum/hallservo/internal/optim"
	"github.com/san-kum/hallservo/internal/storage"
	"github.com/san-kum/hallservo/internal/tuner"
)

// session is a rig with a tuner whose runs are saved to the store.
type session struct {
	cfg   *config.Config
	rig   *rig
	tun   *tuner.Tuner
	store *storage.Store
	kind  string
}

func openSession(cmd *cobra.Command, kind string) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st := storage.New(cfg.Storage.Dir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	r, err := openRig(cmd.Context(), cfg, false)
	if err != nil {
		return nil, err
	}
	tun, err := r.tuner(cfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	s := &session{cfg: cfg, rig: r, tun: tun, store: st, kind: kind}
	tun.SetObserver(newProgress(r.clk, cfg.Debug.PrintInterval, s.save))
	return s, nil
}

func (s *session) save(run tuner.Run, res tuner.Result, samples []tuner.Sample) {
	id, err := s.store.Save(s.kind, run.Name, s.rig.backend, run.Step.Duration, res, samples)
	if err != nil {
		logger.Warn("run not saved", "name", run.Name, "err", err)
		return
	}
	logger.Debug("saved", "run", id)
}

func (s *session) Close() error { return s.rig.Close() }

func runTune(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, "tune")
	if err != nil {
		return err
	}
	defer s.Close()

	rep, err := s.tun.AutoTune(cmd.Context())
	if err != nil {
		return err
	}

	if rep.CriticalFound {
		fmt.Printf("critical gain: %.2f\n", rep.CriticalGain)
	} else {
		fmt.Printf("critical gain: not found, using %.2f\n", rep.CriticalGain)
	}
	fmt.Printf("ziegler-nichols seed: %s\n\n", rep.Seed)
	printCandidates(rep.Candidates)

	fmt.Printf("\nbest: %s (%s)\n", rep.Best.Name, rep.Best.Gains)
	fmt.Printf("\nconfirmation at %.0f°:\n", rep.Confirmation.Target)
	printResult(rep.Confirmation)
	printSuggestions(rep.Suggestions)

	fmt.Printf("\nconfig snippet:\npid:\n  kp: %.3f\n  ki: %.3f\n  kd: %.3f\n", rep.Best.Gains.Kp, rep.Best.Gains.Ki, rep.Best.Gains.Kd)
	return nil
}

func runStep(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, "step")
	if err != nil {
		return err
	}
	defer s.Close()

	res, samples, err := s.tun.RunStep(cmd.Context(), gains(s.cfg), stepSize, duration)
	if err != nil {
		return err
	}
	fmt.Printf("gains: %s\nsamples: %d\n\n", res.Gains, len(samples))
	printResult(res)
	printSuggestions(tuner.Suggest(res))
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, "compare")
	if err != nil {
		return err
	}
	defer s.Close()

	var candidates []tuner.Candidate
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		candidates = append(candidates, tuner.Candidate{
			Name:  name,
			Gains: tuner.Gains{Kp: p.PID.Kp, Ki: p.PID.Ki, Kd: p.PID.Kd},
		})
	}
	done, err := s.tun.Compare(cmd.Context(), candidates, tuner.Step{Size: stepSize, Duration: duration})
	if err != nil {
		return err
	}
	sort.SliceStable(done, func(i, j int) bool { return done[i].Result.Score > done[j].Result.Score })
	printCandidates(done)
	return nil
}

func runGrid(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, "grid")
	if err != nil {
		return err
	}
	defer s.Close()

	grid := optim.Around(gains(s.cfg), spread, points)
	logger.Info("grid search", "points", grid.Size(), "around", gains(s.cfg))

	run := func(ctx context.Context, g tuner.Gains) (tuner.Result, error) {
		res, _, err := s.tun.RunStep(ctx, g, stepSize, duration)
		return res, err
	}
	var (
		best   optim.Trial
		trials []optim.Trial
	)
	if s.rig.backend == "sim" && workers > 1 {
		best, trials, err = grid.SearchParallel(cmd.Context(), simFactory(cmd, s.cfg), workers)
	} else {
		best, trials, err = grid.Search(cmd.Context(), run, nil)
	}
	if err != nil {
		return err
	}

	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Result.Score > trials[j].Result.Score })
	if len(trials) > 10 {
		trials = trials[:10]
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KP\tKI\tKD\tSCORE\tOVERSHOOT\tSETTLING")
	for _, t := range trials {
		fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%d\t%.1f%%\t%s\n",
			t.Gains.Kp, t.Gains.Ki, t.Gains.Kd, t.Result.Score, t.Result.Overshoot, t.Result.SettlingTime)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest: %s score %d (%s)\n", best.Gains, best.Result.Score, best.Result.Grade())
	return nil
}

func printCandidates(cs []tuner.Candidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGAINS\tSCORE\tOVERSHOOT\tRISE\tSETTLING\tSS ERROR")
	for _, c := range cs {
		r := c.Result
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\t%s\t%s\t%.2f°\n",
			c.Name, c.Gains, r.Score, r.Overshoot, r.RiseTime, r.SettlingTime, r.SteadyStateError)
	}
	w.Flush()
}

func printResult(r tuner.Result) {
	fmt.Printf("  target:        %.1f°\n", r.Target)
	fmt.Printf("  steady state:  %.2f° (error %.2f°)\n", r.SteadyStateValue, r.SteadyStateError)
	fmt.Printf("  overshoot:     %.1f%%\n", r.Overshoot)
	fmt.Printf("  undershoot:    %.1f%%\n", r.Undershoot)
	fmt.Printf("  oscillations:  %d\n", r.Oscillations)
	fmt.Printf("  rise time:     %s\n", r.RiseTime)
	fmt.Printf("  settling time: %s\n", r.SettlingTime)
	fmt.Printf("  score:         %d/100 (%s)\n", r.Score, r.Grade())
	if len(r.Metrics) > 0 {
		names := make([]string, 0, len(r.Metrics))
		for name := range r.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-14s %.4f\n", name+":", r.Metrics[name])
		}
	}
}

func printSuggestions(ss []string) {
	if len(ss) == 0 {
		return
	}
	fmt.Println("\nsuggestions:")
	for _, s := range ss {
		fmt.Printf("  - %s\n", s)
	}
}

// simFactory gives every grid worker its own simulated motor.
func simFactory(cmd *cobra.Command, cfg *config.Config) optim.Factory {
	return func() (optim.Experiment, func() error, error) {
		r, err := openRig(cmd.Context(), cfg, false)
		if err != nil {
			return nil, nil, err
		}
		tun, err := r.tuner(cfg)
		if err != nil {
			return nil, nil, errors.Join(err, r.Close())
		}
		run := func(ctx context.Context, g tuner.Gains) (tuner.Result, error) {
			res, _, err := tun.RunStep(ctx, g, stepSize, duration)
			return res, err
		}
		return run, r.Close, nil
	}
}
