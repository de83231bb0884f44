package tuner

import (
	"context"
	"fmt"
)

// Candidate is a named gain set and, once run, its result.
type Candidate struct {
	Name   string `json:"name"`
	Gains  Gains  `json:"gains"`
	Result Result `json:"result"`
}

// Report is the outcome of AutoTune.
type Report struct {
	CriticalGain  float64  `json:"critical_gain"`
	CriticalFound bool     `json:"critical_found"`
	Sweep         []Result `json:"sweep"`

	Seed       Gains       `json:"seed"`
	Candidates []Candidate `json:"candidates"`
	Best       Candidate   `json:"best"`

	Confirmation Result   `json:"confirmation"`
	Suggestions  []string `json:"suggestions"`
}

// ZieglerNichols derives PID gains from the critical gain ku and the
// oscillation period in seconds.
func ZieglerNichols(ku, period float64) Gains {
	kp := 0.6 * ku
	return Gains{
		Kp: kp,
		Ki: 2 * kp / period,
		Kd: kp * period / 8,
	}
}

// Variants returns the candidate batch seeded by zn: the seed itself, a
// damped and a faster scaling of it, and the empirical gains.
func Variants(zn, empirical Gains) []Candidate {
	return []Candidate{
		{Name: "ziegler-nichols", Gains: zn},
		{Name: "conservative", Gains: Gains{Kp: zn.Kp * 0.8, Ki: zn.Ki * 0.8, Kd: zn.Kd * 1.2}},
		{Name: "aggressive", Gains: Gains{Kp: zn.Kp * 1.2, Ki: zn.Ki * 1.2, Kd: zn.Kd * 0.8}},
		{Name: "empirical", Gains: empirical},
	}
}

// FindCriticalGain sweeps proportional-only gains and returns the first
// one whose step response oscillates at least CriticalOscillations times.
// If none does, it returns FallbackKu with found set to false.
func (t *Tuner) FindCriticalGain(ctx context.Context) (ku float64, found bool, sweep []Result, err error) {
	for _, kp := range t.opts.KpSweep {
		run := Run{Name: fmt.Sprintf("sweep kp=%.1f", kp), Gains: Gains{Kp: kp}, Step: t.opts.Sweep}
		res, _, err := t.run(ctx, run)
		if err != nil {
			return 0, false, sweep, err
		}
		sweep = append(sweep, res)
		if res.Oscillations >= t.opts.CriticalOscillations {
			return kp, true, sweep, nil
		}
	}
	return t.opts.FallbackKu, false, sweep, nil
}

// Compare runs every candidate with the same step and returns them, in
// input order, with their results filled in.
func (t *Tuner) Compare(ctx context.Context, candidates []Candidate, step Step) ([]Candidate, error) {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		res, _, err := t.run(ctx, Run{Name: c.Name, Gains: c.Gains, Step: step})
		if err != nil {
			return out, fmt.Errorf("candidate %s: %w", c.Name, err)
		}
		c.Result = res
		out = append(out, c)
	}
	return out, nil
}

// AutoTune searches for gains and confirms the best candidate with a
// larger step.
func (t *Tuner) AutoTune(ctx context.Context) (Report, error) {
	var rep Report

	ku, found, sweep, err := t.FindCriticalGain(ctx)
	rep.Sweep = sweep
	if err != nil {
		return rep, fmt.Errorf("critical gain search: %w", err)
	}
	rep.CriticalGain, rep.CriticalFound = ku, found
	rep.Seed = ZieglerNichols(ku, t.opts.NominalPeriod)

	rep.Candidates, err = t.Compare(ctx, Variants(rep.Seed, t.opts.Empirical), t.opts.Variant)
	if err != nil {
		return rep, err
	}
	rep.Best = best(rep.Candidates)

	run := Run{Name: "confirm " + rep.Best.Name, Gains: rep.Best.Gains, Step: t.opts.Confirm}
	rep.Confirmation, _, err = t.run(ctx, run)
	if err != nil {
		return rep, fmt.Errorf("confirmation run: %w", err)
	}
	rep.Suggestions = Suggest(rep.Confirmation)
	return rep, nil
}

// best returns the first highest-scoring candidate.
func best(cs []Candidate) Candidate {
	var b Candidate
	for i, c := range cs {
		if i == 0 || c.Result.Score > b.Result.Score {
			b = c
		}
	}
	return b
}
