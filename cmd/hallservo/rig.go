package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/config"
	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/link"
	"github.com/san-kum/hallservo/internal/motor"
	"github.com/san-kum/hallservo/internal/plant"
	"github.com/san-kum/hallservo/internal/position"
	"github.com/san-kum/hallservo/internal/quadrature"
	"github.com/san-kum/hallservo/internal/tuner"
)

// rig is an encoder and a motor driver on one clock.
type rig struct {
	backend string
	clk     clock.Clock
	dec     *quadrature.Decoder
	drv     motor.Driver
	sim     *plant.Motor
	board   *link.Board
	cancel  context.CancelFunc
}

// openRig builds the configured backend. The simulator runs on a virtual
// clock unless realtime is set, in which case it steps on its own
// goroutine against the wall clock.
func openRig(ctx context.Context, cfg *config.Config, realtime bool) (*rig, error) {
	switch cfg.Backend {
	case "sim":
		return openSim(ctx, cfg, realtime)
	case "serial":
		return openSerial(cfg)
	}
	return nil, fmt.Errorf("%w: backend %q", config.ErrInvalid, cfg.Backend)
}

func openSim(ctx context.Context, cfg *config.Config, realtime bool) (*rig, error) {
	m, err := plant.New(cfg.PlantParams())
	if err != nil {
		return nil, err
	}
	r := &rig{backend: "sim", sim: m}
	if realtime {
		r.clk = clock.Wall{}
		ctx, r.cancel = context.WithCancel(ctx)
		go func() {
			if err := m.Run(ctx, time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("simulator stopped", "err", err)
			}
		}()
	} else {
		v := clock.NewVirtual()
		m.Attach(v)
		r.clk = v
	}

	if r.dec, err = quadrature.Attach(m, cfg.PulsesPerRev(), r.clk); err != nil {
		r.Close()
		return nil, err
	}
	bridge, err := m.Bridge()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.drv = bridge
	logger.Debug("simulator ready", "pwm", bridge.Backend(), "ppr", cfg.PulsesPerRev(), "realtime", realtime)
	return r, nil
}

func openSerial(cfg *config.Config) (*rig, error) {
	logger.Info("opening driver board", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
	board, err := link.Dial(link.Config{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		AckTimeout:  cfg.Serial.AckTimeout,
		OpenTimeout: cfg.Serial.OpenTimeout,
	})
	if err != nil {
		return nil, err
	}
	r := &rig{backend: "serial", clk: clock.Wall{}, drv: board, board: board}
	if r.dec, err = quadrature.Attach(board, cfg.PulsesPerRev(), r.clk); err != nil {
		board.Close()
		return nil, err
	}
	return r, nil
}

func (r *rig) tuner(cfg *config.Config) (*tuner.Tuner, error) {
	return tuner.New(r.dec, r.drv, r.clk, cfg.Tuning)
}

func (r *rig) controller(cfg *config.Config) (*position.Controller, error) {
	pid, err := control.NewPID(cfg.PID, r.clk)
	if err != nil {
		return nil, err
	}
	return position.New(r.dec, r.drv, pid, r.clk, cfg.LoopPeriod()), nil
}

// Close brakes the motor and releases the backend.
func (r *rig) Close() error {
	var errs []error
	if r.drv != nil {
		errs = append(errs, r.drv.Stop())
	}
	if r.dec != nil {
		errs = append(errs, r.dec.Close())
	} else if r.board != nil {
		errs = append(errs, r.board.Close())
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.dec != nil && r.dec.Ambiguous() > 0 {
		logger.Warn("encoder saw ambiguous edges", "count", r.dec.Ambiguous())
	}
	return errors.Join(errs...)
}

// progress logs experiments as they run, at most once per interval of
// rig time for the per-sample lines.
type progress struct {
	clk     clock.Clock
	limiter *rate.Limiter
	record  func(tuner.Run, tuner.Result, []tuner.Sample)
	samples []tuner.Sample
}

func newProgress(clk clock.Clock, every time.Duration, record func(tuner.Run, tuner.Result, []tuner.Sample)) *progress {
	return &progress{
		clk:     clk,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		record:  record,
	}
}

func (p *progress) OnRunStart(run tuner.Run) {
	p.samples = p.samples[:0]
	logger.Info("experiment", "name", run.Name, "gains", run.Gains, "step", run.Step.Size, "for", run.Step.Duration)
}

func (p *progress) OnSample(run tuner.Run, s tuner.Sample) {
	p.samples = append(p.samples, s)
	if p.limiter.AllowN(p.clk.Now(), 1) {
		logger.Debug(run.Name, "t", fmt.Sprintf("%.2fs", s.Time), "angle", fmt.Sprintf("%.1f", s.Angle),
			"error", fmt.Sprintf("%.1f", s.Error), "output", fmt.Sprintf("%.1f", s.Output))
	}
}

func (p *progress) OnRunEnd(run tuner.Run, res tuner.Result, err error) {
	if err != nil {
		logger.Error("experiment failed", "name", run.Name, "err", err)
		return
	}
	logger.Info("scored", "name", run.Name, "score", res.Score, "overshoot", fmt.Sprintf("%.1f%%", res.Overshoot),
		"settling", res.SettlingTime)
	if p.record != nil {
		p.record(run, res, append([]tuner.Sample(nil), p.samples...))
	}
}
