package tuner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/metrics"
	"github.com/san-kum/hallservo/internal/motor"
)

// Encoder is the position source of an experiment.
type Encoder interface {
	Angle() (float64, error)
	Reset()
}

// Step is one experiment shape.
type Step struct {
	Size     float64       `yaml:"size"`
	Duration time.Duration `yaml:"duration"`
}

type Options struct {
	// CyclePeriod is the wait between control cycles.
	CyclePeriod time.Duration `yaml:"cycle_period"`

	// SafetyLimit bounds the command sent to the driver during tuning,
	// independently of the regulator's own limits.
	SafetyLimit float64 `yaml:"safety_limit"`

	// Regulator supplies limits and sample time; gains and setpoint are
	// replaced per experiment.
	Regulator control.Config `yaml:"regulator"`

	Analyze AnalyzeOptions `yaml:"analyze"`

	KpSweep              []float64 `yaml:"kp_sweep"`
	CriticalOscillations int       `yaml:"critical_oscillations"`
	FallbackKu           float64   `yaml:"fallback_ku"`
	// NominalPeriod is the assumed oscillation period at the critical gain, in seconds.
	NominalPeriod float64 `yaml:"nominal_period"`
	Empirical     Gains   `yaml:"empirical"`

	Sweep   Step `yaml:"sweep"`
	Variant Step `yaml:"variant"`
	Confirm Step `yaml:"confirm"`
}

func DefaultOptions() Options {
	return Options{
		CyclePeriod: 10 * time.Millisecond,
		SafetyLimit: 80,
		Regulator: control.Config{
			OutputMin:  -100,
			OutputMax:  100,
			SampleTime: 0.01,
		},
		Analyze:              DefaultAnalyzeOptions(),
		KpSweep:              []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0},
		CriticalOscillations: 3,
		FallbackKu:           2.5,
		NominalPeriod:        1.0,
		Empirical:            Gains{Kp: 2.0, Ki: 0.4, Kd: 0.12},
		Sweep:                Step{Size: 90, Duration: 2 * time.Second},
		Variant:              Step{Size: 90, Duration: 4 * time.Second},
		Confirm:              Step{Size: 180, Duration: 5 * time.Second},
	}
}

func (o Options) Validate() error {
	if o.CyclePeriod <= 0 {
		return fmt.Errorf("%w: cycle period %v", ErrOptions, o.CyclePeriod)
	}
	if !(o.SafetyLimit > 0) {
		return fmt.Errorf("%w: safety limit %v", ErrOptions, o.SafetyLimit)
	}
	if !(o.NominalPeriod > 0) {
		return fmt.Errorf("%w: nominal period %v", ErrOptions, o.NominalPeriod)
	}
	if len(o.KpSweep) == 0 {
		return fmt.Errorf("%w: empty kp sweep", ErrOptions)
	}
	if err := o.Regulator.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrOptions, err)
	}
	return nil
}

// Run identifies an experiment to an Observer.
type Run struct {
	Name  string
	Gains Gains
	Step  Step
}

// Observer receives progress from experiments. Calls happen on the
// control goroutine and must return quickly.
type Observer interface {
	OnRunStart(run Run)
	OnSample(run Run, s Sample)
	OnRunEnd(run Run, r Result, err error)
}

type nopObserver struct{}

func (nopObserver) OnRunStart(Run) {}

func (nopObserver) OnSample(Run, Sample) {}

func (nopObserver) OnRunEnd(Run, Result, error) {}

type Tuner struct {
	enc  Encoder
	drv  motor.Driver
	clk  clock.Clock
	opts Options

	observer Observer
	metrics  metrics.Set
}

func New(enc Encoder, drv motor.Driver, clk clock.Clock, opts Options) (*Tuner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Tuner{
		enc:      enc,
		drv:      drv,
		clk:      clk,
		opts:     opts,
		observer: nopObserver{},
		metrics:  metrics.Default(opts.SafetyLimit),
	}, nil
}

func (t *Tuner) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	t.observer = o
}

func (t *Tuner) Options() Options { return t.opts }

// RunStep runs one closed-loop step experiment and analyzes it.
func (t *Tuner) RunStep(ctx context.Context, g Gains, step float64, duration time.Duration) (Result, []Sample, error) {
	return t.run(ctx, Run{Name: "step", Gains: g, Step: Step{Size: step, Duration: duration}})
}

func (t *Tuner) run(ctx context.Context, run Run) (res Result, samples []Sample, err error) {
	t.observer.OnRunStart(run)
	defer func() { t.observer.OnRunEnd(run, res, err) }()

	setpoint, samples, err := t.record(ctx, run)
	if err != nil {
		return Result{}, samples, err
	}

	res, err = Analyze(samples, setpoint, t.opts.Analyze)
	if err != nil {
		return Result{}, samples, err
	}
	res.Gains = run.Gains
	res.StepSize = run.Step.Size
	res.Metrics = t.metrics.Values()
	return res, samples, nil
}

// record drives the loop for one experiment and returns the commanded
// setpoint with the samples taken so far.
func (t *Tuner) record(ctx context.Context, run Run) (setpoint float64, samples []Sample, err error) {
	cfg := t.opts.Regulator
	cfg.Kp, cfg.Ki, cfg.Kd = run.Gains.Kp, run.Gains.Ki, run.Gains.Kd
	pid, err := control.NewPID(cfg, t.clk)
	if err != nil {
		return 0, nil, err
	}

	defer func() {
		if stopErr := t.drv.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("tuner: stop motor: %w", stopErr))
		}
	}()

	t.enc.Reset()
	pid.Reset()
	t.metrics.Reset()

	start, err := t.enc.Angle()
	if err != nil {
		return 0, nil, err
	}
	setpoint = start + run.Step.Size
	pid.SetSetpoint(setpoint)

	if run.Step.Duration <= 0 {
		return setpoint, nil, ErrNoSamples
	}
	samples = make([]Sample, 0, int(run.Step.Duration/t.opts.CyclePeriod)+1)
	t0 := t.clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			return setpoint, samples, err
		}
		elapsed := clock.Since(t.clk, t0)
		if elapsed >= run.Step.Duration {
			break
		}

		angle, err := t.enc.Angle()
		if err != nil {
			return setpoint, samples, err
		}
		out := pid.Update(angle)
		out = math.Max(-t.opts.SafetyLimit, math.Min(t.opts.SafetyLimit, out))
		if err := t.drv.SetSpeed(out); err != nil {
			return setpoint, samples, fmt.Errorf("tuner: set speed %.1f: %w", out, err)
		}

		s := Sample{
			Time:   elapsed.Seconds(),
			Angle:  angle,
			Error:  setpoint - angle,
			Output: out,
		}
		samples = append(samples, s)
		t.metrics.Observe(s.Time, s.Angle, s.Error, s.Output)
		t.observer.OnSample(run, s)

		t.clk.Sleep(t.opts.CyclePeriod)
	}
	return setpoint, samples, nil
}
