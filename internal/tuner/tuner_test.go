package tuner_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/motor"
	"github.com/san-kum/hallservo/internal/plant"
	"github.com/san-kum/hallservo/internal/quadrature"
	"github.com/san-kum/hallservo/internal/tuner"
)

// recorder wraps a driver and remembers every command.
type recorder struct {
	inner motor.Driver

	speeds    []float64
	stops     int
	failAfter int
	stopErr   error
	onSpeed   func()
}

var errDriver = errors.New("driver fault")

func (r *recorder) SetSpeed(v float64) error {
	r.speeds = append(r.speeds, v)
	if r.onSpeed != nil {
		r.onSpeed()
	}
	if r.failAfter > 0 && len(r.speeds) >= r.failAfter {
		return errDriver
	}
	if r.inner == nil {
		return nil
	}
	return r.inner.SetSpeed(v)
}

func (r *recorder) Stop() error {
	r.stops++
	if r.inner != nil {
		if err := r.inner.Stop(); err != nil {
			return err
		}
	}
	return r.stopErr
}

func (r *recorder) Coast() error { return nil }

// scripted replays angles after every reset.
type scripted struct {
	next func(i int) float64
	i    int
}

func (s *scripted) Reset() { s.i = 0 }

func (s *scripted) Angle() (float64, error) {
	a := s.next(s.i)
	s.i++
	return a, nil
}

type countingObserver struct {
	starts, samples, ends int
	names                 []string
}

func (o *countingObserver) OnRunStart(run tuner.Run) {
	o.starts++
	o.names = append(o.names, run.Name)
}
func (o *countingObserver) OnSample(tuner.Run, tuner.Sample) { o.samples++ }
func (o *countingObserver) OnRunEnd(tuner.Run, tuner.Result, error) {
	o.ends++
}

var _ = Describe("Tuner", func() {
	var (
		clk *clock.Virtual
		sim *plant.Motor
		dec *quadrature.Decoder
		drv *recorder
		tun *tuner.Tuner
	)

	BeforeEach(func() {
		clk = clock.NewVirtual()
		p := plant.DefaultParams()
		var err error
		sim, err = plant.New(p)
		Expect(err).NotTo(HaveOccurred())
		sim.Attach(clk)

		dec, err = quadrature.Attach(sim, p.PulsesPerRev, clk)
		Expect(err).NotTo(HaveOccurred())

		bridge, err := sim.Bridge()
		Expect(err).NotTo(HaveOccurred())
		drv = &recorder{inner: bridge}

		tun, err = tuner.New(dec, drv, clk, tuner.DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("RunStep", func() {
		It("records one sample per cycle and stops the motor", func() {
			res, samples, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 2, Ki: 0.4, Kd: 0.12}, 90, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(samples).To(HaveLen(200))
			Expect(samples[0].Time).To(Equal(0.0))
			Expect(samples[199].Time).To(BeNumerically("~", 1.99, 1e-9))
			Expect(res.Target).To(Equal(90.0))
			Expect(res.StepSize).To(Equal(90.0))
			Expect(res.Gains.Kp).To(Equal(2.0))
			Expect(res.Metrics).To(HaveKey("control_effort"))
			Expect(drv.stops).To(Equal(1))
			Expect(sim.Angle()).To(BeNumerically(">", 45))
		})

		It("records the error against the commanded setpoint", func() {
			_, samples, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 1}, 45, time.Second)
			Expect(err).NotTo(HaveOccurred())
			for _, s := range samples {
				Expect(s.Error).To(BeNumerically("~", 45-s.Angle, 1e-9))
			}
		})

		It("clamps commands to the safety limit", func() {
			_, samples, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 50}, -180, time.Second)
			Expect(err).NotTo(HaveOccurred())
			for _, v := range drv.speeds {
				Expect(math.Abs(v)).To(BeNumerically("<=", 80))
			}
			Expect(samples[len(samples)-1].Output).To(Equal(-80.0))
		})

		It("reports driver failures after stopping the motor", func() {
			drv.failAfter = 5
			_, samples, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 1}, 90, time.Second)
			Expect(err).To(MatchError(errDriver))
			Expect(samples).To(HaveLen(4))
			Expect(drv.stops).To(Equal(1))
		})

		It("joins a failed stop with the run error", func() {
			stopErr := errors.New("brake fault")
			drv.failAfter = 3
			drv.stopErr = stopErr
			_, _, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 1}, 90, time.Second)
			Expect(err).To(MatchError(errDriver))
			Expect(err).To(MatchError(stopErr))
		})

		It("stops the motor when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			drv.onSpeed = func() {
				if len(drv.speeds) == 10 {
					cancel()
				}
			}
			_, samples, err := tun.RunStep(ctx, tuner.Gains{Kp: 1}, 90, time.Second)
			Expect(err).To(MatchError(context.Canceled))
			Expect(samples).To(HaveLen(10))
			Expect(drv.stops).To(Equal(1))
		})

		It("rejects a zero step", func() {
			_, _, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 1}, 0, time.Second)
			Expect(err).To(MatchError(tuner.ErrZeroTarget))
			Expect(drv.stops).To(Equal(1))
		})

		It("rejects a non-positive duration", func() {
			_, _, err := tun.RunStep(context.Background(), tuner.Gains{Kp: 1}, 90, 0)
			Expect(err).To(MatchError(tuner.ErrNoSamples))
		})
	})

	Describe("FindCriticalGain", func() {
		It("returns the first gain that rings", func() {
			enc := &scripted{next: func(i int) float64 {
				if i == 0 {
					return 0
				}
				if i%2 == 0 {
					return 80
				}
				return 100
			}}
			t, err := tuner.New(enc, &recorder{}, clock.NewVirtual(), tuner.DefaultOptions())
			Expect(err).NotTo(HaveOccurred())

			ku, found, sweep, err := t.FindCriticalGain(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(ku).To(Equal(0.5))
			Expect(sweep).To(HaveLen(1))
		})

		It("falls back when nothing rings", func() {
			enc := &scripted{next: func(i int) float64 { return math.Min(float64(i), 90) }}
			t, err := tuner.New(enc, &recorder{}, clock.NewVirtual(), tuner.DefaultOptions())
			Expect(err).NotTo(HaveOccurred())

			ku, found, sweep, err := t.FindCriticalGain(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(ku).To(Equal(2.5))
			Expect(sweep).To(HaveLen(6))
		})
	})

	Describe("AutoTune", func() {
		It("scores the variants and confirms the best one", func() {
			obs := &countingObserver{}
			tun.SetObserver(obs)

			rep, err := tun.AutoTune(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(rep.Candidates).To(HaveLen(4))
			for _, c := range rep.Candidates {
				Expect(rep.Best.Result.Score).To(BeNumerically(">=", c.Result.Score))
				Expect(c.Result.Target).To(Equal(90.0))
			}
			Expect(rep.Seed).To(Equal(tuner.ZieglerNichols(rep.CriticalGain, 1.0)))
			Expect(rep.Confirmation.Target).To(Equal(180.0))
			Expect(rep.Confirmation.Gains).To(Equal(rep.Best.Gains))
			Expect(rep.Suggestions).NotTo(BeEmpty())

			runs := len(rep.Sweep) + 4 + 1
			Expect(obs.starts).To(Equal(runs))
			Expect(obs.ends).To(Equal(runs))
			Expect(obs.names[len(obs.names)-1]).To(HavePrefix("confirm "))
			Expect(drv.stops).To(Equal(runs))
		})

		It("stops at the first failing experiment", func() {
			drv.failAfter = 1
			_, err := tun.AutoTune(context.Background())
			Expect(err).To(MatchError(errDriver))
			Expect(drv.stops).To(Equal(1))
		})
	})

	Describe("SystemResponse", func() {
		It("reports the mean speed of the final window", func() {
			opts := tuner.DefaultResponseOptions()
			opts.Samples = 60
			opts.Window = 20

			rep, err := tuner.SystemResponse(context.Background(), dec, drv, clk, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Samples).To(HaveLen(60))

			// half duty above the deadband on an 11.1 rpm output shaft
			want := (0.5 - 0.05) / 0.95 * 333.0 / 30.0
			Expect(rep.MeanRPM).To(BeNumerically("~", want, 0.05*want))
			Expect(drv.stops).To(Equal(1))
		})

		It("rejects an empty run", func() {
			_, err := tuner.SystemResponse(context.Background(), dec, drv, clk, tuner.ResponseOptions{})
			Expect(err).To(MatchError(tuner.ErrOptions))
		})
	})
})

var _ = Describe("Options", func() {
	It("rejects a zero cycle period", func() {
		opts := tuner.DefaultOptions()
		opts.CyclePeriod = 0
		_, err := tuner.New(&scripted{next: func(int) float64 { return 0 }}, &recorder{}, nil, opts)
		Expect(err).To(MatchError(tuner.ErrOptions))
	})

	It("rejects invalid regulator limits", func() {
		opts := tuner.DefaultOptions()
		opts.Regulator.OutputMax = opts.Regulator.OutputMin
		_, err := tuner.New(&scripted{next: func(int) float64 { return 0 }}, &recorder{}, nil, opts)
		Expect(err).To(MatchError(tuner.ErrOptions))
	})
})
