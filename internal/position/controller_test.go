package position_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/motor"
	"github.com/san-kum/hallservo/internal/plant"
	"github.com/san-kum/hallservo/internal/position"
	"github.com/san-kum/hallservo/internal/quadrature"
)

var errDriver = errors.New("driver fault")

type recorder struct {
	inner     motor.Driver
	speeds    []float64
	stops     int
	failSpeed bool
}

func (r *recorder) SetSpeed(v float64) error {
	r.speeds = append(r.speeds, v)
	if r.failSpeed {
		return errDriver
	}
	if r.inner == nil {
		return nil
	}
	return r.inner.SetSpeed(v)
}

func (r *recorder) Stop() error {
	r.stops++
	if r.inner == nil {
		return nil
	}
	return r.inner.Stop()
}

func (r *recorder) Coast() error { return nil }

// stuck is a shaft that never moves.
type stuck struct{ angle float64 }

func (s *stuck) Angle() (float64, error) { return s.angle, nil }
func (s *stuck) RPM() float64            { return 0 }
func (s *stuck) Reset()                  { s.angle = 0 }

// faulty panics on the given Angle read.
type faulty struct {
	reads   int
	panicAt int
}

func (f *faulty) Angle() (float64, error) {
	f.reads++
	if f.reads == f.panicAt {
		panic("sensor bus fault")
	}
	return 0, nil
}
func (f *faulty) RPM() float64 { return 0 }
func (f *faulty) Reset()       {}

const period = 10 * time.Millisecond

func regulator(clk clock.Clock) *control.PID {
	pid, err := control.NewPID(control.Config{
		Kp: 2, Ki: 0.4, Kd: 0.12,
		OutputMin: -100, OutputMax: 100,
		SampleTime: period.Seconds(),
	}, clk)
	Expect(err).NotTo(HaveOccurred())
	return pid
}

var _ = Describe("Controller", func() {
	var (
		clk  *clock.Virtual
		sim  *plant.Motor
		dec  *quadrature.Decoder
		drv  *recorder
		ctrl *position.Controller
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
		ctrl = position.New(dec, drv, regulator(clk), clk, period)
	})

	It("starts idle", func() {
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(ctrl.Update()).To(Succeed())
		Expect(drv.speeds).To(BeEmpty())
	})

	It("moves to a target and keeps holding it", func() {
		st, err := ctrl.MoveTo(context.Background(), 90, 2, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(math.Abs(st.Error)).To(BeNumerically("<", 2))
		Expect(st.Mode).To(Equal(position.Auto))
		Expect(ctrl.Mode()).To(Equal(position.Auto))
		Expect(sim.Angle()).To(BeNumerically("~", 90, 4))
		Expect(drv.stops).To(Equal(0))
	})

	It("runs a sequence and stops at the end", func() {
		var visited []float64
		err := ctrl.Sequence(context.Background(), []float64{90, 180, 0}, 2, 5*time.Second, 200*time.Millisecond,
			func(st position.Status, err error) {
				Expect(err).NotTo(HaveOccurred())
				visited = append(visited, st.Target)
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(visited).To(Equal([]float64{90, 180, 0}))
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(drv.stops).To(Equal(1))
	})

	It("gates updates to the control period", func() {
		ctrl.Start()
		Expect(ctrl.Update()).To(Succeed())
		Expect(ctrl.Update()).To(Succeed())
		Expect(drv.speeds).To(HaveLen(1))
		clk.Sleep(period)
		Expect(ctrl.Update()).To(Succeed())
		Expect(drv.speeds).To(HaveLen(2))
	})

	It("drives open loop in manual mode", func() {
		Expect(ctrl.Manual(150)).To(Succeed())
		Expect(ctrl.Mode()).To(Equal(position.Manual))
		Expect(drv.speeds).To(Equal([]float64{100}))

		clk.Sleep(time.Second)
		Expect(ctrl.Update()).To(Succeed())
		Expect(drv.speeds).To(HaveLen(1))
		Expect(sim.Angle()).To(BeNumerically(">", 30))
		Expect(ctrl.Status().Output).To(Equal(100.0))
	})

	It("brakes on stop", func() {
		Expect(ctrl.Manual(50)).To(Succeed())
		Expect(ctrl.Stop()).To(Succeed())
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(drv.stops).To(Equal(1))
		Expect(ctrl.Status().Output).To(BeZero())
	})

	It("zeroes the position on calibrate", func() {
		Expect(ctrl.Manual(80)).To(Succeed())
		clk.Sleep(500 * time.Millisecond)
		Expect(ctrl.Stop()).To(Succeed())
		Expect(ctrl.Status().Current).To(BeNumerically(">", 0))

		ctrl.Calibrate()
		Expect(ctrl.Status().Current).To(BeZero())
	})

	It("retargets through live tuning", func() {
		Expect(ctrl.Tune("Setpoint", 45)).To(Succeed())
		Expect(ctrl.Status().Target).To(Equal(45.0))
		Expect(ctrl.Tune("Kp", 3)).To(Succeed())
		Expect(ctrl.Params()).To(HaveKeyWithValue("Kp", 3.0))
		Expect(ctrl.Tune("gain", 1)).To(MatchError(control.ErrUnknownParam))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ctrl.MoveTo(ctx, 90, 2, time.Second)
		Expect(err).To(MatchError(context.Canceled))
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(drv.stops).To(Equal(1))
	})
})

var _ = Describe("Controller failures", func() {
	var (
		clk *clock.Virtual
		drv *recorder
	)

	BeforeEach(func() {
		clk = clock.NewVirtual()
		drv = &recorder{}
	})

	It("times out on a stalled shaft and stops the motor", func() {
		ctrl := position.New(&stuck{}, drv, regulator(clk), clk, period)
		st, err := ctrl.MoveTo(context.Background(), 90, 2, time.Second)
		Expect(err).To(MatchError(position.ErrTimeout))
		Expect(st.Error).To(Equal(90.0))
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(drv.stops).To(Equal(1))
	})

	It("falls back to idle when the driver fails", func() {
		drv.failSpeed = true
		ctrl := position.New(&stuck{}, drv, regulator(clk), clk, period)
		ctrl.Start()
		err := ctrl.Update()
		Expect(err).To(MatchError(errDriver))
		Expect(ctrl.Mode()).To(Equal(position.Idle))
		Expect(drv.stops).To(Equal(1))
	})

	It("drives on the first cycle after start", func() {
		ctrl := position.New(&stuck{}, drv, regulator(clk), clk, period)
		ctrl.SetTarget(90)
		ctrl.Start()
		Expect(ctrl.Update()).To(Succeed())
		Expect(drv.speeds).To(Equal([]float64{100}))
	})

	DescribeTable("stops the motor when a loop panics",
		func(loop func(*position.Controller)) {
			ctrl := position.New(&faulty{panicAt: 4}, drv, regulator(clk), clk, period)
			ctrl.SetTarget(90)
			Expect(func() { loop(ctrl) }).To(PanicWith("sensor bus fault"))
			Expect(drv.stops).To(BeNumerically(">=", 1))
			Expect(ctrl.Mode()).To(Equal(position.Idle))
			Expect(ctrl.Status().Output).To(BeZero())
		},
		Entry("run", func(c *position.Controller) {
			c.Start()
			_ = c.Run(context.Background())
		}),
		Entry("hold", func(c *position.Controller) {
			c.Start()
			_ = c.Hold(context.Background(), time.Second)
		}),
		Entry("move to", func(c *position.Controller) {
			_, _ = c.MoveTo(context.Background(), 90, 2, time.Second)
		}),
		Entry("sequence", func(c *position.Controller) {
			_ = c.Sequence(context.Background(), []float64{90, 0}, 2, time.Second, 0, nil)
		}),
	)

	It("moves on after a timed out target in a sequence", func() {
		ctrl := position.New(&stuck{}, drv, regulator(clk), clk, period)
		var errs []error
		err := ctrl.Sequence(context.Background(), []float64{90, 0}, 2, 200*time.Millisecond, 0,
			func(_ position.Status, err error) { errs = append(errs, err) })
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(HaveLen(2))
		Expect(errs[0]).To(MatchError(position.ErrTimeout))
		Expect(errs[1]).NotTo(HaveOccurred())
	})
})

var _ = DescribeTable("Mode names",
	func(m position.Mode, want string) {
		Expect(m.String()).To(Equal(want))
	},
	Entry("idle", position.Idle, "IDLE"),
	Entry("manual", position.Manual, "MANUAL"),
	Entry("auto", position.Auto, "AUTO"),
	Entry("unknown", position.Mode(7), "Mode(7)"),
)
