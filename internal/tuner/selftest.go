package tuner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/motor"
)

// Tachometer is an encoder that also reports shaft speed.
type Tachometer interface {
	Encoder
	RPM() float64
}

type ResponseOptions struct {
	Speed    float64       `yaml:"speed"`
	Samples  int           `yaml:"samples"`
	Interval time.Duration `yaml:"interval"`
	// Window is the number of final samples averaged into MeanRPM.
	Window int `yaml:"window"`
}

func DefaultResponseOptions() ResponseOptions {
	return ResponseOptions{
		Speed:    50,
		Samples:  200,
		Interval: 100 * time.Millisecond,
		Window:   50,
	}
}

type ResponseSample struct {
	Time  float64 `json:"time"`
	Angle float64 `json:"angle"`
	RPM   float64 `json:"rpm"`
}

type ResponseReport struct {
	Speed   float64          `json:"speed"`
	Samples []ResponseSample `json:"samples"`
	MeanRPM float64          `json:"mean_rpm"`
}

// SystemResponse drives the motor open loop at a fixed speed and reports
// the mean speed over the final window. The motor is stopped on return.
func SystemResponse(ctx context.Context, tach Tachometer, drv motor.Driver, clk clock.Clock, opts ResponseOptions) (rep ResponseReport, err error) {
	if opts.Samples <= 0 || opts.Interval <= 0 {
		return rep, fmt.Errorf("%w: %d samples every %v", ErrOptions, opts.Samples, opts.Interval)
	}
	if opts.Window <= 0 || opts.Window > opts.Samples {
		opts.Window = opts.Samples
	}
	if clk == nil {
		clk = clock.Wall{}
	}

	defer func() {
		if stopErr := drv.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("tuner: stop motor: %w", stopErr))
		}
	}()

	tach.Reset()
	rep.Speed = motor.ClampSpeed(opts.Speed)
	if err := drv.SetSpeed(rep.Speed); err != nil {
		return rep, err
	}

	t0 := clk.Now()
	for i := 0; i < opts.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		angle, err := tach.Angle()
		if err != nil {
			return rep, err
		}
		rep.Samples = append(rep.Samples, ResponseSample{
			Time:  clock.Since(clk, t0).Seconds(),
			Angle: angle,
			RPM:   tach.RPM(),
		})
		clk.Sleep(opts.Interval)
	}

	rpms := make([]float64, opts.Window)
	for i, s := range rep.Samples[len(rep.Samples)-opts.Window:] {
		rpms[i] = s.RPM
	}
	rep.MeanRPM = stat.Mean(rpms, nil)
	return rep, nil
}
