//go:build rp2040

// Command rp2040 runs the position controller on a Raspberry Pi Pico: hall
// sensor on GP2/GP3, H-bridge inputs on GP6/GP7 with enable PWM on GP8.
// On boot it auto-tunes, then cycles the demo targets forever.
package main

import (
	"context"
	"machine"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/position"
	"github.com/san-kum/hallservo/internal/quadrature"
	"github.com/san-kum/hallservo/internal/tuner"
)

const (
	hallPulses   = 11
	gearRatio    = 30
	pwmPeriodNs  = 1e9 / 1000
	loopPeriod   = 10 * time.Millisecond
	tolerance    = 2.0
	moveTimeout  = 5 * time.Second
	dwell        = time.Second
	autoTuneOnUp = true
)

var demoTargets = []float64{90, 180, 270, 0}

func main() {
	time.Sleep(2 * time.Second)
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	clk := clock.Wall{}
	dec, err := quadrature.Attach(newHallLines(machine.GP2, machine.GP3), hallPulses*gearRatio, clk)
	if err != nil {
		fail("encoder", err)
	}
	drv, err := newBridge(machine.GP6, machine.GP7, machine.GP8, machine.PWM4, pwmPeriodNs)
	if err != nil {
		fail("bridge", err)
	}

	pidCfg := control.Config{
		Kp: 2.0, Ki: 0.4, Kd: 0.12,
		OutputMin: -75, OutputMax: 75,
		SampleTime: loopPeriod.Seconds(),
	}

	ctx := context.Background()
	if autoTuneOnUp {
		tun, err := tuner.New(dec, drv, clk, tuner.DefaultOptions())
		if err != nil {
			fail("tuner", err)
		}
		rep, err := tun.AutoTune(ctx)
		if err != nil {
			println("auto-tune failed, keeping defaults:", err.Error())
		} else {
			println("auto-tune:", rep.Best.Name, rep.Best.Gains.String(), "score", rep.Confirmation.Score)
			for _, s := range rep.Suggestions {
				println("  -", s)
			}
			pidCfg.Kp, pidCfg.Ki, pidCfg.Kd = rep.Best.Gains.Kp, rep.Best.Gains.Ki, rep.Best.Gains.Kd
		}
	}

	pid, err := control.NewPID(pidCfg, clk)
	if err != nil {
		fail("pid", err)
	}
	ctrl := position.New(dec, drv, pid, clk, loopPeriod)
	ctrl.Calibrate()

	for {
		err := ctrl.Sequence(ctx, demoTargets, tolerance, moveTimeout, dwell, func(st position.Status, err error) {
			led.Set(err == nil)
			if err != nil {
				println("missed:", err.Error())
				return
			}
			println(st.String())
		})
		if err != nil {
			println("sequence:", err.Error())
		}
		if n := dec.Ambiguous(); n > 0 {
			println("ambiguous edges:", n)
		}
		time.Sleep(2 * time.Second)
	}
}

func fail(what string, err error) {
	for {
		println(what+":", err.Error())
		time.Sleep(time.Second)
	}
}
