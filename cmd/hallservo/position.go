package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/san-kum/hallservo/internal/position"
	"github.com/san-kum/hallservo/internal/tui"
	"github.com/san-kum/hallservo/internal/tuner"
)

var demoTargets = []float64{90, 180, 270, 0}

func runGoto(cmd *cobra.Command, args []string) error {
	angle, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("angle %q: %w", args[0], err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	r, err := openRig(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer r.Close()
	ctrl, err := r.controller(cfg)
	if err != nil {
		return err
	}

	start := r.clk.Now()
	st, err := ctrl.MoveTo(cmd.Context(), angle, tolerance, timeout)
	if err != nil {
		return err
	}
	fmt.Printf("reached in %v\n%s\n", r.clk.Now().Sub(start).Round(time.Millisecond), st)
	if hold > 0 {
		if err := ctrl.Hold(cmd.Context(), hold); err != nil {
			return err
		}
		fmt.Printf("after %v hold\n%s\n", hold, ctrl.Status())
	}
	return ctrl.Stop()
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	r, err := openRig(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer r.Close()
	ctrl, err := r.controller(cfg)
	if err != nil {
		return err
	}

	return ctrl.Sequence(cmd.Context(), demoTargets, tolerance, timeout, time.Second, func(st position.Status, err error) {
		if err != nil {
			logger.Warn("target missed", "target", st.Target, "err", err)
			return
		}
		fmt.Printf("reached %.0f°: %s\n", st.Target, st)
	})
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	r, err := openRig(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer r.Close()

	ppr := int64(r.dec.PulsesPerRevolution())
	before, _ := r.dec.Angle()
	r.dec.Reset()
	fmt.Printf("position before calibration: %.1f°, now 0.0°\n", before)
	fmt.Printf("driving at %.0f%% until %d pulses...\n", driveSpeed, ppr)

	if err := r.drv.SetSpeed(driveSpeed); err != nil {
		return err
	}
	lim := rate.NewLimiter(rate.Every(cfg.Debug.PrintInterval), 1)
	period := cfg.LoopPeriod()
	start := r.clk.Now()
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		count := r.dec.Count()
		if lim.AllowN(r.clk.Now(), 1) {
			angle, _ := r.dec.Angle()
			logger.Info("counting", "count", count, "angle", fmt.Sprintf("%.1f°", angle),
				"revolutions", fmt.Sprintf("%.2f", float64(count)/float64(ppr)))
		}
		if count >= ppr || count <= -ppr {
			break
		}
		if r.clk.Now().Sub(start) >= driveTime {
			return fmt.Errorf("no full revolution after %v (count %d of %d)", driveTime, count, ppr)
		}
		r.clk.Sleep(period)
	}
	elapsed := r.clk.Now().Sub(start)
	if err := r.drv.Stop(); err != nil {
		return err
	}

	fmt.Printf("one revolution detected after %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  pulses counted:   %d\n", r.dec.Count())
	fmt.Printf("  edges seen:       %d\n", r.dec.Edges())
	fmt.Printf("  ambiguous edges:  %d\n", r.dec.Ambiguous())
	fmt.Printf("  mean speed:       %.2f rpm\n", 60/elapsed.Seconds())
	if r.sim != nil {
		total, missed := r.sim.Edges()
		fmt.Printf("  sensor edges:     %d (%d dropped)\n", total, missed)
	}
	return nil
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := cfg.Response
	if cmd.Flags().Changed("speed") {
		opts.Speed = testSpeed
	}
	r, err := openRig(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer r.Close()

	logger.Info("open-loop response", "speed", opts.Speed, "samples", opts.Samples, "every", opts.Interval)
	rep, err := tuner.SystemResponse(cmd.Context(), r.dec, r.drv, r.clk, opts)
	if err != nil {
		return err
	}

	expected := cfg.OutputNoLoadRPM() * math.Abs(rep.Speed) / 100
	fmt.Printf("drive:          %.0f%%\n", rep.Speed)
	fmt.Printf("samples:        %d\n", len(rep.Samples))
	fmt.Printf("mean speed:     %.2f rpm (last %d samples)\n", rep.MeanRPM, min(opts.Window, len(rep.Samples)))
	fmt.Printf("no-load linear: %.2f rpm\n", expected)
	if expected > 0 {
		dev := math.Abs(math.Abs(rep.MeanRPM)-expected) / expected * 100
		verdict := "ok"
		if dev > cfg.Control.SpeedTolerance {
			verdict = "check deadband, supply voltage or load"
		}
		fmt.Printf("deviation:      %.1f%% (%s)\n", dev, verdict)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	r, err := openRig(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer r.Close()
	ctrl, err := r.controller(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	uiErr := tui.Run(ctrl, fmt.Sprintf("hallservo %s (%s)", r.backend, cfg.Preset), manual)
	cancel()
	return errors.Join(uiErr, <-done)
}
