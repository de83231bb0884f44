package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/hallservo/internal/config"
	"github.com/san-kum/hallservo/internal/tuner"
)

var (
	configFile string
	dataDir    string
	backend    string
	port       string
	preset     string
	logLevel   string

	kp, ki, kd float64
	stepSize   float64
	duration   time.Duration
	target     float64
	tolerance  float64
	timeout    time.Duration
	hold       time.Duration
	driveSpeed float64
	driveTime  time.Duration
	testSpeed  float64
	manual     float64
	spread     float64
	points     int
	workers    int
	width      int
	height     int
	effort     bool
	output     string
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.TimeOnly,
	Prefix:          "hallservo",
})

// main registers the commands and exits with status 1 when one fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "hallservo",
		Short:         "position control and PID tuning for hall-encoded gear motors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&dataDir, "data", config.DefaultRunDirectory, "run storage directory")
	pf.StringVar(&backend, "backend", "sim", "hardware backend: sim or serial")
	pf.StringVar(&port, "port", "", "serial port of the driver board")
	pf.StringVar(&preset, "preset", config.DefaultPreset, "PID preset")
	pf.StringVar(&logLevel, "log-level", "info", "log level")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "auto-tune the PID gains and confirm the best set",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}

	stepCmd := &cobra.Command{
		Use:   "step",
		Short: "run one step response and score it",
		Args:  cobra.NoArgs,
		RunE:  runStep,
	}
	gainFlags(stepCmd)
	stepCmd.Flags().Float64Var(&stepSize, "step", 90, "step size in degrees")
	stepCmd.Flags().DurationVar(&duration, "duration", 4*time.Second, "recording length")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "score every preset on the same step",
		Args:  cobra.NoArgs,
		RunE:  runCompare,
	}
	compareCmd.Flags().Float64Var(&stepSize, "step", 90, "step size in degrees")
	compareCmd.Flags().DurationVar(&duration, "duration", 4*time.Second, "recording length")

	gridCmd := &cobra.Command{
		Use:   "grid",
		Short: "search a gain grid around the configured gains",
		Args:  cobra.NoArgs,
		RunE:  runGrid,
	}
	gainFlags(gridCmd)
	gridCmd.Flags().Float64Var(&stepSize, "step", 90, "step size in degrees")
	gridCmd.Flags().DurationVar(&duration, "duration", 4*time.Second, "recording length")
	gridCmd.Flags().Float64Var(&spread, "spread", 0.5, "relative spread around each gain")
	gridCmd.Flags().IntVar(&points, "points", 3, "grid points per gain")
	gridCmd.Flags().IntVar(&workers, "workers", 1, "parallel simulated rigs (sim backend only)")

	gotoCmd := &cobra.Command{
		Use:   "goto [angle]",
		Short: "move the shaft to an angle and hold it",
		Args:  cobra.ExactArgs(1),
		RunE:  runGoto,
	}
	positionFlags(gotoCmd)
	gotoCmd.Flags().DurationVar(&hold, "hold", time.Second, "how long to hold the target after arrival")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "visit 90, 180, 270 and 0 degrees in turn",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}
	positionFlags(demoCmd)

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "zero the encoder and drive one revolution to check its pulse count",
		Args:  cobra.NoArgs,
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().Float64Var(&driveSpeed, "speed", 30, "open-loop drive in percent")
	calibrateCmd.Flags().DurationVar(&driveTime, "timeout", 20*time.Second, "give up after")

	selftestCmd := &cobra.Command{
		Use:   "selftest",
		Short: "measure the open-loop speed response",
		Args:  cobra.NoArgs,
		RunE:  runSelfTest,
	}
	selftestCmd.Flags().Float64Var(&testSpeed, "speed", 0, "open-loop drive in percent (default from config)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive position control",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&manual, "manual-speed", 50, "manual drive in percent")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "print motor and encoder parameters",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list PID presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the angle and output of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export a step response plot to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <run_id>.svg)")
	exportSVGCmd.Flags().IntVar(&width, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&height, "height", 400, "image height")
	exportSVGCmd.Flags().BoolVar(&effort, "output-trace", false, "plot the regulator output instead of the angle")

	rootCmd.AddCommand(tuneCmd, stepCmd, compareCmd, gridCmd, gotoCmd, demoCmd, calibrateCmd,
		selftestCmd, liveCmd, infoCmd, presetsCmd, initCmd, listCmd, plotCmd, exportJSONCmd, exportSVGCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("command failed", "err", err)
		}
		os.Exit(1)
	}
}

func gainFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&kp, "kp", 0, "proportional gain (default from preset)")
	cmd.Flags().Float64Var(&ki, "ki", 0, "integral gain (default from preset)")
	cmd.Flags().Float64Var(&kd, "kd", 0, "derivative gain (default from preset)")
}

func positionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&tolerance, "tolerance", config.DefaultTolerance, "arrival tolerance in degrees")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "give up after")
}

// loadConfig reads the config file if one is given, then applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("preset") {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, fmt.Errorf("%w (available: %v)", err, config.ListPresets())
		}
	}
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("port") {
		cfg.Serial.Port = port
	}
	if flags.Changed("data") || configFile == "" {
		cfg.Storage.Dir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Debug.LogLevel = logLevel
	}
	if flags.Changed("kp") {
		cfg.PID.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.PID.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.PID.Kd = kd
	}

	level, err := log.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func gains(cfg *config.Config) tuner.Gains {
	return tuner.Gains{Kp: cfg.PID.Kp, Ki: cfg.PID.Ki, Kd: cfg.PID.Kd}
}
