package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/hallservo/internal/config"
	"github.com/san-kum/hallservo/internal/export"
	"github.com/san-kum/hallservo/internal/storage"
)

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return storage.New(cfg.Storage.Dir), nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tTIME\tBACKEND\tSTEP\tGAINS\tSCORE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f°\t%s\t%d\n",
			run.ID,
			run.Kind,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Backend,
			run.Result.StepSize,
			run.Result.Gains,
			run.Result.Score,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("gains: %s\n", meta.Result.Gains)
	fmt.Printf("samples: %d\n\n", len(samples))

	angle := make([]float64, len(samples))
	target := make([]float64, len(samples))
	out := make([]float64, len(samples))
	for i, s := range samples {
		angle[i] = s.Angle
		target[i] = meta.Result.Target
		out[i] = s.Output
	}

	graph := asciigraph.PlotMany([][]float64{angle, target},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Red),
		asciigraph.Caption(fmt.Sprintf("angle vs target %.0f° (score %d)", meta.Result.Target, meta.Result.Score)),
	)
	fmt.Println(graph)
	fmt.Println()
	fmt.Println(asciigraph.Plot(out,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("output %"),
	))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	if output == "" {
		return st.Export(os.Stdout, args[0])
	}
	if err := st.ExportFile(output, args[0]); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", output)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}
	var svg string
	if effort {
		pts := make([]export.Point, len(samples))
		for i, s := range samples {
			pts[i] = export.Point{X: s.Time, Y: s.Output}
		}
		svg = export.SeriesSVG(pts, width, height, "#5599ff")
	} else {
		svg = export.StepResponseSVG(samples, meta.Result.Target, width, height)
	}
	if svg == "" {
		return fmt.Errorf("run %s has too few samples to plot", runID)
	}
	path := output
	if path == "" {
		path = runID + ".svg"
	}
	if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "motor\t%.0f V, %.0f rpm no-load, %.0f rpm rated\n", cfg.Motor.Voltage, cfg.Motor.NoLoadRPM, cfg.Motor.RatedRPM)
	fmt.Fprintf(w, "gearbox\t%d:1\n", cfg.Motor.GearRatio)
	fmt.Fprintf(w, "output shaft\t%.2f rpm no-load, %.2f rpm rated\n", cfg.OutputNoLoadRPM(), cfg.OutputRatedRPM())
	fmt.Fprintf(w, "hall sensor\t%d pulses per motor revolution\n", cfg.Motor.HallPulses)
	fmt.Fprintf(w, "encoder\t%d pulses per output revolution, %.3f° per pulse\n", cfg.PulsesPerRev(), cfg.DegreesPerPulse())
	fmt.Fprintf(w, "control loop\t%d Hz (%v)\n", cfg.Control.LoopHz, cfg.LoopPeriod())
	fmt.Fprintf(w, "pid (%s)\tKp=%.3f Ki=%.3f Kd=%.3f, output [%.0f, %.0f], every %.3fs\n",
		cfg.Preset, cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd, cfg.PID.OutputMin, cfg.PID.OutputMax, cfg.PID.SampleTime)
	fmt.Fprintf(w, "backend\t%s\n", cfg.Backend)
	if cfg.Backend == "serial" {
		fmt.Fprintf(w, "serial\t%s @ %d baud\n", cfg.Serial.Port, cfg.Serial.Baud)
	}
	fmt.Fprintf(w, "runs\t%s\n", cfg.Storage.Dir)
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKP\tKI\tKD\tOUTPUT\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t±%.0f\t%s\n", name, p.PID.Kp, p.PID.Ki, p.PID.Kd, p.PID.OutputMax, p.Description)
	}
	return w.Flush()
}
