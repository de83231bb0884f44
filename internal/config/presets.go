package config

import (
	"sort"

	"github.com/san-kum/hallservo/internal/control"
)

type Preset struct {
	Description string
	PID         control.Config
}

var Presets = map[string]Preset{
	"conservative": {
		Description: "stable, little overshoot",
		PID: control.Config{
			Kp: 1.5, Ki: 0.2, Kd: 0.08,
			OutputMin: -60, OutputMax: 60, SampleTime: 0.01,
		},
	},
	"balanced": {
		Description: "fast response, good stability",
		PID: control.Config{
			Kp: 2.0, Ki: 0.4, Kd: 0.12,
			OutputMin: -75, OutputMax: 75, SampleTime: 0.01,
		},
	},
	"aggressive": {
		Description: "fastest response, may overshoot",
		PID: control.Config{
			Kp: 3.0, Ki: 0.6, Kd: 0.18,
			OutputMin: -85, OutputMax: 85, SampleTime: 0.01,
		},
	},
	"precision": {
		Description: "removes steady-state error, faster sampling",
		PID: control.Config{
			Kp: 2.5, Ki: 0.8, Kd: 0.15,
			OutputMin: -70, OutputMax: 70, SampleTime: 0.005,
		},
	},
}

func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return &p
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
