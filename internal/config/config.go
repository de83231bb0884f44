package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hallservo/internal/control"
	"github.com/san-kum/hallservo/internal/plant"
	"github.com/san-kum/hallservo/internal/tuner"
)

const (
	DefaultVoltage      = 12.0
	DefaultNoLoadRPM    = 333.0
	DefaultRatedRPM     = 250.0
	DefaultGearRatio    = 30
	DefaultHallPulses   = 11
	DefaultLoopHz       = 100
	DefaultTolerance    = 2.0
	DefaultSpeedTol     = 5.0
	DefaultTimeout      = 10 * time.Second
	DefaultPrintEvery   = time.Second
	DefaultBaud         = 115200
	DefaultPreset       = "balanced"
	DefaultRunDirectory = "runs"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	// Backend selects the hardware: "sim" or "serial".
	Backend string `yaml:"backend"`
	Preset  string `yaml:"preset"`

	Motor    MotorConfig           `yaml:"motor"`
	Encoder  EncoderConfig         `yaml:"encoder"`
	Serial   SerialConfig          `yaml:"serial"`
	PID      control.Config        `yaml:"pid"`
	Control  ControlConfig         `yaml:"control"`
	Tuning   tuner.Options         `yaml:"tuning"`
	Response tuner.ResponseOptions `yaml:"response"`
	Plant    plant.Params          `yaml:"plant"`
	Storage  StorageConfig         `yaml:"storage"`
	Debug    DebugConfig           `yaml:"debug"`
}

// MotorConfig is the motor as sold: speeds are at the motor shaft,
// before the gearbox.
type MotorConfig struct {
	Voltage   float64 `yaml:"voltage"`
	NoLoadRPM float64 `yaml:"no_load_rpm"`
	RatedRPM  float64 `yaml:"rated_rpm"`
	GearRatio uint32  `yaml:"gear_ratio"`
	// HallPulses is the sensor pulse count per motor shaft revolution.
	HallPulses uint32 `yaml:"hall_pulses"`
}

type EncoderConfig struct {
	// PulsesPerRev overrides HallPulses*GearRatio when non-zero.
	PulsesPerRev uint32 `yaml:"pulses_per_rev"`
}

type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	// OpenTimeout bounds the retries while the board enumerates.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type ControlConfig struct {
	LoopHz         int           `yaml:"loop_hz"`
	AngleTolerance float64       `yaml:"angle_tolerance"`
	SpeedTolerance float64       `yaml:"speed_tolerance"`
	Timeout        time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type DebugConfig struct {
	LogLevel      string        `yaml:"log_level"`
	PrintInterval time.Duration `yaml:"print_interval"`
	LogData       bool          `yaml:"log_data"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		Backend: "sim",
		Preset:  DefaultPreset,
		Motor: MotorConfig{
			Voltage:    DefaultVoltage,
			NoLoadRPM:  DefaultNoLoadRPM,
			RatedRPM:   DefaultRatedRPM,
			GearRatio:  DefaultGearRatio,
			HallPulses: DefaultHallPulses,
		},
		Serial: SerialConfig{
			Baud:        DefaultBaud,
			AckTimeout:  100 * time.Millisecond,
			OpenTimeout: 5 * time.Second,
		},
		PID: Presets[DefaultPreset].PID,
		Control: ControlConfig{
			LoopHz:         DefaultLoopHz,
			AngleTolerance: DefaultTolerance,
			SpeedTolerance: DefaultSpeedTol,
			Timeout:        DefaultTimeout,
		},
		Tuning:   tuner.DefaultOptions(),
		Response: tuner.DefaultResponseOptions(),
		Plant:    plant.DefaultParams(),
		Storage:  StorageConfig{Dir: DefaultRunDirectory},
		Debug: DebugConfig{
			LogLevel:      "info",
			PrintInterval: DefaultPrintEvery,
		},
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyPreset replaces the PID section with a named preset.
func (c *Config) ApplyPreset(name string) error {
	p := GetPreset(name)
	if p == nil {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalid, name)
	}
	c.Preset = name
	c.PID = p.PID
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Backend != "sim" && c.Backend != "serial" {
		errs = append(errs, fmt.Errorf("backend %q", c.Backend))
	}
	if c.PulsesPerRev() == 0 {
		errs = append(errs, errors.New("pulses per revolution must be positive"))
	}
	if c.Motor.GearRatio == 0 {
		errs = append(errs, errors.New("gear ratio must be positive"))
	}
	if c.Control.LoopHz <= 0 {
		errs = append(errs, fmt.Errorf("loop rate %d Hz", c.Control.LoopHz))
	}
	if c.Control.AngleTolerance <= 0 {
		errs = append(errs, fmt.Errorf("angle tolerance %v", c.Control.AngleTolerance))
	}
	if err := c.PID.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tuning.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend == "serial" && c.Serial.Port == "" {
		errs = append(errs, errors.New("serial backend needs a port"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// PulsesPerRev is the decoder count for one output shaft revolution.
func (c *Config) PulsesPerRev() uint32 {
	if c.Encoder.PulsesPerRev != 0 {
		return c.Encoder.PulsesPerRev
	}
	return c.Motor.HallPulses * c.Motor.GearRatio
}

func (c *Config) OutputNoLoadRPM() float64 {
	if c.Motor.GearRatio == 0 {
		return 0
	}
	return c.Motor.NoLoadRPM / float64(c.Motor.GearRatio)
}

func (c *Config) OutputRatedRPM() float64 {
	if c.Motor.GearRatio == 0 {
		return 0
	}
	return c.Motor.RatedRPM / float64(c.Motor.GearRatio)
}

func (c *Config) DegreesPerPulse() float64 {
	ppr := c.PulsesPerRev()
	if ppr == 0 {
		return 0
	}
	return 360 / float64(ppr)
}

// LoopPeriod is the control cycle period.
func (c *Config) LoopPeriod() time.Duration {
	if c.Control.LoopHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Control.LoopHz)
}

// PlantParams returns the simulation parameters with the output shaft
// speed and pulse count taken from the motor section.
func (c *Config) PlantParams() plant.Params {
	p := c.Plant
	p.NoLoadRPM = c.OutputNoLoadRPM()
	p.PulsesPerRev = c.PulsesPerRev()
	return p
}
