package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Servo driver names accepted in servos.<name>.driver.
const (
	DriverPWM     = "pwm"
	DriverMaestro = "maestro"
	DriverCAN     = "can"
)

// Wrist mapping presets accepted in wrist.mapping.
const (
	MappingDifferential = "differential"
	MappingMirrored     = "mirrored"
	MappingCustom       = "custom"
)

// Wire limits of the servo transports.
const (
	MaxMaestroPulseUs = 4095  // 14-bit target in quarter microseconds
	MaxPWMPulseUs     = 19999 // must stay inside the 20ms frame
	MaxCANStandardID  = 0x7FF
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 << 10

// LogConfig controls the debug logger.
type LogConfig struct {
	DebugLevel int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	File       string `yaml:"file"`         // optional rotating log file, empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`  // rotate after this size
	MaxBackups int    `yaml:"max_backups"`  // rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"` // days to keep rotated files
}

// MaestroConfig describes a Pololu Maestro servo controller on a serial port.
type MaestroConfig struct {
	Port    string `yaml:"port"`    // e.g., "/dev/ttyACM0"
	Baud    int    `yaml:"baud"`    // e.g., 115200
	Device  int    `yaml:"device"`  // device number (Pololu protocol only)
	Compact bool   `yaml:"compact"` // compact protocol (single device on the line)
}

// CANConfig describes the CAN bus used by CAN servo nodes.
type CANConfig struct {
	Interface string `yaml:"interface"`  // e.g., "can0" or "vcan0"
	BaseID    uint32 `yaml:"base_id"`    // frame ID of channel 0
	TimeoutMs int    `yaml:"timeout_ms"` // per-frame transmit timeout
}

// HardwareConfig holds transport-level settings shared by servos.
type HardwareConfig struct {
	Mock          bool          `yaml:"mock"`            // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ServoPowerPin int           `yaml:"servo_power_pin"` // servo rail enable (BCM), active HIGH. 0 = not used.
	Maestro       MaestroConfig `yaml:"maestro"`
	CAN           CANConfig     `yaml:"can"`
}

// ServoConfig describes one named actuator in the hardware map.
type ServoConfig struct {
	Driver     string `yaml:"driver"`       // "pwm", "maestro" or "can"
	Pin        int    `yaml:"pin"`          // BCM pin (pwm)
	Channel    int    `yaml:"channel"`      // controller channel (maestro, can)
	MinPulseUs int    `yaml:"min_pulse_us"` // pulse width at position 0.0
	MaxPulseUs int    `yaml:"max_pulse_us"` // pulse width at position 1.0
	Reverse    bool   `yaml:"reverse"`      // invert direction on the wire
}

// Coefficients are the affine weights of one wrist output.
type Coefficients struct {
	Angle  float64 `yaml:"angle"`
	Tilt   float64 `yaml:"tilt"`
	Offset float64 `yaml:"offset"`
}

// WristConfig binds the wrist to two servos and selects its mapping.
type WristConfig struct {
	LeftServo  string       `yaml:"left_servo"`
	RightServo string       `yaml:"right_servo"`
	Mapping    string       `yaml:"mapping"` // "differential", "mirrored" or "custom"
	Scale      float64      `yaml:"scale"`
	Left       Coefficients `yaml:"left"`  // custom mapping only
	Right      Coefficients `yaml:"right"` // custom mapping only
}

// TeleopConfig tunes the operator control loop.
type TeleopConfig struct {
	Step         float64 `yaml:"step"`      // target change per tick at full stick deflection
	PeriodMs     int     `yaml:"period_ms"` // pause between ticks
	AngleAxis    string  `yaml:"angle_axis"`
	TiltAxis     string  `yaml:"tilt_axis"`
	InvertAngle  bool    `yaml:"invert_angle"`
	InvertTilt   bool    `yaml:"invert_tilt"`
	ResetButton  string  `yaml:"reset_button"`
	StartButton  string  `yaml:"start_button"`
	WaitForStart bool    `yaml:"wait_for_start"`
}

// WebConfig configures the optional operator web UI.
type WebConfig struct {
	Port       int    `yaml:"port"`        // 0 = disabled
	AuthSecret string `yaml:"auth_secret"` // HS256 secret guarding control endpoints, empty = open
}

// Config aggregates all application configuration.
type Config struct {
	Log      LogConfig              `yaml:"log"`
	Hardware HardwareConfig         `yaml:"hardware"`
	Servos   map[string]ServoConfig `yaml:"servos"`
	Wrist    WristConfig            `yaml:"wrist"`
	Teleop   TeleopConfig           `yaml:"teleop"`
	Web      WebConfig              `yaml:"web"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory, without traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, len(data), MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Booleans that default to true are seeded before decoding so an
	// omitted key keeps its default.
	cfg := Config{Teleop: TeleopConfig{WaitForStart: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Wrist.LeftServo == "" {
		c.Wrist.LeftServo = "wristServoLeft"
	}
	if c.Wrist.RightServo == "" {
		c.Wrist.RightServo = "wristServoRight"
	}
	if c.Wrist.Mapping == "" {
		c.Wrist.Mapping = MappingDifferential
	}
	if c.Wrist.Scale == 0 {
		c.Wrist.Scale = 0.75
	}

	if c.Teleop.Step == 0 {
		c.Teleop.Step = 0.02
	}
	if c.Teleop.PeriodMs <= 0 {
		c.Teleop.PeriodMs = 20
	}
	if c.Teleop.AngleAxis == "" {
		c.Teleop.AngleAxis = "left_stick_x"
	}
	if c.Teleop.TiltAxis == "" {
		c.Teleop.TiltAxis = "right_stick_y"
	}
	if c.Teleop.ResetButton == "" {
		c.Teleop.ResetButton = "a"
	}
	if c.Teleop.StartButton == "" {
		c.Teleop.StartButton = "start"
	}

	if c.Hardware.Maestro.Baud <= 0 {
		c.Hardware.Maestro.Baud = 115200
	}
	if c.Hardware.Maestro.Device == 0 {
		c.Hardware.Maestro.Device = 12 // Maestro factory default
	}
	if c.Hardware.CAN.BaseID == 0 {
		c.Hardware.CAN.BaseID = 0x200
	}
	if c.Hardware.CAN.TimeoutMs <= 0 {
		c.Hardware.CAN.TimeoutMs = 10
	}

	for name, s := range c.Servos {
		if s.Driver == "" {
			s.Driver = DriverPWM
		}
		if s.MinPulseUs <= 0 {
			s.MinPulseUs = 500
		}
		if s.MaxPulseUs <= 0 {
			s.MaxPulseUs = 2500
		}
		c.Servos[name] = s
	}
}

func (c *Config) validate() error {
	if c.Log.DebugLevel < 0 || c.Log.DebugLevel > 4 {
		return fmt.Errorf("log.debug_level must be between 0 and 4, got %d", c.Log.DebugLevel)
	}
	if c.Hardware.CAN.BaseID > MaxCANStandardID {
		return fmt.Errorf("hardware.can.base_id must be <= %#x, got %#x", MaxCANStandardID, c.Hardware.CAN.BaseID)
	}

	for name, s := range c.Servos {
		switch s.Driver {
		case DriverPWM:
			if s.Pin <= 0 {
				return fmt.Errorf("servos.%s.pin is required for driver %q", name, s.Driver)
			}
			if s.MaxPulseUs > MaxPWMPulseUs {
				return fmt.Errorf("servos.%s.max_pulse_us must be <= %d for pwm, got %d", name, MaxPWMPulseUs, s.MaxPulseUs)
			}
		case DriverMaestro:
			if c.Hardware.Maestro.Port == "" {
				return fmt.Errorf("servos.%s uses maestro but hardware.maestro.port is empty", name)
			}
			if s.MaxPulseUs > MaxMaestroPulseUs {
				return fmt.Errorf("servos.%s.max_pulse_us must be <= %d for maestro, got %d", name, MaxMaestroPulseUs, s.MaxPulseUs)
			}
		case DriverCAN:
			if c.Hardware.CAN.Interface == "" {
				return fmt.Errorf("servos.%s uses can but hardware.can.interface is empty", name)
			}
			if id := uint64(c.Hardware.CAN.BaseID) + uint64(max(s.Channel, 0)); id > MaxCANStandardID {
				return fmt.Errorf("servos.%s: frame id %#x (hardware.can.base_id + channel) exceeds standard id %#x", name, id, MaxCANStandardID)
			}
		default:
			return fmt.Errorf("servos.%s.driver: unsupported driver %q", name, s.Driver)
		}
		if s.Channel < 0 || s.Channel > 23 {
			return fmt.Errorf("servos.%s.channel must be between 0 and 23, got %d", name, s.Channel)
		}
		if s.MinPulseUs >= s.MaxPulseUs {
			return fmt.Errorf("servos.%s: min_pulse_us (%d) must be < max_pulse_us (%d)", name, s.MinPulseUs, s.MaxPulseUs)
		}
	}

	switch c.Wrist.Mapping {
	case MappingDifferential, MappingMirrored, MappingCustom:
	default:
		return fmt.Errorf("wrist.mapping: unsupported mapping %q", c.Wrist.Mapping)
	}
	if !finite(c.Wrist.Scale) || c.Wrist.Scale <= 0 {
		return fmt.Errorf("wrist.scale must be > 0, got %g", c.Wrist.Scale)
	}
	if c.Wrist.LeftServo == c.Wrist.RightServo {
		return fmt.Errorf("wrist.left_servo and wrist.right_servo must differ, both are %q", c.Wrist.LeftServo)
	}

	if !finite(c.Teleop.Step) || c.Teleop.Step <= 0 || c.Teleop.Step > 1 {
		return fmt.Errorf("teleop.step must be in (0, 1], got %g", c.Teleop.Step)
	}

	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 0-65535, got %d", c.Web.Port)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Period returns the pause between two teleop ticks.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Teleop.PeriodMs) * time.Millisecond
}

// CANTimeout returns the transmit timeout for one CAN frame.
func (c *Config) CANTimeout() time.Duration {
	return time.Duration(c.Hardware.CAN.TimeoutMs) * time.Millisecond
}
