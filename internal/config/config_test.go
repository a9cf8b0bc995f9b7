package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
log:
  debug_level: 2
hardware:
  mock: true
  servo_power_pin: 5
  maestro:
    port: /dev/ttyACM0
  can:
    interface: vcan0
    base_id: 0x300
servos:
  wristServoLeft:
    driver: pwm
    pin: 12
  wristServoRight:
    driver: maestro
    channel: 1
    reverse: true
  spareServo:
    driver: can
    channel: 2
    min_pulse_us: 1000
    max_pulse_us: 2000
wrist:
  mapping: differential
  scale: 0.75
teleop:
  step: 0.05
  period_ms: 25
  angle_axis: left_stick_x
  tilt_axis: right_stick_y
  invert_tilt: true
  reset_button: b
web:
  port: 8080
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(cfg.Servos); got != 3 {
		t.Fatalf("servos = %d, want 3", got)
	}
	left := cfg.Servos["wristServoLeft"]
	if left.Driver != DriverPWM || left.Pin != 12 {
		t.Errorf("left servo = %+v, want pwm on pin 12", left)
	}
	right := cfg.Servos["wristServoRight"]
	if right.Driver != DriverMaestro || right.Channel != 1 || !right.Reverse {
		t.Errorf("right servo = %+v, want reversed maestro channel 1", right)
	}
	if cfg.Hardware.CAN.BaseID != 0x300 {
		t.Errorf("can.base_id = %#x, want 0x300", cfg.Hardware.CAN.BaseID)
	}
	if cfg.Teleop.Step != 0.05 {
		t.Errorf("teleop.step = %v, want 0.05", cfg.Teleop.Step)
	}
	if cfg.Teleop.ResetButton != "b" {
		t.Errorf("teleop.reset_button = %q, want \"b\"", cfg.Teleop.ResetButton)
	}
	if !cfg.Teleop.InvertTilt {
		t.Error("teleop.invert_tilt should be true")
	}
	if cfg.Period() != 25*time.Millisecond {
		t.Errorf("Period() = %v, want 25ms", cfg.Period())
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("web.port = %d, want 8080", cfg.Web.Port)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
servos:
  wristServoLeft:
    pin: 12
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Wrist.LeftServo != "wristServoLeft" || cfg.Wrist.RightServo != "wristServoRight" {
		t.Errorf("wrist servos = %q/%q, want wristServoLeft/wristServoRight", cfg.Wrist.LeftServo, cfg.Wrist.RightServo)
	}
	if cfg.Wrist.Mapping != MappingDifferential {
		t.Errorf("wrist.mapping default = %q, want %q", cfg.Wrist.Mapping, MappingDifferential)
	}
	if cfg.Wrist.Scale != 0.75 {
		t.Errorf("wrist.scale default = %v, want 0.75", cfg.Wrist.Scale)
	}
	if cfg.Teleop.Step != 0.02 {
		t.Errorf("teleop.step default = %v, want 0.02", cfg.Teleop.Step)
	}
	if cfg.Period() != 20*time.Millisecond {
		t.Errorf("Period() default = %v, want 20ms", cfg.Period())
	}
	if cfg.Teleop.AngleAxis != "left_stick_x" || cfg.Teleop.TiltAxis != "right_stick_y" {
		t.Errorf("axes default = %q/%q", cfg.Teleop.AngleAxis, cfg.Teleop.TiltAxis)
	}
	if cfg.Teleop.ResetButton != "a" || cfg.Teleop.StartButton != "start" {
		t.Errorf("buttons default = %q/%q", cfg.Teleop.ResetButton, cfg.Teleop.StartButton)
	}
	s := cfg.Servos["wristServoLeft"]
	if s.Driver != DriverPWM || s.MinPulseUs != 500 || s.MaxPulseUs != 2500 {
		t.Errorf("servo defaults = %+v", s)
	}
	if cfg.Hardware.Maestro.Baud != 115200 {
		t.Errorf("maestro.baud default = %d, want 115200", cfg.Hardware.Maestro.Baud)
	}
	if cfg.CANTimeout() != 10*time.Millisecond {
		t.Errorf("CANTimeout() default = %v, want 10ms", cfg.CANTimeout())
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"debug_level_too_high", "log:\n  debug_level: 5\n"},
		{"unknown_driver", "servos:\n  s:\n    driver: stepper\n    pin: 1\n"},
		{"pwm_without_pin", "servos:\n  s:\n    driver: pwm\n"},
		{"maestro_without_port", "servos:\n  s:\n    driver: maestro\n"},
		{"can_without_interface", "servos:\n  s:\n    driver: can\n"},
		{"channel_out_of_range", "hardware:\n  maestro:\n    port: /dev/ttyACM0\nservos:\n  s:\n    driver: maestro\n    channel: 24\n"},
		{"inverted_pulse_range", "servos:\n  s:\n    pin: 12\n    min_pulse_us: 2000\n    max_pulse_us: 1000\n"},
		{"unknown_mapping", "wrist:\n  mapping: planetary\n"},
		{"negative_scale", "wrist:\n  scale: -0.5\n"},
		{"same_servo_twice", "wrist:\n  left_servo: a\n  right_servo: a\n"},
		{"step_too_large", "teleop:\n  step: 2\n"},
		{"negative_step", "teleop:\n  step: -0.02\n"},
		{"web_port_too_large", "web:\n  port: 70000\n"},
		{"pwm_pulse_past_frame", "servos:\n  s:\n    pin: 12\n    max_pulse_us: 20000\n"},
		{"maestro_pulse_past_14_bits", "hardware:\n  maestro:\n    port: /dev/ttyACM0\nservos:\n  s:\n    driver: maestro\n    max_pulse_us: 5000\n"},
		{"can_base_id_extended", "hardware:\n  can:\n    base_id: 0x800\n"},
		{"can_id_past_standard_range", "hardware:\n  can:\n    interface: vcan0\n    base_id: 0x7F0\nservos:\n  s:\n    driver: can\n    channel: 16\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

func TestLoad_PulseAtTransportLimit(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
hardware:
  maestro:
    port: /dev/ttyACM0
  can:
    interface: vcan0
    base_id: 0x7F0
servos:
  m:
    driver: maestro
    max_pulse_us: 4095
  p:
    pin: 12
    max_pulse_us: 19999
  c:
    driver: can
    channel: 15
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Servos["m"].MaxPulseUs != MaxMaestroPulseUs {
		t.Errorf("maestro max_pulse_us = %d", cfg.Servos["m"].MaxPulseUs)
	}
}

func TestLoad_WaitForStart(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want bool
	}{
		{"omitted", "teleop:\n  step: 0.05\n", true},
		{"no_teleop_section", "log:\n  debug_level: 1\n", true},
		{"explicit_false", "teleop:\n  wait_for_start: false\n", false},
		{"explicit_true", "teleop:\n  wait_for_start: true\n", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.yaml))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Teleop.WaitForStart != tc.want {
				t.Errorf("teleop.wait_for_start = %v, want %v", cfg.Teleop.WaitForStart, tc.want)
			}
		})
	}
}

func TestLoad_ErrorNamesKey(t *testing.T) {
	_, err := Load(writeConfig(t, "servos:\n  wristServoLeft:\n    driver: pwm\n"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "servos.wristServoLeft.pin") {
		t.Errorf("error %q should name servos.wristServoLeft.pin", err)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load with defaults, got: %v", err)
	}
	if cfg.Teleop.Step != 0.02 {
		t.Errorf("teleop.step = %v, want 0.02", cfg.Teleop.Step)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	if _, err := Load(writeConfig(t, "unknown_section:\n  foo: bar\n")); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestParse_CustomMapping(t *testing.T) {
	cfg, err := Parse([]byte(`
wrist:
  mapping: custom
  scale: 0.5
  left: {angle: 1, tilt: 0.5, offset: 0.1}
  right: {angle: -1, tilt: 0.5, offset: 1}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Coefficients{Angle: -1, Tilt: 0.5, Offset: 1}
	if cfg.Wrist.Right != want {
		t.Errorf("wrist.right = %+v, want %+v", cfg.Wrist.Right, want)
	}
	if cfg.Wrist.Scale != 0.5 {
		t.Errorf("wrist.scale = %v, want 0.5", cfg.Wrist.Scale)
	}
}
