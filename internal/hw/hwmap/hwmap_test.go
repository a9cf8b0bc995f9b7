package hwmap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cjeanneret/WristGo/internal/config"
	"github.com/cjeanneret/WristGo/internal/hw/gpio"
	"github.com/cjeanneret/WristGo/internal/hw/servo"
	"go.einride.tech/can"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string
	pin   int
	mode  gpio.PinMode
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin, mode: mode})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) SetPWM(pin int, freq int, duty, cycle uint32) error {
	d.calls = append(d.calls, gpioCall{op: "pwm", pin: pin})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

type fakePort struct {
	bytes.Buffer
	closed bool
}

// Read answers a GET_ERRORS request with "no error".
func (p *fakePort) Read(b []byte) (int, error) {
	return copy(b, []byte{0, 0}), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

type nopTransmitter struct{ n int }

func (t *nopTransmitter) TransmitFrame(ctx context.Context, f can.Frame) error {
	t.n++
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
hardware:
  servo_power_pin: 5
  maestro:
    port: /dev/ttyACM0
    compact: true
  can:
    interface: vcan0
servos:
  wristServoLeft:
    driver: pwm
    pin: 12
  wristServoRight:
    driver: maestro
    channel: 1
  auxA:
    driver: maestro
    channel: 2
  auxCAN:
    driver: can
    channel: 4
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newTestMap(t *testing.T) (*Map, *recordingDriver, *int, *fakePort) {
	drv := &recordingDriver{}
	m := New(testConfig(t), drv)
	opened := 0
	port := &fakePort{}
	m.openMaestro = func(c config.MaestroConfig) (*servo.Maestro, error) {
		opened++
		return servo.NewMaestro(port, c.Device, c.Compact), nil
	}
	m.dialCAN = func(c config.CANConfig) (*servo.CANBus, error) {
		return servo.NewCANBus(&nopTransmitter{}, c.BaseID, 0), nil
	}
	return m, drv, &opened, port
}

func TestMap_UnknownName(t *testing.T) {
	m, _, _, _ := newTestMap(t)
	_, err := m.Servo("clawServo")
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want ErrUnknownDevice", err)
	}
}

func TestMap_ResolvesPWMAndCaches(t *testing.T) {
	m, _, _, _ := newTestMap(t)
	a, err := m.Servo("wristServoLeft")
	if err != nil {
		t.Fatalf("Servo: %v", err)
	}
	if _, ok := a.(*servo.PWM); !ok {
		t.Errorf("wristServoLeft = %T, want *servo.PWM", a)
	}
	b, _ := m.Servo("wristServoLeft")
	if a != b {
		t.Error("second lookup should return the cached servo")
	}
}

func TestMap_PowersRailOnce(t *testing.T) {
	m, drv, _, _ := newTestMap(t)
	_, _ = m.Servo("wristServoLeft")
	_, _ = m.Servo("wristServoRight")

	writes := 0
	for _, c := range drv.calls {
		if c.op == "write" && c.pin == 5 {
			writes++
			if c.level != gpio.High {
				t.Errorf("power pin written %v, want High", c.level)
			}
		}
	}
	if writes != 1 {
		t.Errorf("power pin writes = %d, want 1", writes)
	}
	if drv.calls[0].op != "setup" || drv.calls[0].pin != 5 || drv.calls[0].mode != gpio.Output {
		t.Errorf("first call = %+v, want power pin setup as output", drv.calls[0])
	}
}

func TestMap_SharesMaestroController(t *testing.T) {
	m, _, opened, port := newTestMap(t)
	right, err := m.Servo("wristServoRight")
	if err != nil {
		t.Fatalf("Servo: %v", err)
	}
	if _, err := m.Servo("auxA"); err != nil {
		t.Fatalf("Servo: %v", err)
	}
	if *opened != 1 {
		t.Errorf("maestro opened %d times, want 1", *opened)
	}

	port.Reset()
	if err := right.SetPosition(0.5); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if got := port.Bytes(); len(got) != 4 || got[0] != 0x84 || got[1] != 1 {
		t.Errorf("written = % x, want compact set-target on channel 1", got)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !port.closed {
		t.Error("maestro port should be closed by Map.Close")
	}
}

func TestMap_ResolvesCAN(t *testing.T) {
	m, _, _, _ := newTestMap(t)
	s, err := m.Servo("auxCAN")
	if err != nil {
		t.Fatalf("Servo: %v", err)
	}
	if _, ok := s.(*servo.CANServo); !ok {
		t.Errorf("auxCAN = %T, want *servo.CANServo", s)
	}
}

func TestMap_TransportFailure(t *testing.T) {
	m, _, _, _ := newTestMap(t)
	m.openMaestro = func(c config.MaestroConfig) (*servo.Maestro, error) {
		return nil, errors.New("no such device")
	}
	if _, err := m.Servo("wristServoRight"); err == nil {
		t.Error("expected error when the maestro port cannot be opened")
	}
}
