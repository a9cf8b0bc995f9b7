package hwmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/WristGo/internal/config"
	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gpio"
	"github.com/cjeanneret/WristGo/internal/hw/servo"
)

// ErrUnknownDevice is returned when a logical name has no configuration.
var ErrUnknownDevice = errors.New("unknown device")

// Map resolves logical actuator names (e.g. "wristServoLeft") to servos
// built from configuration. Servos and the transports they share are
// created on first use and cached.
type Map struct {
	cfg  *config.Config
	gpio gpio.Driver

	servos  map[string]servo.Servo
	maestro *servo.Maestro
	can     *servo.CANBus
	powered bool

	// overridable for tests
	openMaestro func(c config.MaestroConfig) (*servo.Maestro, error)
	dialCAN     func(c config.CANConfig) (*servo.CANBus, error)
}

// New creates a hardware map over cfg. g drives PWM servos and the servo
// power pin; it is not closed by Map.Close.
func New(cfg *config.Config, g gpio.Driver) *Map {
	m := &Map{
		cfg:    cfg,
		gpio:   g,
		servos: make(map[string]servo.Servo),
	}
	m.openMaestro = func(c config.MaestroConfig) (*servo.Maestro, error) {
		return servo.OpenMaestro(c.Port, c.Baud, c.Device, c.Compact)
	}
	m.dialCAN = func(c config.CANConfig) (*servo.CANBus, error) {
		return servo.DialCAN(context.Background(), c.Interface, c.BaseID, cfg.CANTimeout())
	}
	return m
}

// Servo returns the servo configured under name.
func (m *Map) Servo(name string) (servo.Servo, error) {
	if s, ok := m.servos[name]; ok {
		return s, nil
	}
	sc, ok := m.cfg.Servos[name]
	if !ok {
		return nil, fmt.Errorf("%w: servo %q", ErrUnknownDevice, name)
	}

	if err := m.powerOn(); err != nil {
		return nil, err
	}

	pulse := servo.Pulse{MinUs: sc.MinPulseUs, MaxUs: sc.MaxPulseUs, Reverse: sc.Reverse}

	var s servo.Servo
	switch sc.Driver {
	case config.DriverPWM:
		p, err := servo.NewPWM(name, m.gpio, sc.Pin, pulse)
		if err != nil {
			return nil, err
		}
		s = p
	case config.DriverMaestro:
		ctrl, err := m.maestroController()
		if err != nil {
			return nil, err
		}
		s = ctrl.Servo(name, sc.Channel, pulse)
	case config.DriverCAN:
		bus, err := m.canBus()
		if err != nil {
			return nil, err
		}
		s = bus.Servo(name, sc.Channel, sc.Reverse)
	default:
		return nil, fmt.Errorf("servo %q: unsupported driver %q", name, sc.Driver)
	}

	debug.Info("Resolved servo %q (%s)", name, sc.Driver)
	debug.PrintStruct("Servo "+name, sc)
	m.servos[name] = s
	return s, nil
}

// powerOn enables the servo rail once, before the first servo is built.
func (m *Map) powerOn() error {
	pin := m.cfg.Hardware.ServoPowerPin
	if m.powered || pin <= 0 {
		return nil
	}
	if err := m.gpio.SetupPin(pin, gpio.Output); err != nil {
		return fmt.Errorf("servo power pin %d: %w", pin, err)
	}
	if err := m.gpio.WritePin(pin, gpio.High); err != nil {
		return fmt.Errorf("servo power pin %d: %w", pin, err)
	}
	debug.Verbose("Servo power enabled on pin %d", pin)
	m.powered = true
	return nil
}

func (m *Map) maestroController() (*servo.Maestro, error) {
	if m.maestro != nil {
		return m.maestro, nil
	}
	ctrl, err := m.openMaestro(m.cfg.Hardware.Maestro)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Errors(); err != nil {
		// stale errors from a previous session are cleared by the read
		debug.Error(err)
	}
	m.maestro = ctrl
	return ctrl, nil
}

func (m *Map) canBus() (*servo.CANBus, error) {
	if m.can != nil {
		return m.can, nil
	}
	bus, err := m.dialCAN(m.cfg.Hardware.CAN)
	if err != nil {
		return nil, err
	}
	m.can = bus
	return bus, nil
}

// Close closes the serial and CAN transports opened by the map.
func (m *Map) Close() error {
	var errs []error
	if m.maestro != nil {
		errs = append(errs, m.maestro.Close())
		m.maestro = nil
	}
	if m.can != nil {
		errs = append(errs, m.can.Close())
		m.can = nil
	}
	return errors.Join(errs...)
}
