package main

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/WristGo/internal/config"
	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gpio"
	"github.com/cjeanneret/WristGo/internal/hw/hwmap"
	"github.com/cjeanneret/WristGo/internal/logic/wrist"
)

// rig is the opened hardware behind the wrist.
type rig struct {
	gpio  gpio.Driver
	hw    *hwmap.Map
	wrist *wrist.Controller
}

// openRig opens the GPIO driver, resolves both wrist servos by name and
// builds the controller. An unknown servo name is fatal.
func openRig(cfg *config.Config) (*rig, error) {
	debug.Value("Mock GPIO", cfg.Hardware.Mock)
	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Hardware.Mock)
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}
	r := &rig{gpio: g, hw: hwmap.New(cfg, g)}

	debug.Step(2, "Resolving wrist servos")
	left, err := r.hw.Servo(cfg.Wrist.LeftServo)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("wrist.left_servo: %w", err)
	}
	right, err := r.hw.Servo(cfg.Wrist.RightServo)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("wrist.right_servo: %w", err)
	}
	debug.PrintStruct("Left servo config", cfg.Servos[cfg.Wrist.LeftServo])
	debug.PrintStruct("Right servo config", cfg.Servos[cfg.Wrist.RightServo])

	m, err := wrist.MappingFromConfig(cfg.Wrist)
	if err != nil {
		r.Close()
		return nil, err
	}
	debug.PrintStruct("Wrist mapping", m)
	r.wrist = wrist.NewController(left, right, m)
	return r, nil
}

// Close releases the transports then the GPIO driver.
func (r *rig) Close() error {
	err := errors.Join(r.hw.Close(), r.gpio.Close())
	if err != nil {
		debug.Error(fmt.Errorf("closing hardware failed: %w", err))
	}
	return err
}
