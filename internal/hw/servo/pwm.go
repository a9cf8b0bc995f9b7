package servo

import (
	"fmt"
	"math"

	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gpio"
)

const (
	frameHz    = 50    // standard servo frame rate (20ms)
	cycleTicks = 20000 // ticks per frame, 1µs resolution
)

// PWM is a servo driven directly by a GPIO PWM channel.
type PWM struct {
	name  string
	gpio  gpio.Driver
	pin   int
	pulse Pulse
	pos   float64
}

// NewPWM configures pin for PWM output. The servo does not move until the
// first SetPosition.
func NewPWM(name string, g gpio.Driver, pin int, pulse Pulse) (*PWM, error) {
	if err := g.SetupPin(pin, gpio.PWM); err != nil {
		return nil, fmt.Errorf("servo %s: setup pin %d: %w", name, pin, err)
	}
	return &PWM{
		name:  name,
		gpio:  g,
		pin:   pin,
		pulse: pulse,
		pos:   math.NaN(),
	}, nil
}

// SetPosition drives the pulse width for pos.
func (s *PWM) SetPosition(pos float64) error {
	pos = clamp01(pos)
	debug.Servo(s.name, pos)

	width := s.pulse.Width(pos)
	if err := s.gpio.SetPWM(s.pin, frameHz*cycleTicks, uint32(width), cycleTicks); err != nil {
		return fmt.Errorf("servo %s: %w", s.name, err)
	}
	s.pos = pos
	return nil
}

// Position returns the last commanded position.
func (s *PWM) Position() float64 {
	return s.pos
}
