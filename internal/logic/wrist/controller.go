package wrist

import (
	"fmt"

	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/servo"
)

// Controller drives a differential wrist: two servos that together produce
// rotation (angle) and tilt. It's the layer between operator logic
// (teleop, poses) and the servo transports.
type Controller struct {
	left    servo.Servo
	right   servo.Servo
	mapping Mapping
}

func NewController(left, right servo.Servo, m Mapping) *Controller {
	return &Controller{
		left:    left,
		right:   right,
		mapping: m,
	}
}

// Mapping returns the mapping in use.
func (c *Controller) Mapping() Mapping {
	return c.mapping
}

// SetPosition commands the wrist to (angle, tilt), both in [0, 1];
// out-of-range values are clamped. The left servo is commanded first.
// Errors come only from the servo transports.
func (c *Controller) SetPosition(angle, tilt float64) error {
	left, right := c.mapping.Apply(angle, tilt)
	debug.Trace("Wrist: angle=%.3f tilt=%.3f -> left=%.3f right=%.3f", angle, tilt, left, right)

	if err := c.left.SetPosition(left); err != nil {
		return fmt.Errorf("left servo: %w", err)
	}
	if err := c.right.SetPosition(right); err != nil {
		return fmt.Errorf("right servo: %w", err)
	}
	return nil
}

// SetNeutralAngleWithTilt centers the angle and applies tilt.
func (c *Controller) SetNeutralAngleWithTilt(tilt float64) error {
	return c.SetPosition(Neutral, tilt)
}

// SetNeutralTiltWithAngle applies angle with a neutral tilt.
func (c *Controller) SetNeutralTiltWithAngle(angle float64) error {
	return c.SetPosition(angle, Neutral)
}

// LeftPosition returns the last position commanded to the left servo.
func (c *Controller) LeftPosition() float64 {
	return c.left.Position()
}

// RightPosition returns the last position commanded to the right servo.
func (c *Controller) RightPosition() float64 {
	return c.right.Position()
}
