package gamepad

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Axis identifies an analog stick axis. Values are in [-1, 1]; the sign
// convention is the device's (browsers report stick "up" as negative Y).
type Axis int

const (
	LeftStickX Axis = iota
	LeftStickY
	RightStickX
	RightStickY
	numAxes
)

var axisNames = [...]string{"left_stick_x", "left_stick_y", "right_stick_x", "right_stick_y"}

func (a Axis) String() string {
	if a < 0 || a >= numAxes {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return axisNames[a]
}

// ParseAxis maps a config name such as "left_stick_x" to an Axis.
func ParseAxis(s string) (Axis, error) {
	for i, n := range axisNames {
		if strings.EqualFold(s, n) {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gamepad axis %q", s)
}

// Button identifies a digital button.
type Button int

const (
	A Button = iota
	B
	X
	Y
	Start
	Back
	numButtons
)

var buttonNames = [...]string{"a", "b", "x", "y", "start", "back"}

func (b Button) String() string {
	if b < 0 || b >= numButtons {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

// ParseButton maps a config name such as "a" or "start" to a Button.
func ParseButton(s string) (Button, error) {
	for i, n := range buttonNames {
		if strings.EqualFold(s, n) {
			return Button(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gamepad button %q", s)
}

// Gamepad is a polled operator input device.
type Gamepad interface {
	Axis(a Axis) float64
	Button(b Button) bool
}

// State is a snapshot of a gamepad, as sent by a remote controller.
type State struct {
	LeftStickX  float64 `json:"left_stick_x"`
	LeftStickY  float64 `json:"left_stick_y"`
	RightStickX float64 `json:"right_stick_x"`
	RightStickY float64 `json:"right_stick_y"`
	A           bool    `json:"a"`
	B           bool    `json:"b"`
	X           bool    `json:"x"`
	Y           bool    `json:"y"`
	Start       bool    `json:"start"`
	Back        bool    `json:"back"`
}

// Virtual is a Gamepad whose state is pushed from elsewhere (the web
// control socket). It is safe for concurrent use.
type Virtual struct {
	mu    sync.RWMutex
	state State
}

// NewVirtual returns a released gamepad: sticks centered, no button held.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Set replaces the current state. Axes are clamped to [-1, 1]; NaN becomes 0.
func (v *Virtual) Set(s State) {
	s.LeftStickX = clampAxis(s.LeftStickX)
	s.LeftStickY = clampAxis(s.LeftStickY)
	s.RightStickX = clampAxis(s.RightStickX)
	s.RightStickY = clampAxis(s.RightStickY)

	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// Release centers the sticks and releases every button, as when the
// controller disconnects.
func (v *Virtual) Release() {
	v.Set(State{})
}

// State returns the current snapshot.
func (v *Virtual) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *Virtual) Axis(a Axis) float64 {
	s := v.State()
	switch a {
	case LeftStickX:
		return s.LeftStickX
	case LeftStickY:
		return s.LeftStickY
	case RightStickX:
		return s.RightStickX
	case RightStickY:
		return s.RightStickY
	}
	return 0
}

func (v *Virtual) Button(b Button) bool {
	s := v.State()
	switch b {
	case A:
		return s.A
	case B:
		return s.B
	case X:
		return s.X
	case Y:
		return s.Y
	case Start:
		return s.Start
	case Back:
		return s.Back
	}
	return false
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// ButtonReader detects presses by comparing the state sampled on this
// tick with the state sampled on the previous one.
type ButtonReader struct {
	prev, curr bool
}

// Read samples the button. Call it exactly once per tick.
func (r *ButtonReader) Read(pressed bool) {
	r.prev = r.curr
	r.curr = pressed
}

// WasJustPressed reports a released-to-pressed transition between the
// last two samples.
func (r *ButtonReader) WasJustPressed() bool {
	return r.curr && !r.prev
}

// WasJustReleased reports a pressed-to-released transition between the
// last two samples.
func (r *ButtonReader) WasJustReleased() bool {
	return !r.curr && r.prev
}

// IsDown reports the latest sample.
func (r *ButtonReader) IsDown() bool {
	return r.curr
}
