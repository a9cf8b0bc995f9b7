package servo

import "math"

// Servo is a position-controlled actuator commanded with a normalized
// position in [0.0, 1.0]. Out-of-range commands are clamped.
//
// Position reports the last successfully commanded position (an echo of the
// command, not a measurement). It is NaN until the first command.
type Servo interface {
	SetPosition(pos float64) error
	Position() float64
}

// Pulse describes how a logical position becomes a control pulse.
type Pulse struct {
	MinUs   int  // pulse width at position 0.0
	MaxUs   int  // pulse width at position 1.0
	Reverse bool // position 0.0 drives MaxUs
}

// DefaultPulse covers the usual 500-2500µs range of hobby servos.
var DefaultPulse = Pulse{MinUs: 500, MaxUs: 2500}

// Width returns the pulse width in microseconds for pos.
func (p Pulse) Width(pos float64) int {
	pos = wire(pos, p.Reverse)
	return int(math.Round(float64(p.MinUs) + pos*float64(p.MaxUs-p.MinUs)))
}

// clamp01 bounds v to [0, 1]; NaN becomes 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// wire converts a logical position to the value sent on the wire.
func wire(pos float64, reverse bool) float64 {
	pos = clamp01(pos)
	if reverse {
		return 1 - pos
	}
	return pos
}
