package wrist

import (
	"fmt"
	"math"

	"github.com/cjeanneret/WristGo/internal/config"
)

// Neutral is the centered angle and the neutral tilt.
const Neutral = 0.5

// Coefficients weigh angle and tilt into one servo output.
type Coefficients struct {
	Angle, Tilt, Offset float64
}

func (c Coefficients) eval(angle, tilt float64) float64 {
	return c.Angle*angle + c.Tilt*tilt + c.Offset
}

// Mapping converts a logical (angle, tilt) pair into two servo positions:
//
//	left  = clamp01(Scale * (L.Angle*angle + L.Tilt*tilt + L.Offset))
//	right = clamp01(Scale * (R.Angle*angle + R.Tilt*tilt + R.Offset))
//
// The coefficients are tuned on the robot, not derived from the linkage.
type Mapping struct {
	Scale       float64
	Left, Right Coefficients
}

// DefaultMapping is the sum/difference linkage: both servos turn together
// for angle and against each other for tilt.
func DefaultMapping() Mapping {
	return Mapping{
		Scale: 0.75,
		Left:  Coefficients{Angle: 1, Tilt: 1},
		Right: Coefficients{Angle: 1, Tilt: -1},
	}
}

// MirroredMapping is for linkages where the right servo is mounted facing
// the other way: angle is reversed on the right and tilt is added to both.
func MirroredMapping() Mapping {
	return Mapping{
		Scale: 0.75,
		Left:  Coefficients{Angle: 1, Tilt: 1},
		Right: Coefficients{Angle: -1, Tilt: 1, Offset: 1},
	}
}

// MappingFromConfig builds the mapping selected by wrist.mapping.
func MappingFromConfig(c config.WristConfig) (Mapping, error) {
	var m Mapping
	switch c.Mapping {
	case config.MappingDifferential, "":
		m = DefaultMapping()
	case config.MappingMirrored:
		m = MirroredMapping()
	case config.MappingCustom:
		m = Mapping{
			Left:  Coefficients{Angle: c.Left.Angle, Tilt: c.Left.Tilt, Offset: c.Left.Offset},
			Right: Coefficients{Angle: c.Right.Angle, Tilt: c.Right.Tilt, Offset: c.Right.Offset},
		}
	default:
		return Mapping{}, fmt.Errorf("unsupported wrist mapping %q", c.Mapping)
	}
	if c.Scale != 0 {
		m.Scale = c.Scale
	}
	return m, nil
}

// Apply clamps angle and tilt to [0, 1] and returns the servo positions,
// each clamped to [0, 1]. It is total: NaN inputs count as 0.
func (m Mapping) Apply(angle, tilt float64) (left, right float64) {
	angle = Clamp01(angle)
	tilt = Clamp01(tilt)
	left = Clamp01(m.Scale * m.Left.eval(angle, tilt))
	right = Clamp01(m.Scale * m.Right.eval(angle, tilt))
	return left, right
}

// Clamp01 bounds v to [0, 1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
