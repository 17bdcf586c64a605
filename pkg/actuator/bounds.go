package actuator

import (
	"math"

	"github.com/pkg/errors"
)

const (
	MinAngle = 0.0
	MaxAngle = 180.0
)

var ErrInvalidBounds = errors.New("invalid actuator bounds")

// Bounds is the valid pulse range and the matching logical angle range of one
// actuator.  The zero value is not usable; construct with NewBounds.
type Bounds struct {
	PulseMin uint32
	PulseMax uint32
	AngleMin float64
	AngleMax float64
}

func NewBounds(pulseMin, pulseMax uint32, angleMin, angleMax float64) (Bounds, error) {
	b := Bounds{
		PulseMin: pulseMin,
		PulseMax: pulseMax,
		AngleMin: angleMin,
		AngleMax: angleMax,
	}
	return b, b.Validate()
}

func (b Bounds) Validate() error {
	if b.PulseMin >= b.PulseMax {
		return errors.Wrapf(ErrInvalidBounds, "pulse range %d..%d", b.PulseMin, b.PulseMax)
	}
	if math.IsNaN(b.AngleMin) || math.IsNaN(b.AngleMax) ||
		b.AngleMin < MinAngle || b.AngleMin >= b.AngleMax || b.AngleMax > MaxAngle {
		return errors.Wrapf(ErrInvalidBounds, "angle range %v..%v", b.AngleMin, b.AngleMax)
	}
	return nil
}

// AngleToPulse maps an angle, which the caller must already have clamped, onto
// the pulse range.
func (b Bounds) AngleToPulse(angle float64) float64 {
	return float64(b.PulseMin) + (angle-b.AngleMin)*b.pulseSpan()/b.angleSpan()
}

func (b Bounds) PulseToAngle(pulse float64) float64 {
	return b.AngleMin + (pulse-float64(b.PulseMin))*b.angleSpan()/b.pulseSpan()
}

// ClampPulse limits pulse to the valid range and returns the pulse to write
// along with the angle it corresponds to.
func (b Bounds) ClampPulse(pulse float64) (uint32, float64) {
	if pulse >= float64(b.PulseMax) {
		return b.PulseMax, b.AngleMax
	}
	if pulse <= float64(b.PulseMin) {
		return b.PulseMin, b.AngleMin
	}
	return RoundPulse(pulse), b.PulseToAngle(pulse)
}

func (b Bounds) ClampAngle(angle float64) float64 {
	if angle < b.AngleMin {
		return b.AngleMin
	}
	if angle > b.AngleMax {
		return b.AngleMax
	}
	return angle
}

func (b Bounds) pulseSpan() float64 {
	return float64(b.PulseMax) - float64(b.PulseMin)
}

func (b Bounds) angleSpan() float64 {
	return b.AngleMax - b.AngleMin
}

// RoundPulse rounds to the nearest whole microsecond.  An exact half rounds
// down, towards the shorter pulse.  Negative values become 0.
func RoundPulse(p float64) uint32 {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	if p >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(math.Ceil(p - 0.5))
}
