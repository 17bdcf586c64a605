package esc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

var ErrInvalidRange = errors.New("invalid range")

type Position int

const (
	TopLeft Position = iota
	TopRight
	BottomLeft
	BottomRight
)

var Positions = [4]Position{TopLeft, TopRight, BottomLeft, BottomRight}

func (p Position) String() string {
	switch p {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	}
	return fmt.Sprintf("position(%d)", int(p))
}

// Limits are the absolute safe pulse bounds of the rig.
type Limits struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

var DefaultLimits = Limits{Min: 700, Max: 2000}

// Ramp is the outcome of RampUpDown.
type Ramp struct {
	Low     int
	High    int
	Aborted bool
}

// Quadcopter drives four ESCs as one.
type Quadcopter struct {
	chans   [4]pwm.Channel
	limits  Limits
	stopped bool

	*options
}

// NewQuadcopter takes ownership of the four channels, indexed by Position,
// zeroes them and waits for the ESCs to come up.
func NewQuadcopter(chans [4]pwm.Channel, limits Limits, opts ...Option) (*Quadcopter, error) {
	if limits.Min < 0 || limits.Min >= limits.Max {
		return nil, errors.Errorf("invalid quadcopter limits %d..%d", limits.Min, limits.Max)
	}
	for _, p := range Positions {
		if chans[p] == nil {
			return nil, errors.Errorf("no channel for %v motor", p)
		}
	}
	q := &Quadcopter{
		chans:   chans,
		limits:  limits,
		options: defaultOptions("quadcopter", opts),
	}
	if err := q.SetValue(0); err != nil {
		return nil, err
	}
	q.sleep(q.startupHold)
	return q, nil
}

func (q *Quadcopter) Limits() Limits {
	return q.limits
}

// SetValue writes pulse to all four motors.  Every motor is written even if
// an earlier one fails.
func (q *Quadcopter) SetValue(pulse uint32) error {
	q.log.Debugw("quadcopter write", "pulse", pulse)
	var err error
	for _, p := range Positions {
		err = multierr.Append(err, q.chans[p].SetPulse(pulse))
	}
	return err
}

// ValidateRange narrows low..high to the rig limits.
func (q *Quadcopter) ValidateRange(low, high int) (int, int, error) {
	if high > q.limits.Max {
		high = q.limits.Max
	}
	if low < q.limits.Min {
		low = q.limits.Min
	}
	if low > high {
		return low, high, errors.Wrapf(ErrInvalidRange, "low %d > high %d", low, high)
	}
	return low, high, nil
}

// RampUpDown steps all motors from low up to high and back down again, then
// stops them.  The span is capped to the configured maximum.  The operator
// has to confirm with an empty line before anything moves.
func (q *Quadcopter) RampUpDown(ctx context.Context, op operator.Operator, low, high int) (Ramp, error) {
	low, high, err := q.ValidateRange(low, high)
	if err != nil {
		return Ramp{}, err
	}
	if high-low > q.ramp.MaxSpan {
		high = low + q.ramp.MaxSpan
	}
	ramp := Ramp{Low: low, High: high}

	answer, err := op.Ask(ctx, "Ramping all motors up and then down... Press ENTER when ready")
	if err != nil {
		return ramp, err
	}
	if answer != "" {
		op.Tell("Aborting...")
		ramp.Aborted = true
		return ramp, nil
	}
	q.log.Infow("ramping", "low", low, "high", high)

	step := q.ramp.Step
	if step <= 0 {
		step = DefaultRampConfig.Step
	}
	top := low
	for v := low; v <= high; v += step {
		if err := q.rampTo(ctx, op, v); err != nil {
			return ramp, multierr.Append(err, q.Stop())
		}
		top = v
	}
	for v := top - step; v >= low; v -= step {
		if err := q.rampTo(ctx, op, v); err != nil {
			return ramp, multierr.Append(err, q.Stop())
		}
	}
	return ramp, q.Stop()
}

func (q *Quadcopter) rampTo(ctx context.Context, op operator.Operator, v int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	op.Tell(fmt.Sprintf("Setting %d...", v))
	if err := q.SetValue(uint32(v)); err != nil {
		return err
	}
	q.sleep(q.ramp.StepDelay)
	return nil
}

// Control lets the operator trim the speed of all four motors together,
// starting at start, until they type stop.
func (q *Quadcopter) Control(ctx context.Context, op operator.Operator, start int) error {
	op.Tell("Starting the motor. Make sure its calibrated and armed. If not, 'stop' and run with 'calibrate'")
	op.Tell(throttleHelp)

	speed := ClampHardware(start)
	for {
		if err := q.SetValue(uint32(speed)); err != nil {
			return multierr.Append(err, q.Stop())
		}
		line, err := op.Ask(ctx, "")
		if err != nil {
			return multierr.Append(errors.Wrap(err, "operator input ended"), q.Stop())
		}
		if line == "stop" {
			return q.Stop()
		}
		next, ok := Adjust(speed, line)
		if !ok {
			op.Tell("Choose stop, d, i, dd or ii as options")
			continue
		}
		speed = ClampHardware(next)
		op.Tell(speedMessage(speed))
	}
}

// Stop zeroes and stops all four motors and closes the driver.  Only the
// first call does anything.
func (q *Quadcopter) Stop() error {
	if q.stopped {
		return nil
	}
	q.stopped = true
	q.log.Info("stopping all motors")
	err := q.SetValue(0)
	for _, p := range Positions {
		err = multierr.Append(err, q.chans[p].Stop())
	}
	if q.closer != nil {
		err = multierr.Append(err, q.closer.Close())
	}
	return err
}
