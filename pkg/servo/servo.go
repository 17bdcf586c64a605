package servo

import (
	"context"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const DefaultHomeAngle = 90.0

// CalibrationConfig controls the sweep search.
type CalibrationConfig struct {
	Start  int           `yaml:"start"`
	Step   int           `yaml:"step"`
	Settle time.Duration `yaml:"settle"`
}

var DefaultCalibrationConfig = CalibrationConfig{
	Start:  400,
	Step:   64,
	Settle: time.Second,
}

// Calibration is the outcome of Motor.Calibrate.
type Calibration struct {
	Min     int
	Max     int
	Aborted bool
}

// Motor is a servo on one PWM channel.  It is not safe for concurrent use.
type Motor struct {
	ch     pwm.Channel
	bounds actuator.Bounds
	angle  float64

	calCfg  CalibrationConfig
	sleep   func(time.Duration)
	log     golog.Logger
	stopped bool
}

type Option func(*Motor)

func WithLogger(l golog.Logger) Option {
	return func(m *Motor) { m.log = l }
}

// WithSleep replaces time.Sleep for the settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Motor) { m.sleep = sleep }
}

func WithCalibration(cfg CalibrationConfig) Option {
	return func(m *Motor) { m.calCfg = cfg }
}

// New takes ownership of ch and moves the servo to home.
func New(ch pwm.Channel, bounds actuator.Bounds, home float64, opts ...Option) (*Motor, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	m := &Motor{
		ch:     ch,
		bounds: bounds,
		calCfg: DefaultCalibrationConfig,
		sleep:  time.Sleep,
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = golog.NewDevelopmentLogger("servo")
	}
	m.angle = bounds.ClampAngle(home)
	if _, _, err := m.SetAngle(m.angle); err != nil {
		return nil, errors.Wrap(err, "failed to move servo home")
	}
	return m, nil
}

func (m *Motor) Angle() float64 {
	return m.angle
}

func (m *Motor) Bounds() actuator.Bounds {
	return m.bounds
}

// SetPulse writes a pulse directly.  Outside calibration the pulse is clamped
// to the bounds and the angle tracks it; while calibrating the raw pulse goes
// out and the angle is left alone.
func (m *Motor) SetPulse(pulse float64, calibrating bool) (float64, uint32, error) {
	applied := actuator.RoundPulse(pulse)
	angle := m.angle
	if !calibrating {
		applied, angle = m.bounds.ClampPulse(float64(applied))
	}
	m.log.Debugw("set pulse", "pulse", applied, "requested", pulse, "calibrating", calibrating)
	if err := m.ch.SetPulse(applied); err != nil {
		return m.angle, applied, err
	}
	m.angle = angle
	return angle, applied, nil
}

// SetAngle turns the servo to an absolute angle in degrees.
func (m *Motor) SetAngle(angle float64) (float64, uint32, error) {
	angle = m.bounds.ClampAngle(angle)
	return m.SetPulse(m.bounds.AngleToPulse(angle), false)
}

// MoveBy turns the servo by delta degrees from where it is.
func (m *Motor) MoveBy(delta float64) (float64, uint32, error) {
	return m.SetAngle(m.angle + delta)
}

func (m *Motor) Stop() error {
	if m.stopped {
		return nil
	}
	m.stopped = true
	m.log.Info("stopping servo")
	return m.ch.Stop()
}

// Calibrate walks the operator through finding the practical pulse extremes.
func (m *Motor) Calibrate(ctx context.Context, op operator.Operator) (Calibration, error) {
	answer, err := op.Ask(ctx, "Calibrating the servo motor. Press Ctrl+C to quit. Continue (y/n)?")
	if err != nil {
		return Calibration{}, err
	}
	if !isYes(answer) {
		op.Tell("Aborting...")
		return Calibration{Aborted: true}, nil
	}

	high, err := m.sweep(ctx, op, NewSweep(m.calCfg.Start, m.calCfg.Step))
	if err != nil {
		return Calibration{}, errors.Wrap(err, "max sweep failed")
	}
	low, err := m.sweep(ctx, op, NewSweep(m.calCfg.Start, -m.calCfg.Step))
	if err != nil {
		return Calibration{}, errors.Wrap(err, "min sweep failed")
	}
	m.log.Infow("calibration done", "min", low, "max", high)
	return Calibration{Min: low, Max: high}, nil
}

func (m *Motor) sweep(ctx context.Context, op operator.Operator, s *Sweep) (int, error) {
	for {
		op.Tell(fmt.Sprintf("Trying new value... %d (step %d)", s.Probe(), s.Delta))
		if err := m.probe(s.Probe()); err != nil {
			return 0, err
		}
		m.sleep(m.calCfg.Settle)

		answer, err := op.Ask(ctx, "Continue (y/n/end/specify PWM value)?")
		if err != nil {
			return 0, err
		}
		if s.Apply(ParseResponse(answer)) {
			op.Tell(fmt.Sprintf("Best servo value = %d", s.Result()))
			if err := m.probe(s.BackOff()); err != nil {
				return 0, err
			}
			return s.Result(), nil
		}

		op.Tell(fmt.Sprintf("Resetting back to... %d", s.ResetValue))
		if err := m.probe(s.ResetValue); err != nil {
			return 0, err
		}
		m.sleep(m.calCfg.Settle)
	}
}

func (m *Motor) probe(v int) error {
	if v < 0 {
		v = 0
	}
	_, _, err := m.SetPulse(float64(v), true)
	return err
}

func isYes(s string) bool {
	return s == "y" || s == "Y"
}
