package esc

import (
	"fmt"
	"io"
	"time"

	"github.com/edaniels/golog"
)

// Hardware pulse limits of a servo-style PWM output.  0 means "no pulse".
const (
	HardwareMin = 500
	HardwareMax = 2500

	DefaultControlSpeed = 1500
)

// ValidPulse reports whether p is something the hardware will accept.
func ValidPulse(p int) bool {
	return p == 0 || (p >= HardwareMin && p <= HardwareMax)
}

// ClampHardware limits a commanded speed to the hardware pulse range.
// Speeds at or below zero turn the output off.
func ClampHardware(p int) int {
	switch {
	case p <= 0:
		return 0
	case p < HardwareMin:
		return HardwareMin
	case p > HardwareMax:
		return HardwareMax
	}
	return p
}

// Adjust applies one of the throttle commands i, d, ii or dd to speed.  ok is
// false if cmd is not a throttle command.
func Adjust(speed int, cmd string) (newSpeed int, ok bool) {
	switch cmd {
	case "i":
		return speed + 10, true
	case "d":
		return speed - 10, true
	case "ii":
		return speed + 100, true
	case "dd":
		return speed - 100, true
	}
	return speed, false
}

const throttleHelp = "Choices: d to decrease speed; i to increase speed; " +
	"dd to decrease speed by a lot; ii to increase speed by a lot"

func speedMessage(speed int) string {
	return fmt.Sprintf("speed = %d", speed)
}

// Holds are the timed waits of the calibration and arming sequences.
type Holds struct {
	// Settle1 and Settle2 let the ESC play its confirmation tones.
	Settle1 time.Duration `yaml:"settle1"`
	Settle2 time.Duration `yaml:"settle2"`
	Zero    time.Duration `yaml:"zero"`
	Arm     time.Duration `yaml:"arm"`
}

var DefaultHolds = Holds{
	Settle1: 7 * time.Second,
	Settle2: 5 * time.Second,
	Zero:    2 * time.Second,
	Arm:     time.Second,
}

// RampConfig controls Quadcopter.RampUpDown.
type RampConfig struct {
	MaxSpan   int           `yaml:"max_span"`
	Step      int           `yaml:"step"`
	StepDelay time.Duration `yaml:"step_delay"`
}

var DefaultRampConfig = RampConfig{
	MaxSpan:   100,
	Step:      10,
	StepDelay: 3 * time.Second,
}

const DefaultStartupHold = 4 * time.Second

type options struct {
	log         golog.Logger
	sleep       func(time.Duration)
	closer      io.Closer
	holds       Holds
	ramp        RampConfig
	startupHold time.Duration
	onStage     func(Stage)
}

func defaultOptions(name string, opts []Option) *options {
	o := &options{
		sleep:       time.Sleep,
		holds:       DefaultHolds,
		ramp:        DefaultRampConfig,
		startupHold: DefaultStartupHold,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = golog.NewDevelopmentLogger(name)
	}
	return o
}

// Option configures a Calibration or a Quadcopter.
type Option func(*options)

func WithLogger(l golog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSleep replaces time.Sleep for all timed holds.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithDriver hands over the driver the channels came from; it is closed once
// on Stop.
func WithDriver(c io.Closer) Option {
	return func(o *options) { o.closer = c }
}

func WithHolds(h Holds) Option {
	return func(o *options) { o.holds = h }
}

func WithRamp(r RampConfig) Option {
	return func(o *options) { o.ramp = r }
}

func WithStartupHold(d time.Duration) Option {
	return func(o *options) { o.startupHold = d }
}

// WithStageHook registers fn to be called after every calibration stage
// change, e.g. to play a sound or update a screen.
func WithStageHook(fn func(Stage)) Option {
	return func(o *options) { o.onStage = fn }
}
