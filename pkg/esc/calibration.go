package esc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

type Stage int

const (
	Idle Stage = iota
	AwaitBatteryDisconnect
	ArmMax
	ArmMin
	Settling1
	Settling2
	ZeroOut
	Armed
	AwaitBatteryConnect
	Manual
	AutoControl
	Stopped
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitBatteryDisconnect:
		return "await-battery-disconnect"
	case ArmMax:
		return "arm-max"
	case ArmMin:
		return "arm-min"
	case Settling1:
		return "settling-1"
	case Settling2:
		return "settling-2"
	case ZeroOut:
		return "zero-out"
	case Armed:
		return "armed"
	case AwaitBatteryConnect:
		return "await-battery-connect"
	case Manual:
		return "manual"
	case AutoControl:
		return "auto-control"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Calibration walks an operator through calibrating and then driving a single
// ESC.  Feed it operator input with Handle, or let Run do that.
type Calibration struct {
	ch       pwm.Channel
	pulseMin int
	pulseMax int

	stage Stage
	speed int
	tell  func(string)

	*options
}

func NewCalibration(ch pwm.Channel, pulseMin, pulseMax int, opts ...Option) (*Calibration, error) {
	if !ValidPulse(pulseMin) || !ValidPulse(pulseMax) || pulseMin >= pulseMax {
		return nil, errors.Errorf("invalid ESC range %d..%d", pulseMin, pulseMax)
	}
	c := &Calibration{
		ch:       ch,
		pulseMin: pulseMin,
		pulseMax: pulseMax,
		tell:     func(string) {},
		options:  defaultOptions("esc", opts),
	}
	if err := c.write(0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Calibration) Stage() Stage {
	return c.stage
}

// Speed is the pulse being driven in AutoControl.
func (c *Calibration) Speed() int {
	return c.speed
}

// Prompt is what the operator should be shown in the current stage.
func (c *Calibration) Prompt() string {
	switch c.stage {
	case Idle:
		return "When launching for the first time, select calibrate from these options: " +
			"calibrate, manual, control, arm or stop"
	case AwaitBatteryDisconnect:
		return "Disconnect the battery and press Enter"
	case ArmMax:
		return "Connect the battery NOW. You will hear two beeps. " +
			"Wait for a gradual falling tone, then press Enter."
	case Armed:
		return "ESC armed. Press Enter (or control) to start the motor, manual or stop"
	case AwaitBatteryConnect:
		return "Connect the battery and press Enter"
	case Manual:
		return fmt.Sprintf("Manual option: choose value between %d and %d", c.pulseMin, c.pulseMax)
	case AutoControl:
		return ""
	}
	return ""
}

// Handle advances the state machine with one line of operator input.  Input
// that makes no sense in the current stage is ignored.  The only errors are
// from the hardware.
func (c *Calibration) Handle(line string) error {
	if c.stage == Stopped {
		return nil
	}
	if line == "stop" {
		return c.Stop()
	}

	switch c.stage {
	case Idle:
		switch line {
		case "calibrate":
			if err := c.write(0); err != nil {
				return err
			}
			c.setStage(AwaitBatteryDisconnect)
			return nil
		case "manual":
			c.setStage(Manual)
			return nil
		case "arm":
			c.setStage(AwaitBatteryConnect)
			return nil
		case "control":
			return c.startControl()
		}
		c.tell("Invalid option...")
		return nil

	case AwaitBatteryDisconnect:
		if line != "" {
			return nil
		}
		if err := c.write(c.pulseMax); err != nil {
			return err
		}
		c.setStage(ArmMax)
		return nil

	case ArmMax:
		if line != "" {
			return nil
		}
		return c.finishCalibration()

	case AwaitBatteryConnect:
		if line != "" {
			return nil
		}
		return c.arm()

	case Armed:
		switch line {
		case "", "control":
			return c.startControl()
		case "manual":
			c.setStage(Manual)
		case "arm":
			c.setStage(AwaitBatteryConnect)
		}
		return nil

	case Manual:
		switch line {
		case "control":
			return c.startControl()
		case "arm":
			c.setStage(AwaitBatteryConnect)
			return nil
		}
		pulse, err := strconv.Atoi(line)
		if err != nil || !ValidPulse(pulse) {
			c.tell(fmt.Sprintf("Not a valid pulse: %q", line))
			return nil
		}
		return c.write(pulse)

	case AutoControl:
		switch line {
		case "manual":
			c.setStage(Manual)
			return nil
		case "arm":
			c.setStage(AwaitBatteryConnect)
			return nil
		}
		speed, ok := Adjust(c.speed, line)
		if !ok {
			c.tell("Choose d, i, dd or ii as options")
			return nil
		}
		c.speed = ClampHardware(speed)
		c.tell(speedMessage(c.speed))
		return c.write(c.speed)
	}
	return nil
}

// finishCalibration runs the timed tail of the calibration sequence.
func (c *Calibration) finishCalibration() error {
	if err := c.write(c.pulseMin); err != nil {
		return err
	}
	c.setStage(ArmMin)

	c.setStage(Settling1)
	c.tell("Special tone...")
	c.sleep(c.holds.Settle1)

	c.setStage(Settling2)
	c.tell("Wait for it...")
	c.sleep(c.holds.Settle2)

	c.setStage(ZeroOut)
	c.tell("Setting zero as value...")
	if err := c.write(0); err != nil {
		return err
	}
	c.sleep(c.holds.Zero)

	c.tell("Arming ESC now...")
	if err := c.write(c.pulseMin); err != nil {
		return err
	}
	c.sleep(c.holds.Arm)
	c.tell("Done calibrating...")
	c.setStage(Armed)
	return nil
}

func (c *Calibration) arm() error {
	for _, p := range []int{0, c.pulseMax, c.pulseMin} {
		if err := c.write(p); err != nil {
			return err
		}
		c.sleep(c.holds.Arm)
	}
	c.setStage(Armed)
	return nil
}

func (c *Calibration) startControl() error {
	c.tell("Starting the motor. Make sure its calibrated and armed. If not, 'stop' and run with 'calibrate'")
	c.tell(throttleHelp)
	c.speed = DefaultControlSpeed
	c.setStage(AutoControl)
	return c.write(c.speed)
}

// Stop turns the output off and releases the channel and the driver.  Only
// the first call does anything.
func (c *Calibration) Stop() error {
	if c.stage == Stopped {
		return nil
	}
	c.setStage(Stopped)
	err := c.write(0)
	err = multierr.Append(err, c.ch.Stop())
	if c.closer != nil {
		err = multierr.Append(err, c.closer.Close())
	}
	return err
}

// Run drives the state machine from op until the ESC is stopped.  If the
// operator goes away the ESC is stopped before returning.
func (c *Calibration) Run(ctx context.Context, op operator.Operator) error {
	c.tell = op.Tell
	defer func() { c.tell = func(string) {} }()

	for c.stage != Stopped {
		line, err := op.Ask(ctx, c.Prompt())
		if err != nil {
			return multierr.Append(errors.Wrap(err, "operator input ended"), c.Stop())
		}
		if err := c.Handle(line); err != nil {
			return multierr.Append(err, c.Stop())
		}
	}
	return nil
}

func (c *Calibration) write(p int) error {
	c.log.Debugw("esc write", "pulse", p, "stage", c.stage)
	return c.ch.SetPulse(uint32(p))
}

func (c *Calibration) setStage(s Stage) {
	if s == c.stage {
		return
	}
	c.log.Infow("esc stage", "from", c.stage, "to", s)
	c.stage = s
	if c.onStage != nil {
		c.onStage(s)
	}
}
