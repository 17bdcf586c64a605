// Package gpiopwm drives servos and ESCs straight from Raspberry Pi GPIO pins
// using periph.
package gpiopwm

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const (
	Frequency = 50 * physic.Hertz
	periodUS  = 20000
)

// Pin is the part of a gpio.PinIO the driver uses.
type Pin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

type Driver struct {
	lookup func(name string) Pin

	lock sync.Mutex
	used map[string]Pin
}

// Open initialises the periph host drivers and returns a driver whose
// channels are GPIO names as known to gpioreg, e.g. "GPIO17" or "17".
func Open() (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise periph")
	}
	return New(func(name string) Pin {
		if p := gpioreg.ByName(name); p != nil {
			return p
		}
		return nil
	}), nil
}

func New(lookup func(name string) Pin) *Driver {
	return &Driver{
		lookup: lookup,
		used:   map[string]Pin{},
	}
}

// DutyForPulse converts a pulse width to a duty cycle at 50Hz.
func DutyForPulse(us uint32) gpio.Duty {
	if us >= periodUS {
		return gpio.DutyMax
	}
	return gpio.Duty(int64(gpio.DutyMax) * int64(us) / periodUS)
}

func (d *Driver) Channel(id string) (pwm.Channel, error) {
	p := d.lookup(id)
	if p == nil {
		return nil, errors.Errorf("no such GPIO pin %q", id)
	}
	d.lock.Lock()
	d.used[id] = p
	d.lock.Unlock()
	return &channel{name: id, pin: p}, nil
}

// Close halts every pin that was handed out.
func (d *Driver) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	var err error
	for name, p := range d.used {
		if e := p.Halt(); e != nil && err == nil {
			err = pwm.NewDriverError(name, "halt", e)
		}
	}
	d.used = map[string]Pin{}
	return err
}

type channel struct {
	name string
	pin  Pin
}

func (c *channel) SetPulse(us uint32) error {
	if us == 0 {
		return pwm.NewDriverError(c.name, "write", c.pin.Out(gpio.Low))
	}
	return pwm.NewDriverError(c.name, "write", c.pin.PWM(DutyForPulse(us), Frequency))
}

func (c *channel) Stop() error {
	return pwm.NewDriverError(c.name, "stop", c.pin.Out(gpio.Low))
}
