// Package rpiopwm uses the BCM2835 hardware PWM block through /dev/gpiomem.
// Only GPIO 12, 13, 18 and 19 can do hardware PWM, and 12/18 and 13/19 share
// a PWM channel each.
package rpiopwm

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const (
	// A 1MHz PWM clock makes one count one microsecond.
	ClockFreq = 1000000
	CycleLen  = 20000
)

var pwmPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// Pin is the part of rpio.Pin the driver uses.
type Pin interface {
	Mode(mode rpio.Mode)
	Freq(freq int)
	DutyCycle(dutyLen, cycleLen uint32)
}

type Driver struct {
	pin   func(n int) Pin
	unmap func() error

	lock sync.Mutex
}

// Open maps the GPIO registers.
func Open() (*Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "failed to open /dev/gpiomem")
	}
	return New(func(n int) Pin { return rpio.Pin(n) }, rpio.Close), nil
}

func New(pin func(n int) Pin, unmap func() error) *Driver {
	return &Driver{pin: pin, unmap: unmap}
}

// Channel returns the BCM pin numbered id.
func (d *Driver) Channel(id string) (pwm.Channel, error) {
	n, err := strconv.Atoi(id)
	if err != nil || !pwmPins[n] {
		return nil, errors.Errorf("GPIO %q has no hardware PWM", id)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	p := d.pin(n)
	p.Mode(rpio.Pwm)
	p.Freq(ClockFreq)
	return &channel{d: d, name: id, pin: p}, nil
}

func (d *Driver) Close() error {
	if d.unmap == nil {
		return nil
	}
	return d.unmap()
}

type channel struct {
	d    *Driver
	name string
	pin  Pin
}

func (c *channel) SetPulse(us uint32) error {
	if us > CycleLen {
		us = CycleLen
	}
	c.d.lock.Lock()
	defer c.d.lock.Unlock()
	c.pin.DutyCycle(us, CycleLen)
	return nil
}

func (c *channel) Stop() error {
	return c.SetPulse(0)
}
