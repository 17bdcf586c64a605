// Package maestro talks to a Pololu Maestro USB servo controller using its
// compact serial protocol.
package maestro

import (
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const (
	DefaultPort = "/dev/ttyACM0"
	DefaultBaud = 9600

	NumChannels = 24

	cmdSetTarget = 0x84
)

type Driver struct {
	lock sync.Mutex
	port io.WriteCloser
}

func Open(portName string, baud int) (*Driver, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Maestro on %s", portName)
	}
	return New(port), nil
}

func New(port io.WriteCloser) *Driver {
	return &Driver{port: port}
}

// SetTarget sets a channel's target in quarter microseconds.  0 stops the
// pulses.
func (d *Driver) SetTarget(channel int, quarterUS uint16) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, err := d.port.Write([]byte{
		cmdSetTarget,
		byte(channel),
		byte(quarterUS & 0x7f),
		byte((quarterUS >> 7) & 0x7f),
	})
	return err
}

func (d *Driver) Channel(id string) (pwm.Channel, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 || n >= NumChannels {
		return nil, errors.Errorf("invalid Maestro channel %q", id)
	}
	return &channel{d: d, n: n, name: id}, nil
}

func (d *Driver) Close() error {
	return d.port.Close()
}

type channel struct {
	d    *Driver
	n    int
	name string
}

func (c *channel) SetPulse(us uint32) error {
	target := us * 4
	if target > 0x3fff {
		target = 0x3fff
	}
	return pwm.NewDriverError(c.name, "write", c.d.SetTarget(c.n, uint16(target)))
}

func (c *channel) Stop() error {
	return pwm.NewDriverError(c.name, "stop", c.d.SetTarget(c.n, 0))
}
