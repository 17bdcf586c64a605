package pca9685

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const (
	DefaultAddr = 0x40
	DefaultDev  = "/dev/i2c-1"

	NumPorts = 16

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.
	RegTestMode = 0xff

	PWMPeriod = 20 * time.Millisecond

	PWMMax = 4095

	// Setting bit 4 of the high off byte holds the output low.
	fullOff = 0x10
)

// Registers is the part of an I2C device the chip needs.  *i2c.Device
// satisfies it.
type Registers interface {
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type Interface interface {
	Configure() error
	// SetCounts sets the off time of port in 12-bit counts of the 20ms period.
	SetCounts(port int, counts uint16) error
	// SetPulse sets the pulse width of port in microseconds.
	SetPulse(port int, us uint32) error
	Off(port int) error
	Close() error
}

type PCA9685 struct {
	dev Registers
}

func New(deviceFile string, addr int) (Interface, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open PCA9685 on %s", deviceFile)
	}
	return NewWithRegisters(dev), nil
}

func NewWithRegisters(dev Registers) *PCA9685 {
	return &PCA9685{
		dev: dev,
	}
}

func (p *PCA9685) Configure() (err error) {
	// Put device to sleep.
	err = p.dev.WriteReg(RegMode1, []byte{0x11})
	if err != nil {
		return
	}
	// Update pre-scaler for 50Hz.
	err = p.dev.WriteReg(RegPreScale, []byte{0x79})
	if err != nil {
		return
	}
	// Trigger a reset
	err = p.dev.WriteReg(RegMode1, []byte{0x01})
	if err != nil {
		return
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	// Enable.
	err = p.dev.WriteReg(RegMode1, []byte{0x81})
	return
}

// PulseToCounts converts a pulse width to counts at the 50Hz frame rate.
func PulseToCounts(us uint32) uint16 {
	counts := float64(us) * PWMMax / float64(PWMPeriod/time.Microsecond)
	if counts > PWMMax {
		return PWMMax
	}
	return uint16(counts + 0.5)
}

func (p *PCA9685) SetPulse(port int, us uint32) error {
	return p.SetCounts(port, PulseToCounts(us))
}

func (p *PCA9685) SetCounts(port int, counts uint16) error {
	if port < 0 || port >= NumPorts {
		return errors.Errorf("PWM port out of range: %d", port)
	}
	if counts > PWMMax {
		counts = PWMMax
	}
	addr := RegLEDBase + port*4
	return p.dev.WriteReg(byte(addr), []byte{0, 0, byte(counts & 0xff), byte(counts >> 8)})
}

func (p *PCA9685) Off(port int) error {
	if port < 0 || port >= NumPorts {
		return errors.Errorf("PWM port out of range: %d", port)
	}
	addr := RegLEDBase + port*4
	return p.dev.WriteReg(byte(addr), []byte{0, 0, 0, fullOff})
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}

func Dummy() Interface {
	return &dummyBoard{}
}

type dummyBoard struct {
}

func (*dummyBoard) Configure() error {
	fmt.Println("DPCA: Configure")
	return nil
}

func (*dummyBoard) SetCounts(port int, counts uint16) error {
	fmt.Printf("DPCA: SetCounts port=%v counts=%v\n", port, counts)
	return nil
}

func (*dummyBoard) SetPulse(port int, us uint32) error {
	fmt.Printf("DPCA: SetPulse port=%v us=%v\n", port, us)
	return nil
}

func (*dummyBoard) Off(port int) error {
	fmt.Printf("DPCA: Off port=%v\n", port)
	return nil
}

func (*dummyBoard) Close() error {
	return nil
}

// Driver exposes the ports of a board as pwm channels named "0" to "15".
// With RawCounts set, channel values are 12-bit counts rather than
// microseconds.
type Driver struct {
	board     Interface
	RawCounts bool

	lock sync.Mutex
}

func NewDriver(board Interface, rawCounts bool) *Driver {
	return &Driver{board: board, RawCounts: rawCounts}
}

func (d *Driver) Channel(id string) (pwm.Channel, error) {
	port, err := strconv.Atoi(id)
	if err != nil || port < 0 || port >= NumPorts {
		return nil, errors.Errorf("invalid PCA9685 channel %q", id)
	}
	return &channel{d: d, port: port, name: id}, nil
}

func (d *Driver) Close() error {
	return d.board.Close()
}

type channel struct {
	d    *Driver
	port int
	name string
}

func (c *channel) SetPulse(v uint32) error {
	c.d.lock.Lock()
	defer c.d.lock.Unlock()
	var err error
	switch {
	case v == 0:
		err = c.d.board.Off(c.port)
	case c.d.RawCounts:
		if v > PWMMax {
			v = PWMMax
		}
		err = c.d.board.SetCounts(c.port, uint16(v))
	default:
		err = c.d.board.SetPulse(c.port, v)
	}
	return pwm.NewDriverError(c.name, "write", err)
}

func (c *channel) Stop() error {
	c.d.lock.Lock()
	defer c.d.lock.Unlock()
	return pwm.NewDriverError(c.name, "stop", c.d.board.Off(c.port))
}
