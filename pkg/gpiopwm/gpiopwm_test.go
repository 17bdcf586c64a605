package gpiopwm

import (
	"testing"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

type fakePin struct {
	duty   gpio.Duty
	freq   physic.Frequency
	level  gpio.Level
	outs   int
	halted bool
	err    error
}

func (f *fakePin) Out(l gpio.Level) error {
	f.level = l
	f.outs++
	return f.err
}

func (f *fakePin) PWM(duty gpio.Duty, freq physic.Frequency) error {
	f.duty, f.freq = duty, freq
	return f.err
}

func (f *fakePin) Halt() error {
	f.halted = true
	return nil
}

func TestDutyForPulse(t *testing.T) {
	if DutyForPulse(0) != 0 {
		t.Errorf("Expected 0 duty for 0us")
	}
	if DutyForPulse(10000) != gpio.DutyMax/2 {
		t.Errorf("Expected half duty for 10ms, got %v", DutyForPulse(10000))
	}
	if DutyForPulse(30000) != gpio.DutyMax {
		t.Errorf("Expected full duty beyond the period")
	}
}

func TestChannels(t *testing.T) {
	pin := &fakePin{}
	d := New(func(name string) Pin {
		if name == "GPIO17" {
			return pin
		}
		return nil
	})

	if _, err := d.Channel("GPIO99"); err == nil {
		t.Errorf("Expected unknown pin to be rejected")
	}
	ch, err := d.Channel("GPIO17")
	if err != nil {
		t.Fatal(err)
	}

	if err := ch.SetPulse(1500); err != nil {
		t.Fatal(err)
	}
	if pin.duty != DutyForPulse(1500) || pin.freq != Frequency {
		t.Errorf("Unexpected PWM %v at %v", pin.duty, pin.freq)
	}

	if err := ch.SetPulse(0); err != nil || pin.outs != 1 || pin.level != gpio.Low {
		t.Errorf("Expected a zero pulse to drive the pin low")
	}
	if err := ch.Stop(); err != nil || pin.outs != 2 {
		t.Errorf("Expected stop to drive the pin low")
	}

	if err := d.Close(); err != nil || !pin.halted {
		t.Errorf("Expected close to halt the pin")
	}
}

func TestPinErrors(t *testing.T) {
	pin := &fakePin{err: errors.New("not exported")}
	ch, _ := New(func(string) Pin { return pin }).Channel("12")
	if !pwm.IsDriverError(ch.SetPulse(1000)) {
		t.Errorf("Expected a driver error")
	}
}
