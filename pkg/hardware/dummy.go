package hardware

import (
	"fmt"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

// Dummy is a driver with no hardware behind it; it prints what it is asked
// to do.
type Dummy struct{}

func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) Channel(id string) (pwm.Channel, error) {
	fmt.Printf("DHW: Channel id=%v\n", id)
	return pwm.Dummy(id), nil
}

func (d *Dummy) Close() error {
	fmt.Println("DHW: Close")
	return nil
}

var _ pwm.Driver = (*Dummy)(nil)
