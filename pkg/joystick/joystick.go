package joystick

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// EventType is the js event type with the init bit masked off.
type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2
)

// Button and axis numbers as a DualShock 4 reports them through the hid
// driver.  The d-pad is an axis: up/left are -32767, down/right +32767.
const (
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonSquare   = 3
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonShare    = 8
	ButtonOptions  = 9

	AxisLStickY = 1
	AxisDPadX   = 6
	AxisDPadY   = 7
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device io.ReadCloser

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
	// Init is set on the synthetic events the driver sends on open to report
	// the initial state.
	Init bool
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// New reads joystick events in the Linux js format from r.
func New(r io.ReadCloser) *Joystick {
	return &Joystick{
		device: r,
	}
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, err
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type & 0x7f),
		Number: rawEvent.Number,
		Init:   rawEvent.Type&0x80 != 0,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}

const axisThreshold = 16000

// Command maps a button press or a d-pad push to the operator input it
// stands for.  ok is false for events that mean nothing, including releases.
//
//	Cross    = Enter      Circle   = stop
//	Triangle = end        Square   = n
//	D-pad up = i          D-pad dn = d
//	R1       = ii         L1       = dd
//	Options  = control    Share    = manual
func Command(e *Event) (cmd string, ok bool) {
	if e.Init {
		return "", false
	}
	switch e.Type {
	case EventTypeButton:
		if e.Value != 1 {
			return "", false
		}
		switch e.Number {
		case ButtonCross:
			return "", true
		case ButtonCircle:
			return "stop", true
		case ButtonTriangle:
			return "end", true
		case ButtonSquare:
			return "n", true
		case ButtonR1:
			return "ii", true
		case ButtonL1:
			return "dd", true
		case ButtonOptions:
			return "control", true
		case ButtonShare:
			return "manual", true
		}
	case EventTypeAxis:
		if e.Number != AxisDPadY {
			return "", false
		}
		if e.Value <= -axisThreshold {
			return "i", true
		}
		if e.Value >= axisThreshold {
			return "d", true
		}
	}
	return "", false
}

// Commands reads events until the device fails or ctx is done, sending the
// operator command of each one to the returned channel.  The channel is
// closed when reading stops.
func (j *Joystick) Commands(ctx context.Context) <-chan string {
	cmds := make(chan string)
	go func() {
		defer close(cmds)
		defer j.Close()
		for ctx.Err() == nil {
			event, err := j.ReadEvent()
			if err != nil {
				if err != io.EOF {
					fmt.Printf("Failed to read from joystick: %v.\n", err)
				}
				return
			}
			cmd, ok := Command(event)
			if !ok {
				continue
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return cmds
}
