package pwm

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Channel is a single addressable PWM output, e.g. a PCA9685 port or a GPIO pin.
type Channel interface {
	// SetPulse drives the channel with a pulse of the given width in microseconds
	// (or in the backend's native unit, see pca9685 raw counts).  A width of 0
	// means "no pulse".
	SetPulse(us uint32) error
	// Stop stops driving the channel.  It must be safe to call on a channel that
	// was never written.
	Stop() error
}

// Driver hands out channels on a shared hardware handle.
type Driver interface {
	Channel(id string) (Channel, error)
	Close() error
}

// DriverError reports a failed write to the underlying hardware.
type DriverError struct {
	Channel string
	Op      string
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("pwm %s on channel %s: %v", e.Op, e.Channel, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

func NewDriverError(channel, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Channel: channel, Op: op, Err: err}
}

// IsDriverError reports whether err came from the hardware.  DriverError has
// no Cause method so errors.Cause stops at it.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}

// Write is one call made on a channel, as seen by an observer.
type Write struct {
	Channel string `json:"channel"`
	Pulse   uint32 `json:"pulse"`
	Stop    bool   `json:"stop,omitempty"`
}

// Observe wraps ch so that every successful call is reported to fn.
func Observe(name string, ch Channel, fn func(Write)) Channel {
	return &observed{name: name, ch: ch, fn: fn}
}

type observed struct {
	name string
	ch   Channel
	fn   func(Write)
}

func (o *observed) SetPulse(us uint32) error {
	if err := o.ch.SetPulse(us); err != nil {
		return err
	}
	o.fn(Write{Channel: o.name, Pulse: us})
	return nil
}

func (o *observed) Stop() error {
	if err := o.ch.Stop(); err != nil {
		return err
	}
	o.fn(Write{Channel: o.name, Stop: true})
	return nil
}

// Dummy returns a channel that only prints what it would have done.
func Dummy(name string) Channel {
	return &dummyChannel{name: name}
}

type dummyChannel struct {
	name string
}

func (d *dummyChannel) SetPulse(us uint32) error {
	fmt.Printf("DPWM: SetPulse channel=%v pulse=%v\n", d.name, us)
	return nil
}

func (d *dummyChannel) Stop() error {
	fmt.Printf("DPWM: Stop channel=%v\n", d.name)
	return nil
}

// Recorder is an in-memory channel that remembers every call.  Set Err to make
// subsequent calls fail with a DriverError.
type Recorder struct {
	Name string
	Err  error

	lock   sync.Mutex
	writes []Write
	stops  int
}

func NewRecorder(name string) *Recorder {
	return &Recorder{Name: name}
}

func (r *Recorder) SetPulse(us uint32) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Err != nil {
		return NewDriverError(r.Name, "write", r.Err)
	}
	r.writes = append(r.writes, Write{Channel: r.Name, Pulse: us})
	return nil
}

func (r *Recorder) Stop() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Err != nil {
		return NewDriverError(r.Name, "stop", r.Err)
	}
	r.stops++
	r.writes = append(r.writes, Write{Channel: r.Name, Stop: true})
	return nil
}

// Pulses returns the pulse widths written so far, ignoring stops.
func (r *Recorder) Pulses() []uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []uint32
	for _, w := range r.writes {
		if !w.Stop {
			out = append(out, w.Pulse)
		}
	}
	return out
}

// Last returns the most recent pulse written, or false if there was none.
func (r *Recorder) Last() (uint32, bool) {
	p := r.Pulses()
	if len(p) == 0 {
		return 0, false
	}
	return p[len(p)-1], true
}

func (r *Recorder) Stops() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stops
}

func (r *Recorder) Writes() []Write {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Write(nil), r.writes...)
}
