package esc

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

func newTestQuadcopter(t *testing.T, opts ...Option) (*Quadcopter, [4]*pwm.Recorder, *countingCloser) {
	t.Helper()
	var recs [4]*pwm.Recorder
	var chans [4]pwm.Channel
	for _, p := range Positions {
		recs[p] = pwm.NewRecorder(p.String())
		chans[p] = recs[p]
	}
	closer := &countingCloser{}
	opts = append([]Option{
		WithLogger(golog.NewTestLogger(t)),
		WithSleep(func(time.Duration) {}),
		WithDriver(closer),
	}, opts...)
	q, err := NewQuadcopter(chans, DefaultLimits, opts...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return q, recs, closer
}

func expectAllPulses(t *testing.T, recs [4]*pwm.Recorder, expected ...uint32) {
	t.Helper()
	for _, p := range Positions {
		expectPulses(t, recs[p].Pulses(), expected...)
	}
}

func TestNewQuadcopterZeroesAndHolds(t *testing.T) {
	var held []time.Duration
	_, recs, _ := newTestQuadcopter(t, WithSleep(func(d time.Duration) { held = append(held, d) }))
	expectAllPulses(t, recs, 0)
	if len(held) != 1 || held[0] != DefaultStartupHold {
		t.Errorf("Expected a single startup hold, got %v", held)
	}
}

func TestNewQuadcopterNeedsFourChannels(t *testing.T) {
	var chans [4]pwm.Channel
	chans[TopLeft] = pwm.NewRecorder("tl")
	if _, err := NewQuadcopter(chans, DefaultLimits); err == nil {
		t.Errorf("Expected missing channels to be rejected")
	}
}

func TestSetValueWritesAllFour(t *testing.T) {
	q, recs, _ := newTestQuadcopter(t)
	if err := q.SetValue(900); err != nil {
		t.Fatal(err)
	}
	expectAllPulses(t, recs, 0, 900)
}

func TestSetValueKeepsGoingOnFailure(t *testing.T) {
	q, recs, _ := newTestQuadcopter(t)
	recs[TopRight].Err = errors.New("gpio gone")
	err := q.SetValue(900)
	if !pwm.IsDriverError(err) {
		t.Fatalf("Expected a driver error, got %v", err)
	}
	expectPulses(t, recs[BottomRight].Pulses(), 0, 900)
}

func TestValidateRange(t *testing.T) {
	q, recs, _ := newTestQuadcopter(t)

	low, high, err := q.ValidateRange(500, 2500)
	if err != nil || low != 700 || high != 2000 {
		t.Errorf("Expected (700, 2000), got (%v, %v, %v)", low, high, err)
	}

	_, _, err = q.ValidateRange(2100, 600)
	if errors.Cause(err) != ErrInvalidRange {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}

	_, err = q.RampUpDown(context.Background(), operator.NewScript(""), 2100, 600)
	if errors.Cause(err) != ErrInvalidRange {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
	expectAllPulses(t, recs, 0)
}

func TestRampCapsSpan(t *testing.T) {
	q, recs, closer := newTestQuadcopter(t)
	ramp, err := q.RampUpDown(context.Background(), operator.NewScript(""), 1500, 1700)
	if err != nil {
		t.Fatal(err)
	}
	if ramp.Low != 1500 || ramp.High != 1600 || ramp.Aborted {
		t.Errorf("Unexpected ramp %+v", ramp)
	}
	expectAllPulses(t, recs,
		0,
		1500, 1510, 1520, 1530, 1540, 1550, 1560, 1570, 1580, 1590, 1600,
		1590, 1580, 1570, 1560, 1550, 1540, 1530, 1520, 1510, 1500,
		0)
	for _, p := range Positions {
		if recs[p].Stops() != 1 {
			t.Errorf("Expected %v to be stopped once", p)
		}
	}
	if closer.closed != 1 {
		t.Errorf("Expected the driver to be closed once, got %v", closer.closed)
	}
}

func TestRampOffStep(t *testing.T) {
	q, recs, _ := newTestQuadcopter(t)
	if _, err := q.RampUpDown(context.Background(), operator.NewScript(""), 1500, 1525); err != nil {
		t.Fatal(err)
	}
	expectAllPulses(t, recs, 0, 1500, 1510, 1520, 1510, 1500, 0)
}

func TestRampAborted(t *testing.T) {
	q, recs, closer := newTestQuadcopter(t)
	op := operator.NewScript("no")
	ramp, err := q.RampUpDown(context.Background(), op, 1500, 1550)
	if err != nil {
		t.Fatal(err)
	}
	if !ramp.Aborted {
		t.Errorf("Expected the ramp to be aborted")
	}
	expectAllPulses(t, recs, 0)
	if closer.closed != 0 {
		t.Errorf("Aborting must not release the driver")
	}
}

func TestRampCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	holds := 0
	// The first hold is the startup one; cancel on the first ramp step.
	q, recs, _ := newTestQuadcopter(t, WithSleep(func(time.Duration) {
		holds++
		if holds == 2 {
			cancel()
		}
	}))
	_, err := q.RampUpDown(ctx, operator.NewScript(""), 1500, 1550)
	if err != context.Canceled {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	expectAllPulses(t, recs, 0, 1500, 0)
}

func TestControl(t *testing.T) {
	q, recs, _ := newTestQuadcopter(t)
	op := operator.NewScript("i", "ii", "x", "dd", "stop")
	if err := q.Control(context.Background(), op, DefaultControlSpeed); err != nil {
		t.Fatal(err)
	}
	expectAllPulses(t, recs, 0, 1500, 1510, 1610, 1610, 1510, 0)
}

func TestQuadcopterStopTwice(t *testing.T) {
	q, recs, closer := newTestQuadcopter(t)
	if err := q.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := q.Stop(); err != nil {
		t.Fatal(err)
	}
	expectAllPulses(t, recs, 0, 0)
	if recs[TopLeft].Stops() != 1 || closer.closed != 1 {
		t.Errorf("Expected a single stop and close")
	}
}

func TestAdjust(t *testing.T) {
	for cmd, expected := range map[string]int{"i": 1510, "d": 1490, "ii": 1600, "dd": 1400} {
		got, ok := Adjust(1500, cmd)
		if !ok || got != expected {
			t.Errorf("Adjust(1500, %q) = %v, %v", cmd, got, ok)
		}
	}
	if _, ok := Adjust(1500, "iii"); ok {
		t.Errorf("iii is not a throttle command")
	}
	if ClampHardware(-20) != 0 || ClampHardware(300) != HardwareMin || ClampHardware(9000) != HardwareMax {
		t.Errorf("Unexpected hardware clamp")
	}
}
