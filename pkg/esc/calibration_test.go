package esc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

type sleepLog struct {
	sleeps []time.Duration
}

func (s *sleepLog) sleep(d time.Duration) {
	s.sleeps = append(s.sleeps, d)
}

func newTestCalibration(t *testing.T, opts ...Option) (*Calibration, *pwm.Recorder, *sleepLog) {
	t.Helper()
	rec := pwm.NewRecorder("esc")
	sl := &sleepLog{}
	opts = append([]Option{WithLogger(golog.NewTestLogger(t)), WithSleep(sl.sleep)}, opts...)
	c, err := NewCalibration(rec, 700, 2000, opts...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return c, rec, sl
}

func handle(t *testing.T, c *Calibration, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if err := c.Handle(l); err != nil {
			t.Fatalf("Handle(%q) failed: %v", l, err)
		}
	}
}

func expectStage(t *testing.T, c *Calibration, expected Stage) {
	t.Helper()
	if c.Stage() != expected {
		t.Fatalf("Expected stage %v, got %v", expected, c.Stage())
	}
}

func expectPulses(t *testing.T, got []uint32, expected ...uint32) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Expected pulses %v, got %v", expected, got)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("Expected pulses %v, got %v", expected, got)
		}
	}
}

func TestInvalidESCRange(t *testing.T) {
	for _, r := range [][2]int{{2000, 700}, {100, 2000}, {700, 3000}} {
		if _, err := NewCalibration(pwm.NewRecorder("x"), r[0], r[1]); err == nil {
			t.Errorf("Expected range %v to be rejected", r)
		}
	}
}

func TestFullCalibration(t *testing.T) {
	var stages []Stage
	closer := &countingCloser{}
	c, rec, sl := newTestCalibration(t, WithDriver(closer), WithStageHook(func(s Stage) {
		stages = append(stages, s)
	}))
	expectStage(t, c, Idle)

	handle(t, c, "calibrate")
	expectStage(t, c, AwaitBatteryDisconnect)
	handle(t, c, "nonsense")
	expectStage(t, c, AwaitBatteryDisconnect)
	handle(t, c, "")
	expectStage(t, c, ArmMax)
	handle(t, c, "")
	expectStage(t, c, Armed)

	if len(sl.sleeps) != 4 || sl.sleeps[0] != 7*time.Second || sl.sleeps[1] != 5*time.Second ||
		sl.sleeps[2] != 2*time.Second || sl.sleeps[3] != time.Second {
		t.Errorf("Unexpected holds %v", sl.sleeps)
	}

	handle(t, c, "")
	expectStage(t, c, AutoControl)
	handle(t, c, "i", "ii", "what", "dd", "d")
	if c.Speed() != 1500 {
		t.Errorf("Expected speed back at 1500, got %v", c.Speed())
	}
	handle(t, c, "stop")
	expectStage(t, c, Stopped)

	expectPulses(t, rec.Pulses(), 0, 0, 2000, 700, 0, 700, 1500, 1510, 1610, 1510, 1500, 0)
	if rec.Stops() != 1 || closer.closed != 1 {
		t.Errorf("Expected one stop and one close, got %v and %v", rec.Stops(), closer.closed)
	}

	expected := []Stage{AwaitBatteryDisconnect, ArmMax, ArmMin, Settling1, Settling2, ZeroOut, Armed, AutoControl, Stopped}
	if len(stages) != len(expected) {
		t.Fatalf("Expected stages %v, got %v", expected, stages)
	}
	for i := range stages {
		if stages[i] != expected[i] {
			t.Fatalf("Expected stages %v, got %v", expected, stages)
		}
	}
}

func TestStopIsTerminalAndIdempotent(t *testing.T) {
	closer := &countingCloser{}
	c, rec, _ := newTestCalibration(t, WithDriver(closer))
	handle(t, c, "stop", "stop", "calibrate", "")
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	expectStage(t, c, Stopped)
	expectPulses(t, rec.Pulses(), 0, 0)
	if rec.Stops() != 1 || closer.closed != 1 {
		t.Errorf("Expected one stop and one close, got %v and %v", rec.Stops(), closer.closed)
	}
}

func TestArmPath(t *testing.T) {
	c, rec, sl := newTestCalibration(t)
	handle(t, c, "arm")
	expectStage(t, c, AwaitBatteryConnect)
	handle(t, c, "")
	expectStage(t, c, Armed)
	expectPulses(t, rec.Pulses(), 0, 0, 2000, 700)
	if len(sl.sleeps) != 3 {
		t.Errorf("Expected three one second holds, got %v", sl.sleeps)
	}
	handle(t, c, "manual")
	expectStage(t, c, Manual)
}

func TestManualRejectsOutOfRange(t *testing.T) {
	c, rec, _ := newTestCalibration(t)
	handle(t, c, "manual", "100", "3000", "abc", "1200", "0", "control")
	expectStage(t, c, AutoControl)
	expectPulses(t, rec.Pulses(), 0, 1200, 0, 1500)
}

func TestAutoControlClampsToHardware(t *testing.T) {
	c, rec, _ := newTestCalibration(t)
	handle(t, c, "control")
	for i := 0; i < 15; i++ {
		handle(t, c, "ii")
	}
	if c.Speed() != HardwareMax {
		t.Errorf("Expected speed capped at %v, got %v", HardwareMax, c.Speed())
	}
	if p, _ := rec.Last(); p != HardwareMax {
		t.Errorf("Expected %v on the wire, got %v", HardwareMax, p)
	}
}

func TestRunUntilStop(t *testing.T) {
	c, rec, _ := newTestCalibration(t)
	op := operator.NewScript("calibrate", "", "", "", "i", "stop")
	if err := c.Run(context.Background(), op); err != nil {
		t.Fatal(err)
	}
	expectStage(t, c, Stopped)
	if p, _ := rec.Last(); p != 0 {
		t.Errorf("Expected the ESC to end at 0, got %v", p)
	}
	if len(op.Told) == 0 || op.Told[len(op.Told)-1] != "speed = 1510" {
		t.Errorf("Unexpected messages %v", op.Told)
	}
}

func TestRunStopsWhenOperatorGoesAway(t *testing.T) {
	c, rec, _ := newTestCalibration(t)
	err := c.Run(context.Background(), operator.NewScript("manual", "1200"))
	if errors.Cause(err) != io.EOF {
		t.Fatalf("Expected EOF, got %v", err)
	}
	expectStage(t, c, Stopped)
	expectPulses(t, rec.Pulses(), 0, 1200, 0)
	if rec.Stops() != 1 {
		t.Errorf("Expected one stop, got %v", rec.Stops())
	}
}

func TestDriverFailureDuringCalibration(t *testing.T) {
	c, rec, _ := newTestCalibration(t)
	handle(t, c, "calibrate")
	rec.Err = errors.New("gpio gone")
	if err := c.Handle(""); !pwm.IsDriverError(err) {
		t.Fatalf("Expected a driver error, got %v", err)
	}
	expectStage(t, c, AwaitBatteryDisconnect)
}
