package pwm

import (
	"testing"

	"github.com/pkg/errors"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("tl")
	if _, ok := r.Last(); ok {
		t.Fatalf("Fresh recorder should have no writes")
	}
	_ = r.SetPulse(1000)
	_ = r.SetPulse(1010)
	_ = r.Stop()

	if p, _ := r.Last(); p != 1010 {
		t.Errorf("Expected last pulse 1010, got %v", p)
	}
	if r.Stops() != 1 {
		t.Errorf("Expected one stop, got %v", r.Stops())
	}
	if len(r.Writes()) != 3 {
		t.Errorf("Expected 3 writes, got %v", r.Writes())
	}
}

func TestDriverErrorCause(t *testing.T) {
	boom := errors.New("bus gone")
	r := NewRecorder("3")
	r.Err = boom

	err := r.SetPulse(1500)
	if !IsDriverError(err) {
		t.Fatalf("Expected a driver error, got %v", err)
	}
	if errors.Cause(errors.Wrap(err, "outer")) != err {
		t.Errorf("Wrapped driver error should unwrap to itself")
	}
	var de *DriverError
	if !errors.As(err, &de) || de.Err != boom || de.Op != "write" {
		t.Errorf("Unexpected driver error contents: %#v", err)
	}
	if NewDriverError("x", "write", nil) != nil {
		t.Errorf("nil error should stay nil")
	}
}

func TestObserve(t *testing.T) {
	r := NewRecorder("raw")
	var seen []Write
	ch := Observe("front", r, func(w Write) { seen = append(seen, w) })

	_ = ch.SetPulse(1200)
	_ = ch.Stop()

	if len(seen) != 2 || seen[0].Channel != "front" || seen[0].Pulse != 1200 || !seen[1].Stop {
		t.Fatalf("Unexpected observed writes: %v", seen)
	}

	r.Err = errors.New("nope")
	_ = ch.SetPulse(1300)
	if len(seen) != 2 {
		t.Errorf("Failed writes must not be observed: %v", seen)
	}
}
