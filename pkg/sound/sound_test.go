package sound

import (
	"path/filepath"
	"testing"
)

func TestCueDropsWhenBusy(t *testing.T) {
	p := &Player{dir: "/sounds", soundsToPlay: make(chan string)}
	if p.Path("armed") != "/sounds/armed.wav" {
		t.Errorf("Unexpected path %v", p.Path("armed"))
	}
	if p.Cue("armed") {
		t.Errorf("Expected the cue to be dropped with nobody listening")
	}
}

func TestCueDelivered(t *testing.T) {
	p := &Player{dir: "/sounds", soundsToPlay: make(chan string, 1)}
	if !p.Cue("stopped") {
		t.Fatalf("Expected the cue to be queued")
	}
	if got := <-p.soundsToPlay; got != "/sounds/stopped.wav" {
		t.Errorf("Unexpected sound %v", got)
	}
}

func TestCueAfterClose(t *testing.T) {
	p := &Player{dir: "/sounds", soundsToPlay: make(chan string)}
	p.Close()
	if p.Cue("armed") {
		t.Errorf("Expected no sound after close")
	}
}

func TestMissingSoundIsSkipped(t *testing.T) {
	if _, err := open(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("Expected opening a missing sound to fail")
	}
	var s *playing
	s.stop()
}
