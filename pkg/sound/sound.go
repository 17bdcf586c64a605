package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player plays wav files on the speaker, one at a time; a new sound cuts off
// the one playing.
type Player struct {
	dir          string
	soundsToPlay chan string
}

// NewPlayer starts the speaker.  Cue names are looked up as <dir>/<name>.wav.
func NewPlayer(dir string) *Player {
	p := &Player{
		dir:          dir,
		soundsToPlay: make(chan string),
	}
	go p.run()
	return p
}

// run owns the speaker until Close.  If the speaker can't be opened, cues are
// drained and reported.
func (p *Player) run() {
	defer func() {
		recover()
		p.drain()
	}()
	sampleRate := beep.SampleRate(44100)
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/5)); err != nil {
		fmt.Println("Failed to open speaker", err)
		return
	}

	var current *playing
	defer func() { current.stop() }()
	for path := range p.soundsToPlay {
		current.stop()
		current = nil

		next, err := open(path)
		if err != nil {
			fmt.Println("Failed to play sound", err)
			continue
		}
		speaker.Play(next.ctrl)
		current = next
	}
}

func (p *Player) drain() {
	for path := range p.soundsToPlay {
		fmt.Println("Unable to play", path)
	}
}

// playing is a sound on the speaker.
type playing struct {
	ctrl   *beep.Ctrl
	stream beep.StreamSeekCloser
}

func open(path string) (*playing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, _, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &playing{ctrl: &beep.Ctrl{Streamer: stream}, stream: stream}, nil
}

// stop cuts the sound off; it is a no-op on nil.
func (s *playing) stop() {
	if s == nil {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = true
	s.ctrl.Streamer = nil
	speaker.Unlock()
	s.stream.Close()
}

// Path returns the file played for cue.
func (p *Player) Path(cue string) string {
	return filepath.Join(p.dir, cue+".wav")
}

// Cue plays the named sound.  It never blocks for long: if the player is
// busy the sound is dropped.
func (p *Player) Cue(cue string) bool {
	return p.play(p.Path(cue))
}

func (p *Player) play(path string) (played bool) {
	defer func() {
		if recover() != nil { // Don't die if the channel is already closed.
			played = false
		}
	}()
	select {
	case p.soundsToPlay <- path:
		return true
	case <-time.After(10 * time.Millisecond):
		fmt.Println("Timed out trying to play sound: ", path)
		return false
	}
}

func (p *Player) Close() {
	close(p.soundsToPlay)
}
