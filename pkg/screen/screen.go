package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
)

const S = 128

// Panel is what the status screen shows: a title, the current procedure
// stage and one bar per channel with its last pulse.  Feed it with
// pwm.Observe(name, ch, panel.Observe).
type Panel struct {
	lock sync.Mutex

	title     string
	stage     string
	low, high uint32
	pulses    map[string]uint32
}

// NewPanel shows pulses between low and high as empty to full bars.
func NewPanel(title string, low, high uint32) *Panel {
	return &Panel{
		title:  title,
		low:    low,
		high:   high,
		pulses: map[string]uint32{},
	}
}

func (p *Panel) Observe(w pwm.Write) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if w.Stop {
		p.pulses[w.Channel] = 0
		return
	}
	p.pulses[w.Channel] = w.Pulse
}

// SetStage takes a fmt.Stringer so that ESC stages can be passed straight in.
func (p *Panel) SetStage(s fmt.Stringer) {
	p.lock.Lock()
	p.stage = s.String()
	p.lock.Unlock()
}

type bar struct {
	name  string
	pulse uint32
}

func (p *Panel) snapshot() (title, stage string, bars []bar) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for name, pulse := range p.pulses {
		bars = append(bars, bar{name, pulse})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].name < bars[j].name })
	return p.title, p.stage, bars
}

// Fraction is how full the bar for pulse is.
func (p *Panel) Fraction(pulse uint32) float64 {
	if pulse <= p.low || p.high <= p.low {
		return 0
	}
	if pulse >= p.high {
		return 1
	}
	return float64(pulse-p.low) / float64(p.high-p.low)
}

// Render draws the panel.
func (p *Panel) Render() image.Image {
	title, stage, bars := p.snapshot()

	dc := gg.NewContext(S, S)
	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawString(title, 2, 12)
	dc.DrawString(stage, 2, 26)

	for i, b := range bars {
		if i >= 4 {
			break
		}
		dc.Push()
		dc.Translate(4+float64(i)*31, 32)
		drawThrottleBar(dc, b, p.Fraction(b.pulse))
		dc.Pop()
	}
	return dc.Image()
}

func drawThrottleBar(dc *gg.Context, b bar, fraction float64) {
	// Colour depends on how hard the motor is being driven.
	if fraction > 0.8 {
		dc.SetRGBA(1, 0.2, 0, 1)
	} else {
		dc.SetRGBA(1, 0.9, 0, 1)
	}
	dc.DrawRectangle(0, 70, 26, 4)
	for n := 1; n < 13; n++ {
		if fraction >= (float64(n) / 13) {
			dc.DrawRectangle(2, 70-float64(n)*5, 22, 3)
		}
	}
	dc.Fill()
	dc.DrawString(b.name, 0, 84)
	dc.DrawString(fmt.Sprintf("%d", b.pulse), 0, 94)
}

// ToFramebuffer converts img to the RGB565 layout of the 128x128 panel,
// which is mounted rotated by 90 degrees.
func ToFramebuffer(img image.Image) []byte {
	buf := make([]byte, S*S*2)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			c := img.At(x, y)
			r, g, b, _ := c.RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+(x)*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+(x)*S*2] = bb | (gb << 5)
		}
	}
	return buf
}

// LoopUpdatingScreen redraws the panel on the framebuffer device twice a
// second until ctx is done, then blanks the screen.  A missing screen is
// not an error.
func LoopUpdatingScreen(ctx context.Context, device string, panel *Panel) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		fmt.Println("Failed to open screen, ignoring")
		return
	}
	defer f.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var buf [S * S * 2]byte
			_, _ = f.Seek(0, 0)
			_, _ = f.Write(buf[:])
			return
		case <-ticker.C:
		}

		buf := ToFramebuffer(panel.Render())
		_, err = f.Seek(0, 0)
		if err != nil {
			fmt.Println("Screen failure: ", err)
			return
		}
		for i := 0; i < S; i++ {
			_, err = f.Write(buf[i*S*2 : (i+1)*S*2])
			if err != nil {
				fmt.Println("Screen failure: ", err)
				return
			}
			time.Sleep(10 * time.Microsecond)
		}
	}
}
