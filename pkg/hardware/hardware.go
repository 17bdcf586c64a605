package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/gpiopwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/maestro"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pca9685"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/rpiopwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/sound"
)

// OpenDriver opens the PWM backend named by backend.  If the hardware can't
// be opened and cfg allows it, a Dummy is returned instead.
func OpenDriver(cfg *config.Config, backend string, log golog.Logger) (pwm.Driver, error) {
	d, err := openDriver(cfg, backend)
	if err != nil {
		if cfg.IgnoreMissingHardware {
			log.Warnw("hardware missing, using dummy driver", "backend", backend, "error", err)
			return NewDummy(), nil
		}
		return nil, err
	}
	log.Infow("opened PWM driver", "backend", backend)
	return d, nil
}

func openDriver(cfg *config.Config, backend string) (pwm.Driver, error) {
	switch backend {
	case config.BackendPCA9685:
		board, err := pca9685.New(cfg.PCA9685.Device, cfg.PCA9685.Addr)
		if err != nil {
			return nil, err
		}
		if err := board.Configure(); err != nil {
			_ = board.Close()
			return nil, errors.Wrap(err, "failed to configure PCA9685")
		}
		return pca9685.NewDriver(board, cfg.PCA9685.RawCounts), nil
	case config.BackendGPIO:
		return gpiopwm.Open()
	case config.BackendRPIO:
		return rpiopwm.Open()
	case config.BackendMaestro:
		return maestro.Open(cfg.Maestro.Port, cfg.Maestro.Baud)
	case config.BackendDummy:
		return NewDummy(), nil
	}
	return nil, errors.Errorf("unknown backend %q", backend)
}

// Hardware is a driver plus the operator-facing bits of the rig: the status
// screen and the speaker.  Every write made through its channels is shown on
// the screen and passed to any write listeners.
type Hardware struct {
	driver pwm.Driver
	Panel  *screen.Panel

	screenDevice string
	player       *sound.Player

	lock      sync.Mutex
	listeners []func(pwm.Write)
	closeOnce sync.Once
	closeErr  error
}

func New(cfg *config.Config, driver pwm.Driver, panel *screen.Panel) *Hardware {
	h := &Hardware{
		driver:       driver,
		Panel:        panel,
		screenDevice: cfg.Screen.Device,
	}
	if cfg.Sound.Enabled {
		h.player = sound.NewPlayer(cfg.Sound.Dir)
	}
	return h
}

var _ pwm.Driver = (*Hardware)(nil)

// Start runs the screen until ctx is done.
func (h *Hardware) Start(ctx context.Context) {
	if h.screenDevice != "" {
		go screen.LoopUpdatingScreen(ctx, h.screenDevice, h.Panel)
	}
}

func (h *Hardware) Channel(id string) (pwm.Channel, error) {
	ch, err := h.driver.Channel(id)
	if err != nil {
		return nil, err
	}
	return pwm.Observe(id, ch, h.observe), nil
}

// OnWrite registers fn to be told about every successful write.
func (h *Hardware) OnWrite(fn func(pwm.Write)) {
	h.lock.Lock()
	h.listeners = append(h.listeners, fn)
	h.lock.Unlock()
}

func (h *Hardware) observe(w pwm.Write) {
	h.Panel.Observe(w)
	h.lock.Lock()
	listeners := h.listeners
	h.lock.Unlock()
	for _, fn := range listeners {
		fn(w)
	}
}

// StageChanged shows a procedure stage on the screen and plays its cue.
func (h *Hardware) StageChanged(s fmt.Stringer) {
	h.Panel.SetStage(s)
	h.PlaySound(s.String())
}

func (h *Hardware) PlaySound(cue string) {
	if h.player == nil {
		return
	}
	h.player.Cue(cue)
}

// Close closes the driver once; later calls return the same result.
func (h *Hardware) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.driver.Close()
		if h.player != nil {
			h.player.Close()
		}
	})
	return h.closeErr
}
