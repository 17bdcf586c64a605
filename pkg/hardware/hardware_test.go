package hardware

import (
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/screen"
)

type recordingDriver struct {
	recs   map[string]*pwm.Recorder
	closed int
}

func (r *recordingDriver) Channel(id string) (pwm.Channel, error) {
	if r.recs == nil {
		r.recs = map[string]*pwm.Recorder{}
	}
	r.recs[id] = pwm.NewRecorder(id)
	return r.recs[id], nil
}

func (r *recordingDriver) Close() error {
	r.closed++
	return nil
}

func TestOpenDummy(t *testing.T) {
	cfg := config.Default()
	d, err := OpenDriver(cfg, config.BackendDummy, golog.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*Dummy); !ok {
		t.Errorf("Expected a dummy driver, got %T", d)
	}
}

func TestMissingHardware(t *testing.T) {
	cfg := config.Default()
	cfg.PCA9685.Device = filepath.Join(t.TempDir(), "i2c-9")
	cfg.Maestro.Port = filepath.Join(t.TempDir(), "ttyACM9")
	logger := golog.NewTestLogger(t)

	for _, backend := range []string{config.BackendPCA9685, config.BackendMaestro, "pigpio"} {
		if _, err := OpenDriver(cfg, backend, logger); err == nil {
			t.Errorf("Expected %v to fail without hardware", backend)
		}
	}

	cfg.IgnoreMissingHardware = true
	d, err := OpenDriver(cfg, config.BackendPCA9685, logger)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*Dummy); !ok {
		t.Errorf("Expected the dummy fallback, got %T", d)
	}
}

func TestHardwareObservesWrites(t *testing.T) {
	cfg := config.Default()
	drv := &recordingDriver{}
	panel := screen.NewPanel("TEST", 500, 2500)
	h := New(cfg, drv, panel)

	var seen []pwm.Write
	h.OnWrite(func(w pwm.Write) { seen = append(seen, w) })

	ch, err := h.Channel("7")
	if err != nil {
		t.Fatal(err)
	}
	_ = ch.SetPulse(1200)
	_ = ch.Stop()

	if len(seen) != 2 || seen[0].Pulse != 1200 || seen[0].Channel != "7" || !seen[1].Stop {
		t.Errorf("Unexpected writes %+v", seen)
	}
	if p, _ := drv.recs["7"].Last(); p != 1200 {
		t.Errorf("Write did not reach the driver")
	}

	_ = h.Close()
	_ = h.Close()
	if drv.closed != 1 {
		t.Errorf("Expected the driver to be closed once, got %v", drv.closed)
	}
}
