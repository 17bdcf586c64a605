package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/esc"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/servo"
)

const (
	DefaultPath = "quadctl.yaml"

	EnvPath           = "QUADCTL_CONFIG"
	EnvBackend        = "QUADCTL_BACKEND"
	EnvIgnoreHardware = "IGNORE_MISSING_HARDWARE"
	EnvJoystickDevice = "JOYSTICK_DEVICE"
	EnvServerAddr     = "QUADCTL_ADDR"

	BackendPCA9685 = "pca9685"
	BackendGPIO    = "gpio"
	BackendRPIO    = "rpio"
	BackendMaestro = "maestro"
	BackendDummy   = "dummy"
)

var Backends = []string{BackendPCA9685, BackendGPIO, BackendRPIO, BackendMaestro, BackendDummy}

type Config struct {
	// IgnoreMissingHardware falls back to the dummy backend when a device
	// can't be opened.
	IgnoreMissingHardware bool `yaml:"ignore_missing_hardware"`

	PCA9685 PCA9685Config `yaml:"pca9685"`
	Maestro MaestroConfig `yaml:"maestro"`

	Servo      ServoConfig      `yaml:"servo"`
	ESC        ESCConfig        `yaml:"esc"`
	Quadcopter QuadcopterConfig `yaml:"quadcopter"`

	Server   ServerConfig   `yaml:"server"`
	Sound    SoundConfig    `yaml:"sound"`
	Screen   ScreenConfig   `yaml:"screen"`
	Joystick JoystickConfig `yaml:"joystick"`
}

type PCA9685Config struct {
	Device string `yaml:"device"`
	Addr   int    `yaml:"addr"`

	// RawCounts makes pulse values 12-bit counts instead of microseconds.
	RawCounts bool `yaml:"raw_counts"`
}

type MaestroConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type ServoConfig struct {
	Backend     string                  `yaml:"backend"`
	PulseMin    uint32                  `yaml:"pulse_min"`
	PulseMax    uint32                  `yaml:"pulse_max"`
	AngleMin    float64                 `yaml:"angle_min"`
	AngleMax    float64                 `yaml:"angle_max"`
	Home        float64                 `yaml:"home"`
	Calibration servo.CalibrationConfig `yaml:"calibration"`
}

type ESCConfig struct {
	Backend  string    `yaml:"backend"`
	PulseMin int       `yaml:"pulse_min"`
	PulseMax int       `yaml:"pulse_max"`
	Holds    esc.Holds `yaml:"holds"`
}

type QuadcopterConfig struct {
	TopLeft     string         `yaml:"top_left"`
	TopRight    string         `yaml:"top_right"`
	BottomLeft  string         `yaml:"bottom_left"`
	BottomRight string         `yaml:"bottom_right"`
	Limits      esc.Limits     `yaml:"limits"`
	Ramp        esc.RampConfig `yaml:"ramp"`
	StartupHold time.Duration  `yaml:"startup_hold"`
	StartSpeed  int            `yaml:"start_speed"`
}

// Channels returns the channel ids indexed by esc.Position.
func (q QuadcopterConfig) Channels() [4]string {
	return [4]string{
		esc.TopLeft:     q.TopLeft,
		esc.TopRight:    q.TopRight,
		esc.BottomLeft:  q.BottomLeft,
		esc.BottomRight: q.BottomRight,
	}
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SoundConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type ScreenConfig struct {
	Device string `yaml:"device"`
}

type JoystickConfig struct {
	Device string `yaml:"device"`
}

func Default() *Config {
	return &Config{
		PCA9685: PCA9685Config{
			Device:    "/dev/i2c-1",
			Addr:      0x40,
			RawCounts: true,
		},
		Maestro: MaestroConfig{
			Port: "/dev/ttyACM0",
			Baud: 9600,
		},
		Servo: ServoConfig{
			Backend:     BackendPCA9685,
			PulseMin:    115,
			PulseMax:    540,
			AngleMin:    0,
			AngleMax:    180,
			Home:        servo.DefaultHomeAngle,
			Calibration: servo.DefaultCalibrationConfig,
		},
		ESC: ESCConfig{
			Backend:  BackendGPIO,
			PulseMin: 700,
			PulseMax: 2000,
			Holds:    esc.DefaultHolds,
		},
		Quadcopter: QuadcopterConfig{
			TopLeft:     "17",
			TopRight:    "18",
			BottomLeft:  "23",
			BottomRight: "24",
			Limits:      esc.DefaultLimits,
			Ramp:        esc.DefaultRampConfig,
			StartupHold: esc.DefaultStartupHold,
			StartSpeed:  esc.DefaultControlSpeed,
		},
		Server: ServerConfig{
			Addr: "0.0.0.0:7778",
		},
		Screen: ScreenConfig{
			Device: "/dev/fb1",
		},
		Joystick: JoystickConfig{
			Device: "/dev/input/js0",
		},
	}
}

// Load reads the config at path over the defaults.  An empty path means
// $QUADCTL_CONFIG or else quadctl.yaml; a missing file is not an error unless
// it was asked for explicitly.  Environment overrides are applied last.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := ioutil.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if b := os.Getenv(EnvBackend); b != "" {
		c.Servo.Backend = b
		c.ESC.Backend = b
	}
	if os.Getenv(EnvIgnoreHardware) == "true" {
		c.IgnoreMissingHardware = true
	}
	if d := os.Getenv(EnvJoystickDevice); d != "" {
		c.Joystick.Device = d
	}
	if a := os.Getenv(EnvServerAddr); a != "" {
		c.Server.Addr = a
	}
}

func (c *Config) Validate() error {
	for _, b := range []string{c.Servo.Backend, c.ESC.Backend} {
		if !knownBackend(b) {
			return errors.Errorf("unknown backend %q, expected one of %v", b, Backends)
		}
	}
	if c.Servo.PulseMin >= c.Servo.PulseMax {
		return errors.Errorf("servo pulse_min %d must be below pulse_max %d", c.Servo.PulseMin, c.Servo.PulseMax)
	}
	if c.Quadcopter.Limits.Min >= c.Quadcopter.Limits.Max {
		return errors.Errorf("quadcopter limits %d..%d are empty", c.Quadcopter.Limits.Min, c.Quadcopter.Limits.Max)
	}
	return nil
}

// Marshal renders the config in use, e.g. to show the operator.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func knownBackend(b string) bool {
	for _, k := range Backends {
		if b == k {
			return true
		}
	}
	return false
}
