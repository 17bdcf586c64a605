package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"github.com/spf13/cobra"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/operator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/screen"
)

var (
	configPath  string
	backend     string
	useJoystick bool

	cfg    *config.Config
	logger = golog.NewDevelopmentLogger("quadctl")
)

func main() {
	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quadctl",
		Short:        "Calibrate and drive the quadcopter's servos and ESCs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Servo.Backend = backend
				cfg.ESC.Backend = backend
			}
			return cfg.Validate()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	root.PersistentFlags().StringVarP(&backend, "backend", "b", "",
		fmt.Sprintf("PWM backend, one of %v", config.Backends))
	root.PersistentFlags().BoolVarP(&useJoystick, "joystick", "j", false,
		"take operator input from the joystick instead of the terminal")

	root.AddCommand(
		newServeCmd(),
		newCalibrateServoCmd(),
		newCalibrateESCCmd(),
		newESCQuadcopterCmd(),
		newManualQuadcopterCmd(),
		newPulseCmd(),
		newConfigCmd(),
	)
	return root
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		// Give the procedures time to zero their outputs.
		time.Sleep(5 * time.Second)
		os.Exit(1)
	}()
}

// openHardware opens backend and starts the status screen.  The caller owns
// the returned Hardware and must Close it.
func openHardware(ctx context.Context, backend, title string, low, high uint32) (*hardware.Hardware, error) {
	drv, err := hardware.OpenDriver(cfg, backend, logger)
	if err != nil {
		return nil, err
	}
	hw := hardware.New(cfg, drv, screen.NewPanel(title, low, high))
	hw.Start(ctx)
	return hw, nil
}

// newOperator returns the joystick if asked for and present, otherwise the
// terminal.
func newOperator(ctx context.Context) operator.Operator {
	if useJoystick {
		j, err := joystick.NewJoystick(cfg.Joystick.Device)
		if err == nil {
			fmt.Println("Opened joystick")
			return &operator.Lines{
				C:   j.Commands(ctx),
				Out: func(msg string) { fmt.Println(msg) },
			}
		}
		logger.Warnw("no joystick, using the terminal", "device", cfg.Joystick.Device, "error", err)
	}
	return operator.NewConsole(os.Stdin, os.Stdout)
}
