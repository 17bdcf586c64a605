package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/joystick"
)

// Prints every joystick event along with the operator command it maps to, to
// check the button layout before a calibration run.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	registerSignalHandlers(cancel)

	jDev := os.Getenv(config.EnvJoystickDevice)
	if jDev == "" {
		jDev = config.Default().Joystick.Device
	}
	j := waitForJoystick(ctx, jDev)
	if j == nil {
		return
	}
	defer j.Close()

	for ctx.Err() == nil {
		event, err := j.ReadEvent()
		if err != nil {
			fmt.Printf("Failed to read from joystick: %v.\n", err)
			return
		}
		if cmd, ok := joystick.Command(event); ok {
			fmt.Printf("%s -> %q\n", event, cmd)
		} else {
			fmt.Println(event)
		}
	}
}

func waitForJoystick(ctx context.Context, dev string) *joystick.Joystick {
	firstLog := true
	for ctx.Err() == nil {
		j, err := joystick.NewJoystick(dev)
		if err == nil {
			fmt.Printf("Opened joystick\n")
			return j
		}
		if firstLog {
			fmt.Printf("Waiting for joystick: %v.\n", err)
			firstLog = false
		}
		time.Sleep(1 * time.Second)
	}
	return nil
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
