package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/esc"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/server"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/servo"
)

func servoBounds() (actuator.Bounds, error) {
	return actuator.NewBounds(cfg.Servo.PulseMin, cfg.Servo.PulseMax, cfg.Servo.AngleMin, cfg.Servo.AngleMax)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the servo HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bounds, err := servoBounds()
			if err != nil {
				return err
			}
			hw, err := openHardware(ctx, cfg.Servo.Backend, "SERVO", cfg.Servo.PulseMin, cfg.Servo.PulseMax)
			if err != nil {
				return err
			}
			defer hw.Close()

			srv, err := server.New(hw, bounds, cfg.Servo.Home, logger.Named("server"))
			if err != nil {
				return err
			}
			hw.PlaySound("start")
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
}

func newCalibrateServoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate-servo <channel>",
		Short: "Find the pulse range a servo can actually reach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bounds, err := servoBounds()
			if err != nil {
				return err
			}
			hw, err := openHardware(ctx, cfg.Servo.Backend, "SERVO", cfg.Servo.PulseMin, cfg.Servo.PulseMax)
			if err != nil {
				return err
			}
			defer hw.Close()

			ch, err := hw.Channel(args[0])
			if err != nil {
				return err
			}
			m, err := servo.New(ch, bounds, cfg.Servo.Home,
				servo.WithLogger(logger.Named("servo")),
				servo.WithCalibration(cfg.Servo.Calibration))
			if err != nil {
				return err
			}

			cal, err := m.Calibrate(ctx, newOperator(ctx))
			err = multierr.Append(err, m.Stop())
			if err != nil || cal.Aborted {
				return err
			}
			fmt.Printf("Calibrated servo on channel %s: pulse_min=%d pulse_max=%d\n", args[0], cal.Min, cal.Max)
			return nil
		},
	}
}

func newCalibrateESCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate-esc <channel>",
		Short: "Calibrate, arm and drive a single ESC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hw, err := openHardware(ctx, cfg.ESC.Backend, "ESC", esc.HardwareMin, esc.HardwareMax)
			if err != nil {
				return err
			}
			ch, err := hw.Channel(args[0])
			if err != nil {
				return multierr.Append(err, hw.Close())
			}

			c, err := esc.NewCalibration(ch, cfg.ESC.PulseMin, cfg.ESC.PulseMax,
				esc.WithLogger(logger.Named("esc")),
				esc.WithDriver(hw),
				esc.WithHolds(cfg.ESC.Holds),
				esc.WithStageHook(func(s esc.Stage) { hw.StageChanged(s) }))
			if err != nil {
				return multierr.Append(err, hw.Close())
			}
			defer c.Stop()
			return c.Run(ctx, newOperator(ctx))
		},
	}
}

func openQuadcopter(ctx context.Context) (*esc.Quadcopter, error) {
	limits := cfg.Quadcopter.Limits
	hw, err := openHardware(ctx, cfg.ESC.Backend, "QUAD", uint32(limits.Min), uint32(limits.Max))
	if err != nil {
		return nil, err
	}
	ids := cfg.Quadcopter.Channels()
	var chans [4]pwm.Channel
	for _, p := range esc.Positions {
		chans[p], err = hw.Channel(ids[p])
		if err != nil {
			return nil, multierr.Append(errors.Wrapf(err, "no channel for %v motor", p), hw.Close())
		}
	}

	fmt.Println("Zeroing all motors, waiting for the ESCs to start up")
	q, err := esc.NewQuadcopter(chans, limits,
		esc.WithLogger(logger.Named("quadcopter")),
		esc.WithDriver(hw),
		esc.WithRamp(cfg.Quadcopter.Ramp),
		esc.WithStartupHold(cfg.Quadcopter.StartupHold))
	if err != nil {
		return nil, multierr.Append(err, hw.Close())
	}
	return q, nil
}

func newESCQuadcopterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "esc-quadcopter <low> <high>",
		Short: "Ramp all four motors from low to high and back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			low, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Errorf("low must be a whole number of microseconds, not %q", args[0])
			}
			high, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Errorf("high must be a whole number of microseconds, not %q", args[1])
			}

			ctx := cmd.Context()
			q, err := openQuadcopter(ctx)
			if err != nil {
				return err
			}
			defer q.Stop()

			ramp, err := q.RampUpDown(ctx, newOperator(ctx), low, high)
			if err != nil {
				return err
			}
			if !ramp.Aborted {
				fmt.Printf("Ramped %d..%d\n", ramp.Low, ramp.High)
			}
			return nil
		},
	}
}

func newManualQuadcopterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manual-quadcopter",
		Short: "Trim all four motors together by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := openQuadcopter(ctx)
			if err != nil {
				return err
			}
			defer q.Stop()
			return q.Control(ctx, newOperator(ctx), cfg.Quadcopter.StartSpeed)
		},
	}
}

func newPulseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pulse",
		Short: "Write raw pulses to channels",
		Long: `Reads commands from the terminal:
    <channel> <pulse>   # Drive the channel with the pulse, in the backend's unit
    <channel> stop      # Stop driving the channel
    quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hw, err := openHardware(ctx, cfg.Servo.Backend, "PULSE", esc.HardwareMin, esc.HardwareMax)
			if err != nil {
				return err
			}
			defer hw.Close()
			hw.OnWrite(func(w pwm.Write) {
				logger.Debugw("write", "channel", w.Channel, "pulse", w.Pulse, "stop", w.Stop)
			})
			return pulseConsole(ctx, hw)
		},
	}
}

func pulseConsole(ctx context.Context, hw *hardware.Hardware) error {
	op := newOperator(ctx)
	chans := map[string]pwm.Channel{}
	defer func() {
		for id, ch := range chans {
			if err := ch.Stop(); err != nil {
				logger.Warnw("failed to stop channel", "channel", id, "error", err)
			}
		}
	}()

	for {
		line, err := op.Ask(ctx, "> ")
		if err != nil {
			return nil
		}
		parts := strings.Fields(line)
		if len(parts) == 1 && parts[0] == "quit" {
			return nil
		}
		if len(parts) != 2 {
			op.Tell("Expected <channel> <pulse|stop>")
			continue
		}

		ch, ok := chans[parts[0]]
		if !ok {
			ch, err = hw.Channel(parts[0])
			if err != nil {
				op.Tell(err.Error())
				continue
			}
			chans[parts[0]] = ch
		}

		if parts[1] == "stop" {
			err = ch.Stop()
		} else {
			v, perr := strconv.ParseUint(parts[1], 10, 32)
			if perr != nil {
				op.Tell(fmt.Sprintf("Expected a whole number, not %q", parts[1]))
				continue
			}
			err = ch.SetPulse(uint32(v))
		}
		if err != nil {
			return err
		}
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
