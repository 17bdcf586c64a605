package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/esc"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/screen"
)

type stage string

func (s stage) String() string { return string(s) }

func main() {
	ctx := context.Background()

	panel := screen.NewPanel("SCREEN", esc.HardwareMin, esc.HardwareMax)
	go screen.LoopUpdatingScreen(ctx, config.Default().Screen.Device, panel)

	for i, p := range esc.Positions {
		panel.Observe(pwm.Write{Channel: p.String(), Pulse: uint32(esc.HardwareMin + 600*i)})
	}

	fmt.Println(`Type a stage name to show it, or "<motor> <pulse>" to move a bar.`)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nFailed to read stdin: ", err)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 2 {
			if v, err := strconv.Atoi(parts[1]); err == nil {
				panel.Observe(pwm.Write{Channel: parts[0], Pulse: uint32(v)})
				continue
			}
		}
		panel.SetStage(stage(strings.TrimSpace(line)))
	}
}
