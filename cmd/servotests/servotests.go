package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pca9685"
)

func main() {
	dev := "/dev/i2c-1"
	if len(os.Args) > 1 {
		dev = os.Args[1]
	}
	board, err := pca9685.New(dev, 0x40)
	if err != nil {
		fmt.Println("Failed to open PCA9685", err)
		return
	}
	defer board.Close()

	err = board.Configure()
	if err != nil {
		fmt.Println("Failed to configure PCA9685", err)
		return
	}

	fmt.Println(
		`Commands:
    p <n> <pulse-us>   # Send a pulse of the given width
    c <n> <counts>     # Send a raw 12-bit on-time, 0-4095
    o <n>              # Turn the port off

<n>          Port number 0-15
<pulse-us>   Pulse width in microseconds; 1500=centre for most servos
<counts>     On-time in 1/4096ths of the 20ms period`)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nFailed to read stdin: ", err)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "p", "c", "o":
			if len(parts) < 2 || (parts[0] != "o" && len(parts) < 3) {
				fmt.Println("Not enough parameters")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Expected int, not ", parts[1])
				continue
			}
			if n < 0 || n > 15 {
				fmt.Println("Expected 0 <= n < 16")
				continue
			}
			if parts[0] == "o" {
				fmt.Printf("Turning off port %d\n", n)
				err = board.Off(n)
			} else {
				v, perr := strconv.ParseUint(parts[2], 10, 32)
				if perr != nil {
					fmt.Println("Expected a whole number, not ", parts[2])
					continue
				}
				if parts[0] == "p" {
					fmt.Printf("Setting port %d to %dus (%d counts)\n", n, v, pca9685.PulseToCounts(uint32(v)))
					err = board.SetPulse(n, uint32(v))
				} else {
					if v > 4095 {
						fmt.Println("Expected counts <= 4095")
						continue
					}
					fmt.Printf("Setting port %d to %d counts\n", n, v)
					err = board.SetCounts(n, uint16(v))
				}
			}
			if err != nil {
				fmt.Println("Failed to write to PCA9685: ", err)
				return
			}
		default:
			fmt.Println("Unknown command ", parts[0])
		}
	}
}
