// Command fl2k-shell is an interactive debugging REPL for bring-up work
// against an FL2000 adapter: mode, sample rate, enabled-channel palette and
// I2C read/write. It has no raw register read/write command and no command
// for loading an arbitrary palette.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"fl2ktx/fl2k"
)

func main() {
	index := 0
	if len(os.Args) > 1 {
		if v, err := strconv.Atoi(os.Args[1]); err == nil {
			index = v
		}
	}

	logger := log.New(os.Stderr, "fl2k-shell: ", log.LstdFlags)

	dev, err := fl2k.Open(index, logger)
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer dev.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("fl2k-shell: type 'help' for commands, 'quit' to exit")

	for {
		input, err := line.Prompt("fl2k> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			logger.Printf("prompt: %v", err)
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !dispatch(dev, input) {
			break
		}
	}
}

func dispatch(dev *fl2k.Device, input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		printHelp()
	case "mode":
		cmdMode(dev, args)
	case "rate":
		cmdRate(dev, args)
	case "i2cr":
		cmdI2CRead(dev, args)
	case "i2cw":
		cmdI2CWrite(dev, args)
	case "channels":
		cmdChannels(dev, args)
	default:
		fmt.Printf("unknown command %q, type 'help'\n", cmd)
	}
	return true
}

func printHelp() {
	fmt.Print(`commands:
  mode [single|multi]        get/set the streaming mode
  channels <rgb-mask>        enable a subset of R/G/B, e.g. "channels rg"
  rate [hz]                  get/set the effective sample rate
  i2cr <addr7> <reg>         read 4 bytes from an I2C slave register
  i2cw <addr7> <reg> <hex8>  write 4 bytes (as an 8-hex-digit word)
  quit                       exit the shell
`)
}

func cmdMode(dev *fl2k.Device, args []string) {
	if len(args) == 0 {
		fmt.Println(dev.Mode())
		return
	}
	var m fl2k.Mode
	switch args[0] {
	case "single":
		m = fl2k.ModeSingleChan
	case "multi":
		m = fl2k.ModeMultiChan
	default:
		fmt.Println("mode must be 'single' or 'multi'")
		return
	}
	if err := dev.SetMode(m); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func cmdChannels(dev *fl2k.Device, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: channels <rgb-mask>")
		return
	}
	var mask fl2k.Channel
	for _, c := range args[0] {
		switch c {
		case 'r', 'R':
			mask |= fl2k.ChanR
		case 'g', 'G':
			mask |= fl2k.ChanG
		case 'b', 'B':
			mask |= fl2k.ChanB
		}
	}
	if err := dev.SetEnabledChannels(mask); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func cmdRate(dev *fl2k.Device, args []string) {
	if len(args) == 0 {
		fmt.Printf("%.0f Hz\n", dev.GetSampleRate())
		return
	}
	hz, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Printf("invalid rate: %v\n", err)
		return
	}
	if err := dev.SetSampleRate(hz); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("effective rate: %.0f Hz\n", dev.GetSampleRate())
}

func cmdI2CRead(dev *fl2k.Device, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: i2cr <addr7> <reg>")
		return
	}
	addr, reg, ok := parseAddrReg(args)
	if !ok {
		return
	}
	data, err := dev.I2CRead(addr, reg)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%02x %02x %02x %02x\n", data[0], data[1], data[2], data[3])
}

func cmdI2CWrite(dev *fl2k.Device, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: i2cw <addr7> <reg> <hex8>")
		return
	}
	addr, reg, ok := parseAddrReg(args[:2])
	if !ok {
		return
	}
	raw, err := strconv.ParseUint(args[2], 16, 32)
	if err != nil {
		fmt.Printf("invalid data word: %v\n", err)
		return
	}
	var data [4]byte
	data[0] = byte(raw >> 24)
	data[1] = byte(raw >> 16)
	data[2] = byte(raw >> 8)
	data[3] = byte(raw)
	if err := dev.I2CWrite(addr, reg, data); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func parseAddrReg(args []string) (addr7, reg byte, ok bool) {
	a, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Printf("invalid addr7: %v\n", err)
		return 0, 0, false
	}
	r, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		fmt.Printf("invalid reg: %v\n", err)
		return 0, 0, false
	}
	return byte(a), byte(r), true
}
