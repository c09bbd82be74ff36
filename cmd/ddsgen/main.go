// Command ddsgen is an interactive bench tool for an AD9833 waveform
// generator hung off an ExpEYES-17 bridge.  It speaks a two-word command
// language at a prompt:
//
//	sine|triangle|square <freq Hz>    set the shape and frequency
//	chan 0|1                          target the other register slot
//	phase <0..4095>                   phase offset for subsequent loads
//	exit|quit|x                       reset the chip and leave
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/ddsgen/ad9833"
	"github.com/nasa-jpl/ddsgen/expeyes"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"
)

// echoWriter is the mock transport for -mock runs: it prints each register
// word instead of touching hardware
type echoWriter struct{}

func (echoWriter) Write16(word uint16) error {
	fmt.Printf("  -> 0x%04X\n", word)
	return nil
}

// session holds the sticky options commands leave behind for later ones
type session struct {
	channel ad9833.Channel
	phase   uint16
}

// runCommand executes one line of the command language, returning true when
// the user asked to leave.  It never resets the chip itself; the caller owns
// shutdown, so the controller is only ever driven from one goroutine.
func runCommand(dev *ad9833.AD9833, st *session, line string) (quit bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "exit", "quit", "x":
		return true
	case "chan":
		if len(fields) != 2 || (fields[1] != "0" && fields[1] != "1") {
			color.Red("usage: chan 0|1")
			break
		}
		if fields[1] == "1" {
			st.channel = ad9833.Channel1
		} else {
			st.channel = ad9833.Channel0
		}
	case "phase":
		if len(fields) != 2 {
			color.Red("usage: phase <0..4095>")
			break
		}
		p, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil || p > ad9833.MaxPhase {
			color.Red("phase must be an integer 0..4095")
			break
		}
		st.phase = uint16(p)
	default:
		mode, err := ad9833.ParseMode(fields[0])
		if err != nil {
			color.Red("%v", err)
			break
		}
		if len(fields) != 2 {
			color.Red("usage: %s <freq Hz>", mode)
			break
		}
		freq, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			color.Red("frequency must be a number, got %q", fields[1])
			break
		}
		if err := dev.SetWaveformMode(mode); err != nil {
			color.Red("%v", err)
			break
		}
		if err := dev.SetFrequency(freq, st.channel, ad9833.WithPhase(st.phase)); err != nil {
			color.Red("%v", err)
			break
		}
		actual := ad9833.OutputFrequency(ad9833.TuningWord(freq, dev.ClockHz()), dev.ClockHz())
		color.Green("%s at %.2f Hz on channel %d (synthesized %.4f Hz)",
			mode, freq, st.channel, actual)
	}
	return false
}

func connect(addr string, cs int) (ad9833.Writer16, error) {
	spin, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " connecting to bridge at " + addr,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		SuffixAutoColon: true,
	})
	if err != nil {
		return nil, err
	}
	spin.Start()
	b := expeyes.NewBridge(addr, byte(cs))
	if err := b.Open(); err != nil {
		spin.StopFail()
		return nil, err
	}
	spin.Stop()
	return b, nil
}

func prompt() {
	fmt.Print("ddsgen> ")
}

func main() {
	var (
		addr  = flag.String("addr", "/dev/ttyACM0", "serial port the bridge enumerates on")
		cs    = flag.Int("cs", expeyes.CS1, "bridge chip select line wired to the AD9833")
		clock = flag.Float64("clock", 25e6, "DDS reference clock, Hz")
		mock  = flag.Bool("mock", false, "print register words instead of using hardware")
	)
	flag.Parse()

	var (
		transport ad9833.Writer16
		err       error
	)
	if *mock {
		transport = echoWriter{}
	} else {
		transport, err = connect(*addr, *cs)
		if err != nil {
			log.Fatal(err)
		}
	}

	dev, err := ad9833.New(transport, *clock)
	if err != nil {
		log.Fatal(err)
	}
	if err := dev.Initialize(); err != nil {
		log.Fatal(err)
	}

	// stdin is read on its own goroutine so the loop below can also watch
	// for C-c.  The controller itself is only ever touched from this
	// goroutine, including the shutdown reset.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	color.Cyan("AD9833 ready, clock %G Hz", dev.ClockHz())

	st := &session{channel: ad9833.Channel0}
	prompt()
	for {
		select {
		case <-sig:
			fmt.Println()
			dev.Shutdown()
			return
		case line, ok := <-lines:
			if !ok { // EOF on stdin
				dev.Shutdown()
				return
			}
			if runCommand(dev, st, line) {
				dev.Shutdown()
				return
			}
			prompt()
		}
	}
}
