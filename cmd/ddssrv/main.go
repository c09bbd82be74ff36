// Command ddssrv exposes an AD9833 waveform generator over HTTP, so bench
// scripts in any language can drive it with their ordinary HTTP libraries.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/nasa-jpl/ddsgen/ad9833"
	"github.com/nasa-jpl/ddsgen/expeyes"
	"github.com/nasa-jpl/ddsgen/server/middleware/locker"

	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"goji.io"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ddssrv.yml"
	k              = koanf.New(".")
)

// Config holds the init parameters for the server and the device behind it
type Config struct {
	// Addr is the address:port to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// SerialAddr is the port the ExpEYES bridge enumerates on
	SerialAddr string `yaml:"SerialAddr" koanf:"SerialAddr"`

	// ChipSelect is the bridge CS line wired to the chip, 1 or 2
	ChipSelect int `yaml:"ChipSelect" koanf:"ChipSelect"`

	// ClockHz is the DDS reference clock in Hz
	ClockHz float64 `yaml:"ClockHz" koanf:"ClockHz"`

	// Mock substitutes a recording transport for the hardware
	Mock bool `yaml:"Mock" koanf:"Mock"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:       ":8000",
		SerialAddr: "/dev/ttyACM0",
		ChipSelect: expeyes.CS1,
		ClockHz:    25e6}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `ddssrv drives an AD9833 DDS waveform generator and exposes an HTTP
interface to it.

Usage:
	ddssrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `ddssrv is configured via its .yaml file; run "ddssrv mkconf" to write one
with the defaults.

Routes, all rooted at /:
	GET  /state      JSON snapshot of the active channel
	POST /frequency  {"f64": <Hz>, "chan": 0|1, "phase": 0..4095}
	POST /waveform   {"str": "sine"|"triangle"|"square"}
	POST /shutdown   reset the chip; the server keeps running but the
	                 device refuses further operations
	GET/POST /lock   claim exclusive use; other clients get 423

With Mock: true in the config, register words go to a recorder instead of
hardware, useful for exercising clients without a bench.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ddssrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}

	var transport ad9833.Writer16
	if c.Mock {
		transport = &ad9833.MockWriter{}
		log.Println("using mock transport, no hardware will be touched")
	} else {
		b := expeyes.NewBridge(c.SerialAddr, byte(c.ChipSelect))
		if err := b.Open(); err != nil {
			log.Fatal(err)
		}
		defer b.Close()
		transport = b
	}

	dev, err := ad9833.New(transport, c.ClockHz)
	if err != nil {
		log.Fatal(err)
	}
	if err := dev.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer dev.Shutdown()

	w := ad9833.NewHTTPWrapper(dev)
	lock := locker.New()
	locker.Inject(w, lock)

	mux := goji.NewMux()
	mux.Use(middleware.Logger)
	mux.Use(lock.Check)
	w.RT().Bind(mux)

	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
