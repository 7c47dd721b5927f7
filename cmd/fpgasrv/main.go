package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/atomoptics/fpgaclock/fpga"
	"github.com/atomoptics/fpgaclock/ft245"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "fpgasrv.yml"
	k              = koanf.New(".")
)

// Config describes one board and how to reach it.
type Config struct {
	// Addr is the address:port to listen on
	Addr string `yaml:"addr"`

	// Route is the URL stem the board is mounted under
	Route string `yaml:"route"`

	// SerialPort, when set, uses the virtual COM port at this path instead
	// of direct USB access
	SerialPort string `yaml:"serialPort"`

	// VendorID and ProductID select the USB bridge; zero values use the
	// factory defaults
	VendorID  uint16 `yaml:"vendorID"`
	ProductID uint16 `yaml:"productID"`

	// Outputs labels the channels and assigns DAC ranges
	Outputs []fpga.OutputConfig `yaml:"outputs"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:  ":8000",
		Route: "/fpga"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `fpgasrv drives a pseudoclock timing board and exposes an HTTP interface to it.
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	fpgasrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `fpgasrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration the server connects to the first board with the
factory FTDI IDs and serves on port 8000.

Set serialPort (e.g. /dev/ttyUSB0) to reach the board through the kernel's
COM port driver instead of claiming the USB device directly.

Each entry in outputs maps a channel identity token (kind_board_channel_group)
to a human-readable name and, for analog channels, a DAC range of the form
"min,max" drawn from the output range table.`
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
	fmt.Printf("fpgasrv version %v\n", Version)
}

func openTransport(c Config) (fpga.Transport, error) {
	if c.SerialPort != "" {
		return ft245.OpenSerial(c.SerialPort)
	}
	vid, pid := c.VendorID, c.ProductID
	if vid == 0 {
		vid = ft245.DefaultVendorID
	}
	if pid == 0 {
		pid = ft245.DefaultProductID
	}
	return ft245.Open(vid, pid)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	t, err := openTransport(c)
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	worker := fpga.NewWorker(t, c.Outputs, log.Default())
	go worker.Run(context.Background())

	wrapper := fpga.NewHTTPWrapper(worker)
	r := chi.NewRouter()
	wrapper.RouteTable.Bind(r)

	mux := chi.NewRouter()
	mux.Use(middleware.Logger)
	stem := c.Route
	if !strings.HasPrefix(stem, "/") {
		stem = "/" + stem
	}
	mux.Mount(stem+"/", r)

	log.Println("now listening for requests at ", c.Addr)
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
	cmd = args[1]
	cmd = strings.ToLower(cmd)
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
