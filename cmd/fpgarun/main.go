// fpgarun programs a shot file onto the board, triggers it, and waits for
// completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/theckman/yacspin"

	"github.com/atomoptics/fpgaclock/fpga"
	"github.com/atomoptics/fpgaclock/ft245"
	"github.com/atomoptics/fpgaclock/shot"
)

func main() {
	var (
		shotPath   = flag.String("shot", "", "path to the shot file (required)")
		deviceName = flag.String("device", "fpga0", "device section of the shot file to program")
		serialPort = flag.String("serial", "", "use the virtual COM port at this path instead of direct USB")
		fresh      = flag.Bool("fresh", false, "reprogram every channel, bypassing the smart cache")
		trigger    = flag.Bool("trigger", true, "trigger the shot after programming")
	)
	flag.Parse()
	if *shotPath == "" {
		flag.Usage()
		log.Fatal("-shot is required")
	}

	doc, err := shot.Load(*shotPath)
	if err != nil {
		log.Fatal(err)
	}
	dev, err := doc.Device(*deviceName)
	if err != nil {
		log.Fatal(err)
	}

	var t fpga.Transport
	if *serialPort != "" {
		t, err = ft245.OpenSerial(*serialPort)
	} else {
		t, err = ft245.Open(ft245.DefaultVendorID, ft245.DefaultProductID)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	worker := fpga.NewWorker(t, nil, log.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	finals, err := worker.TransitionToBuffered(dev, *fresh)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("programmed %d channels, shot period %d ticks, %d repeats",
		len(dev.Clocks), dev.ShotPeriod(), dev.ShotReps)

	if !*trigger {
		return
	}
	if err := worker.Start(); err != nil {
		log.Fatal(err)
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " shot running",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	for worker.Busy() {
		time.Sleep(100 * time.Millisecond)
	}
	spinner.Stop()

	fmt.Println("final output states:")
	conns := make([]string, 0, len(finals))
	for conn := range finals {
		conns = append(conns, conn)
	}
	sort.Strings(conns)
	for _, conn := range conns {
		fmt.Printf("  %s: %g\n", conn, finals[conn])
	}
}
