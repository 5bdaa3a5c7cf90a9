// Command mcp2515-dump probes an MCP2515 over SPI and prints its key
// registers, for bring-up and wiring checks.
package main

import (
	"flag"
	"fmt"
	"log"

	devices "github.com/tve/mcp2515"
	"github.com/tve/mcp2515/canbus"
	"github.com/tve/mcp2515/hwio"
	"github.com/tve/mcp2515/mcp2515"
)

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	spiDev := flag.String("spi", "SPI0.0", "SPI device name")
	hz := flag.Int64("hz", 1000000, "SPI clock speed")
	oscillator := flag.Uint("oscillator", 16000000, "oscillator frequency in Hz")
	selPin := flag.String("sel-pin", "", "GPIO name of a chip-select demux pin, for boards with two MCP2515s sharing one SPI CS line")
	flag.Parse()

	if *selPin == "" {
		spiPort, err := hwio.OpenSPI(*spiDev, *hz, 0)
		panicIf(err)
		defer spiPort.Close()

		dump("chip", spiPort, uint32(*oscillator))
		return
	}

	a, b, err := hwio.OpenChipSelectMux(*spiDev, *selPin, *hz, 0)
	panicIf(err)
	defer a.Close()
	defer b.Close()

	dump("chip 0 (select low)", a, uint32(*oscillator))
	dump("chip 1 (select high)", b, uint32(*oscillator))
}

func dump(label string, spiPort devices.SPI, oscillator uint32) {
	ctl, err := mcp2515.New(spiPort, nil, canbus.NewLoopbackDevice(), mcp2515.Options{
		Platform: mcp2515.PlatformData{OscillatorFrequency: oscillator},
		Logger:   log.Printf,
	})
	panicIf(err)

	log.Printf("Checking MCP2515 %s...", label)
	if err := ctl.Detect(); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("found mcp2515: OK!")

	tec, rec, err := ctl.BerrCounters()
	panicIf(err)
	fmt.Printf("TEC = %d, REC = %d\n", tec, rec)
}
