// Command mcp2515-bridge runs a single MCP2515 controller and bridges its
// CAN traffic to an MQTT broker: frames received from the bus are published
// as JSON to <prefix>/rx, and JSON frames published to <prefix>/tx are sent
// out on the bus.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tve/mcp2515/canbus"
	"github.com/tve/mcp2515/hwio"
	"github.com/tve/mcp2515/mcp2515"
)

// Config is the mcp2515-bridge.toml layout.
type Config struct {
	Debug  bool
	Mqtt   MqttConfig
	Device DeviceConfig
}

type MqttConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

type DeviceConfig struct {
	Prefix      string
	SpiBus      string `toml:"spi_bus"`
	SpiHz       int64  `toml:"spi_hz"`
	IntrPin     string `toml:"intr_pin"`
	Oscillator  uint32 `toml:"oscillator_hz"`
	Bitrate     int    `toml:"bitrate"`
	Loopback    bool
	ListenOnly  bool `toml:"listen_only"`
}

func main() {
	configFile := flag.String("config", "mcp2515-bridge.toml", "path to config file")
	flag.Parse()

	raw, err := os.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read config file: %s\n", err)
		os.Exit(1)
	}
	var config Config
	if _, err := toml.Decode(string(raw), &config); err != nil {
		fmt.Fprintf(os.Stderr, "cannot parse config file: %s\n", err)
		os.Exit(1)
	}

	logger := mcp2515.LogPrintf(func(string, ...interface{}) {})
	if config.Debug {
		logger = func(format string, v ...interface{}) { fmt.Fprintf(os.Stderr, format+"\n", v...) }
	}

	spiPort, err := hwio.OpenSPI(config.Device.SpiBus, config.Device.SpiHz, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open SPI bus: %s\n", err)
		os.Exit(1)
	}
	intrPin, err := hwio.OpenGPIO(config.Device.IntrPin, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open interrupt pin: %s\n", err)
		os.Exit(1)
	}

	timing, err := bitTimingFor(config.Device.Bitrate, config.Device.Oscillator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var ctrl canbus.CtrlMode
	if config.Device.Loopback {
		ctrl |= canbus.Loopback
	}
	if config.Device.ListenOnly {
		ctrl |= canbus.ListenOnly
	}

	bridge := newMQTTBridge(config.Device.Prefix)
	ctl, err := mcp2515.New(spiPort, intrPin, bridge, mcp2515.Options{
		Timing:   timing,
		CtrlMode: ctrl,
		Platform: mcp2515.PlatformData{OscillatorFrequency: config.Device.Oscillator},
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create controller: %s\n", err)
		os.Exit(1)
	}

	if err := connectMQTT(bridge, config.Mqtt, ctl, logger); err != nil {
		fmt.Fprintf(os.Stderr, "cannot connect to MQTT broker: %s\n", err)
		os.Exit(1)
	}

	if err := ctl.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot open device: %s\n", err)
		os.Exit(1)
	}
	logger("mcp2515-bridge: %s ready on prefix %q", config.Device.SpiBus, config.Device.Prefix)

	for {
		time.Sleep(time.Hour)
	}
}
