// Package mcp2515 is an interrupt-driven driver core for the Microchip
// MCP2515 stand-alone SPI CAN controller. Every interaction with the chip
// is a multi-byte SPI exchange; the asynchronous event state machine in
// state.go chains these exchanges off of the chip's single interrupt line
// without ever blocking the interrupt handler or the host's transmit path.
//
// This driver only uses TX buffer 0, accepts all frames (no filtering
// configuration beyond that), and does not support CAN FD.
package mcp2515

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tve/mcp2515/canbus"
	devices "github.com/tve/mcp2515"
)

// Errors returned by the synchronous entry points.
var (
	ErrNoDevice     = errors.New("mcp2515: no device detected")
	ErrModeTimeout  = errors.New("mcp2515: device didn't enter requested mode")
	ErrNotSupported = errors.New("mcp2515: mode change not supported")
)

// Mode is the generic CAN framework's do_set_mode parameter (the Linux
// driver's enum can_mode); this core only implements ModeStart.
type Mode int

const (
	ModeStart Mode = iota
)

// LogPrintf is the logging function used by the driver; a nil Logger option
// is replaced by a no-op.
type LogPrintf func(format string, v ...interface{})

// PlatformData carries static, board-specific configuration, all of it
// optional except OscillatorFrequency.
type PlatformData struct {
	OscillatorFrequency uint32              // crystal/oscillator frequency in Hz
	PowerEnable         func(on bool)       // optional power-rail control
	TransceiverEnable   func(on bool)       // optional CAN transceiver enable
	BoardSetup          func(spi devices.SPI) // optional one-time board setup hook
}

// Options configures a new Controller.
type Options struct {
	Timing   canbus.BitTiming
	CtrlMode canbus.CtrlMode
	Platform PlatformData
	Logger   LogPrintf
}

// step identifies a node of the event state machine (§4.4); see state.go.
type step int

const (
	stepIdle step = iota
	stepReadFlags
	stepReadRXB0
	stepReadRXB1
	stepClearCANINTF
	stepClearEFLG
	stepLoadTXB0
	stepRTSTXB0
)

// Controller is the per-chip driver state (spec §3's "Controller State").
type Controller struct {
	rawSPI  devices.SPI     // used for synchronous bring-up (§4.2)
	spi     devices.AsyncSPI // used by the event state machine (§4.3/4.4)
	intrPin devices.GPIO
	can     canbus.Device
	pdata   PlatformData
	timing  canbus.BitTiming
	ctrl    canbus.CtrlMode

	logMu sync.Mutex
	logFn LogPrintf

	lastCANINTF byte
	lastEFLG    byte

	// flags guarded by mu; never touched from an SPI completion callback
	// or interrupt handler except while mu is held, and never held across
	// an SPI submit (spec §5).
	mu       sync.Mutex
	busy     bool
	interrupt bool
	transmit  bool

	pending *canbus.Frame // frame accepted from the host, nil if none

	step   step
	txBuf  [14]byte
	rxBuf  [14]byte

	stopIntr chan struct{}
	intrDone chan struct{}
}

// New creates a Controller for a chip reachable over spi, whose interrupt
// line is wired to intrPin, delivering received frames and transmit
// accounting to can. Transmit requests arrive through Transmit.
func New(spi devices.SPI, intrPin devices.GPIO, can canbus.Device, opts Options) (*Controller, error) {
	if opts.Platform.OscillatorFrequency == 0 {
		return nil, fmt.Errorf("mcp2515: platform data is required for oscillator frequency")
	}
	c := &Controller{
		rawSPI:  spi,
		spi:     devices.NewAsyncSPI(spi),
		intrPin: intrPin,
		can:     can,
		pdata:   opts.Platform,
		timing:  opts.Timing,
		ctrl:    opts.CtrlMode,
	}
	c.SetLogger(opts.Logger)
	return c, nil
}

// SetLogger replaces the controller's log sink; a nil logger discards log
// output. Safe to call concurrently with the state machine running.
func (c *Controller) SetLogger(fn LogPrintf) {
	if fn == nil {
		fn = func(string, ...interface{}) {}
	}
	c.logMu.Lock()
	c.logFn = fn
	c.logMu.Unlock()
}

// log prefixes and forwards a message to the current logger.
func (c *Controller) log(format string, v ...interface{}) {
	c.logMu.Lock()
	fn := c.logFn
	c.logMu.Unlock()
	fn("mcp2515: "+format, v...)
}

// ClockFrequency is the CAN bit-rate divisor source exposed to bit-timing
// calculation, the oscillator halved per spec §6.
func (c *Controller) ClockFrequency() uint32 {
	return c.pdata.OscillatorFrequency / 2
}

// Counters returns the framework's statistics block for this controller.
func (c *Controller) Counters() *canbus.Counters { return c.can.Counters() }

func (c *Controller) powerSwitch(on bool) {
	if c.pdata.PowerEnable != nil {
		c.pdata.PowerEnable(on)
	} else if !on {
		c.writeRegSync(regCANCTRL, ctrlReqopSleep)
	}
}

func (c *Controller) transceiverSwitch(on bool) {
	if c.pdata.TransceiverEnable != nil {
		c.pdata.TransceiverEnable(on)
	}
}

// waitModeTimeout bounds the Start() mode-transition poll per spec §5.
const waitModeTimeout = time.Second
