package hwio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	devices "github.com/tve/mcp2515"
)

// csMux lets two chips share a single SPI chip-select line, demultiplexed by
// an extra GPIO select pin (e.g. a 74LVC1G19 with the SPI CS on E, the select
// pin on A, and the two chips' CS inputs on Y0/Y1). Both halves share the
// same SPI bus connection and speed/mode settings, since periph.io connects
// a port to one (speed, mode, bits) triple at a time.
type csMux struct {
	mu     *sync.Mutex
	shared *csMuxShared
	sel    gpio.Level
}

type csMuxShared struct {
	port   spi.PortCloser
	selPin gpio.PinIO
	conn   spi.Conn
	hz     int64
	mode   int
	bits   int
}

// NewChipSelectMux returns two devices.SPI handles multiplexed over port via
// selPin: the first selects the chip with selPin driven low, the second
// with it driven high.
func NewChipSelectMux(port spi.PortCloser, selPin gpio.PinIO, hz int64, mode int, bits int) (devices.SPI, devices.SPI) {
	shared := &csMuxShared{port: port, selPin: selPin, hz: hz, mode: mode, bits: bits}
	mu := &sync.Mutex{}
	return &csMux{mu, shared, gpio.Low}, &csMux{mu, shared, gpio.High}
}

// OpenChipSelectMux opens the named SPI port and select-pin GPIO and returns
// two devices.SPI handles sharing the bus through NewChipSelectMux, for
// boards with two MCP2515s demuxed onto one physical chip-select line.
func OpenChipSelectMux(portName, selPinName string, hz int64, mode int) (devices.SPI, devices.SPI, error) {
	if err := ensureInit(); err != nil {
		return nil, nil, fmt.Errorf("hwio: periph.io init: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, nil, fmt.Errorf("hwio: open SPI %s: %w", portName, err)
	}
	selPin := gpioreg.ByName(selPinName)
	if selPin == nil {
		port.Close()
		return nil, nil, fmt.Errorf("hwio: no such GPIO pin %q", selPinName)
	}
	a, b := NewChipSelectMux(port, selPin, hz, mode, 8)
	return a, b, nil
}

func (c *csMux) ensureConn() error {
	if c.shared.conn != nil {
		return nil
	}
	conn, err := c.shared.port.Connect(physic.Frequency(c.shared.hz)*physic.Hertz, periphMode(c.shared.mode), c.shared.bits)
	if err != nil {
		return fmt.Errorf("hwio: csmux connect: %w", err)
	}
	c.shared.conn = conn
	return nil
}

func (c *csMux) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConn(); err != nil {
		return err
	}
	c.shared.selPin.Out(c.sel)
	if err := c.shared.conn.Tx(w, r); err != nil {
		return fmt.Errorf("hwio: csmux transfer: %w", err)
	}
	return nil
}

func (c *csMux) Speed(hz int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared.hz = hz
	c.shared.conn = nil
	return c.ensureConn()
}

func (c *csMux) Configure(mode int, bits int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared.mode, c.shared.bits = mode, bits
	c.shared.conn = nil
	return c.ensureConn()
}

// Close is a no-op: the underlying port is shared between both halves and is
// closed by whoever opened it.
func (c *csMux) Close() error { return nil }
