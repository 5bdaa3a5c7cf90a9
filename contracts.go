// Package devices defines the small hardware-access contracts that the
// mcp2515 package is built against: a duplex SPI connection and a GPIO pin
// that can be watched for edges. Concrete implementations live in hwio,
// which adapts periph.io/x/conn/v3 onto these interfaces; tests use fakes
// that satisfy them directly.
package devices

import "time"

// SPI is a synchronous, full-duplex SPI connection to a single chip-select.
// Tx transfers len(w) bytes out while simultaneously filling r (len(r) must
// equal len(w)).
type SPI interface {
	Tx(w, r []byte) error
	Speed(hz int64) error
	Configure(mode int, bits int) error
	Close() error
}

const (
	SPIMode0 = 0x0 // CPOL=0, CPHA=0
	SPIMode1 = 0x1 // CPOL=0, CPHA=1
	SPIMode2 = 0x2 // CPOL=1, CPHA=0
	SPIMode3 = 0x3 // CPOL=1, CPHA=1
)

// GPIO is an input/output pin that can be watched for edges, used for the
// chip's active-low interrupt line.
type GPIO interface {
	In(edge int) error
	Read() int
	WaitForEdge(timeout time.Duration) bool
	Out(level int)
	Number() int
}

const (
	GpioLow         = 0
	GpioHigh        = 1
	GpioNoEdge      = 0
	GpioRisingEdge  = 1
	GpioFallingEdge = 2
	GpioBothEdges   = 3
)
