package hwio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	devices "github.com/tve/mcp2515"
)

var initOnce sync.Once
var initErr error

func ensureInit() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// periphSPI adapts a periph.io SPI port to devices.SPI. periph.io connects a
// port to a (speed, mode, bits) triple up front and hands back an immutable
// spi.Conn, so Speed/Configure reconnect the port rather than mutating an
// existing connection.
type periphSPI struct {
	mu    sync.Mutex
	port  spi.PortCloser
	conn  spi.Conn
	hz    int64
	mode  int
	bits  int
}

// OpenSPI opens the named SPI port (e.g. "/dev/spidev0.0" or "SPI0.0") at the
// given speed and mode, per spi.Mode0..Mode3.
func OpenSPI(name string, hz int64, mode int) (devices.SPI, error) {
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("hwio: periph.io init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("hwio: open SPI %s: %w", name, err)
	}
	s := &periphSPI{port: port, hz: hz, mode: mode, bits: 8}
	if err := s.reconnect(); err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

func periphMode(mode int) spi.Mode {
	switch mode {
	case devices.SPIMode1:
		return spi.Mode1
	case devices.SPIMode2:
		return spi.Mode2
	case devices.SPIMode3:
		return spi.Mode3
	default:
		return spi.Mode0
	}
}

func (s *periphSPI) reconnect() error {
	conn, err := s.port.Connect(physic.Frequency(s.hz)*physic.Hertz, periphMode(s.mode), s.bits)
	if err != nil {
		return fmt.Errorf("hwio: connect SPI: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *periphSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if err := conn.Tx(w, r); err != nil {
		return fmt.Errorf("hwio: spi transfer: %w", err)
	}
	return nil
}

func (s *periphSPI) Speed(hz int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hz = hz
	return s.reconnect()
}

func (s *periphSPI) Configure(mode int, bits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode, s.bits = mode, bits
	return s.reconnect()
}

func (s *periphSPI) Close() error {
	return s.port.Close()
}

// periphGPIO adapts a periph.io gpio.PinIO to devices.GPIO.
type periphGPIO struct {
	pin  gpio.PinIO
	num  int
	edge gpio.Edge
}

// OpenGPIO looks up the named GPIO pin (e.g. "GPIO25") by name. num is
// recorded only for diagnostic messages (devices.GPIO.Number), since
// periph.io addresses pins by name rather than by number.
func OpenGPIO(name string, num int) (devices.GPIO, error) {
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("hwio: periph.io init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("hwio: no such GPIO pin %q", name)
	}
	return &periphGPIO{pin: pin, num: num}, nil
}

func periphEdge(edge int) gpio.Edge {
	switch edge {
	case devices.GpioRisingEdge:
		return gpio.RisingEdge
	case devices.GpioFallingEdge:
		return gpio.FallingEdge
	case devices.GpioBothEdges:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}

func (g *periphGPIO) In(edge int) error {
	g.edge = periphEdge(edge)
	if err := g.pin.In(gpio.PullNoChange, g.edge); err != nil {
		return fmt.Errorf("hwio: configure gpio %s in: %w", g.pin.Name(), err)
	}
	return nil
}

func (g *periphGPIO) Read() int {
	if g.pin.Read() == gpio.High {
		return devices.GpioHigh
	}
	return devices.GpioLow
}

func (g *periphGPIO) WaitForEdge(timeout time.Duration) bool {
	return g.pin.WaitForEdge(timeout)
}

func (g *periphGPIO) Out(level int) {
	l := gpio.Low
	if level == devices.GpioHigh {
		l = gpio.High
	}
	g.pin.Out(l)
}

func (g *periphGPIO) Number() int {
	return g.num
}
