package mcp2515

import (
	"errors"
	"testing"

	"github.com/tve/mcp2515/canbus"
)

// fakeSyncSPI is a devices.SPI used for the synchronous bring-up tests; it
// dispatches on the register address in w[1] the way the real chip would
// respond to a READ/WRITE/BIT-MODIFY opcode.
type fakeSyncSPI struct {
	regs     map[byte]byte
	noMirror bool // disable the CANCTRL->CANSTAT mirroring, simulating a stuck chip
}

func newFakeSyncSPI() *fakeSyncSPI {
	return &fakeSyncSPI{regs: make(map[byte]byte)}
}

func (f *fakeSyncSPI) Tx(w, r []byte) error {
	switch w[0] {
	case instrRead:
		addr := w[1]
		for i := 2; i < len(w); i++ {
			r[i] = f.regs[addr+byte(i-2)]
		}
	case instrWrite:
		addr := w[1]
		for i := 2; i < len(w); i++ {
			reg := addr + byte(i-2)
			f.regs[reg] = w[i]
			if reg == regCANCTRL && !f.noMirror {
				// The chip mirrors CANCTRL's REQOP bits into CANSTAT's
				// OPMOD bits, same bit positions, once the mode switch
				// completes; the fake completes it instantly.
				f.regs[regCANSTAT] = (f.regs[regCANSTAT] &^ ctrlReqopMask) | (w[i] & ctrlReqopMask)
			}
		}
	case instrBitModify:
		addr, mask, data := w[1], w[2], w[3]
		f.regs[addr] = (f.regs[addr] &^ mask) | (data & mask)
	case instrReset:
		// RESET returns the chip to Configuration mode with its power-on
		// CANSTAT/CANCTRL values.
		f.regs = map[byte]byte{regCANSTAT: 0x80, regCANCTRL: 0x87}
	}
	return nil
}

func (f *fakeSyncSPI) Speed(hz int64) error          { return nil }
func (f *fakeSyncSPI) Configure(mode, bits int) error { return nil }
func (f *fakeSyncSPI) Close() error                   { return nil }

func testController(spi *fakeSyncSPI) *Controller {
	c := &Controller{
		rawSPI: spi,
		can:    canbus.NewLoopbackDevice(),
		timing: canbus.BitTiming{SJW: 1, BRP: 4, PropSeg: 3, PhaseSeg1: 3, PhaseSeg2: 3},
	}
	c.SetLogger(nil)
	return c
}

func TestDetectChipAbsent(t *testing.T) {
	spi := newFakeSyncSPI()
	spi.regs[regCANSTAT] = 0xFF
	spi.regs[regCANCTRL] = 0xFF
	c := testController(spi)

	err := c.Detect()
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
}

func TestDetectChipPresent(t *testing.T) {
	spi := newFakeSyncSPI()
	spi.regs[regCANSTAT] = 0x80 // OPMOD=config, ICOD=0
	spi.regs[regCANCTRL] = 0x87 // power-on default: config mode, CLKEN, CLKPRE
	c := testController(spi)

	if err := c.Detect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStartModeTimeout(t *testing.T) {
	spi := newFakeSyncSPI()
	spi.noMirror = true
	spi.regs[regCANSTAT] = ctrlReqopConfig
	c := testController(spi)

	err := c.Start()
	if !errors.Is(err, ErrModeTimeout) {
		t.Fatalf("got %v, want ErrModeTimeout", err)
	}
	if lb := c.can.(*canbus.LoopbackDevice); lb.State != canbus.StateStopped {
		t.Fatalf("state changed to %v on timeout", lb.State)
	}
}

func TestStartSucceeds(t *testing.T) {
	spi := newFakeSyncSPI()
	c := testController(spi)

	if err := c.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lb := c.can.(*canbus.LoopbackDevice); lb.State != canbus.StateErrorActive {
		t.Fatalf("state is %v, want error-active", lb.State)
	}
}

func TestSetModeStartWakesQueue(t *testing.T) {
	spi := newFakeSyncSPI()
	c := testController(spi)

	if err := c.SetMode(ModeStart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lb := c.can.(*canbus.LoopbackDevice)
	if lb.QueueWake != 1 {
		t.Fatalf("queue wake = %d, want 1", lb.QueueWake)
	}
}

func TestSetModeRejectsUnsupportedMode(t *testing.T) {
	spi := newFakeSyncSPI()
	c := testController(spi)

	err := c.SetMode(Mode(99))
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("got %v, want ErrNotSupported", err)
	}
	lb := c.can.(*canbus.LoopbackDevice)
	if lb.QueueWake != 0 {
		t.Fatalf("queue woken for an unsupported mode request")
	}
}
