package mcp2515

import (
	"fmt"
	"time"

	"github.com/tve/mcp2515/canbus"
)

// writeRegSync writes one register, blocking until the SPI transaction
// completes. Used only by bring-up/teardown (§4.2); the event state
// machine never calls this.
func (c *Controller) writeRegSync(addr, val byte) error {
	var w, r [3]byte
	encodeWrite(w[:], addr, val)
	return c.rawSPI.Tx(w[:], r[:])
}

// writeRegsSync writes a run of consecutive registers starting at addr in
// a single transaction.
func (c *Controller) writeRegsSync(addr byte, data ...byte) error {
	w := make([]byte, 2+len(data))
	r := make([]byte, len(w))
	encodeWriteMulti(w, addr, data...)
	return c.rawSPI.Tx(w, r)
}

// readRegSync reads one register, blocking until the SPI transaction completes.
func (c *Controller) readRegSync(addr byte) (byte, error) {
	var w, r [3]byte
	encodeRead(w[:], addr, 1)
	if err := c.rawSPI.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[2], nil
}

// readRegsSync reads n consecutive registers starting at addr.
func (c *Controller) readRegsSync(addr byte, n int) ([]byte, error) {
	w := make([]byte, 2+n)
	r := make([]byte, len(w))
	encodeRead(w, addr, n)
	if err := c.rawSPI.Tx(w, r); err != nil {
		return nil, err
	}
	return r[2:], nil
}

// resetSync sends the RESET opcode; the chip returns to Configuration mode
// with its documented power-on register values.
func (c *Controller) resetSync() error {
	var w, r [1]byte
	encodeReset(w[:])
	return c.rawSPI.Tx(w[:], r[:])
}

// Detect confirms a chip is present by reading CANSTAT and CANCTRL and
// checking them against their documented power-on default bits.
func (c *Controller) Detect() error {
	canstat, err := c.readRegSync(regCANSTAT)
	if err != nil {
		return fmt.Errorf("mcp2515: detect: %w", err)
	}
	canctrl, err := c.readRegSync(regCANCTRL)
	if err != nil {
		return fmt.Errorf("mcp2515: detect: %w", err)
	}
	if canstat&detectCANSTATMask != detectCANSTATValue || canctrl&detectCANCTRLMask != detectCANCTRLValue {
		c.log("detect failed: canstat=%#02x canctrl=%#02x", canstat, canctrl)
		return ErrNoDevice
	}
	return nil
}

// requestedMode maps the controller's control-mode bitset onto the
// CANCTRL REQOP bits, ignoring any stale value in a CANCTRL register
// (spec §9's "mode |= OSM" redesign flag: one-shot is tested against the
// ctrlmode bitset, not a register value).
func (c *Controller) requestedMode() byte {
	var mode byte
	switch {
	case c.ctrl&canbus.Loopback != 0:
		mode = ctrlReqopLoopback
	case c.ctrl&canbus.ListenOnly != 0:
		mode = ctrlReqopListenOnly
	default:
		mode = ctrlReqopNormal
	}
	if c.ctrl&canbus.OneShot != 0 {
		mode |= ctrlOSM
	}
	return mode
}

// Start resets the chip, programs bit timing, receive buffer configuration
// and the requested operating mode, and polls until the mode switch is
// confirmed. It is run from Open and from SetMode(ModeStart).
func (c *Controller) Start() error {
	if err := c.resetSync(); err != nil {
		return fmt.Errorf("mcp2515: start: reset: %w", err)
	}

	t := c.timing
	cnf3 := t.PhaseSeg2 - 1
	cnf2 := byte(0x80)
	if c.ctrl&canbus.ThreeSamples != 0 {
		cnf2 |= 0x40
	}
	cnf2 |= (t.PhaseSeg1 - 1) << 3
	cnf2 |= t.PropSeg - 1
	cnf1 := (t.SJW-1)<<6 | (t.BRP - 1)

	c.log("writing CNF: %#02x %#02x %#02x", cnf1, cnf2, cnf3)
	if err := c.writeRegsSync(regCNF3, cnf3, cnf2, cnf1, canInteAll); err != nil {
		return fmt.Errorf("mcp2515: start: write CNF/CANINTE: %w", err)
	}

	rxb0 := byte(rxbctrlRXM1 | rxbctrlRXM0 | rxbctrlBUKT)
	rxb1 := byte(rxbctrlRXM1 | rxbctrlRXM0)
	// RXB0CTRL (0x60) and RXB1CTRL (0x70) are not adjacent, so each gets
	// its own WRITE.
	if err := c.writeRegSync(regRXB0CTRL, rxb0); err != nil {
		return fmt.Errorf("mcp2515: start: write RXBnCTRL: %w", err)
	}
	if err := c.writeRegSync(regRXB1CTRL, rxb1); err != nil {
		return fmt.Errorf("mcp2515: start: write RXBnCTRL: %w", err)
	}

	mode := c.requestedMode()
	c.transceiverSwitch(true)
	if err := c.writeRegSync(regCANCTRL, mode); err != nil {
		return fmt.Errorf("mcp2515: start: write CANCTRL: %w", err)
	}

	deadline := time.Now().Add(waitModeTimeout)
	for {
		stat, err := c.readRegSync(regCANSTAT)
		if err != nil {
			c.transceiverSwitch(false)
			return fmt.Errorf("mcp2515: start: read CANSTAT: %w", err)
		}
		if stat&ctrlReqopMask == mode&ctrlReqopMask {
			break
		}
		if time.Now().After(deadline) {
			c.log("device didn't enter requested mode")
			c.transceiverSwitch(false)
			return ErrModeTimeout
		}
		time.Sleep(time.Millisecond)
	}

	c.can.SetState(canbus.StateErrorActive)
	return nil
}

// Stop resets the chip, disables the transceiver and marks the generic
// CAN state as stopped.
func (c *Controller) Stop() error {
	if err := c.resetSync(); err != nil {
		return fmt.Errorf("mcp2515: stop: %w", err)
	}
	c.transceiverSwitch(false)
	c.can.SetState(canbus.StateStopped)
	return nil
}

// BerrCounters performs a synchronous read of the TEC/REC error counters.
func (c *Controller) BerrCounters() (tx, rx uint8, err error) {
	regs, err := c.readRegsSync(regTEC, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("mcp2515: berr counters: %w", err)
	}
	return regs[0], regs[1], nil
}
