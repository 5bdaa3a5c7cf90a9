package mcp2515

import (
	"fmt"
	"time"

	devices "github.com/tve/mcp2515"
)

// This file is the Host Interface Adapter (spec §4.5): the boundary between
// the generic CAN device framework (Open/Close/SetMode, Transmit in
// state.go) and the chip-specific bring-up and state machine below it.

// Open detects the chip, configures intrPin for falling-edge notification,
// brings the chip up in the requested mode and starts the interrupt watcher
// goroutine.
func (c *Controller) Open() error {
	if c.pdata.BoardSetup != nil {
		c.pdata.BoardSetup(c.rawSPI)
	}
	c.powerSwitch(true)

	if err := c.Detect(); err != nil {
		c.powerSwitch(false)
		return err
	}
	if err := c.intrPin.In(devices.GpioFallingEdge); err != nil {
		c.powerSwitch(false)
		return fmt.Errorf("mcp2515: open: configure interrupt pin: %w", err)
	}
	if err := c.Start(); err != nil {
		c.powerSwitch(false)
		return err
	}

	c.stopIntr = make(chan struct{})
	c.intrDone = make(chan struct{})
	go c.watchInterrupt()

	c.can.WakeQueue()
	return nil
}

// Close stops the interrupt watcher, resets the chip into a quiescent state
// and releases the async SPI worker.
func (c *Controller) Close() error {
	c.can.StopQueue()
	if c.stopIntr != nil {
		close(c.stopIntr)
		<-c.intrDone
	}
	err := c.Stop()
	c.powerSwitch(false)
	if cerr := c.spi.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// watchInterrupt converts the interrupt GPIO's edge-driven WaitForEdge into
// calls on the state machine's entry point, the same "edge to call" shape
// the teacher's radio drivers use for their own interrupt line.
func (c *Controller) watchInterrupt() {
	defer close(c.intrDone)

	// The line may already be asserted; don't wait for an edge that already
	// happened before the watcher started.
	if c.intrPin.Read() == devices.GpioLow {
		c.Interrupt()
	}
	for {
		if c.intrPin.WaitForEdge(time.Second) {
			if c.intrPin.Read() == devices.GpioLow {
				c.Interrupt()
			}
			continue
		}
		select {
		case <-c.stopIntr:
			return
		default:
		}
		if c.intrPin.Read() == devices.GpioLow {
			// WaitForEdge timed out yet the line is still asserted: an edge
			// was missed, so poll it directly rather than wait forever.
			c.Interrupt()
		}
	}
}

// SetMode carries out a do_set_mode request from the generic framework.
// Only ModeStart (bring the controller onto the bus and wake its transmit
// queue) is supported; any other mode is rejected, mirroring the
// original driver's set_mode switch falling through to -EOPNOTSUPP.
func (c *Controller) SetMode(mode Mode) error {
	switch mode {
	case ModeStart:
		if err := c.Start(); err != nil {
			return err
		}
		c.can.WakeQueue()
		return nil
	default:
		return ErrNotSupported
	}
}
