package mcp2515

import "github.com/tve/mcp2515/canbus"

// This file is the event state machine, the core's heart (spec §4.4). The
// original driver chains one C function per SPI completion; here each node
// is an explicit step value with an issueX/onX pair, and each onX callback
// decides that node's outgoing transitions. Every node issues exactly one
// SPI transaction and every successful completion callback either issues
// the next one or idles the machine out (drain/drainOrTransmit); a failed
// transaction stops the chain (see issue and failed).
//
// busy/interrupt/transmit/pending are only ever touched under c.mu, and
// c.mu is never held across a Submit call.

// Interrupt is the hardware interrupt entry point (spec §4.4 "Initial
// stimulus"). It never performs blocking work: if a transaction is already
// in flight it just records that another one is needed once the machine
// goes idle.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	if c.busy {
		c.interrupt = true
		c.mu.Unlock()
		return
	}
	c.busy = true
	c.mu.Unlock()
	c.issueReadFlags()
}

// Transmit is the host transmit entry point. An invalid frame is silently
// consumed (framework policy, spec §4.5/§7); otherwise the host's transmit
// queue is stopped until TX0IF is observed cleared.
func (c *Controller) Transmit(f canbus.Frame) {
	if f.DLC > 8 {
		return
	}
	c.can.StopQueue()

	c.mu.Lock()
	c.pending = &f
	if c.busy {
		c.transmit = true
		c.mu.Unlock()
		return
	}
	c.busy = true
	c.mu.Unlock()
	c.issueLoadTXB0()
}

// issue submits buf[:n] as both the write and read halves of the next SPI
// transaction, dispatching to complete when it finishes.
func (c *Controller) issue(st step, n int, complete func(error)) {
	c.step = st
	if err := c.spi.Submit(c.txBuf[:n], c.rxBuf[:n], complete); err != nil {
		// Log and leave busy set. The chain stops here: while busy is set,
		// Interrupt only records the interrupt flag, so no further
		// transaction is issued for this controller.
		c.log("spi submit failed in step %d: %v", st, err)
	}
}

// failed logs a transaction error and reports whether one occurred; the
// caller then returns without issuing a next step, leaving busy set, with
// the same effect as a submit failure in issue.
func (c *Controller) failed(step string, err error) bool {
	if err != nil {
		c.log("%s: spi error: %v", step, err)
		return true
	}
	return false
}

func (c *Controller) issueReadFlags() {
	n := encodeRead(c.txBuf[:], regCANINTF, 2)
	c.issue(stepReadFlags, n, c.onReadFlags)
}

func (c *Controller) onReadFlags(err error) {
	if c.failed("read-flags", err) {
		return
	}
	c.lastCANINTF = c.rxBuf[2]
	c.lastEFLG = c.rxBuf[3]

	switch {
	case c.lastCANINTF&intfRX0IF != 0:
		c.issueReadRXB0()
	case c.lastCANINTF&intfRX1IF != 0:
		c.issueReadRXB1()
	case c.lastCANINTF != 0:
		c.issueClearCANINTF()
	default:
		c.drain()
	}
}

// drain runs when READ_FLAGS found CANINTF == 0: with the lock held, a
// pending transmit or a coalesced interrupt is served before the machine
// goes idle (spec §4.4 "drain").
func (c *Controller) drain() {
	c.mu.Lock()
	switch {
	case c.transmit:
		c.transmit = false
		c.mu.Unlock()
		c.issueLoadTXB0()
	case c.interrupt:
		c.interrupt = false
		c.mu.Unlock()
		c.issueReadFlags()
	default:
		c.busy = false
		c.mu.Unlock()
	}
}

func (c *Controller) issueReadRXB0() {
	n := encodeReadRXB(c.txBuf[:], 0)
	c.issue(stepReadRXB0, n, c.onReadRXB0)
}

func (c *Controller) issueReadRXB1() {
	n := encodeReadRXB(c.txBuf[:], 1)
	c.issue(stepReadRXB1, n, c.onReadRXB1)
}

// deliverRXB decodes the just-completed READ-RXB reply and hands the frame
// to the host stack, updating receive counters (spec §4.4/§7: a frame
// allocation failure would bump rx-dropped instead of counting it as
// received, but canbus.Device.Receive in this codebase cannot fail).
func (c *Controller) deliverRXB() canbus.Frame {
	f := decodeRXBPayload(c.rxBuf[1:14])
	cnt := c.Counters()
	cnt.RxPackets++
	cnt.RxBytes += uint64(f.DLC)
	c.can.Receive(f)
	return f
}

func (c *Controller) onReadRXB0(err error) {
	if c.failed("read-rxb0", err) {
		return
	}
	c.deliverRXB()
	if c.lastCANINTF&intfRX1IF != 0 {
		c.issueReadRXB1()
	} else {
		c.drainOrTransmit()
	}
}

func (c *Controller) onReadRXB1(err error) {
	if c.failed("read-rxb1", err) {
		return
	}
	c.deliverRXB()
	c.drainOrTransmit()
}

// drainOrTransmit runs after any READ_RXB*: an accepted frame is not held
// up by a long RX burst (spec §4.4 "drain-or-transmit").
func (c *Controller) drainOrTransmit() {
	c.mu.Lock()
	if c.transmit {
		c.transmit = false
		c.mu.Unlock()
		c.issueLoadTXB0()
		return
	}
	c.mu.Unlock()
	c.issueReadFlags()
}

func (c *Controller) issueClearCANINTF() {
	mask := c.lastCANINTF &^ (intfRX0IF | intfRX1IF)
	n := encodeBitModify(c.txBuf[:], regCANINTF, mask, 0)
	c.issue(stepClearCANINTF, n, c.onClearCANINTF)
}

func (c *Controller) onClearCANINTF(err error) {
	if c.failed("clear-canintf", err) {
		return
	}
	if c.lastCANINTF&intfTX0IF != 0 {
		c.finishTransmit()
	}
	if c.lastEFLG != 0 {
		c.issueClearEFLG()
	} else {
		c.issueReadFlags()
	}
}

// finishTransmit accounts the completed transmission and wakes the host
// transmit queue (spec invariant I2/I3: pending_skb clears here).
func (c *Controller) finishTransmit() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()
	if p != nil {
		n := c.can.GetEcho(0)
		cnt := c.Counters()
		cnt.TxBytes += uint64(n)
		cnt.TxPackets++
	}
	c.can.WakeQueue()
}

func (c *Controller) issueClearEFLG() {
	n := encodeBitModify(c.txBuf[:], regEFLG, c.lastEFLG, 0)
	c.issue(stepClearEFLG, n, c.onClearEFLG)
}

func (c *Controller) onClearEFLG(err error) {
	if c.failed("clear-eflg", err) {
		return
	}
	// The datasheet's receive flow chart (figure 4-3) misreports which
	// overflow bit is set when RXB0CTRL.BUKT rolls RXB0 over into RXB1,
	// so both bits are checked.
	if c.lastEFLG&(eflgRX0OVR|eflgRX1OVR) != 0 {
		c.Counters().RxOverErrors++
	}
	c.issueReadFlags()
}

func (c *Controller) issueLoadTXB0() {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		// Nothing to send; treat like drain did not find work.
		c.issueReadFlags()
		return
	}
	c.can.PutEcho(*p, 0)
	n := encodeLoadTXB(c.txBuf[:], 0, *p)
	c.issue(stepLoadTXB0, n, c.onLoadTXB0)
}

func (c *Controller) onLoadTXB0(err error) {
	if c.failed("load-txb0", err) {
		return
	}
	c.issueRTSTXB0()
}

func (c *Controller) issueRTSTXB0() {
	n := encodeRTS(c.txBuf[:], 0)
	c.issue(stepRTSTXB0, n, c.onRTSTXB0)
}

func (c *Controller) onRTSTXB0(err error) {
	if c.failed("rts-txb0", err) {
		return
	}
	c.issueReadFlags()
}
