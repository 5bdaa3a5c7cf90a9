package mcp2515

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tve/mcp2515/canbus"
)

// fakeAsyncSPI runs each submitted transaction synchronously: respond fills
// in r and returns an error, after which complete is invoked before Submit
// returns. Because the event state machine issues its next transaction from
// inside the previous one's complete callback, an entire interrupt's chain
// of SPI exchanges runs to completion (or to idle) within one call to
// Interrupt/Transmit, with no goroutines or timing involved.
type fakeAsyncSPI struct {
	opcodes [][]byte
	respond func(step int, w, r []byte) error
}

func (f *fakeAsyncSPI) Submit(w, r []byte, complete func(error)) error {
	cp := make([]byte, len(w))
	copy(cp, w)
	step := len(f.opcodes)
	f.opcodes = append(f.opcodes, cp)
	err := f.respond(step, w, r)
	complete(err)
	return nil
}

func (f *fakeAsyncSPI) Close() error { return nil }

func newStateController(spi *fakeAsyncSPI) (*Controller, *canbus.LoopbackDevice) {
	can := canbus.NewLoopbackDevice()
	c := &Controller{
		spi: spi,
		can: can,
	}
	c.SetLogger(nil)
	return c, can
}

// Scenario 1: interrupt-only RX0.
func TestStateInterruptOnlyRX0(t *testing.T) {
	spi := &fakeAsyncSPI{}
	c, can := newStateController(spi)

	want := canbus.Frame{ID: 0x200, DLC: 1, Data: [8]byte{0x5A}}
	spi.respond = func(step int, w, r []byte) error {
		switch step {
		case 0: // READ FLAGS
			r[2], r[3] = intfRX0IF, 0
		case 1: // READ RXB0
			encodeTXBPayload(r[1:14], want)
		case 2: // READ FLAGS again, now quiet
			r[2], r[3] = 0, 0
		default:
			t.Fatalf("unexpected step %d", step)
		}
		return nil
	}

	c.Interrupt()

	if len(spi.opcodes) != 3 {
		t.Fatalf("got %d transactions, want 3", len(spi.opcodes))
	}
	wantOps := []byte{instrRead, instrReadRXB(0), instrRead}
	for i, op := range wantOps {
		if spi.opcodes[i][0] != op {
			t.Errorf("opcode %d: got %#02x want %#02x", i, spi.opcodes[i][0], op)
		}
	}
	if len(can.Received) != 1 || can.Received[0] != want {
		t.Fatalf("got received %+v, want one frame %+v", can.Received, want)
	}
	if c.busy {
		t.Fatalf("busy still set after the chain went quiet")
	}
}

// Scenario 2: back-to-back TX then TX-complete.
func TestStateTransmitThenComplete(t *testing.T) {
	spi := &fakeAsyncSPI{}
	c, can := newStateController(spi)

	spi.respond = func(step int, w, r []byte) error {
		switch step {
		case 0: // LOAD TXB0
		case 1: // RTS TXB0
		case 2: // READ FLAGS
			r[2], r[3] = intfTX0IF, 0
		case 3: // BIT-MODIFY CANINTF
		case 4: // READ FLAGS again, now quiet
			r[2], r[3] = 0, 0
		default:
			t.Fatalf("unexpected step %d", step)
		}
		return nil
	}

	c.Transmit(canbus.Frame{ID: 0x100, DLC: 0})

	wantOps := []byte{instrLoadTXB(0), instrRTS(0), instrRead, instrBitModify, instrRead}
	if len(spi.opcodes) != len(wantOps) {
		t.Fatalf("got %d transactions, want %d", len(spi.opcodes), len(wantOps))
	}
	for i, op := range wantOps {
		if spi.opcodes[i][0] != op {
			t.Errorf("opcode %d: got %#02x want %#02x", i, spi.opcodes[i][0], op)
		}
	}
	if can.QueueStop != 1 || can.QueueWake != 1 {
		t.Fatalf("queue stop/wake = %d/%d, want 1/1", can.QueueStop, can.QueueWake)
	}
	if can.Counters().TxPackets != 1 {
		t.Fatalf("tx packets = %d, want 1", can.Counters().TxPackets)
	}
	if c.pending != nil {
		t.Fatalf("pending frame not cleared")
	}
	if c.busy {
		t.Fatalf("busy still set after the chain went quiet")
	}
}

// Scenario 3: an interrupt fires while LOAD_TXB0 is in flight.
func TestStateRXDuringTX(t *testing.T) {
	spi := &fakeAsyncSPI{}
	c, can := newStateController(spi)

	rx := canbus.Frame{ID: 0x50, DLC: 0}
	spi.respond = func(step int, w, r []byte) error {
		switch step {
		case 0: // LOAD TXB0; the interrupt line asserts mid-transaction
			c.Interrupt()
		case 1: // RTS TXB0
		case 2: // READ FLAGS: both RX0IF and TX0IF pending
			r[2], r[3] = intfRX0IF|intfTX0IF, 0
		case 3: // READ RXB0
			encodeTXBPayload(r[1:14], rx)
		case 4: // READ FLAGS: RX0IF auto-cleared by the RXB0 read, TX0IF remains
			r[2], r[3] = intfTX0IF, 0
		case 5: // BIT-MODIFY CANINTF clears TX0IF
		case 6: // READ FLAGS after the clear: now quiet
			r[2], r[3] = 0, 0
		case 7: // READ FLAGS: the coalesced interrupt gets one more pass
			r[2], r[3] = 0, 0
		default:
			t.Fatalf("unexpected step %d", step)
		}
		return nil
	}

	c.Transmit(canbus.Frame{ID: 0x100, DLC: 0})

	wantOps := []byte{
		instrLoadTXB(0), instrRTS(0), instrRead, instrReadRXB(0),
		instrRead, instrBitModify, instrRead, instrRead,
	}
	if len(spi.opcodes) != len(wantOps) {
		t.Fatalf("got %d transactions, want %d: %v", len(spi.opcodes), len(wantOps), spi.opcodes)
	}
	for i, op := range wantOps {
		if spi.opcodes[i][0] != op {
			t.Errorf("opcode %d: got %#02x want %#02x", i, spi.opcodes[i][0], op)
		}
	}
	if len(can.Received) != 1 || can.Received[0] != rx {
		t.Fatalf("got received %+v, want one frame %+v", can.Received, rx)
	}
	if can.Counters().TxPackets != 1 {
		t.Fatalf("tx packets = %d, want 1", can.Counters().TxPackets)
	}
	if c.busy || c.interrupt || c.transmit {
		t.Fatalf("flags not clean at idle: busy=%v interrupt=%v transmit=%v", c.busy, c.interrupt, c.transmit)
	}
}

// Scenario 4: RX overflow.
func TestStateRXOverflow(t *testing.T) {
	spi := &fakeAsyncSPI{}
	c, can := newStateController(spi)

	f0 := canbus.Frame{ID: 0x10, DLC: 0}
	f1 := canbus.Frame{ID: 0x11, DLC: 0}
	spi.respond = func(step int, w, r []byte) error {
		switch step {
		case 0: // READ FLAGS: RX0IF | RX1IF | ERRIF, EFLG RX0OVR
			r[2], r[3] = intfRX0IF|intfRX1IF|intfERRIF, eflgRX0OVR
		case 1: // READ RXB0
			encodeTXBPayload(r[1:14], f0)
		case 2: // READ RXB1
			encodeTXBPayload(r[1:14], f1)
		case 3: // READ FLAGS: RX bits auto-cleared, ERRIF and EFLG remain
			r[2], r[3] = intfERRIF, eflgRX0OVR
		case 4: // BIT-MODIFY CANINTF clears ERRIF
		case 5: // BIT-MODIFY EFLG clears RX0OVR
		case 6: // READ FLAGS: now quiet
			r[2], r[3] = 0, 0
		default:
			t.Fatalf("unexpected step %d", step)
		}
		return nil
	}

	c.Interrupt()

	if len(can.Received) != 2 {
		t.Fatalf("got %d frames, want 2", len(can.Received))
	}
	if can.Counters().RxOverErrors != 1 {
		t.Fatalf("rx over errors = %d, want 1", can.Counters().RxOverErrors)
	}
	if c.busy {
		t.Fatalf("busy still set after the chain went quiet")
	}
}

func TestSetLoggerReceivesSubmitFailures(t *testing.T) {
	wantErr := errors.New("bus error")
	spi := &fakeAsyncSPI{
		respond: func(step int, w, r []byte) error {
			return wantErr
		},
	}
	c, _ := newStateController(spi)

	var got string
	c.SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })
	c.Interrupt()

	if got == "" {
		t.Fatalf("expected a log line for the failed READ FLAGS transaction")
	}
	if !c.busy {
		t.Fatalf("busy should remain set after a submit failure, per the documented recovery path")
	}
}

// Scenario: an invalid frame (DLC out of range) is silently dropped.
func TestStateTransmitRejectsInvalidFrame(t *testing.T) {
	spi := &fakeAsyncSPI{
		respond: func(step int, w, r []byte) error {
			panic("no SPI transaction should have been issued")
		},
	}
	c, can := newStateController(spi)

	c.Transmit(canbus.Frame{ID: 0x1, DLC: 9})

	if can.QueueStop != 0 {
		t.Fatalf("queue was stopped for an invalid frame")
	}
	if c.busy {
		t.Fatalf("busy set for a frame that was never accepted")
	}
}
