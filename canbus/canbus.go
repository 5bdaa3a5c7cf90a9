// Package canbus models the generic CAN networking subsystem that the
// mcp2515 driver plugs into: frame allocation, an echo-skb style transmit
// accounting queue, receive delivery and the device lifecycle, plus the
// bit-timing and control-mode parameters the framework validates before
// handing them to a chip driver. On a real host this is the kernel's
// linux/can/dev.h layer (out of scope per the driver core's spec); here it
// is a small, idiomatic stand-in modeled on the Bus/Frame shapes used by
// CAN stacks such as samsamfire/gocanopen, so the driver core can be built
// and tested against it without a real netdev.
package canbus

import "fmt"

// Frame flags, mirroring the SocketCAN can_id high bits.
const (
	EFF uint32 = 1 << 31 // extended frame format (29-bit id)
	RTR uint32 = 1 << 30 // remote transmission request
)

// SFFMask and EFFMask isolate the arbitration id bits of an id+flags value.
const (
	SFFMask uint32 = 0x000007FF
	EFFMask uint32 = 0x1FFFFFFF
)

// Frame is a single CAN frame as exchanged with the host stack: ID carries
// the arbitration id plus the EFF/RTR flag bits, DLC is the data length
// (0..8), and only the first DLC bytes of Data are meaningful.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [8]byte
}

// IsExtended reports whether the frame uses a 29-bit extended identifier.
func (f Frame) IsExtended() bool { return f.ID&EFF != 0 }

// IsRemote reports whether the frame is a remote transmission request.
func (f Frame) IsRemote() bool { return f.ID&RTR != 0 }

// ArbitrationID returns the bare identifier bits, without the EFF/RTR flags.
func (f Frame) ArbitrationID() uint32 {
	if f.IsExtended() {
		return f.ID & EFFMask
	}
	return f.ID & SFFMask
}

func (f Frame) String() string {
	kind := "sff"
	if f.IsExtended() {
		kind = "eff"
	}
	if f.IsRemote() {
		return fmt.Sprintf("%s id=%#x rtr dlc=%d", kind, f.ArbitrationID(), f.DLC)
	}
	return fmt.Sprintf("%s id=%#x dlc=%d data=% x", kind, f.ArbitrationID(), f.DLC, f.Data[:f.DLC])
}

// CtrlMode is the bitset of optional operating modes the framework may ask
// a driver to support, validated against Device.SupportedModes before use.
type CtrlMode uint32

const (
	Loopback CtrlMode = 1 << iota
	ListenOnly
	ThreeSamples
	OneShot
)

// BitTiming carries the CAN bit-timing parameters the framework computes
// from a requested bitrate and hands to the driver; limits are validated by
// the framework before the driver ever sees them (tseg1 in [2,16], tseg2 in
// [2,8], sjw<=4, brp in [1,64]).
type BitTiming struct {
	SJW       uint8 // synchronization jump width
	BRP       uint8 // baud rate prescaler
	PropSeg   uint8 // propagation segment
	PhaseSeg1 uint8 // phase segment 1
	PhaseSeg2 uint8 // phase segment 2
}

// State is the generic CAN error-state machine exposed by the framework.
type State int

const (
	StateStopped State = iota
	StateErrorActive
	StateErrorWarning
	StateErrorPassive
	StateBusOff
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateErrorActive:
		return "error-active"
	case StateErrorWarning:
		return "error-warning"
	case StateErrorPassive:
		return "error-passive"
	case StateBusOff:
		return "bus-off"
	default:
		return "unknown"
	}
}

// Counters are the statistics the framework tracks on behalf of a driver.
type Counters struct {
	RxPackets    uint64
	RxBytes      uint64
	RxDropped    uint64
	RxOverErrors uint64
	TxPackets    uint64
	TxBytes      uint64
}

// Device is the contract a CAN link-layer driver is plugged into: frame
// delivery, an echo queue for transmit completion accounting, and the
// open/close/state lifecycle. mcp2515.Controller is built against this
// interface; LoopbackDevice below is a test double implementing it.
type Device interface {
	// Receive delivers a frame that arrived from the bus to the host stack.
	Receive(f Frame)
	// PutEcho records the byte count of an outbound frame under slot idx,
	// to be retrieved by GetEcho once its transmission completes.
	PutEcho(f Frame, idx int)
	// GetEcho returns the byte count recorded by the PutEcho at slot idx.
	GetEcho(idx int) int
	// StopQueue pauses host frame submission (called when a TX is pending).
	StopQueue()
	// WakeQueue resumes host frame submission.
	WakeQueue()
	// SetState updates the generic CAN error-state.
	SetState(s State)
	// Counters returns the mutable statistics block for this device.
	Counters() *Counters
}
