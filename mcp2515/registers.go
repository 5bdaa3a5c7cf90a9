package mcp2515

import "github.com/tve/mcp2515/canbus"

// SPI instruction opcodes, DS21801E table 11-1.
const (
	instrWrite     = 0x02
	instrRead      = 0x03
	instrBitModify = 0x05
	instrReset     = 0xC0
)

func instrLoadTXB(n int) byte   { return 0x40 + byte(n<<1) }
func instrRTS(n int) byte       { return 0x80 | (1 << byte(n)) }
func instrReadRXB(n int) byte   { return 0x90 + byte(n<<2) }

// Register addresses used by this driver.
const (
	regCANSTAT  = 0x0E
	regCANCTRL  = 0x0F
	regTEC      = 0x1C
	regREC      = 0x1D
	regCNF3     = 0x28
	regCANINTF  = 0x2C
	regEFLG     = 0x2D
	regRXB0CTRL = 0x60
	regRXB1CTRL = 0x70
)

// CANCTRL bits.
const (
	ctrlReqopNormal     = 0x00
	ctrlReqopSleep      = 0x20
	ctrlReqopLoopback   = 0x40
	ctrlReqopListenOnly = 0x60
	ctrlReqopConfig     = 0x80
	ctrlReqopMask       = 0xE0
	ctrlOSM             = 1 << 3
)

// CANINTF bits.
const (
	intfRX0IF = 1 << 0
	intfRX1IF = 1 << 1
	intfTX0IF = 1 << 2
	intfTX1IF = 1 << 3
	intfTX2IF = 1 << 4
	intfERRIF = 1 << 5
	intfWAKIF = 1 << 6
	intfMERRF = 1 << 7
)

// CANINTE bits (interrupt enables written to CANINTF's companion register).
const canInteAll = intfRX0IF | intfRX1IF | intfTX0IF | intfTX1IF | intfTX2IF | intfERRIF

// EFLG bits.
const (
	eflgRX0OVR = 1 << 6
	eflgRX1OVR = 1 << 7
)

// RXBnCTRL bits.
const (
	rxbctrlBUKT = 1 << 2
	rxbctrlRXM0 = 1 << 5
	rxbctrlRXM1 = 1 << 6
)

// RXBnSIDL / RXBnDLC bits.
const (
	sidlIDE = 1 << 3
	sidlSRR = 1 << 4
	dlcRTR  = 1 << 6
)

// detectCANSTATMask/Value and detectCANCTRLMask/Value are the power-on
// default bits Detect checks for, per DS21801E and the original driver's
// "avoid common all zeroes or all ones situations" comment.
const (
	detectCANSTATMask  = 0xEE
	detectCANSTATValue = 0x80
	detectCANCTRLMask  = 0x17
	detectCANCTRLValue = 0x07
)

// encodeWrite builds a WRITE buf..., addr, val SPI frame.
func encodeWrite(buf []byte, addr, val byte) int {
	buf[0] = instrWrite
	buf[1] = addr
	buf[2] = val
	return 3
}

// encodeWriteMulti builds a multi-byte WRITE starting at addr.
func encodeWriteMulti(buf []byte, addr byte, data ...byte) int {
	buf[0] = instrWrite
	buf[1] = addr
	n := copy(buf[2:], data)
	return 2 + n
}

// encodeRead builds a READ addr request frame; the caller sizes the
// transfer for 2+n bytes and reads the reply starting at buf[2].
func encodeRead(buf []byte, addr byte, n int) int {
	buf[0] = instrRead
	buf[1] = addr
	for i := 0; i < n; i++ {
		buf[2+i] = 0
	}
	return 2 + n
}

// encodeBitModify builds a BIT-MODIFY frame: bits set in mask take data's value.
func encodeBitModify(buf []byte, addr, mask, data byte) int {
	buf[0] = instrBitModify
	buf[1] = addr
	buf[2] = mask
	buf[3] = data
	return 4
}

// encodeReset builds the single-byte RESET frame.
func encodeReset(buf []byte) int {
	buf[0] = instrReset
	return 1
}

// encodeReadRXB builds a READ-RXB(n) request; the 13 payload bytes
// (SIDH/SIDL/EID8/EID0/DLC/D0..D7) follow the opcode byte in the reply.
func encodeReadRXB(buf []byte, n int) int {
	for i := range buf[:14] {
		buf[i] = 0
	}
	buf[0] = instrReadRXB(n)
	return 14
}

// encodeRTS builds the single-byte RTS(n) frame.
func encodeRTS(buf []byte, n int) int {
	buf[0] = instrRTS(n)
	return 1
}

// encodeLoadTXB builds a LOAD-TXB(n) frame carrying f's header and data
// bytes, returning the total transaction length (opcode + 5..13 payload
// bytes).
func encodeLoadTXB(buf []byte, n int, f canbus.Frame) int {
	buf[0] = instrLoadTXB(n)
	encodeTXBPayload(buf[1:], f)
	return 1 + 5 + int(f.DLC)
}

// encodeTXBPayload writes the SIDH/SIDL/EID8/EID0/DLC/data payload for f
// into buf (which must have room for 5+8=13 bytes), per DS21801E register
// 3-1..3-5 and the standard/extended identifier mapping in the spec.
func encodeTXBPayload(buf []byte, f canbus.Frame) {
	id := f.ArbitrationID()
	if f.IsExtended() {
		buf[0] = byte(id >> 21)
		buf[1] = byte((id>>13)&0xE0) | sidlIDE | byte((id>>16)&0x03)
		buf[2] = byte(id >> 8)
		buf[3] = byte(id)
	} else {
		buf[0] = byte(id >> 3)
		buf[1] = byte(id << 5)
		buf[2] = 0
		buf[3] = 0
	}
	dlc := f.DLC
	if dlc > 8 {
		dlc = 8
	}
	buf[4] = dlc
	if f.IsRemote() {
		buf[4] |= dlcRTR
	} else {
		copy(buf[5:5+dlc], f.Data[:dlc])
	}
}

// decodeRXBPayload parses a 13-byte READ-RXB payload (buf starts right
// after the opcode byte, i.e. buf[0]==SIDH) into a Frame.
func decodeRXBPayload(buf []byte) canbus.Frame {
	var f canbus.Frame
	sidh, sidl, eid8, eid0, dlcByte := buf[0], buf[1], buf[2], buf[3], buf[4]

	if sidl&sidlIDE != 0 {
		id := uint32(sidh)<<21 | uint32(sidl&0xE0)<<13 | uint32(sidl&0x03)<<16 |
			uint32(eid8)<<8 | uint32(eid0)
		f.ID = id | canbus.EFF
		if dlcByte&dlcRTR != 0 {
			f.ID |= canbus.RTR
		}
	} else {
		id := uint32(sidh)<<3 | uint32(sidl)>>5
		f.ID = id
		if sidl&sidlSRR != 0 {
			f.ID |= canbus.RTR
		}
	}

	dlc := dlcByte & 0x0F
	if dlc > 8 {
		dlc = 8
	}
	f.DLC = dlc
	if f.ID&canbus.RTR == 0 {
		copy(f.Data[:dlc], buf[5:5+dlc])
	}
	return f
}
