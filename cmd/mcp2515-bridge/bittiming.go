package main

import (
	"fmt"

	"github.com/tve/mcp2515/canbus"
)

// bitTimingFor looks up a bit-timing register set for one of a handful of
// common bitrates at a 16MHz or 8MHz oscillator. Full bit-timing
// calculation from an arbitrary bitrate belongs to the generic CAN
// framework (out of scope for this driver core), so only the combinations
// in common use with this chip are supported here.
func bitTimingFor(bitrate int, oscillatorHz uint32) (canbus.BitTiming, error) {
	table, ok := timingTables[oscillatorHz]
	if !ok {
		return canbus.BitTiming{}, fmt.Errorf("mcp2515-bridge: no bit-timing table for a %dHz oscillator", oscillatorHz)
	}
	t, ok := table[bitrate]
	if !ok {
		return canbus.BitTiming{}, fmt.Errorf("mcp2515-bridge: unsupported bitrate %d at %dHz", bitrate, oscillatorHz)
	}
	return t, nil
}

var timingTables = map[uint32]map[int]canbus.BitTiming{
	16000000: {
		1000000: {SJW: 1, BRP: 1, PropSeg: 2, PhaseSeg1: 3, PhaseSeg2: 2},
		500000:  {SJW: 1, BRP: 1, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4},
		250000:  {SJW: 1, BRP: 2, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4},
		125000:  {SJW: 1, BRP: 4, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4},
	},
	8000000: {
		500000: {SJW: 1, BRP: 1, PropSeg: 2, PhaseSeg1: 3, PhaseSeg2: 2},
		250000: {SJW: 1, BRP: 1, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4},
		125000: {SJW: 1, BRP: 2, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4},
		100000: {SJW: 1, BRP: 2, PropSeg: 7, PhaseSeg1: 8, PhaseSeg2: 4},
	},
}
