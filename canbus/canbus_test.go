package canbus

import "testing"

func TestFrameFlags(t *testing.T) {
	cases := map[string]struct {
		f     Frame
		ext   bool
		rtr   bool
		arbID uint32
	}{
		"standard":      {Frame{ID: 0x123}, false, false, 0x123},
		"extended":      {Frame{ID: 0x1ABCDEF0 | EFF}, true, false, 0x1ABCDEF0},
		"standard-rtr":  {Frame{ID: 0x42 | RTR}, false, true, 0x42},
		"extended-rtr":  {Frame{ID: 0x1FFFFFFF | EFF | RTR}, true, true, 0x1FFFFFFF},
	}
	for name, tc := range cases {
		if got := tc.f.IsExtended(); got != tc.ext {
			t.Errorf("%s: IsExtended() = %v, want %v", name, got, tc.ext)
		}
		if got := tc.f.IsRemote(); got != tc.rtr {
			t.Errorf("%s: IsRemote() = %v, want %v", name, got, tc.rtr)
		}
		if got := tc.f.ArbitrationID(); got != tc.arbID {
			t.Errorf("%s: ArbitrationID() = %#x, want %#x", name, got, tc.arbID)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateBusOff.String() != "bus-off" {
		t.Fatalf("got %q, want bus-off", StateBusOff.String())
	}
	if State(99).String() != "unknown" {
		t.Fatalf("unrecognized state did not fall back to unknown")
	}
}

func TestLoopbackDeviceEcho(t *testing.T) {
	d := NewLoopbackDevice()
	f := Frame{ID: 0x1, DLC: 4}
	d.PutEcho(f, 0)
	if n := d.GetEcho(0); n != 4 {
		t.Fatalf("got echo %d, want 4", n)
	}
	if n := d.GetEcho(0); n != 0 {
		t.Fatalf("echo slot not cleared after GetEcho, got %d", n)
	}
}

func TestLoopbackDeviceReceive(t *testing.T) {
	d := NewLoopbackDevice()
	f := Frame{ID: 0x42, DLC: 2, Data: [8]byte{1, 2}}
	d.Receive(f)
	if len(d.Received) != 1 || d.Received[0] != f {
		t.Fatalf("got %+v, want one frame %+v", d.Received, f)
	}
}
