package canbus

import "sync"

// LoopbackDevice is an in-memory Device used by the mcp2515 package's own
// tests and by simple command-line tools: delivered frames are appended to
// Received, the queue-stop/wake calls are recorded, and the echo queue is
// backed by a plain map instead of a real skb echo ring.
type LoopbackDevice struct {
	mu        sync.Mutex
	Received  []Frame
	QueueStop int // number of StopQueue calls
	QueueWake int // number of WakeQueue calls
	State     State
	echo      map[int]int
	counters  Counters
}

// NewLoopbackDevice returns a ready-to-use LoopbackDevice.
func NewLoopbackDevice() *LoopbackDevice {
	return &LoopbackDevice{echo: make(map[int]int)}
}

func (d *LoopbackDevice) Receive(f Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Received = append(d.Received, f)
}

func (d *LoopbackDevice) PutEcho(f Frame, idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.echo[idx] = int(f.DLC)
}

func (d *LoopbackDevice) GetEcho(idx int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.echo[idx]
	delete(d.echo, idx)
	return n
}

func (d *LoopbackDevice) StopQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QueueStop++
}

func (d *LoopbackDevice) WakeQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QueueWake++
}

func (d *LoopbackDevice) SetState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = s
}

func (d *LoopbackDevice) Counters() *Counters {
	return &d.counters
}
