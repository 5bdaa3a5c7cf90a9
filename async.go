package devices

import (
	"sync"

	"github.com/tve/mcp2515/thread"
)

// AsyncSPI issues one SPI transaction at a time and reports completion via
// callback instead of blocking the caller. It models the bus controller's
// asynchronous submit primitive from the driver's point of view (the real
// kernel equivalent is spi_async); callers must not submit a second
// transaction before the complete callback of the prior one has run.
type AsyncSPI interface {
	// Submit starts a transaction and returns immediately. complete is
	// invoked exactly once, from a goroutine dedicated to this AsyncSPI,
	// after the transaction finishes (successfully or not). r is filled in
	// place by the time complete runs.
	Submit(w, r []byte, complete func(error)) error
	// Close stops the worker goroutine. No Submit may be outstanding.
	Close() error
}

// worker turns a synchronous SPI connection into an AsyncSPI by running a
// single long-lived goroutine that serializes transactions, the same way
// the sx1231/sx1276 drivers run one worker() goroutine to serialize access
// to their shared SPI connection. Because only one transaction is ever
// submitted at a time (the mcp2515 state machine enforces this with its
// busy flag), the job channel needs no buffering beyond one slot.
type worker struct {
	spi  SPI
	jobs chan job
	done chan struct{}
	once sync.Once
}

type job struct {
	w, r     []byte
	complete func(error)
}

// NewAsyncSPI wraps a synchronous SPI connection with a dedicated worker
// goroutine that executes submitted transactions one at a time.
func NewAsyncSPI(spi SPI) AsyncSPI {
	w := &worker{
		spi:  spi,
		jobs: make(chan job, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	// Best effort: a realtime worker thread keeps SPI transaction latency
	// predictable under load, same as the radio drivers' own goroutines.
	_ = thread.Realtime()
	for j := range w.jobs {
		err := w.spi.Tx(j.w, j.r)
		j.complete(err)
	}
	close(w.done)
}

func (w *worker) Submit(wb, rb []byte, complete func(error)) error {
	w.jobs <- job{w: wb, r: rb, complete: complete}
	return nil
}

func (w *worker) Close() error {
	w.once.Do(func() { close(w.jobs) })
	<-w.done
	return nil
}
