// worker.go: async wrapper — ring buffer + overflow policy + drain worker
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the teacher's MPSCConsumer (buffer.go): a dedicated consumer
// goroutine, ticker-driven drain loop, context cancellation, WaitGroup
// shutdown — generalized here from "one hardcoded file write" to "fan a
// batch of records out to every attached Sink in filter order" (spec
// §4.3), and from the teacher's three ad hoc backpressure strings to the
// full closed OverflowPolicy set (spec §4.2).

package ember

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultDrainBatch = 256
const defaultParkInterval = time.Microsecond

// AsyncWorkerConfig configures an AsyncWorker.
type AsyncWorkerConfig struct {
	Capacity        uint64        // ring buffer capacity, must be a power of two
	Policy          OverflowPolicy
	DrainBatch      int           // records consumed per batch, default 256
	ParkInterval    time.Duration // idle-loop park interval, default ~1us
	ShutdownTimeout time.Duration // upper bound for Shutdown/Flush
}

// AsyncWorkerStats exposes the counters spec §8 ties together with the
// invariant Published == Processed + Dropped.
type AsyncWorkerStats struct {
	Published uint64
	Processed uint64
	Dropped   uint64
	Ring      RingStats
}

// AsyncWorker owns one dedicated consumer goroutine draining a RingBuffer
// into a set of attached Sinks (spec §4.3). Every async logger/wrapper
// owns exactly one of these (spec §5 "Scheduling model").
type AsyncWorker struct {
	ring            *RingBuffer
	sinks           []Sink
	policy          OverflowPolicy
	drainBatch      int
	parkInterval    time.Duration
	shutdownTimeout time.Duration

	published atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64

	shuttingDown atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewAsyncWorker constructs and starts the consumer goroutine.
func NewAsyncWorker(cfg AsyncWorkerConfig, sinks ...Sink) (*AsyncWorker, error) {
	ring, err := NewRingBuffer(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	drainBatch := cfg.DrainBatch
	if drainBatch <= 0 {
		drainBatch = defaultDrainBatch
	}
	park := cfg.ParkInterval
	if park <= 0 {
		park = defaultParkInterval
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	w := &AsyncWorker{
		ring:            ring,
		sinks:           append([]Sink(nil), sinks...),
		policy:          cfg.Policy,
		drainBatch:      drainBatch,
		parkInterval:    park,
		shutdownTimeout: shutdownTimeout,
		done:            make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Publish enqueues rec for delivery to every attached sink in the order
// this call happened relative to other calls from the same goroutine
// (spec §4.3 "Ordering guarantee"). The overflow policy configured at
// construction governs behaviour when the ring is momentarily full.
func (w *AsyncWorker) Publish(rec LogRecord) bool {
	w.published.Add(1)

	if w.shuttingDown.Load() {
		w.dropped.Add(1)
		return false
	}

	ok, err := w.ring.TryPublish(&rec)
	if err != nil {
		// Programmer error (nil record reached us somehow); never crash
		// the caller's control flow (spec §7 "Propagation").
		w.dropped.Add(1)
		return false
	}
	if ok {
		return true
	}

	return w.applyOverflowPolicy(&rec)
}

func (w *AsyncWorker) applyOverflowPolicy(rec *LogRecord) bool {
	switch w.policy {
	case DropOldest:
		if w.ring.consumeOldest() {
			w.dropped.Add(1)
		}
		if ok, _ := w.ring.TryPublish(rec); ok {
			return true
		}
		w.dropped.Add(1)
		return false

	case DropNewest:
		w.dropped.Add(1)
		return false

	case Discard:
		w.dropped.Add(1)
		return false

	case SynchronousWrite:
		w.dispatch(rec)
		w.processed.Add(1)
		return true

	case Block:
		for {
			if w.shuttingDown.Load() {
				w.dropped.Add(1)
				return false
			}
			if ok, _ := w.ring.TryPublish(rec); ok {
				return true
			}
			time.Sleep(w.parkInterval)
		}

	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *AsyncWorker) dispatch(rec *LogRecord) {
	for _, s := range w.sinks {
		if s.IsClosed() {
			continue
		}
		if !rec.Severity.Passes(s.Threshold()) {
			continue
		}
		s.Accept(*rec)
	}
}

// run is the dedicated consumer loop (spec §4.3).
func (w *AsyncWorker) run() {
	defer w.wg.Done()
	defer close(w.done)

	buf := make([]*LogRecord, w.drainBatch)
	for {
		n := w.ring.ConsumeBatch(buf, w.drainBatch)
		if n == 0 {
			if w.shuttingDown.Load() {
				return
			}
			time.Sleep(w.parkInterval)
			continue
		}
		for i := 0; i < n; i++ {
			rec := buf[i]
			if rec.isBarrier() {
				close(rec.barrierAck)
				continue
			}
			w.dispatch(rec)
			w.processed.Add(1)
		}
	}
}

// Flush publishes a barrier sentinel and waits for the worker to drain up
// to and including it, or for the configured shutdown timeout, whichever
// comes first (spec §4.3).
func (w *AsyncWorker) Flush() error {
	ack := make(chan struct{})
	barrier := &LogRecord{barrierAck: ack}

	deadline := time.Now().Add(w.shutdownTimeout)
	for {
		if ok, _ := w.ring.TryPublish(barrier); ok {
			break
		}
		if w.shuttingDown.Load() {
			return ErrShuttingDown
		}
		if time.Now().After(deadline) {
			return nil // ring stayed full; bounded like the wait below
		}
		time.Sleep(w.parkInterval)
	}

	select {
	case <-ack:
		return nil
	case <-time.After(time.Until(deadline)):
		return nil // worker stuck; return per spec's bounded-flush rule
	}
}

// Shutdown stops accepting new publishes, waits for the worker to drain
// the buffer (up to timeout, which overrides the configured
// ShutdownTimeout when non-zero), then returns. Producers calling
// Publish after Shutdown observe the benign "ignored" outcome (spec §7).
func (w *AsyncWorker) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.shutdownTimeout
	}
	w.shuttingDown.Store(true)
	w.ring.Close()

	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return nil
	}
}

// Stats returns a relaxed-ordering snapshot satisfying spec §8's
// invariant Published == Processed + Dropped for completed lifetimes.
func (w *AsyncWorker) Stats() AsyncWorkerStats {
	return AsyncWorkerStats{
		Published: w.published.Load(),
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
		Ring:      w.ring.Stats(),
	}
}

// Ring exposes the underlying buffer, primarily for tests and metrics.
func (w *AsyncWorker) Ring() *RingBuffer { return w.ring }
