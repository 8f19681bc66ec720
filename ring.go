// ring.go: lock-free MPSC bounded ring buffer of LogRecord handles
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the teacher's buffer.go ringBuffer (reserve-slot-then-store
// CAS protocol, atomic.Pointer slots) and on
// _examples/other_examples/...agilira-iris__internal-zephyroslite-zephyros.go.go's
// cache-line-padded writer/reader cursors, generalized from []byte payloads
// to LogRecord handles and from a single implicit policy to the explicit
// OverflowPolicy enum spec §4.2 names.

package ember

import (
	"math/bits"
	"sync/atomic"
	"time"
)

// paddedSeq pads an atomic.Uint64 (8 bytes) with 56 bytes so that it
// occupies a full 64-byte cache line, keeping W and R from false-sharing
// (spec §4.1 "Cache-line hygiene").
type paddedSeq struct {
	v   atomic.Uint64
	_   [56]byte
}

// RingStats is a point-in-time, relaxed-ordering snapshot of ring buffer
// counters (spec §4.1 "Statistics" — monitoring signals, not
// synchronization; a reader may observe a slightly inconsistent snapshot).
type RingStats struct {
	Published   uint64
	Consumed    uint64
	Rejected    uint64
	Utilization float64 // (W - R) / C
}

// RingBuffer is a bounded, power-of-two-sized MPSC queue of *LogRecord
// handles. One or more producers call TryPublish/Publish; exactly one
// consumer calls Consume/ConsumeBatch (spec §4.1).
type RingBuffer struct {
	capacity uint64
	mask     uint64
	slots    []atomic.Pointer[LogRecord]

	w paddedSeq // write sequence, producer-advanced, release-stored
	_ [64]byte
	r paddedSeq // read sequence, sole-consumer-advanced, release-stored
	_ [64]byte

	published atomic.Uint64
	consumed  atomic.Uint64
	rejected  atomic.Uint64

	closed atomic.Bool
}

// NewRingBuffer creates a ring buffer of the given capacity, which must be
// a power of two (spec §3 "Ring buffer" invariant, §8 "Capacity not a
// power of two is rejected at construction").
func NewRingBuffer(capacity uint64) (*RingBuffer, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]atomic.Pointer[LogRecord], capacity),
	}, nil
}

func nextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(x-1))
}

// NewRingBufferRoundedUp is a convenience constructor for callers that do
// not want to compute a power of two themselves; it rounds capacity up.
func NewRingBufferRoundedUp(capacity uint64) (*RingBuffer, error) {
	if capacity == 0 {
		capacity = 1
	}
	return NewRingBuffer(nextPow2(capacity))
}

// Capacity returns C.
func (rb *RingBuffer) Capacity() uint64 { return rb.capacity }

// Close marks the ring as shut down. Producers subsequently observe
// TryPublish/Publish as no-ops returning false (spec §4.1 "Publishing
// after shutdown is a no-op returning false").
func (rb *RingBuffer) Close() {
	rb.closed.Store(true)
}

// IsClosed reports whether Close has been called.
func (rb *RingBuffer) IsClosed() bool { return rb.closed.Load() }

// TryPublish attempts a single non-blocking publish. It returns
// (false, nil) if the buffer is full or the ring is closed, and
// (false, ErrNilRecord) if rec is nil — a programmer error surfaced as an
// invalid-argument failure (spec §4.1 "Failure model").
func (rb *RingBuffer) TryPublish(rec *LogRecord) (bool, error) {
	if rec == nil {
		return false, ErrNilRecord
	}
	if rb.closed.Load() {
		return false, nil
	}
	for {
		w := rb.w.v.Load()
		r := rb.r.v.Load()
		if w-r >= rb.capacity {
			rb.rejected.Add(1)
			return false, nil
		}
		if rb.w.v.CompareAndSwap(w, w+1) {
			rb.slots[w&rb.mask].Store(rec)
			rb.published.Add(1)
			return true, nil
		}
		// Another producer claimed this slot first; retry.
	}
}

// Publish retries TryPublish with a bounded ~1us park interval until it
// succeeds, the timeout elapses, or the ring is closed (spec §4.1
// "publish(record, timeout)").
func (rb *RingBuffer) Publish(rec *LogRecord, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := rb.TryPublish(rec)
		if err != nil || ok {
			return ok, err
		}
		if rb.closed.Load() {
			return false, nil
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(time.Microsecond)
	}
}

// Consume pops a single record. Must only be called by the single
// consumer thread (spec §4.1). Returns (nil, false) if empty.
func (rb *RingBuffer) Consume() (*LogRecord, bool) {
	r := rb.r.v.Load()
	w := rb.w.v.Load()
	if r >= w {
		return nil, false
	}
	idx := r & rb.mask
	rec := rb.slots[idx].Load()
	rb.slots[idx].Store(nil) // clear before R advances, spec §3 invariant
	rb.r.v.Store(r + 1)
	rb.consumed.Add(1)
	return rec, true
}

// ConsumeBatch drains up to max records into out[0:n], never more than
// len(out) (out is not resliced), advancing R once at the end (spec §4.1
// "consume_batch advances R by the number consumed in a single store").
// Returns the number of records written into out.
func (rb *RingBuffer) ConsumeBatch(out []*LogRecord, max int) int {
	if max <= 0 || len(out) == 0 {
		return 0
	}
	if max > len(out) {
		max = len(out)
	}
	r := rb.r.v.Load()
	w := rb.w.v.Load()
	avail := w - r
	n := uint64(max)
	if avail < n {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		idx := (r + i) & rb.mask
		out[i] = rb.slots[idx].Load()
		rb.slots[idx].Store(nil)
	}
	if n > 0 {
		rb.r.v.Store(r + n)
		rb.consumed.Add(n)
	}
	return int(n)
}

// consumeOldest atomically discards the slot at the current read cursor
// without returning its contents, advancing R by one. Used by the
// DROP_OLDEST overflow policy (spec §4.2). Returns false if the buffer
// was already empty.
func (rb *RingBuffer) consumeOldest() bool {
	r := rb.r.v.Load()
	w := rb.w.v.Load()
	if r >= w {
		return false
	}
	idx := r & rb.mask
	rb.slots[idx].Store(nil)
	rb.r.v.Store(r + 1)
	rb.consumed.Add(1)
	return true
}

// Stats returns a relaxed-ordering snapshot (spec §4.1 "Statistics").
func (rb *RingBuffer) Stats() RingStats {
	w := rb.w.v.Load()
	r := rb.r.v.Load()
	var util float64
	if rb.capacity > 0 {
		util = float64(w-r) / float64(rb.capacity)
	}
	return RingStats{
		Published:   rb.published.Load(),
		Consumed:    rb.consumed.Load(),
		Rejected:    rb.rejected.Load(),
		Utilization: util,
	}
}
