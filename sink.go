// sink.go: sink capability set and the formatter contract
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0

package ember

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Formatter is a pure function mapping a LogRecord to the bytes that should
// be written to a sink, including its terminator. Formatters are external
// collaborators (spec §1 "out of scope") — the core treats them as an
// opaque capability injected at construction; it never inspects their
// output beyond measuring its length.
type Formatter func(LogRecord) []byte

// LineFormatter is a minimal default Formatter, used by the tests and by
// every sink in this package that is given a nil Formatter. It is intentionally trivial:
// production layouts/patterns live outside the core (spec §1).
func LineFormatter(r LogRecord) []byte {
	return []byte(fmt.Sprintf("%d %s %s %s\n", r.TimestampMs, r.Severity, r.Logger, r.Message))
}

// Sink is the capability set every sink in this package implements, and
// the contract the async worker and the synchronous-write overflow policy
// depend on (spec §6). Sink-internal failures never propagate out of
// Accept — they are reported out-of-band (see sinkBase.reportError below).
// The sinks in this package keep no error statistics.
type Sink interface {
	// Accept emits one record. May be lossy if the sink is closed or the
	// record fails the sink's own threshold filter.
	Accept(r LogRecord)

	// Flush drains any internal buffering.
	Flush() error

	// Close idempotently releases any OS resources held by the sink.
	Close() error

	// Threshold returns the minimum severity this sink considers.
	Threshold() Severity
	SetThreshold(s Severity)

	// Name returns a stable identifier for the sink (used in diagnostics
	// and audit records, e.g. the adaptive-resize audit block, spec §6).
	Name() string
	SetName(name string)

	IsClosed() bool

	Formatter() Formatter
	SetFormatter(f Formatter)
}

// sinkBase implements the bookkeeping common to every sink in this package
// (threshold, name, formatter, closed flag) so that concrete sinks only
// need to implement Accept/Flush/Close. Mirrors the teacher's pattern of
// factoring atomic/lock bookkeeping into small embeddable pieces
// (lethe.Logger's atomic.Pointer/atomic.Bool fields).
type sinkBase struct {
	name      atomic.Pointer[string]
	threshold atomic.Int32
	formatter atomic.Pointer[Formatter]
	closed    atomic.Bool

	errMu    sync.Mutex
	errCB    func(operation string, err error)
}

func newSinkBase(name string, threshold Severity, f Formatter) sinkBase {
	var b sinkBase
	b.name.Store(&name)
	b.threshold.Store(threshold.Priority())
	if f == nil {
		f = LineFormatter
	}
	b.formatter.Store(&f)
	return b
}

func (b *sinkBase) Threshold() Severity { return Severity(b.threshold.Load()) }
func (b *sinkBase) SetThreshold(s Severity) { b.threshold.Store(s.Priority()) }

func (b *sinkBase) Name() string {
	if p := b.name.Load(); p != nil {
		return *p
	}
	return ""
}
func (b *sinkBase) SetName(name string) { b.name.Store(&name) }

func (b *sinkBase) IsClosed() bool { return b.closed.Load() }

func (b *sinkBase) Formatter() Formatter {
	if p := b.formatter.Load(); p != nil {
		return *p
	}
	return LineFormatter
}
func (b *sinkBase) SetFormatter(f Formatter) { b.formatter.Store(&f) }

// SetErrorCallback installs the out-of-band error reporter for this sink.
// Mirrors lethe.Logger.ErrorCallback (spec §7 "Propagation").
func (b *sinkBase) SetErrorCallback(cb func(operation string, err error)) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	b.errCB = cb
}

func (b *sinkBase) reportError(operation string, err error) {
	b.errMu.Lock()
	cb := b.errCB
	b.errMu.Unlock()
	if cb != nil {
		cb(operation, err)
		return
	}
	reportToStderr(operation, err)
}

// passes reports whether r clears this sink's threshold.
func (b *sinkBase) passes(r LogRecord) bool {
	return r.Severity.Passes(b.Threshold())
}
