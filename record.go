// record.go: immutable log record value type
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0

package ember

import "sync/atomic"

// StackFrame captures one frame of a carried error's stack.
type StackFrame struct {
	Function string // class/function identifying this frame
	File     string
	Line     int
}

// RecordError is the optional error value a LogRecord may carry. It is a
// value type (not a Go `error`) so that LogRecord stays a plain immutable
// struct with no interface indirection in the hot path.
type RecordError struct {
	Message string
	Stack   []StackFrame
}

// SourceLocation is the optional call-site location attached to a record.
type SourceLocation struct {
	Function string
	File     string
	Line     int
}

// LogRecord is an immutable value constructed at publish time and never
// mutated afterward (spec §3 "Lifecycle"). The monotonic Seq field is what
// gives a single producer's records a total order across every sink that
// observes them (spec §4.3 "Ordering guarantee").
type LogRecord struct {
	Severity  Severity
	Logger    string // short logger identifier, <=128 chars typical
	Message   string
	Err       *RecordError    // optional
	Source    *SourceLocation // optional
	TimestampMs int64 // wall-clock, milliseconds since epoch
	Seq       uint64 // monotonic creation index, used for ordering
	ThreadID  string

	// barrierAck is non-nil only for internal flush-barrier sentinels
	// published by AsyncWorker.Flush; it is never set by application code.
	barrierAck chan struct{}
}

// isBarrier reports whether this record is an internal flush sentinel
// rather than an application log entry.
func (r *LogRecord) isBarrier() bool { return r.barrierAck != nil }

// recordSeq is the process-wide monotonic counter backing LogRecord.Seq.
var recordSeq atomic.Uint64

// nextSeq returns the next monotonically increasing creation index.
func nextSeq() uint64 {
	return recordSeq.Add(1)
}

// NewRecord constructs a LogRecord with a fresh sequence number and the
// given wall-clock timestamp (milliseconds since epoch). Producers that
// hold a cached clock pass it in rather than calling time.Now() per
// record; NewRecordNow (clock.go) does this with the package's own clock.
func NewRecord(severity Severity, logger, message string, timestampMs int64, threadID string) LogRecord {
	return LogRecord{
		Severity:    severity,
		Logger:      logger,
		Message:     message,
		TimestampMs: timestampMs,
		Seq:         nextSeq(),
		ThreadID:    threadID,
	}
}

// WithError returns a copy of the record carrying the given error value.
// LogRecord is never mutated in place (spec §3).
func (r LogRecord) WithError(message string, stack []StackFrame) LogRecord {
	r.Err = &RecordError{Message: message, Stack: stack}
	return r
}

// WithSource returns a copy of the record carrying the given source
// location.
func (r LogRecord) WithSource(function, file string, line int) LogRecord {
	r.Source = &SourceLocation{Function: function, File: file, Line: line}
	return r
}
