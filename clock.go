// clock.go: cached wall-clock source for the hot path
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the teacher's timeCache *timecache.TimeCache field
// (lethe.go), used there to avoid a time.Now() syscall per write; kept
// here as the default clock behind NewRecordNow so producers on the hot
// path pay the same reduced cost.

package ember

import (
	"time"

	"github.com/agilira/go-timecache"
)

var defaultClock = timecache.NewWithResolution(time.Millisecond)

// nowMillis returns the cached wall-clock time in milliseconds since the
// epoch, refreshed at millisecond resolution in the background.
func nowMillis() int64 {
	return defaultClock.CachedTime().UnixMilli()
}

// cachedNow returns the same cached wall-clock reading as nowMillis, as a
// time.Time, for call sites that need Time arithmetic (age checks, flush
// bookkeeping) rather than a record timestamp.
func cachedNow() time.Time {
	return defaultClock.CachedTime()
}

// NewRecordNow is a convenience over NewRecord that stamps the record with
// the package's cached clock instead of requiring the caller to supply a
// timestamp explicitly.
func NewRecordNow(severity Severity, logger, message, threadID string) LogRecord {
	return NewRecord(severity, logger, message, nowMillis(), threadID)
}
