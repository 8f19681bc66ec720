// severity.go: totally ordered log severity enumeration
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0

package ember

import (
	"fmt"
	"strings"
)

// Severity is a totally ordered log level. Comparison is by Priority: a
// record at severity s passes a threshold t iff s.Priority() >= t.Priority().
type Severity int32

const (
	Trace    Severity = 100
	Debug    Severity = 200
	Info     Severity = 300
	Warn     Severity = 400
	Error    Severity = 500
	Fatal    Severity = 600
	Critical Severity = Fatal // alias, same priority, both names parse to Fatal
	Off      Severity = 1 << 30
)

// Priority returns the comparable numeric ordering. Kept as a method
// (rather than relying on raw int comparison at call sites) so that a
// future severity set can renumber without breaking callers.
func (s Severity) Priority() int32 { return int32(s) }

// String renders the canonical upper-case name for the severity.
func (s Severity) String() string {
	switch s {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	case Off:
		return "OFF"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int32(s))
	}
}

// Passes reports whether a record at this severity should be emitted by a
// sink/filter with the given threshold: priority(s) >= priority(threshold).
func (s Severity) Passes(threshold Severity) bool {
	return s.Priority() >= threshold.Priority()
}

// ParseSeverity parses a severity name case-insensitively. CRITICAL is
// accepted as an alias for FATAL. Unrecognised names are a configuration
// error (spec §4.8).
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return Trace, nil
	case "DEBUG":
		return Debug, nil
	case "INFO":
		return Info, nil
	case "WARN", "WARNING":
		return Warn, nil
	case "ERROR":
		return Error, nil
	case "FATAL", "CRITICAL":
		return Fatal, nil
	case "OFF":
		return Off, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
	}
}
