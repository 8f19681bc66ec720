// diag.go: out-of-band diagnostic reporting
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0

package ember

import (
	"fmt"
	"os"
)

// reportToStderr is the fallback out-of-band error stream used when a sink
// has no ErrorCallback installed (spec §7 "Propagation": sink failures are
// "reported through a dedicated out-of-band stream"). Grounded on the
// teacher's reportError, generalized to a free function so every sink type
// can share it.
func reportToStderr(operation string, err error) {
	fmt.Fprintf(os.Stderr, "ember: %s: %v\n", operation, err)
}

// reportCritical writes a CAPITALISED diagnostic to stderr, per spec §4.7
// step 1 and §7 "A saturated compressor is surfaced via a CAPITALISED
// diagnostic both to standard error and as an audit record in the output
// log file."
func reportCritical(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "*** CRITICAL: "+format+" ***\n", args...)
}
