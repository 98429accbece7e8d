// sandbox_usage_other.go: Process CPU time sampling fallback
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !unix && !windows

package microkernel

import "time"

// processCPUTime is unavailable on this platform; CPU limits never trigger.
func processCPUTime() time.Duration {
	return 0
}
