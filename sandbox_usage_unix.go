// sandbox_usage_unix.go: Process CPU time sampling for Unix systems
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package microkernel

import (
	"syscall"
	"time"
)

// processCPUTime returns user plus system CPU time consumed by the process.
func processCPUTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}
