// sandbox_usage_windows.go: Process CPU time sampling for Windows systems
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build windows

package microkernel

import (
	"syscall"
	"time"
)

// processCPUTime returns user plus kernel CPU time consumed by the process.
func processCPUTime() time.Duration {
	var creation, exit, kernel, user syscall.Filetime
	handle, err := syscall.GetCurrentProcess()
	if err != nil {
		return 0
	}
	if err := syscall.GetProcessTimes(handle, &creation, &exit, &kernel, &user); err != nil {
		return 0
	}
	return filetimeDuration(kernel) + filetimeDuration(user)
}

// filetimeDuration converts a FILETIME interval (100ns units) to a duration.
func filetimeDuration(ft syscall.Filetime) time.Duration {
	ticks := int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)
	return time.Duration(ticks * 100)
}
