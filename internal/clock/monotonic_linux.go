// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

func monotonicNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackMonotonic()
	}
	return uint64(ts.Sec)*uint64(time.Second) + uint64(ts.Nsec)
}
