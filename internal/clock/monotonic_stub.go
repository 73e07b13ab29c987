// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package clock

func monotonicNow() uint64 {
	return fallbackMonotonic()
}
