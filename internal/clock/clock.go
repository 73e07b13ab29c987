// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides wall and monotonic time behind an interface so that
// emission timestamps can be controlled in tests and replays.
package clock

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time and a monotonic nanosecond counter.
type Clock interface {
	Now() time.Time
	// Monotonic returns nanoseconds on a clock that never goes backwards,
	// comparable to bpf_ktime_get_ns.
	Monotonic() uint64
}

// RealClock reads the system clocks.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// Monotonic returns CLOCK_MONOTONIC nanoseconds.
func (RealClock) Monotonic() uint64 { return monotonicNow() }

// MockClock is a manually driven clock.
type MockClock struct {
	mu   sync.Mutex
	now  time.Time
	mono uint64
}

// NewMockClock returns a mock clock positioned at t. Its monotonic reading starts at 1s.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, mono: uint64(time.Second)}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Monotonic() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

// Set moves wall time to t. Monotonic time advances by the difference when t is later.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := t.Sub(c.now); d > 0 {
		c.mono += uint64(d)
	}
	c.now = t
}

// Advance moves both clocks forward by d. Negative durations are ignored.
func (c *MockClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.mono += uint64(d)
}
