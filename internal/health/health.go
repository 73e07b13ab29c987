// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health runs named component checks and aggregates their status.
package health

import (
	"context"
	"sync"
	"time"

	"grimm.is/shellwatch/internal/clock"
)

// Status is the outcome of a check, ordered from best to worst.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check is the result of one component check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
}

// CheckFunc inspects one component. Name, LastChecked and Duration are
// filled in by the Checker.
type CheckFunc func(ctx context.Context) Check

// Report is the aggregate of every registered check.
type Report struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks"`
}

type named struct {
	name string
	fn   CheckFunc
}

// Checker holds the registered checks.
type Checker struct {
	mu     sync.RWMutex
	checks []named
	clock  clock.Clock
}

// NewChecker creates an empty checker. A nil clock uses the real clock.
func NewChecker(clk clock.Clock) *Checker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Checker{clock: clk}
}

// Register adds a check. Checks run in registration order.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, named{name: name, fn: fn})
}

// Run executes every check. The overall status is the worst individual one;
// a checker with no checks is healthy.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]named(nil), c.checks...)
	c.mu.RUnlock()

	r := Report{Status: StatusHealthy, Checks: make([]Check, 0, len(checks))}
	for _, n := range checks {
		start := c.clock.Now()
		res := n.fn(ctx)
		res.Name = n.name
		res.LastChecked = start
		res.Duration = c.clock.Now().Sub(start)
		if res.Status == "" {
			res.Status = StatusUnhealthy
		}
		if res.Status.rank() > r.Status.rank() {
			r.Status = res.Status
		}
		r.Checks = append(r.Checks, res)
	}
	return r
}
