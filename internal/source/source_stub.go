// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package source

import (
	"context"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
)

// Capture is unavailable on this platform.
type Capture struct {
	iface string
}

// NewCapture creates a capture source that always fails to run.
func NewCapture(iface string, _ FrameHandler, _ *logging.Logger, _ *metrics.Metrics) *Capture {
	return &Capture{iface: iface}
}

// Run returns KindUnsupported.
func (c *Capture) Run(context.Context) error {
	return errors.Attr(errors.New(errors.KindUnsupported, "packet capture requires linux"), "iface", c.iface)
}

// Stats returns zero counters.
func (c *Capture) Stats() Stats { return Stats{} }

// Syscalls is unavailable on this platform.
type Syscalls struct{}

// NewSyscalls creates a syscall source that always fails to run.
func NewSyscalls(SyscallsConfig, SyscallHandler, *logging.Logger, *metrics.Metrics) *Syscalls {
	return &Syscalls{}
}

// Run returns KindUnsupported.
func (s *Syscalls) Run(context.Context) error {
	return errors.New(errors.KindUnsupported, "eBPF syscall tracing requires linux")
}

// Stats returns zero counters.
func (s *Syscalls) Stats() Stats { return Stats{} }
