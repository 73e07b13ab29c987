// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package scanner

import (
	"context"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/validation"
)

// SystemLister reads /proc through gopsutil. Socket owners are found by
// matching socket inodes against each process's open descriptors.
type SystemLister struct{}

// NewSystemLister creates a lister for the running host.
func NewSystemLister() *SystemLister {
	return &SystemLister{}
}

// Connections returns every IPv4 and IPv6 TCP socket with its owning pid.
func (l *SystemLister) Connections(ctx context.Context) ([]psnet.ConnectionStat, error) {
	stats, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to read socket table")
	}
	return stats, nil
}

// ProcessName returns the sanitized name of pid, or "" once it has exited.
func (l *SystemLister) ProcessName(ctx context.Context, pid int32) string {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return validation.SanitizeString(name)
}

// Processes returns every running process that still has a readable name.
func (l *SystemLister) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to read process table")
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name})
	}
	return out, nil
}
