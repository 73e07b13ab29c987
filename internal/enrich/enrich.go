// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package enrich attaches process details to syscall-derived alerts and
// location details to external connections.
package enrich

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"grimm.is/shellwatch/internal/validation"
)

// lookupTimeout bounds the /proc reads for one pid.
const lookupTimeout = 500 * time.Millisecond

// ProcessInfo describes a process and its parent at lookup time.
type ProcessInfo struct {
	PID        uint32 `json:"pid"`
	Name       string `json:"name,omitempty"`
	Exe        string `json:"exe,omitempty"`
	Cmdline    string `json:"cmdline,omitempty"`
	Username   string `json:"username,omitempty"`
	PPID       uint32 `json:"ppid,omitempty"`
	ParentName string `json:"parent_name,omitempty"`
}

// Resolver looks processes up through gopsutil.
type Resolver struct{}

// NewResolver creates a process resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Lookup returns details for pid, or nil when pid is zero or the process has
// already exited. Fields that cannot be read are left empty. Strings are
// sanitized for display.
func (r *Resolver) Lookup(pid uint32) *ProcessInfo {
	if pid == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}

	info := &ProcessInfo{PID: pid}
	info.Name, _ = p.NameWithContext(ctx)
	info.Exe, _ = p.ExeWithContext(ctx)
	info.Cmdline, _ = p.CmdlineWithContext(ctx)
	info.Username, _ = p.UsernameWithContext(ctx)

	if ppid, err := p.PpidWithContext(ctx); err == nil && ppid > 0 {
		info.PPID = uint32(ppid)
		if parent, err := process.NewProcessWithContext(ctx, ppid); err == nil {
			info.ParentName, _ = parent.NameWithContext(ctx)
		}
	}

	info.Name = validation.SanitizeString(info.Name)
	info.Exe = validation.SanitizeString(info.Exe)
	info.Cmdline = validation.SanitizeString(info.Cmdline)
	info.Username = validation.SanitizeString(info.Username)
	info.ParentName = validation.SanitizeString(info.ParentName)
	return info
}
