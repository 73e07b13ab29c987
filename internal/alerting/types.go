// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package alerting

import (
	"fmt"
	"time"

	"grimm.is/shellwatch/internal/config"
	"grimm.is/shellwatch/internal/enrich"
	"grimm.is/shellwatch/internal/event"
)

// Alert is an emitted event prepared for people and downstream systems.
type Alert struct {
	ID         string              `json:"id"`
	Type       event.Type          `json:"type"`
	Severity   event.Severity      `json:"severity"`
	Message    string              `json:"message"`
	LocalAddr  string              `json:"local_addr,omitempty"`
	RemoteAddr string              `json:"remote_addr,omitempty"`
	LocalPort  uint16              `json:"local_port,omitempty"`
	RemotePort uint16              `json:"remote_port,omitempty"`
	PID        uint32              `json:"pid,omitempty"`
	Process    *enrich.ProcessInfo `json:"process,omitempty"`
	Geo        *enrich.GeoInfo     `json:"geo,omitempty"`
	// KernelTime is the monotonic emission timestamp in nanoseconds.
	KernelTime uint64    `json:"kernel_time"`
	Timestamp  time.Time `json:"timestamp"`
}

// message renders the human-readable description of ev.
func message(ev event.ReverseShellEvent, proc *enrich.ProcessInfo) string {
	switch ev.Type {
	case event.TypeSuspiciousConnection:
		return fmt.Sprintf("Connection attempt to suspicious port: %s:%d -> %s:%d",
			event.IPv4String(ev.LocalAddr), ev.LocalPort, event.IPv4String(ev.RemoteAddr), ev.RemotePort)
	case event.TypeExternalConnection:
		return fmt.Sprintf("Connection attempt to external address: %s:%d -> %s:%d",
			event.IPv4String(ev.LocalAddr), ev.LocalPort, event.IPv4String(ev.RemoteAddr), ev.RemotePort)
	case event.TypeProcessInjection:
		if proc != nil && proc.Name != "" {
			return fmt.Sprintf("Suspicious process started: %s (pid %d)", proc.Name, ev.PID)
		}
		return fmt.Sprintf("Suspicious process started: pid %d", ev.PID)
	case event.TypeSocketCreation:
		return fmt.Sprintf("Socket created by pid %d", ev.PID)
	case event.TypeConnectCall:
		return fmt.Sprintf("Outbound connect by pid %d", ev.PID)
	default:
		return fmt.Sprintf("Unknown event %d", uint8(ev.Type))
	}
}

// channel is a configured delivery target plus its cooldown state.
type channel struct {
	cfg         config.ChannelConfig
	minSeverity event.Severity
	cooldown    time.Duration
	lastFired   map[event.Type]time.Time
}

// Summary holds alert totals since the engine started.
type Summary struct {
	Total      uint64            `json:"total"`
	ByType     map[string]uint64 `json:"by_type"`
	BySeverity map[string]uint64 `json:"by_severity"`
	Since      time.Time         `json:"since"`
}
