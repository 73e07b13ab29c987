// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package event defines the alert record emitted by the detection engine.
package event

import (
	"encoding/json"
	"fmt"
	"net"
)

// Type identifies what produced an event. Values match the kernel record layout.
type Type uint8

const (
	TypeSuspiciousConnection Type = 1
	TypeExternalConnection   Type = 2
	TypeProcessInjection     Type = 3
	TypeSocketCreation       Type = 4
	TypeConnectCall          Type = 5
)

// Types lists every event type in numeric order.
var Types = [...]Type{
	TypeSuspiciousConnection,
	TypeExternalConnection,
	TypeProcessInjection,
	TypeSocketCreation,
	TypeConnectCall,
}

func (t Type) String() string {
	switch t {
	case TypeSuspiciousConnection:
		return "suspicious_connection"
	case TypeExternalConnection:
		return "external_connection"
	case TypeProcessInjection:
		return "process_injection"
	case TypeSocketCreation:
		return "socket_creation"
	case TypeConnectCall:
		return "connect_call"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType maps a type name to its value.
func ParseType(name string) (Type, error) {
	for _, t := range Types {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

// Network reports whether the type is derived from a captured frame.
func (t Type) Network() bool {
	return t == TypeSuspiciousConnection || t == TypeExternalConnection
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Severity is ordered: Medium < High < Critical.
type Severity uint8

const (
	SeverityMedium   Severity = 1
	SeverityHigh     Severity = 2
	SeverityCritical Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseSeverity maps a severity name to its value.
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

// ReverseShellEvent is one emitted alert record.
// Addresses hold the numeric IPv4 value (first octet in the high byte).
// PID is zero for network-derived events; addresses and ports are zero for
// syscall-derived events. Timestamp is monotonic nanoseconds at emission.
type ReverseShellEvent struct {
	LocalAddr  uint32   `json:"local_addr"`
	RemoteAddr uint32   `json:"remote_addr"`
	LocalPort  uint16   `json:"local_port"`
	RemotePort uint16   `json:"remote_port"`
	PID        uint32   `json:"pid"`
	Timestamp  uint64   `json:"timestamp"`
	Type       Type     `json:"event_type"`
	Severity   Severity `json:"severity"`
}

// String renders a one-line summary.
func (e ReverseShellEvent) String() string {
	if e.Type.Network() {
		return fmt.Sprintf("%s/%s %s:%d -> %s:%d",
			e.Type, e.Severity,
			IPv4String(e.LocalAddr), e.LocalPort,
			IPv4String(e.RemoteAddr), e.RemotePort)
	}
	return fmt.Sprintf("%s/%s pid=%d", e.Type, e.Severity, e.PID)
}

// IPv4String formats a numeric IPv4 value as a dotted quad.
func IPv4String(addr uint32) string {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).String()
}
