// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package scanner periodically inventories established TCP connections and
// running processes. Connections are tagged with the rules they trip;
// denylisted processes are handed to the detector the first time a scan sees
// them.
package scanner

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/clock"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
)

// DefaultInterval is the time between scans.
const DefaultInterval = 5 * time.Second

const statusEstablished = "ESTABLISHED"

// Registered port range bounds. Remote ports strictly between them are
// flagged as ReasonHighPort.
const (
	highPortLow  = 1024
	highPortHigh = 49152
)

// Reason is a rule a connection tripped.
type Reason string

const (
	ReasonSuspiciousPort Reason = "suspicious_port"
	ReasonExternal       Reason = "external_address"
	ReasonHighPort       Reason = "high_port"
)

// Connection is an established TCP connection present in the last scan.
type Connection struct {
	LocalAddr  string    `json:"local_addr"`
	LocalPort  uint16    `json:"local_port"`
	RemoteAddr string    `json:"remote_addr"`
	RemotePort uint16    `json:"remote_port"`
	PID        int32     `json:"pid,omitempty"`
	Process    string    `json:"process,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	// Seen counts the scans the connection has been present in.
	Seen    uint32   `json:"seen"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// Suspicious reports whether any rule matched.
func (c Connection) Suspicious() bool { return len(c.Reasons) > 0 }

// Key identifies the connection by its endpoints.
func (c Connection) Key() string {
	return fmt.Sprintf("%s:%d->%s:%d", c.LocalAddr, c.LocalPort, c.RemoteAddr, c.RemotePort)
}

// String renders the connection on one line for reports.
func (c Connection) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d -> %s:%d", c.LocalAddr, c.LocalPort, c.RemoteAddr, c.RemotePort)
	if c.PID > 0 {
		fmt.Fprintf(&b, " pid %d", c.PID)
		if c.Process != "" {
			fmt.Fprintf(&b, " (%s)", c.Process)
		}
	}
	if len(c.Reasons) > 0 {
		reasons := make([]string, len(c.Reasons))
		for i, r := range c.Reasons {
			reasons[i] = string(r)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(reasons, ", "))
	}
	return b.String()
}

// Process is a running denylisted process.
type Process struct {
	PID       int32     `json:"pid"`
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
}

// Lister reads the host's connection and process tables.
type Lister interface {
	Connections(ctx context.Context) ([]psnet.ConnectionStat, error)
	ProcessName(ctx context.Context, pid int32) string
	Processes(ctx context.Context) ([]Process, error)
}

// Sink receives denylisted processes found by a scan.
type Sink interface {
	HandleRunning(pid uint32, comm classify.ProcessName)
}

// Config wires a Scanner.
type Config struct {
	// Ports holds the suspicious remote ports. It is read on every scan so
	// replacing its contents takes effect on the next one.
	Ports    *classify.PortSet
	Lister   Lister
	Sink     Sink
	Interval time.Duration
	// Processes enables the process scan.
	Processes bool
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

// Summary is the scanner's contribution to the report.
type Summary struct {
	Connections int       `json:"connections"`
	Suspicious  int       `json:"suspicious_connections"`
	Processes   int       `json:"suspicious_processes"`
	LastScan    time.Time `json:"last_scan,omitempty"`
}

// Scanner holds the inventory built by the last scan.
type Scanner struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.RWMutex
	conns    map[string]*Connection
	procs    map[int32]Process
	lastScan time.Time
}

// New creates a scanner. A nil Lister reads the live system.
func New(logger *logging.Logger, cfg Config) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Ports == nil {
		cfg.Ports = classify.NewPortSet(classify.DefaultSuspiciousPorts...)
	}
	if cfg.Lister == nil {
		cfg.Lister = NewSystemLister()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Scanner{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*Connection),
		procs:  make(map[int32]Process),
	}
}

// Run scans immediately and then once per interval until ctx is cancelled.
// Scan failures are logged and retried on the next tick.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("Scanner started", "interval", s.cfg.Interval.String(), "processes", s.cfg.Processes)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("Scan failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan refreshes the connection inventory and, when enabled, the process
// inventory. Both are attempted; the first error is returned.
func (s *Scanner) Scan(ctx context.Context) error {
	err := s.ScanConnections(ctx)
	if s.cfg.Processes {
		if perr := s.ScanProcesses(ctx); err == nil {
			err = perr
		}
	}
	return err
}

// ScanConnections replaces the inventory with the established connections
// in the host's table. Connections seen before keep their first sighting
// and count.
func (s *Scanner) ScanConnections(ctx context.Context) error {
	stats, err := s.cfg.Lister.Connections(ctx)
	if err != nil {
		s.cfg.Metrics.ObserveScan(0, err)
		return errors.Wrap(err, errors.KindUnavailable, "failed to list connections")
	}

	now := s.cfg.Clock.Now()
	names := make(map[int32]string)
	next := make(map[string]*Connection, len(stats))
	var fresh []Connection

	s.mu.RLock()
	prev := s.conns
	s.mu.RUnlock()

	for _, st := range stats {
		if st.Status != statusEstablished {
			continue
		}
		remote, ok := parseAddr(st.Raddr.IP)
		if !ok {
			continue
		}
		c := Connection{
			LocalAddr:  st.Laddr.IP,
			LocalPort:  uint16(st.Laddr.Port),
			RemoteAddr: remote.String(),
			RemotePort: uint16(st.Raddr.Port),
			PID:        st.Pid,
			FirstSeen:  now,
			LastSeen:   now,
			Seen:       1,
			Reasons:    Reasons(remote, uint16(st.Raddr.Port), s.cfg.Ports),
		}
		if c.PID > 0 {
			name, ok := names[c.PID]
			if !ok {
				name = s.cfg.Lister.ProcessName(ctx, c.PID)
				names[c.PID] = name
			}
			c.Process = name
		}

		key := c.Key()
		if old, ok := prev[key]; ok {
			c.FirstSeen = old.FirstSeen
			c.Seen = old.Seen + 1
		} else if c.Suspicious() {
			fresh = append(fresh, c)
		}
		next[key] = &c
	}

	suspicious := 0
	for _, c := range next {
		if c.Suspicious() {
			suspicious++
		}
	}

	s.mu.Lock()
	s.conns = next
	s.lastScan = now
	s.mu.Unlock()

	for _, c := range fresh {
		s.logger.Warn("Suspicious connection",
			"local", fmt.Sprintf("%s:%d", c.LocalAddr, c.LocalPort),
			"remote", fmt.Sprintf("%s:%d", c.RemoteAddr, c.RemotePort),
			"pid", c.PID,
			"process", c.Process,
			"reasons", c.Reasons)
	}
	s.cfg.Metrics.ObserveScan(suspicious, nil)
	return nil
}

// ScanProcesses records running denylisted processes and hands each one to
// the sink the first time it is seen. Exited processes are forgotten, so a
// reused pid is reported again.
func (s *Scanner) ScanProcesses(ctx context.Context) error {
	procs, err := s.cfg.Lister.Processes(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to list processes")
	}

	now := s.cfg.Clock.Now()
	next := make(map[int32]Process)
	var fresh []Process

	s.mu.RLock()
	prev := s.procs
	s.mu.RUnlock()

	for _, p := range procs {
		if p.PID <= 0 || !classify.IsSuspiciousProcess(classify.NewProcessName(p.Name)) {
			continue
		}
		if old, ok := prev[p.PID]; ok && old.Name == p.Name {
			next[p.PID] = old
			continue
		}
		p.FirstSeen = now
		next[p.PID] = p
		fresh = append(fresh, p)
	}

	s.mu.Lock()
	s.procs = next
	s.mu.Unlock()

	for _, p := range fresh {
		s.logger.Warn("Suspicious process running", "pid", p.PID, "name", p.Name)
		if s.cfg.Sink != nil {
			s.cfg.Sink.HandleRunning(uint32(p.PID), classify.NewProcessName(p.Name))
		}
	}
	return nil
}

// Connections returns the inventory sorted by key. With suspiciousOnly set,
// connections that matched no rule are left out.
func (s *Scanner) Connections(suspiciousOnly bool) []Connection {
	s.mu.RLock()
	out := make([]Connection, 0, len(s.conns))
	for _, c := range s.conns {
		if suspiciousOnly && !c.Suspicious() {
			continue
		}
		cp := *c
		cp.Reasons = append([]Reason(nil), c.Reasons...)
		out = append(out, cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Processes returns the running denylisted processes ordered by pid.
func (s *Scanner) Processes() []Process {
	s.mu.RLock()
	out := make([]Process, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// SuspiciousLines renders the suspicious connections for a report.
func (s *Scanner) SuspiciousLines() []string {
	conns := s.Connections(true)
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.String()
	}
	return out
}

// Summary counts the current inventory.
func (s *Scanner) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Connections: len(s.conns),
		Processes:   len(s.procs),
		LastScan:    s.lastScan,
	}
	for _, c := range s.conns {
		if c.Suspicious() {
			sum.Suspicious++
		}
	}
	return sum
}

// Reasons returns the rules a connection to remote:port trips: a suspicious
// port, an address outside loopback and the private ranges, or a port in the
// registered range.
func Reasons(remote netip.Addr, port uint16, ports *classify.PortSet) []Reason {
	var out []Reason
	if ports != nil && ports.Contains(port) {
		out = append(out, ReasonSuspiciousPort)
	}
	if !isPrivate(remote) {
		out = append(out, ReasonExternal)
	}
	if port > highPortLow && port < highPortHigh {
		out = append(out, ReasonHighPort)
	}
	return out
}

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return classify.IsPrivate(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	}
	return addr.IsLoopback() || addr.IsPrivate()
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.IsValid() || addr.IsUnspecified() {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
