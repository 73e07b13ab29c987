// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the agent's HCL configuration.
package config

import (
	"time"

	"grimm.is/shellwatch/internal/event"
)

const (
	DefaultListen       = "127.0.0.1:9464"
	DefaultHistory      = 1000
	DefaultOutputBuffer = 4096
	DefaultCapacity     = 10000
	DefaultShards       = 1
	DefaultScanInterval = "5s"

	// Exec hooks. ExecHookExecve reports the calling process's name.
	ExecHookExecve    = "execve"
	ExecHookSchedExec = "sched_exec"

	// MaxSuspiciousPorts bounds the configurable port list.
	MaxSuspiciousPorts = 64
)

// DefaultSuspiciousPorts mirrors the detector's built-in list.
var DefaultSuspiciousPorts = []int{4444, 8080, 9001, 9002, 1337, 31337, 54321, 12345, 6667, 6668, 6669}

// Config is the top-level agent configuration.
type Config struct {
	// Interface is the capture interface. Empty disables frame capture.
	Interface string          `hcl:"interface,optional" json:"interface,omitempty"`
	Log       *LogConfig      `hcl:"log,block" json:"log"`
	Detector  *DetectorConfig `hcl:"detector,block" json:"detector"`
	Tracker   *TrackerConfig  `hcl:"tracker,block" json:"tracker"`
	Syscalls  *SyscallsConfig `hcl:"syscalls,block" json:"syscalls"`
	Scanner   *ScannerConfig  `hcl:"scanner,block" json:"scanner"`
	API       *APIConfig      `hcl:"api,block" json:"api"`
	Alerting  *AlertingConfig `hcl:"alerting,block" json:"alerting"`
	Enrich    *EnrichConfig   `hcl:"enrich,block" json:"enrich"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	// @enum: debug, info, warn, error
	// @default: info
	Level string `hcl:"level,optional" json:"level"`
	// Format of log records. Auto picks text on a terminal.
	// @enum: auto, json, text
	// @default: auto
	Format string        `hcl:"format,optional" json:"format"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// SyslogConfig forwards log records to a remote collector.
type SyslogConfig struct {
	Host string `hcl:"host" json:"host"`
	// @default: 514
	Port int `hcl:"port,optional" json:"port,omitempty"`
	// @enum: udp, tcp
	// @default: udp
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`
	// @default: shellwatch
	Tag string `hcl:"tag,optional" json:"tag,omitempty"`
	// @min: 0
	// @max: 23
	Facility *int `hcl:"facility,optional" json:"facility,omitempty"`
}

// DetectorConfig sizes the event channel and lists the monitored remote ports.
type DetectorConfig struct {
	// Capacity of the event channel. Events are dropped when it is full.
	// @default: 4096
	OutputBuffer int `hcl:"output_buffer,optional" json:"output_buffer"`
	// Remote ports whose outbound SYNs are reported.
	// @example: [4444, 1337]
	SuspiciousPorts []int `hcl:"suspicious_ports,optional" json:"suspicious_ports"`
}

// TrackerConfig sizes the connection tracker.
type TrackerConfig struct {
	// @default: 10000
	// @min: 1
	Capacity int `hcl:"capacity,optional" json:"capacity"`
	// Shards trade exact LRU order for less lock contention.
	// @default: 1
	// @min: 1
	Shards int `hcl:"shards,optional" json:"shards"`
}

// SyscallsConfig controls the eBPF syscall source.
type SyscallsConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled"`
	// Compiled eBPF object overriding the one built into the binary.
	// @example: /usr/lib/shellwatch/syscall_events.o
	Object string `hcl:"object,optional" json:"object,omitempty"`
	// Tracepoint for exec notifications. execve reports the calling process;
	// sched_exec reports the executed program.
	// @enum: execve, sched_exec
	// @default: execve
	ExecHook string `hcl:"exec_hook,optional" json:"exec_hook"`
}

// ScannerConfig controls the periodic connection and process scan.
type ScannerConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled"`
	// Time between scans.
	// @default: 5s
	Interval string `hcl:"interval,optional" json:"interval"`
	// Report running denylisted processes the first time a scan sees them.
	// @default: true
	Processes *bool `hcl:"processes,optional" json:"processes"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	// @default: true
	Enabled *bool `hcl:"enabled,optional" json:"enabled"`
	// @default: 127.0.0.1:9464
	Listen string `hcl:"listen,optional" json:"listen"`
}

// AlertingConfig controls alert history, persistence and delivery channels.
type AlertingConfig struct {
	// Number of alerts kept in memory.
	// @default: 1000
	History int `hcl:"history,optional" json:"history"`
	// Database is a SQLite file alerts are written to. Empty disables persistence.
	Database string `hcl:"database,optional" json:"database,omitempty"`
	// Retention prunes persisted alerts older than this. Empty keeps everything.
	// @example: 168h
	Retention string          `hcl:"retention,optional" json:"retention,omitempty"`
	Channels  []ChannelConfig `hcl:"channel,block" json:"channels,omitempty"`
}

// EnrichConfig controls alert enrichment.
type EnrichConfig struct {
	// Attach process details to syscall alerts.
	// @default: true
	Processes *bool `hcl:"processes,optional" json:"processes"`
	// GeoIPDatabase is a MaxMind .mmdb file used for external connections.
	GeoIPDatabase string `hcl:"geoip_database,optional" json:"geoip_database,omitempty"`
}

// ChannelConfig is one alert delivery channel.
type ChannelConfig struct {
	Name string `hcl:"name,label" json:"name"`
	// @enum: webhook
	Type string `hcl:"type" json:"type"`
	URL  string `hcl:"url,optional" json:"url,omitempty"`
	// @enum: medium, high, critical
	// @default: medium
	MinSeverity string `hcl:"min_severity,optional" json:"min_severity,omitempty"`
	// Minimum gap between deliveries of the same event type.
	// @example: 30s
	Cooldown string            `hcl:"cooldown,optional" json:"cooldown,omitempty"`
	Headers  map[string]string `hcl:"headers,optional" json:"headers,omitempty"`
}

// DefaultConfig returns a config with every block populated with defaults.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in missing blocks and unset values.
func (c *Config) ApplyDefaults() {
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}

	if c.Detector == nil {
		c.Detector = &DetectorConfig{}
	}
	if c.Detector.OutputBuffer == 0 {
		c.Detector.OutputBuffer = DefaultOutputBuffer
	}
	if c.Detector.SuspiciousPorts == nil {
		c.Detector.SuspiciousPorts = append([]int(nil), DefaultSuspiciousPorts...)
	}

	if c.Tracker == nil {
		c.Tracker = &TrackerConfig{}
	}
	if c.Tracker.Capacity == 0 {
		c.Tracker.Capacity = DefaultCapacity
	}
	if c.Tracker.Shards == 0 {
		c.Tracker.Shards = DefaultShards
	}

	if c.Syscalls == nil {
		c.Syscalls = &SyscallsConfig{}
	}
	if c.Syscalls.Enabled == nil {
		c.Syscalls.Enabled = boolPtr(true)
	}
	if c.Syscalls.ExecHook == "" {
		c.Syscalls.ExecHook = ExecHookExecve
	}

	if c.Scanner == nil {
		c.Scanner = &ScannerConfig{}
	}
	if c.Scanner.Enabled == nil {
		c.Scanner.Enabled = boolPtr(true)
	}
	if c.Scanner.Interval == "" {
		c.Scanner.Interval = DefaultScanInterval
	}
	if c.Scanner.Processes == nil {
		c.Scanner.Processes = boolPtr(true)
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Enabled == nil {
		c.API.Enabled = boolPtr(true)
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}

	if c.Alerting == nil {
		c.Alerting = &AlertingConfig{}
	}
	if c.Alerting.History == 0 {
		c.Alerting.History = DefaultHistory
	}
	if c.Enrich == nil {
		c.Enrich = &EnrichConfig{}
	}
	if c.Enrich.Processes == nil {
		c.Enrich.Processes = boolPtr(true)
	}

	for i := range c.Alerting.Channels {
		ch := &c.Alerting.Channels[i]
		if ch.MinSeverity == "" {
			ch.MinSeverity = event.SeverityMedium.String()
		}
	}
}

// Ports returns the suspicious ports as port numbers. Call after Validate.
func (d *DetectorConfig) Ports() []uint16 {
	out := make([]uint16, 0, len(d.SuspiciousPorts))
	for _, p := range d.SuspiciousPorts {
		out = append(out, uint16(p))
	}
	return out
}

// IsEnabled reports whether the syscall source should be attached.
func (s *SyscallsConfig) IsEnabled() bool {
	return s != nil && s.Enabled != nil && *s.Enabled
}

// IsEnabled reports whether the scanner should run.
func (s *ScannerConfig) IsEnabled() bool {
	return s != nil && s.Enabled != nil && *s.Enabled
}

// ProcessesEnabled reports whether process scan findings are reported.
func (s *ScannerConfig) ProcessesEnabled() bool {
	return s != nil && s.Processes != nil && *s.Processes
}

// IntervalDuration returns the parsed scan interval. Call after Validate.
func (s *ScannerConfig) IntervalDuration() time.Duration {
	if s == nil {
		return 0
	}
	d, _ := time.ParseDuration(s.Interval)
	return d
}

// IsEnabled reports whether the API server should run.
func (a *APIConfig) IsEnabled() bool {
	return a != nil && a.Enabled != nil && *a.Enabled
}

// ProcessesEnabled reports whether syscall alerts get process details.
func (e *EnrichConfig) ProcessesEnabled() bool {
	return e != nil && e.Processes != nil && *e.Processes
}

// RetentionDuration returns the parsed retention, zero when unset.
func (a *AlertingConfig) RetentionDuration() time.Duration {
	if a == nil || a.Retention == "" {
		return 0
	}
	d, err := time.ParseDuration(a.Retention)
	if err != nil {
		return 0
	}
	return d
}

// Severity returns the parsed minimum severity. Call after Validate.
func (ch ChannelConfig) Severity() event.Severity {
	s, err := event.ParseSeverity(ch.MinSeverity)
	if err != nil {
		return event.SeverityMedium
	}
	return s
}

// CooldownDuration returns the parsed cooldown, zero when unset.
func (ch ChannelConfig) CooldownDuration() time.Duration {
	if ch.Cooldown == "" {
		return 0
	}
	d, err := time.ParseDuration(ch.Cooldown)
	if err != nil {
		return 0
	}
	return d
}

func boolPtr(b bool) *bool { return &b }
