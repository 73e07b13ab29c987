// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the Prometheus collectors for the agent.
//
// Label children are resolved at construction so that increments on the
// frame and syscall paths do not allocate. All Observe methods are safe on a
// nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/shellwatch/internal/event"
)

const namespace = "shellwatch"

// Frame results.
const (
	FrameMatched = "syn"
	FrameIgnored = "ignored"
)

// Syscall record kinds.
const (
	SyscallExec    = "exec"
	SyscallSocket  = "socket"
	SyscallConnect = "connect"
	SyscallUnknown = "unknown"
)

// Metrics holds all shellwatch collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	frames        *prometheus.CounterVec
	framesMatched prometheus.Counter
	framesIgnored prometheus.Counter

	events       *prometheus.CounterVec
	eventsByType [len(event.Types) + 1]prometheus.Counter

	EventsDropped    prometheus.Counter
	TrackerEvictions prometheus.Counter

	syscalls       *prometheus.CounterVec
	syscallsByKind map[string]prometheus.Counter

	SourceErrors *prometheus.CounterVec

	AlertDeliveries *prometheus.CounterVec

	Scans                 *prometheus.CounterVec
	SuspiciousConnections prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames handed to the detector by result",
		}, []string{"result"}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted by type",
		}, []string{"type"}),

		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the output channel was full",
		}),

		TrackerEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_evictions_total",
			Help:      "Tracker entries evicted to make room for new keys",
		}),

		syscalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syscall_records_total",
			Help:      "Syscall records read from the kernel ring buffer by kind",
		}, []string{"kind"}),

		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Read or decode errors by event source",
		}, []string{"source"}),

		AlertDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_deliveries_total",
			Help:      "Alert channel deliveries by channel and result",
		}, []string{"channel", "result"}),

		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Connection and process scans by result",
		}, []string{"result"}),

		SuspiciousConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspicious_connections",
			Help:      "Suspicious established connections seen by the last scan",
		}),
	}

	m.framesMatched = m.frames.WithLabelValues(FrameMatched)
	m.framesIgnored = m.frames.WithLabelValues(FrameIgnored)

	for _, t := range event.Types {
		m.eventsByType[t] = m.events.WithLabelValues(t.String())
	}
	m.eventsByType[0] = m.events.WithLabelValues("unknown")

	m.syscallsByKind = map[string]prometheus.Counter{}
	for _, k := range []string{SyscallExec, SyscallSocket, SyscallConnect, SyscallUnknown} {
		m.syscallsByKind[k] = m.syscalls.WithLabelValues(k)
	}

	m.registry.MustRegister(
		m.frames,
		m.events,
		m.EventsDropped,
		m.TrackerEvictions,
		m.syscalls,
		m.SourceErrors,
		m.AlertDeliveries,
		m.Scans,
		m.SuspiciousConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every shellwatch collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterTrackerGauge exposes the tracker occupancy, read at scrape time.
func (m *Metrics) RegisterTrackerGauge(entries func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracker_entries",
		Help:      "Entries currently held by the connection tracker",
	}, entries))
}

// ObserveFrame counts a frame as matched (SYN-only IPv4/TCP) or ignored.
func (m *Metrics) ObserveFrame(matched bool) {
	if m == nil {
		return
	}
	if matched {
		m.framesMatched.Inc()
	} else {
		m.framesIgnored.Inc()
	}
}

// ObserveEvent counts an emitted event.
func (m *Metrics) ObserveEvent(t event.Type) {
	if m == nil {
		return
	}
	if int(t) >= len(m.eventsByType) {
		t = 0
	}
	m.eventsByType[t].Inc()
}

// ObserveDrop counts an event lost to a full output channel.
func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// ObserveEviction counts a tracker eviction.
func (m *Metrics) ObserveEviction() {
	if m == nil {
		return
	}
	m.TrackerEvictions.Inc()
}

// ObserveSyscall counts a decoded syscall record.
func (m *Metrics) ObserveSyscall(kind string) {
	if m == nil {
		return
	}
	c, ok := m.syscallsByKind[kind]
	if !ok {
		c = m.syscallsByKind[SyscallUnknown]
	}
	c.Inc()
}

// ObserveSourceError counts a read or decode failure for a source.
func (m *Metrics) ObserveSourceError(source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(source).Inc()
}

// ObserveDelivery counts an alert delivery attempt.
func (m *Metrics) ObserveDelivery(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.AlertDeliveries.WithLabelValues(channel, result).Inc()
}

// ObserveScan counts a scan and records how many suspicious connections it
// found. A failed scan leaves the gauge unchanged.
func (m *Metrics) ObserveScan(suspicious int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Scans.WithLabelValues("failure").Inc()
		return
	}
	m.Scans.WithLabelValues("success").Inc()
	m.SuspiciousConnections.Set(float64(suspicious))
}
