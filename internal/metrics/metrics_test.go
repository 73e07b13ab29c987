// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/event"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveFrame(true)
	m.ObserveFrame(false)
	m.ObserveFrame(false)
	m.ObserveEvent(event.TypeProcessInjection)
	m.ObserveEvent(event.Type(99))
	m.ObserveDrop()
	m.ObserveEviction()
	m.ObserveSyscall(SyscallExec)
	m.ObserveSyscall("ptrace")
	m.ObserveSourceError("capture")
	m.ObserveDelivery("siem", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues(FrameMatched)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues(FrameIgnored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("process_injection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackerEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syscalls.WithLabelValues(SyscallExec)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syscalls.WithLabelValues(SyscallUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("capture")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertDeliveries.WithLabelValues("siem", "failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFrame(true)
		m.ObserveEvent(event.TypeConnectCall)
		m.ObserveDrop()
		m.ObserveEviction()
		m.ObserveSyscall(SyscallSocket)
		m.ObserveSourceError("syscalls")
		m.ObserveDelivery("x", true)
		m.ObserveScan(1, nil)
	})
}

func TestObserveScan(t *testing.T) {
	m := New()

	m.ObserveScan(3, nil)
	m.ObserveScan(0, io.ErrUnexpectedEOF)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SuspiciousConnections), "failed scans keep the last count")
}

func TestHandler(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterTrackerGauge(func() float64 { return 7 }))
	m.ObserveEvent(event.TypeSuspiciousConnection)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `shellwatch_events_total{type="suspicious_connection"} 1`))
	assert.True(t, strings.Contains(body, "shellwatch_tracker_entries 7"))

	// A second gauge with the same name is rejected.
	assert.Error(t, m.RegisterTrackerGauge(func() float64 { return 0 }))
}

func TestObserveFrame_NoAllocations(t *testing.T) {
	m := New()
	allocs := testing.AllocsPerRun(1000, func() {
		m.ObserveFrame(true)
		m.ObserveEvent(event.TypeExternalConnection)
	})
	assert.Zero(t, allocs)
}
