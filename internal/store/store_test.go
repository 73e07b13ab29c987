// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/enrich"
	"grimm.is/shellwatch/internal/event"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func networkAlert(ts time.Time) alerting.Alert {
	return alerting.Alert{
		ID:         uuid.NewString(),
		Type:       event.TypeExternalConnection,
		Severity:   event.SeverityHigh,
		Message:    "Connection attempt to external address: 192.168.1.5:51000 -> 1.2.3.4:443",
		LocalAddr:  "192.168.1.5",
		RemoteAddr: "1.2.3.4",
		LocalPort:  51000,
		RemotePort: 443,
		Geo:        &enrich.GeoInfo{Country: "AU", ASN: 13335},
		KernelTime: 987654321,
		Timestamp:  ts,
	}
}

func processAlert(ts time.Time) alerting.Alert {
	return alerting.Alert{
		ID:         uuid.NewString(),
		Type:       event.TypeProcessInjection,
		Severity:   event.SeverityHigh,
		Message:    "Suspicious process started: nc (pid 77)",
		PID:        77,
		Process:    &enrich.ProcessInfo{PID: 77, Name: "nc", PPID: 1, ParentName: "bash"},
		KernelTime: 42,
		Timestamp:  ts,
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := networkAlert(base)
	second := processAlert(base.Add(time.Second))
	require.NoError(t, s.Save(first))
	require.NoError(t, s.Save(second))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Recent(10, "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, second.ID, got[0].ID, "newest first")
	assert.Equal(t, second.Process, got[0].Process)
	assert.Nil(t, got[0].Geo)
	assert.True(t, second.Timestamp.Equal(got[0].Timestamp))

	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, event.TypeExternalConnection, got[1].Type)
	assert.Equal(t, event.SeverityHigh, got[1].Severity)
	assert.Equal(t, "1.2.3.4", got[1].RemoteAddr)
	assert.Equal(t, uint16(443), got[1].RemotePort)
	assert.Equal(t, uint64(987654321), got[1].KernelTime)
	assert.Equal(t, first.Geo, got[1].Geo)
	assert.Nil(t, got[1].Process)
}

func TestRecent_FilterAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(processAlert(base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, s.Save(networkAlert(base)))

	got, err := s.Recent(3, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Recent(10, "external_connection")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.TypeExternalConnection, got[0].Type)
}

func TestSave_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	a := networkAlert(time.Now())
	require.NoError(t, s.Save(a))
	assert.Error(t, s.Save(a))
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(networkAlert(base.Add(-48*time.Hour))))
	require.NoError(t, s.Save(networkAlert(base)))

	removed, err := s.Prune(base.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(networkAlert(time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
