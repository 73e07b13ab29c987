// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/frame/frametest"
	"grimm.is/shellwatch/internal/store"
)

func TestRunValidate_Defaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runValidate("", &out))
	assert.Contains(t, out.String(), `"output_buffer": 4096`)
	assert.Contains(t, out.String(), "No changes from defaults.")
}

func TestRunValidate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shellwatch.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
interface = "eth0"
detector {
  suspicious_ports = [4444]
}`), 0o600))

	var out bytes.Buffer
	require.NoError(t, runValidate(path, &out))
	assert.Contains(t, out.String(), "Changes from defaults:")
	assert.Contains(t, out.String(), `+  "interface": "eth0",`)
}

func TestRunValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`tracker { capacity = -5 }`), 0o600))

	err := runValidate(path, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestRunReplay(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "syn.pcap")

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	frames := [][]byte{
		frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 4444),
		frametest.SYN(t, "192.168.1.5", 51001, "192.168.1.9", 22),
	}
	for i, f := range frames {
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(f),
			Length:        len(f),
		}, f))
	}
	require.NoError(t, os.WriteFile(capture, buf.Bytes(), 0o600))

	var out bytes.Buffer
	require.NoError(t, runReplay("", capture, &out, io.Discard))

	sc := bufio.NewScanner(strings.NewReader(out.String()))
	var types []string
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "{") {
			break
		}
		var a map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &a))
		types = append(types, a["type"].(string))
		assert.Equal(t, "1.2.3.4", a["remote_addr"])
	}
	assert.Equal(t, []string{"suspicious_connection", "external_connection"}, types)
	assert.Contains(t, out.String(), "Reverse Shell Detection Report")
	assert.Contains(t, out.String(), "Total Events Detected: 2")
	assert.Contains(t, out.String(), "Tracked Connections:   2")
}

func TestRunReplay_MissingFile(t *testing.T) {
	err := runReplay("", filepath.Join(t.TempDir(), "none.pcap"), io.Discard, io.Discard)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestRunHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "alerts.db")
	s, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, s.Save(alerting.Alert{
		ID:        "8d1f6c1e-0000-4000-8000-000000000001",
		Type:      event.TypeProcessInjection,
		Severity:  event.SeverityHigh,
		Message:   "Suspicious process started: nc (pid 77)",
		PID:       77,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.Close())

	cfgPath := filepath.Join(dir, "shellwatch.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`alerting { database = "`+db+`" }`), 0o600))

	var out bytes.Buffer
	require.NoError(t, runHistory(cfgPath, []string{"-limit", "5"}, &out))
	assert.Contains(t, out.String(), `"type":"process_injection"`)
	assert.Contains(t, out.String(), `"pid":77`)

	out.Reset()
	require.NoError(t, runHistory(cfgPath, []string{"-type", "connect_call"}, &out))
	assert.Empty(t, out.String())

	err = runHistory(cfgPath, []string{"-type", "port_scan"}, io.Discard)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestRunHistory_NotConfigured(t *testing.T) {
	err := runHistory("", nil, io.Discard)
	require.Error(t, err)
	assert.Equal(t, "alerting.database", errors.GetAttributes(err)["field"])
}
