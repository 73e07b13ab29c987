// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSyslogConfig(t *testing.T) {
	cfg := DefaultSyslogConfig()

	assert.False(t, cfg.Enabled, "Default should be disabled")
	assert.Equal(t, 514, cfg.Port)
	assert.Equal(t, "udp", cfg.Protocol)
	assert.Equal(t, "shellwatch", cfg.Tag)
	assert.Equal(t, 1, cfg.Facility)
}

func TestNewSyslogWriter_MissingHost(t *testing.T) {
	_, err := NewSyslogWriter(SyslogConfig{Enabled: true})
	assert.Error(t, err)
}

func TestSyslogConfig_Normalize(t *testing.T) {
	cfg, err := SyslogConfig{Host: "localhost"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, 514, cfg.Port)
	assert.Equal(t, "udp", cfg.Protocol)
	assert.Equal(t, "shellwatch", cfg.Tag)
	assert.Equal(t, "localhost:514", cfg.addr())

	_, err = SyslogConfig{Host: "localhost", Protocol: "sctp"}.normalize()
	assert.Error(t, err)
	_, err = SyslogConfig{Host: "localhost", Port: 70000}.normalize()
	assert.Error(t, err)
	_, err = SyslogConfig{Host: "localhost", Facility: 24}.normalize()
	assert.Error(t, err)
}

func TestNewSyslogWriter_UDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	w, err := NewSyslogWriter(SyslogConfig{Enabled: true, Host: "127.0.0.1", Port: port, Facility: 1})
	require.NoError(t, err)
	defer w.Close()

	logger := New(Config{Level: LevelInfo, Output: w, JSON: true})
	logger.Warn("Suspicious process started", "pid", 77)

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	msg := string(buf[:n])
	assert.True(t, strings.HasPrefix(msg, "<14>"), "user.info priority, got %q", msg)
	assert.Contains(t, msg, "shellwatch")
	assert.Contains(t, msg, `"msg":"Suspicious process started"`)
}
