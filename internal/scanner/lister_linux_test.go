// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package scanner

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemLister_OwnConnection(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	client, err := net.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	defer server.Close()

	l := NewSystemLister()
	stats, err := l.Connections(context.Background())
	require.NoError(t, err)

	local := client.LocalAddr().(*net.TCPAddr)
	var found bool
	for _, st := range stats {
		if st.Laddr.Port == uint32(local.Port) && st.Status == statusEstablished {
			found = true
			assert.Equal(t, int32(os.Getpid()), st.Pid)
		}
	}
	assert.True(t, found, "dialled connection is listed")
}

func TestSystemLister_OwnProcess(t *testing.T) {
	l := NewSystemLister()

	procs, err := l.Processes(context.Background())
	require.NoError(t, err)

	var found bool
	for _, p := range procs {
		if p.PID == int32(os.Getpid()) {
			found = true
			assert.NotEmpty(t, p.Name)
		}
	}
	assert.True(t, found)
	assert.NotEmpty(t, l.ProcessName(context.Background(), int32(os.Getpid())))
	assert.Empty(t, l.ProcessName(context.Background(), -1))
}
