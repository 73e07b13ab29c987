// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracepoints_DefaultHooksExecveEntry(t *testing.T) {
	for _, hook := range []ExecHook{"", ExecHookExecve, "bogus"} {
		tps := Tracepoints(hook)
		require.Len(t, tps, 3, hook)
		assert.Equal(t, Tracepoint{"syscalls", "sys_enter_execve", "trace_execve"}, tps[0], hook)
	}
}

func TestTracepoints_SchedExec(t *testing.T) {
	tps := Tracepoints(ExecHookSchedExec)
	require.Len(t, tps, 3)
	assert.Equal(t, Tracepoint{"sched", "sched_process_exec", "trace_exec_image"}, tps[0])
	assert.Equal(t, "sys_enter_socket", tps[1].Name)
	assert.Equal(t, "sys_enter_connect", tps[2].Name)
}

func TestReadBackoff_GrowsAndCaps(t *testing.T) {
	var b readBackoff

	wait, ok := b.fail()
	require.True(t, ok)
	assert.Equal(t, minReadBackoff, wait)

	wait, ok = b.fail()
	require.True(t, ok)
	assert.Equal(t, 2*minReadBackoff, wait)

	for i := 0; i < 10; i++ {
		wait, ok = b.fail()
		require.True(t, ok)
	}
	assert.Equal(t, maxReadBackoff, wait)

	b.reset()
	wait, ok = b.fail()
	require.True(t, ok)
	assert.Equal(t, minReadBackoff, wait)
}

func TestReadBackoff_GivesUp(t *testing.T) {
	var b readBackoff
	for i := 1; i < maxReadFailures; i++ {
		_, ok := b.fail()
		require.True(t, ok, "failure %d", i)
	}
	_, ok := b.fail()
	assert.False(t, ok)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}
