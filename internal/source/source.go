// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package source attaches the detector to kernel event sources: raw frames
// from an AF_PACKET socket and syscall notifications from an eBPF ring buffer.
package source

import (
	"context"
	"time"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/detector"
)

// readTimeout bounds each blocking read so cancellation is noticed.
const readTimeout = 250 * time.Millisecond

// FrameHandler consumes raw Ethernet frames.
type FrameHandler interface {
	HandleFrame(buf []byte) detector.Verdict
}

// SyscallHandler consumes syscall notifications.
type SyscallHandler interface {
	HandleExec(pid uint32, comm classify.ProcessName)
	HandleSocket(pid uint32)
	HandleConnect(pid uint32)
}

// Stats are cumulative per-source counters. Running is true while the source
// is attached and reading.
type Stats struct {
	Running bool   `json:"running"`
	Read    uint64 `json:"read"`
	Errors  uint64 `json:"errors"`
}

// ExecHook selects the tracepoint that reports process execution.
type ExecHook string

const (
	// ExecHookExecve fires on execve entry. The reported comm is the caller's.
	ExecHookExecve ExecHook = "execve"
	// ExecHookSchedExec fires after the new image is installed. The reported
	// comm is the executed program.
	ExecHookSchedExec ExecHook = "sched_exec"
)

// SyscallsConfig configures the eBPF syscall source.
type SyscallsConfig struct {
	// Object overrides the embedded eBPF object with a file on disk.
	Object   string
	ExecHook ExecHook
}

// Tracepoint is one program attachment in syscall_events.c.
type Tracepoint struct {
	Group, Name, Program string
}

// Tracepoints returns the attachments for hook. Unknown hooks use execve entry.
func Tracepoints(hook ExecHook) []Tracepoint {
	exec := Tracepoint{"syscalls", "sys_enter_execve", "trace_execve"}
	if hook == ExecHookSchedExec {
		exec = Tracepoint{"sched", "sched_process_exec", "trace_exec_image"}
	}
	return []Tracepoint{
		exec,
		{"syscalls", "sys_enter_socket", "trace_socket"},
		{"syscalls", "sys_enter_connect", "trace_connect"},
	}
}

const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
	// maxReadFailures consecutive read errors stop a source.
	maxReadFailures = 50
)

// readBackoff paces retries after consecutive read errors.
type readBackoff struct {
	failures int
	delay    time.Duration
}

// fail records a failed read and returns how long to wait before the next
// one. ok is false once maxReadFailures is reached.
func (b *readBackoff) fail() (wait time.Duration, ok bool) {
	b.failures++
	if b.failures >= maxReadFailures {
		return 0, false
	}
	switch {
	case b.delay == 0:
		b.delay = minReadBackoff
	case b.delay < maxReadBackoff:
		b.delay *= 2
		if b.delay > maxReadBackoff {
			b.delay = maxReadBackoff
		}
	}
	return b.delay, true
}

func (b *readBackoff) reset() {
	b.failures = 0
	b.delay = 0
}

// sleepCtx waits for d or until ctx is done. It reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
