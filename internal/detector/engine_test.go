// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detector

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/clock"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/frame/frametest"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
	"grimm.is/shellwatch/internal/tracker"
)

type harness struct {
	engine  *Engine
	clock   *clock.MockClock
	tracker *tracker.Tracker
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, buffer int, ports ...uint16) *harness {
	t.Helper()

	trk, err := tracker.New(&tracker.Config{Capacity: 64, Shards: 1})
	require.NoError(t, err)

	h := &harness{
		clock:   clock.NewMockClock(time.Unix(1700000000, 0)),
		tracker: trk,
		metrics: metrics.New(),
	}
	logger := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	h.engine, err = NewEngine(classify.NewPortSet(ports...), trk, logger, &Config{
		OutputBuffer: buffer,
		Clock:        h.clock,
		Metrics:      h.metrics,
	})
	require.NoError(t, err)
	return h
}

func drain(e *Engine) []event.ReverseShellEvent {
	var out []event.ReverseShellEvent
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ip4(s string) uint32 {
	return binary.BigEndian.Uint32(net.ParseIP(s).To4())
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, &Config{OutputBuffer: 0})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	e, err := NewEngine(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, len(classify.DefaultSuspiciousPorts), e.Ports().Len())
	assert.Equal(t, tracker.DefaultCapacity, e.Tracker().Capacity())
	assert.Equal(t, DefaultOutputBuffer, cap(e.Events()))
}

func TestHandleFrame_SuspiciousPortPrivateAddress(t *testing.T) {
	h := newHarness(t, 16, 4444)

	v := h.engine.HandleFrame(frametest.SYN(t, "192.168.1.5", 51000, "10.0.0.9", 4444))
	assert.Equal(t, VerdictPass, v)

	events := drain(h.engine)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, event.TypeSuspiciousConnection, ev.Type)
	assert.Equal(t, event.SeverityCritical, ev.Severity)
	assert.Equal(t, ip4("192.168.1.5"), ev.LocalAddr)
	assert.Equal(t, ip4("10.0.0.9"), ev.RemoteAddr)
	assert.Equal(t, uint16(51000), ev.LocalPort)
	assert.Equal(t, uint16(4444), ev.RemotePort)
	assert.Zero(t, ev.PID)
}

func TestHandleFrame_ExternalAddress(t *testing.T) {
	h := newHarness(t, 16, 4444)

	h.engine.HandleFrame(frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 443))

	events := drain(h.engine)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeExternalConnection, events[0].Type)
	assert.Equal(t, event.SeverityHigh, events[0].Severity)
}

func TestHandleFrame_BothRulesFire(t *testing.T) {
	h := newHarness(t, 16, 9001)

	h.engine.HandleFrame(frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 9001))

	events := drain(h.engine)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeSuspiciousConnection, events[0].Type)
	assert.Equal(t, event.TypeExternalConnection, events[1].Type)
	for _, ev := range events {
		assert.Equal(t, uint16(9001), ev.RemotePort)
		assert.Equal(t, ip4("1.2.3.4"), ev.RemoteAddr)
	}
}

func TestHandleFrame_NotApplicable(t *testing.T) {
	h := newHarness(t, 16, 4444)
	syn := frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 4444)

	frames := map[string][]byte{
		"syn-ack":   frametest.TCP(t, frametest.TCPSpec{Src: "192.168.1.5", Dst: "1.2.3.4", SrcPort: 1, DstPort: 4444, SYN: true, ACK: true}),
		"ack":       frametest.TCP(t, frametest.TCPSpec{Src: "192.168.1.5", Dst: "1.2.3.4", SrcPort: 1, DstPort: 4444, ACK: true}),
		"rst":       frametest.TCP(t, frametest.TCPSpec{Src: "192.168.1.5", Dst: "1.2.3.4", SrcPort: 1, DstPort: 4444, RST: true}),
		"udp":       frametest.UDP(t, "192.168.1.5", 51000, "1.2.3.4", 4444),
		"ipv6":      frametest.TCPv6(t, "fd00::1", 51000, "2001:db8::1", 4444),
		"truncated": syn[:14+20+19],
		"empty":     nil,
	}
	for name, buf := range frames {
		assert.Equal(t, VerdictPass, h.engine.HandleFrame(buf), name)
		assert.Empty(t, drain(h.engine), name)
	}

	assert.Zero(t, h.tracker.Len(), "only SYN-only frames are tracked")
	st := h.engine.Stats()
	assert.Equal(t, uint64(len(frames)), st.FramesSeen)
	assert.Zero(t, st.FramesMatched)

	expected := fmt.Sprintf(`
# HELP shellwatch_frames_total Frames handed to the detector by result
# TYPE shellwatch_frames_total counter
shellwatch_frames_total{result="ignored"} %d
shellwatch_frames_total{result="syn"} 0
`, len(frames))
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "shellwatch_frames_total"))
}

func TestHandleFrame_TracksFlow(t *testing.T) {
	h := newHarness(t, 16)

	h.engine.HandleFrame(frametest.SYN(t, "192.168.1.5", 51000, "10.0.0.1", 22))
	h.clock.Advance(time.Second)
	h.engine.HandleFrame(frametest.SYN(t, "192.168.1.5", 51000, "10.0.0.1", 22))

	assert.Empty(t, drain(h.engine))
	require.Equal(t, 1, h.tracker.Len())

	e, ok := h.tracker.Lookup(tracker.FlowKey(ip4("192.168.1.5"), ip4("10.0.0.1"), 51000, 22))
	require.True(t, ok)
	assert.Equal(t, h.clock.Monotonic(), e.LastSeen)
}

func TestHandleExec_Denylisted(t *testing.T) {
	h := newHarness(t, 16)

	submitted := h.clock.Monotonic()
	h.clock.Advance(time.Millisecond)
	h.engine.HandleExec(4242, classify.NewProcessName("nc"))

	events := drain(h.engine)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, event.TypeProcessInjection, ev.Type)
	assert.Equal(t, event.SeverityHigh, ev.Severity)
	assert.Equal(t, uint32(4242), ev.PID)
	assert.GreaterOrEqual(t, ev.Timestamp, submitted)
	assert.Zero(t, ev.RemoteAddr)

	_, ok := h.tracker.Lookup(tracker.ProcessKey(4242))
	assert.True(t, ok)
}

func TestHandleExec_NotDenylisted(t *testing.T) {
	h := newHarness(t, 16)

	for _, comm := range []string{"bash-wrapper", "sshd", "NC", "nginx"} {
		h.engine.HandleExec(7, classify.NewProcessName(comm))
	}
	assert.Empty(t, drain(h.engine))
	assert.Equal(t, 1, h.tracker.Len())
}

func TestHandleRunning(t *testing.T) {
	h := newHarness(t, 16)

	h.engine.HandleRunning(31, classify.NewProcessName("nginx"))
	h.engine.HandleRunning(32, classify.NewProcessName("netcat"))

	events := drain(h.engine)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeProcessInjection, events[0].Type)
	assert.Equal(t, event.SeverityHigh, events[0].Severity)
	assert.Equal(t, uint32(32), events[0].PID)
	assert.Zero(t, h.engine.Stats().SyscallsSeen)
	assert.Equal(t, 1, h.tracker.Len())
}

func TestHandleSocketAndConnect(t *testing.T) {
	h := newHarness(t, 16)

	h.engine.HandleSocket(77)
	h.engine.HandleConnect(77)

	events := drain(h.engine)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeSocketCreation, events[0].Type)
	assert.Equal(t, event.TypeConnectCall, events[1].Type)
	for _, ev := range events {
		assert.Equal(t, event.SeverityMedium, ev.Severity)
		assert.Equal(t, uint32(77), ev.PID)
	}
	assert.Equal(t, 1, h.tracker.Len())
}

func TestEmit_DropsWhenFull(t *testing.T) {
	h := newHarness(t, 1)

	h.engine.HandleSocket(1)
	h.engine.HandleSocket(2)
	h.engine.HandleConnect(3)

	events := drain(h.engine)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(1), events[0].PID)

	st := h.engine.Stats()
	assert.Equal(t, uint64(1), st.Emitted)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.EventsDropped))

	// The engine keeps going after drops.
	h.engine.HandleSocket(4)
	assert.Len(t, drain(h.engine), 1)
}

func TestTimestampsAreMonotonic(t *testing.T) {
	h := newHarness(t, 16)

	h.engine.HandleSocket(1)
	h.clock.Advance(5 * time.Millisecond)
	h.engine.HandleSocket(1)

	events := drain(h.engine)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(5*time.Millisecond), events[1].Timestamp-events[0].Timestamp)
}

func TestPortSetReplace(t *testing.T) {
	h := newHarness(t, 16, 4444)
	frame := frametest.SYN(t, "10.0.0.2", 40000, "10.0.0.3", 8443)

	h.engine.HandleFrame(frame)
	assert.Empty(t, drain(h.engine))

	h.engine.Ports().Replace([]uint16{8443})
	h.engine.HandleFrame(frame)
	events := drain(h.engine)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeSuspiciousConnection, events[0].Type)
}

func TestTrackerEvictionIsCounted(t *testing.T) {
	h := newHarness(t, 128)
	for pid := uint32(1); pid <= 65; pid++ {
		h.engine.HandleSocket(pid)
	}
	assert.Equal(t, 64, h.tracker.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TrackerEvictions))
	assert.Equal(t, uint64(1), h.engine.Stats().Tracker.Evictions)
}

func TestConcurrentHandlers(t *testing.T) {
	h := newHarness(t, 100000, 4444)
	syn := frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 4444)

	const workers, perG = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				h.engine.HandleFrame(syn)
				h.engine.HandleExec(uint32(w), classify.NewProcessName("bash"))
			}
		}(w)
	}
	wg.Wait()

	st := h.engine.Stats()
	assert.Equal(t, uint64(workers*perG*3), st.Emitted)
	assert.Zero(t, st.Dropped)
	assert.Equal(t, uint64(workers*perG), st.ByType["process_injection"])
	assert.Equal(t, 1+workers, h.tracker.Len())
}

func TestHandleFrame_NoAllocations(t *testing.T) {
	h := newHarness(t, 4096, 4444)
	syn := frametest.SYN(t, "192.168.1.5", 51000, "1.2.3.4", 4444)
	h.engine.HandleFrame(syn)

	allocs := testing.AllocsPerRun(1000, func() {
		h.engine.HandleFrame(syn)
		h.engine.HandleExec(1, classify.NewProcessName("nc"))
	})
	assert.Zero(t, allocs)
}

func TestClose(t *testing.T) {
	h := newHarness(t, 4)
	h.engine.HandleConnect(1)
	h.engine.Close()
	h.engine.Close()

	var got []event.ReverseShellEvent
	for ev := range h.engine.Events() {
		got = append(got, ev)
	}
	assert.Len(t, got, 1)
}
