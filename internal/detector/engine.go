// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package detector turns captured frames and syscall notifications into
// reverse-shell events.
//
// Every Handle method runs to completion on the calling goroutine without
// blocking, sleeping or allocating. Events are offered to a buffered channel;
// when the channel is full the event is dropped and counted. Any number of
// goroutines may call the Handle methods concurrently.
package detector

import (
	"sync"
	"sync/atomic"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/clock"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/frame"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
	"grimm.is/shellwatch/internal/tracker"
)

// DefaultOutputBuffer is the default capacity of the event channel.
const DefaultOutputBuffer = 4096

// Verdict is the decision returned for a frame. The engine only observes.
type Verdict uint8

const (
	VerdictPass Verdict = iota
)

func (v Verdict) String() string {
	if v == VerdictPass {
		return "pass"
	}
	return "unknown"
}

// Config for the detection engine.
type Config struct {
	OutputBuffer int `json:"output_buffer"`

	// Clock stamps events and tracker entries. Defaults to the system clock.
	Clock clock.Clock `json:"-"`
	// Metrics is optional.
	Metrics *metrics.Metrics `json:"-"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputBuffer: DefaultOutputBuffer,
	}
}

// Stats are cumulative engine counters.
type Stats struct {
	FramesSeen    uint64            `json:"frames_seen"`
	FramesMatched uint64            `json:"frames_matched"`
	SyscallsSeen  uint64            `json:"syscalls_seen"`
	Emitted       uint64            `json:"events_emitted"`
	Dropped       uint64            `json:"events_dropped"`
	ByType        map[string]uint64 `json:"events_by_type"`
	Tracker       tracker.Stats     `json:"tracker"`
	PortCount     int               `json:"suspicious_ports"`
}

// Engine is the event assembler and dispatcher.
type Engine struct {
	ports   *classify.PortSet
	tracker *tracker.Tracker
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logging.Logger

	out       chan event.ReverseShellEvent
	closeOnce sync.Once

	framesSeen    atomic.Uint64
	framesMatched atomic.Uint64
	syscallsSeen  atomic.Uint64
	dropped       atomic.Uint64
	emitted       [len(event.Types) + 1]atomic.Uint64
}

// NewEngine creates an engine reading the suspicious ports from ports and
// recording flows and processes in trk. Nil ports selects the default port
// list; a nil tracker selects the default sizing.
func NewEngine(ports *classify.PortSet, trk *tracker.Tracker, logger *logging.Logger, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.OutputBuffer <= 0 {
		return nil, errors.Attr(
			errors.Errorf(errors.KindValidation, "output buffer must be positive, got %d", cfg.OutputBuffer),
			"field", "detector.output_buffer")
	}
	if ports == nil {
		ports = classify.NewPortSet(classify.DefaultSuspiciousPorts...)
	}
	if trk == nil {
		var err error
		if trk, err = tracker.New(nil); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logging.WithComponent("detector")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	logger.Info("Detection engine created",
		"output_buffer", cfg.OutputBuffer,
		"tracker_capacity", trk.Capacity(),
		"suspicious_ports", ports.Len())

	return &Engine{
		ports:   ports,
		tracker: trk,
		clock:   clk,
		metrics: cfg.Metrics,
		logger:  logger,
		out:     make(chan event.ReverseShellEvent, cfg.OutputBuffer),
	}, nil
}

// Events returns the channel events are emitted on.
func (e *Engine) Events() <-chan event.ReverseShellEvent {
	return e.out
}

// Ports returns the suspicious port set the engine reads.
func (e *Engine) Ports() *classify.PortSet {
	return e.ports
}

// Tracker returns the connection tracker.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// Close closes the event channel. It must not be called while any Handle
// method may still run.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.out)
		e.logger.Debug("Detection engine closed")
	})
}

// HandleFrame inspects a raw Ethernet frame. SYN-only IPv4/TCP frames are
// tracked by flow and may raise SuspiciousConnection and ExternalConnection
// events. Anything else is ignored. The frame is never modified or retained.
func (e *Engine) HandleFrame(buf []byte) Verdict {
	e.framesSeen.Add(1)

	flow, ok := frame.Parse(buf)
	if !ok {
		e.metrics.ObserveFrame(false)
		return VerdictPass
	}
	e.framesMatched.Add(1)
	e.metrics.ObserveFrame(true)

	e.track(tracker.FlowKey(flow.LocalAddr, flow.RemoteAddr, flow.LocalPort, flow.RemotePort))

	ev := event.ReverseShellEvent{
		LocalAddr:  flow.LocalAddr,
		RemoteAddr: flow.RemoteAddr,
		LocalPort:  flow.LocalPort,
		RemotePort: flow.RemotePort,
	}
	if e.ports.Contains(flow.RemotePort) {
		ev.Type, ev.Severity = event.TypeSuspiciousConnection, event.SeverityCritical
		e.emit(ev)
	}
	if !classify.IsPrivate(flow.RemoteAddr) {
		ev.Type, ev.Severity = event.TypeExternalConnection, event.SeverityHigh
		e.emit(ev)
	}
	return VerdictPass
}

// HandleExec records a process start and raises ProcessInjection when the
// command name is on the denylist.
func (e *Engine) HandleExec(pid uint32, comm classify.ProcessName) {
	e.syscallsSeen.Add(1)
	e.track(tracker.ProcessKey(pid))

	if classify.IsSuspiciousProcess(comm) {
		e.emit(event.ReverseShellEvent{
			PID:      pid,
			Type:     event.TypeProcessInjection,
			Severity: event.SeverityHigh,
		})
	}
}

// HandleRunning raises ProcessInjection for a denylisted process found by a
// scan rather than a syscall record.
func (e *Engine) HandleRunning(pid uint32, comm classify.ProcessName) {
	if !classify.IsSuspiciousProcess(comm) {
		return
	}
	e.track(tracker.ProcessKey(pid))
	e.emit(event.ReverseShellEvent{
		PID:      pid,
		Type:     event.TypeProcessInjection,
		Severity: event.SeverityHigh,
	})
}

// HandleSocket records a socket creation. It always raises SocketCreation.
func (e *Engine) HandleSocket(pid uint32) {
	e.syscallsSeen.Add(1)
	e.track(tracker.ProcessKey(pid))
	e.emit(event.ReverseShellEvent{
		PID:      pid,
		Type:     event.TypeSocketCreation,
		Severity: event.SeverityMedium,
	})
}

// HandleConnect records an outbound connect. It always raises ConnectCall.
func (e *Engine) HandleConnect(pid uint32) {
	e.syscallsSeen.Add(1)
	e.track(tracker.ProcessKey(pid))
	e.emit(event.ReverseShellEvent{
		PID:      pid,
		Type:     event.TypeConnectCall,
		Severity: event.SeverityMedium,
	})
}

func (e *Engine) track(key tracker.Key) {
	if _, evicted := e.tracker.Upsert(key, e.clock.Monotonic()); evicted {
		e.metrics.ObserveEviction()
	}
}

// emit stamps ev and offers it to the output channel without blocking.
func (e *Engine) emit(ev event.ReverseShellEvent) {
	ev.Timestamp = e.clock.Monotonic()
	select {
	case e.out <- ev:
		e.emitted[ev.Type].Add(1)
		e.metrics.ObserveEvent(ev.Type)
	default:
		e.dropped.Add(1)
		e.metrics.ObserveDrop()
	}
}

// Stats returns a snapshot of the engine and tracker counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		FramesSeen:    e.framesSeen.Load(),
		FramesMatched: e.framesMatched.Load(),
		SyscallsSeen:  e.syscallsSeen.Load(),
		Dropped:       e.dropped.Load(),
		ByType:        make(map[string]uint64, len(event.Types)),
		Tracker:       e.tracker.Stats(),
		PortCount:     e.ports.Len(),
	}
	for _, t := range event.Types {
		n := e.emitted[t].Load()
		st.ByType[t.String()] = n
		st.Emitted += n
	}
	return st
}
