// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package source

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
	"grimm.is/shellwatch/internal/source/bpf"
)

const eventsMapName = "events"

// Syscalls loads the syscall tracepoint object and forwards its ring buffer
// records to a SyscallHandler.
type Syscalls struct {
	cfg     SyscallsConfig
	handler SyscallHandler
	logger  *logging.Logger
	metrics *metrics.Metrics

	running atomic.Bool
	read    atomic.Uint64
	errors  atomic.Uint64
}

// NewSyscalls creates a syscall source. An empty cfg.Object uses the embedded object.
func NewSyscalls(cfg SyscallsConfig, h SyscallHandler, logger *logging.Logger, m *metrics.Metrics) *Syscalls {
	if logger == nil {
		logger = logging.WithComponent("syscalls")
	}
	if cfg.ExecHook == "" {
		cfg.ExecHook = ExecHookExecve
	}
	return &Syscalls{
		cfg:     cfg,
		handler: h,
		logger:  logger,
		metrics: m,
	}
}

func (s *Syscalls) loadSpec() (*ebpf.CollectionSpec, error) {
	if s.cfg.Object != "" {
		spec, err := ebpf.LoadCollectionSpec(s.cfg.Object)
		if err != nil {
			return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "failed to load eBPF object"), "path", s.cfg.Object)
		}
		return spec, nil
	}

	data, err := bpf.Object()
	if err != nil {
		return nil, err
	}
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindMalformed, "failed to parse embedded eBPF object")
	}
	return spec, nil
}

// Run loads and attaches the programs, then reads records until ctx is cancelled.
func (s *Syscalls) Run(ctx context.Context) error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to remove memlock limit")
	}

	spec, err := s.loadSpec()
	if err != nil {
		return err
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to create eBPF collection")
	}
	defer coll.Close()

	if s.cfg.ExecHook == ExecHookSchedExec {
		s.logger.Warn("Exec notifications report the executed image instead of the calling process", "exec_hook", s.cfg.ExecHook)
	}

	tracepoints := Tracepoints(s.cfg.ExecHook)
	for _, tp := range tracepoints {
		prog := coll.Programs[tp.Program]
		if prog == nil {
			return errors.Attr(errors.New(errors.KindNotFound, "program missing from eBPF object"), "program", tp.Program)
		}
		l, err := link.Tracepoint(tp.Group, tp.Name, prog, nil)
		if err != nil {
			return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to attach tracepoint"), "tracepoint", tp.Group+"/"+tp.Name)
		}
		defer l.Close()
	}

	events := coll.Maps[eventsMapName]
	if events == nil {
		return errors.Attr(errors.New(errors.KindNotFound, "map missing from eBPF object"), "map", eventsMapName)
	}
	rd, err := ringbuf.NewReader(events)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to create ring buffer reader")
	}
	defer rd.Close()

	s.running.Store(true)
	defer s.running.Store(false)
	s.logger.Info("Syscall tracepoints attached", "object", s.objectName(), "exec_hook", s.cfg.ExecHook, "tracepoints", len(tracepoints))

	go func() {
		<-ctx.Done()
		rd.Close()
	}()

	var (
		record  ringbuf.Record
		backoff readBackoff
	)
	for {
		if err := rd.ReadInto(&record); err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				s.logger.Info("Syscall reader stopped", "records", s.read.Load())
				return nil
			}
			s.fail("Ring buffer read failed", err)
			wait, ok := backoff.fail()
			if !ok {
				return errors.Wrap(err, errors.KindUnavailable, "ring buffer reads keep failing")
			}
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		backoff.reset()

		rec, err := DecodeSyscallRecord(record.RawSample)
		if err != nil {
			s.fail("Dropped malformed syscall record", err)
			continue
		}
		s.read.Add(1)
		s.metrics.ObserveSyscall(rec.Kind.String())
		if !Dispatch(rec, s.handler) {
			s.logger.Debug("Unknown syscall record kind", "kind", uint32(rec.Kind))
		}
	}
}

func (s *Syscalls) objectName() string {
	if s.cfg.Object != "" {
		return s.cfg.Object
	}
	return "embedded"
}

func (s *Syscalls) fail(msg string, err error) {
	s.errors.Add(1)
	s.metrics.ObserveSourceError("syscalls")
	s.logger.Debug(msg, "error", err)
}

// Stats returns the syscall source counters.
func (s *Syscalls) Stats() Stats {
	return Stats{Running: s.running.Load(), Read: s.read.Load(), Errors: s.errors.Load()}
}
