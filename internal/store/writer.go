// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
)

// WriterConfig sizes the batching writer.
type WriterConfig struct {
	// Queue is the number of alerts buffered between flushes.
	Queue int
	// BatchSize flushes as soon as this many alerts are pending.
	BatchSize int
	// Interval flushes pending alerts at least this often.
	Interval time.Duration
}

// DefaultWriterConfig returns the agent's writer sizing.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Queue:     4096,
		BatchSize: 256,
		Interval:  time.Second,
	}
}

// batchSaver is the part of Store the writer needs.
type batchSaver interface {
	SaveBatch(alerts []alerting.Alert) error
}

// Writer queues alerts and writes them in batched transactions from its own
// goroutine. Save never blocks.
type Writer struct {
	store  batchSaver
	cfg    WriterConfig
	queue  chan alerting.Alert
	logger *logging.Logger

	flushMu sync.Mutex
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter creates a batching writer in front of s.
func NewWriter(s batchSaver, logger *logging.Logger, cfg WriterConfig) *Writer {
	def := DefaultWriterConfig()
	if cfg.Queue <= 0 {
		cfg.Queue = def.Queue
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if logger == nil {
		logger = logging.WithComponent("store")
	}
	return &Writer{
		store:  s,
		cfg:    cfg,
		queue:  make(chan alerting.Alert, cfg.Queue),
		logger: logger,
	}
}

// Save queues a for writing. It fails with KindUnavailable when the queue is full.
func (w *Writer) Save(a alerting.Alert) error {
	select {
	case w.queue <- a:
		return nil
	default:
		w.dropped.Add(1)
		return errors.Attr(errors.New(errors.KindUnavailable, "alert write queue full"), "queue", w.cfg.Queue)
	}
}

// Run writes queued alerts until ctx is cancelled, then writes what is left.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	batch := make([]alerting.Alert, 0, w.cfg.BatchSize)
	for {
		select {
		case a := <-w.queue:
			batch = append(batch, a)
			if len(batch) >= w.cfg.BatchSize {
				w.write(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.write(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			w.write(batch)
			w.Flush()
			return nil
		}
	}
}

// Flush writes every queued alert now.
func (w *Writer) Flush() {
	batch := make([]alerting.Alert, 0, w.cfg.BatchSize)
	for {
		select {
		case a := <-w.queue:
			batch = append(batch, a)
			if len(batch) >= w.cfg.BatchSize {
				w.write(batch)
				batch = batch[:0]
			}
		default:
			w.write(batch)
			return
		}
	}
}

func (w *Writer) write(batch []alerting.Alert) {
	if len(batch) == 0 {
		return
	}
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	if err := w.store.SaveBatch(batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		w.logger.WithError(err).Warn("Failed to persist alerts", "count", len(batch))
		return
	}
	w.written.Add(uint64(len(batch)))
}

// WriterStats are cumulative writer counters.
type WriterStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Pending int    `json:"pending"`
}

// Stats returns the writer counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
		Pending: len(w.queue),
	}
}
