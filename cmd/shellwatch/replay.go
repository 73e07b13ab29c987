// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/detector"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/replay"
	"grimm.is/shellwatch/internal/tracker"
)

// drainHandler hands every event a frame produced to emit before the next
// frame is read, so a replay never overflows the output channel.
type drainHandler struct {
	engine *detector.Engine
	emit   func(event.ReverseShellEvent)
}

func (h *drainHandler) HandleFrame(buf []byte) detector.Verdict {
	v := h.engine.HandleFrame(buf)
	for {
		select {
		case ev := <-h.engine.Events():
			h.emit(ev)
		default:
			return v
		}
	}
}

// runReplay feeds a capture through a fresh engine, writes each alert as a
// JSON line to out and finishes with the report.
func runReplay(path, capture string, out, logOut io.Writer) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: level, Output: logOut, JSON: cfg.Log.Format == "json"}).
		WithComponent("replay")

	trk, err := tracker.New(&tracker.Config{Capacity: cfg.Tracker.Capacity, Shards: cfg.Tracker.Shards})
	if err != nil {
		return err
	}
	engine, err := detector.NewEngine(
		classify.NewPortSet(cfg.Detector.Ports()...),
		trk,
		logger,
		&detector.Config{OutputBuffer: cfg.Detector.OutputBuffer},
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	alerts := alerting.NewEngine(logger, alerting.Config{History: cfg.Alerting.History})
	enc := json.NewEncoder(out)
	h := &drainHandler{
		engine: engine,
		emit: func(ev event.ReverseShellEvent) {
			if err := enc.Encode(alerts.Handle(ev)); err != nil {
				logger.WithError(err).Warn("Failed to write alert")
			}
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := replay.File(ctx, capture, h)
	if err != nil {
		return err
	}
	st := engine.Stats()
	logger.Info("Replay finished",
		"file", capture,
		"packets", res.Packets,
		"bytes", res.Bytes,
		"frames_matched", st.FramesMatched,
		"events", alerts.Summary().Total)

	return alerts.Report(out, alerting.Inventory{Tracked: trk.Len()})
}
