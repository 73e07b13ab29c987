// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package alerting consumes detector events, keeps a bounded history and
// delivers alerts to webhook channels.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"grimm.is/shellwatch/internal/clock"
	"grimm.is/shellwatch/internal/config"
	"grimm.is/shellwatch/internal/enrich"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
)

// subscriberBuffer is the per-subscriber queue. Slow subscribers miss alerts.
const subscriberBuffer = 64

// DefaultWorkers is the number of goroutines Run uses to handle events.
const DefaultWorkers = 4

// Resolver supplies process details for a pid.
type Resolver interface {
	Lookup(pid uint32) *enrich.ProcessInfo
}

// GeoResolver supplies location details for a numeric IPv4 address.
type GeoResolver interface {
	LookupAddr(addr uint32) *enrich.GeoInfo
}

// Store persists alerts.
type Store interface {
	Save(a Alert) error
}

// Config for the alerting engine.
type Config struct {
	History  int
	Channels []config.ChannelConfig
	// Workers handle events in parallel so process lookups do not hold up
	// draining the detector channel.
	Workers int

	Resolver   Resolver
	Geo        GeoResolver
	Store      Store
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
}

// Engine turns events into alerts.
type Engine struct {
	mu         sync.RWMutex
	channels   map[string]*channel
	history    []Alert
	maxHistory int
	workers    int

	totals     map[event.Type]uint64
	severities map[event.Severity]uint64
	total      uint64
	since      time.Time

	subMu       sync.Mutex
	subscribers map[chan Alert]struct{}

	resolver   Resolver
	geo        GeoResolver
	store      Store
	clock      clock.Clock
	metrics    *metrics.Metrics
	httpClient *http.Client
	logger     *logging.Logger
	inflight   sync.WaitGroup
}

// NewEngine creates an alerting engine.
func NewEngine(logger *logging.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = logging.WithComponent("alerting")
	}
	if cfg.History <= 0 {
		cfg.History = config.DefaultHistory
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	e := &Engine{
		channels:    make(map[string]*channel),
		history:     make([]Alert, 0, cfg.History),
		maxHistory:  cfg.History,
		workers:     cfg.Workers,
		totals:      make(map[event.Type]uint64),
		severities:  make(map[event.Severity]uint64),
		since:       cfg.Clock.Now(),
		subscribers: make(map[chan Alert]struct{}),
		resolver:    cfg.Resolver,
		geo:         cfg.Geo,
		store:       cfg.Store,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		httpClient:  cfg.HTTPClient,
		logger:      logger,
	}
	e.UpdateChannels(cfg.Channels)
	return e
}

// UpdateChannels replaces the delivery channels. Cooldown state is kept for
// channels whose name survives.
func (e *Engine) UpdateChannels(chs []config.ChannelConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*channel, len(chs))
	for _, c := range chs {
		ch := &channel{
			cfg:         c,
			minSeverity: c.Severity(),
			cooldown:    c.CooldownDuration(),
			lastFired:   make(map[event.Type]time.Time),
		}
		if existing, ok := e.channels[c.Name]; ok {
			ch.lastFired = existing.lastFired
		}
		next[c.Name] = ch
	}
	e.channels = next
	e.logger.Debug("Alert channels updated", "channels", len(next))
}

// Run handles events on the configured number of workers until ctx is
// cancelled or events is closed, then waits for in-flight deliveries.
// With more than one worker, history order follows completion.
func (e *Engine) Run(ctx context.Context, events <-chan event.ReverseShellEvent) error {
	defer e.inflight.Wait()

	var g errgroup.Group
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					e.Handle(ev)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	return g.Wait()
}

// Handle converts ev into an alert, records it and notifies channels.
func (e *Engine) Handle(ev event.ReverseShellEvent) Alert {
	var proc *enrich.ProcessInfo
	if ev.PID != 0 && e.resolver != nil {
		proc = e.resolver.Lookup(ev.PID)
	}

	alert := Alert{
		ID:         uuid.NewString(),
		Type:       ev.Type,
		Severity:   ev.Severity,
		Message:    message(ev, proc),
		PID:        ev.PID,
		Process:    proc,
		KernelTime: ev.Timestamp,
		Timestamp:  e.clock.Now(),
	}
	if ev.Type.Network() {
		alert.LocalAddr = event.IPv4String(ev.LocalAddr)
		alert.RemoteAddr = event.IPv4String(ev.RemoteAddr)
		alert.LocalPort = ev.LocalPort
		alert.RemotePort = ev.RemotePort
		if ev.Type == event.TypeExternalConnection && e.geo != nil {
			alert.Geo = e.geo.LookupAddr(ev.RemoteAddr)
		}
	}

	e.mu.Lock()
	e.history = append(e.history, alert)
	if len(e.history) > e.maxHistory {
		e.history = e.history[1:]
	}
	e.totals[ev.Type]++
	e.severities[ev.Severity]++
	e.total++
	targets := e.dueChannels(alert)
	e.mu.Unlock()

	e.log(alert)
	if e.store != nil {
		if err := e.store.Save(alert); err != nil {
			e.logger.WithError(err).Warn("Failed to persist alert", "id", alert.ID)
		}
	}
	e.publish(alert)

	for _, ch := range targets {
		e.inflight.Add(1)
		go func(ch config.ChannelConfig) {
			defer e.inflight.Done()
			e.sendWebhook(ch, alert)
		}(ch)
	}
	return alert
}

// dueChannels returns the channels that should receive alert and marks them
// fired. Caller holds e.mu.
func (e *Engine) dueChannels(alert Alert) []config.ChannelConfig {
	var out []config.ChannelConfig
	now := alert.Timestamp
	for _, ch := range e.channels {
		if alert.Severity < ch.minSeverity {
			continue
		}
		if last, ok := ch.lastFired[alert.Type]; ok && ch.cooldown > 0 && now.Sub(last) < ch.cooldown {
			continue
		}
		ch.lastFired[alert.Type] = now
		out = append(out, ch.cfg)
	}
	return out
}

func (e *Engine) log(a Alert) {
	args := []any{"id", a.ID, "type", a.Type.String(), "severity", a.Severity.String()}
	if a.Type.Network() {
		args = append(args, "remote", a.RemoteAddr, "remote_port", a.RemotePort)
	} else {
		args = append(args, "pid", a.PID)
	}
	if a.Process != nil && a.Process.Name != "" {
		args = append(args, "process", a.Process.Name)
	}
	if a.Geo != nil && a.Geo.Country != "" {
		args = append(args, "country", a.Geo.Country)
	}

	switch a.Severity {
	case event.SeverityCritical, event.SeverityHigh:
		e.logger.Warn(a.Message, args...)
	default:
		e.logger.Info(a.Message, args...)
	}
}

func (e *Engine) sendWebhook(ch config.ChannelConfig, alert Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		e.logger.Error("Failed to marshal webhook payload", "channel", ch.Name, "error", err)
		e.metrics.ObserveDelivery(ch.Name, false)
		return
	}

	req, err := http.NewRequest(http.MethodPost, ch.URL, bytes.NewReader(data))
	if err != nil {
		e.logger.Error("Failed to create webhook request", "channel", ch.Name, "error", err)
		e.metrics.ObserveDelivery(ch.Name, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("Webhook delivery failed", "channel", ch.Name, "error", err)
		e.metrics.ObserveDelivery(ch.Name, false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("Webhook returned non-success status", "channel", ch.Name, "status", resp.StatusCode)
		e.metrics.ObserveDelivery(ch.Name, false)
		return
	}
	e.metrics.ObserveDelivery(ch.Name, true)
}

// Subscribe returns a channel receiving every alert handled from now on and a
// function that cancels the subscription.
func (e *Engine) Subscribe() (<-chan Alert, func()) {
	ch := make(chan Alert, subscriberBuffer)
	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subscribers, ch)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) publish(a Alert) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}

// History returns up to limit of the most recent alerts, oldest first.
// A non-positive limit returns the whole history.
func (e *Engine) History(limit int) []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	src := e.history
	if limit > 0 && limit < len(src) {
		src = src[len(src)-limit:]
	}
	res := make([]Alert, len(src))
	copy(res, src)
	return res
}

// Summary returns alert totals.
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Summary{
		Total:      e.total,
		ByType:     make(map[string]uint64, len(e.totals)),
		BySeverity: make(map[string]uint64, len(e.severities)),
		Since:      e.since,
	}
	for t, n := range e.totals {
		s.ByType[t.String()] = n
	}
	for sev, n := range e.severities {
		s.BySeverity[sev.String()] = n
	}
	return s
}

// Wait blocks until in-flight deliveries finish.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
