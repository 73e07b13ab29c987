// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package agent wires the detection engine to its event sources, the alert
// pipeline and the HTTP API, and applies configuration reloads.
package agent

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/api"
	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/config"
	"grimm.is/shellwatch/internal/detector"
	"grimm.is/shellwatch/internal/enrich"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/health"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
	"grimm.is/shellwatch/internal/scanner"
	"grimm.is/shellwatch/internal/source"
	"grimm.is/shellwatch/internal/store"
	"grimm.is/shellwatch/internal/tracker"
)

const pruneInterval = time.Hour

// NewLogger builds the process logger from the log block. Format "auto"
// writes text to a terminal and JSON otherwise. The returned close function
// releases the syslog connection, if any.
func NewLogger(lc *config.LogConfig, out *os.File) (*logging.Logger, func() error, error) {
	noop := func() error { return nil }
	if lc == nil {
		lc = config.DefaultConfig().Log
	}
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, noop, errors.Attr(errors.Wrap(err, errors.KindValidation, "invalid log level"), "field", "log.level")
	}

	var asJSON bool
	switch lc.Format {
	case "json":
		asJSON = true
	case "text":
	default:
		asJSON = !term.IsTerminal(int(out.Fd()))
	}

	var w io.Writer = out
	closeFn := noop
	if sl := lc.Syslog; sl != nil {
		scfg := logging.DefaultSyslogConfig()
		scfg.Enabled = true
		scfg.Host = sl.Host
		if sl.Port != 0 {
			scfg.Port = sl.Port
		}
		if sl.Protocol != "" {
			scfg.Protocol = sl.Protocol
		}
		if sl.Tag != "" {
			scfg.Tag = sl.Tag
		}
		if sl.Facility != nil {
			scfg.Facility = *sl.Facility
		}
		sw, err := logging.NewSyslogWriter(scfg)
		if err != nil {
			return nil, noop, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to connect to syslog"), "host", sl.Host)
		}
		w = io.MultiWriter(out, sw)
		closeFn = sw.Close
	}
	return logging.New(logging.Config{Level: level, Output: w, JSON: asJSON}), closeFn, nil
}

// Agent owns every long-running component.
type Agent struct {
	path   string
	logger *logging.Logger

	mu  sync.RWMutex
	cfg *config.Config

	metrics  *metrics.Metrics
	tracker  *tracker.Tracker
	detector *detector.Engine
	alerts   *alerting.Engine
	server   *api.Server
	health   *health.Checker
	capture  *source.Capture
	syscalls *source.Syscalls
	scanner  *scanner.Scanner
	store    *store.Store
	writer   *store.Writer
	geo      *enrich.GeoIP

	addrMu  sync.RWMutex
	apiAddr net.Addr
}

// New builds an agent from cfg. path is the file Reload reads; it may be
// empty when the config did not come from a file.
func New(path string, cfg *config.Config, logger *logging.Logger) (*Agent, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Default()
	}

	a := &Agent{
		path:    path,
		cfg:     cfg,
		logger:  logger.WithComponent("agent"),
		metrics: metrics.New(),
	}

	trk, err := tracker.New(&tracker.Config{
		Capacity: cfg.Tracker.Capacity,
		Shards:   cfg.Tracker.Shards,
	})
	if err != nil {
		return nil, err
	}
	a.tracker = trk
	if err := a.metrics.RegisterTrackerGauge(func() float64 { return float64(trk.Len()) }); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to register tracker gauge")
	}

	a.detector, err = detector.NewEngine(
		classify.NewPortSet(cfg.Detector.Ports()...),
		trk,
		logger.WithComponent("detector"),
		&detector.Config{OutputBuffer: cfg.Detector.OutputBuffer, Metrics: a.metrics},
	)
	if err != nil {
		return nil, err
	}

	acfg := alerting.Config{
		History:  cfg.Alerting.History,
		Channels: cfg.Alerting.Channels,
		Metrics:  a.metrics,
	}
	if cfg.Enrich.ProcessesEnabled() {
		acfg.Resolver = enrich.NewResolver()
	}
	if cfg.Enrich.GeoIPDatabase != "" {
		if a.geo, err = enrich.OpenGeoIP(cfg.Enrich.GeoIPDatabase); err != nil {
			return nil, err
		}
		acfg.Geo = a.geo
	}
	if cfg.Alerting.Database != "" {
		if a.store, err = store.Open(cfg.Alerting.Database); err != nil {
			a.Close()
			return nil, err
		}
		a.writer = store.NewWriter(a.store, logger.WithComponent("store"), store.DefaultWriterConfig())
		acfg.Store = a.writer
	}
	a.alerts = alerting.NewEngine(logger.WithComponent("alerting"), acfg)

	a.health = health.NewChecker(nil)
	a.health.Register("detector", health.DropCheck(a.detector))
	if cfg.Interface != "" {
		a.capture = source.NewCapture(cfg.Interface, a.detector, logger.WithComponent("capture"), a.metrics)
		a.health.Register("capture", health.SourceCheck(a.capture))
	}
	if cfg.Syscalls.IsEnabled() {
		a.syscalls = source.NewSyscalls(source.SyscallsConfig{
			Object:   cfg.Syscalls.Object,
			ExecHook: source.ExecHook(cfg.Syscalls.ExecHook),
		}, a.detector, logger.WithComponent("syscalls"), a.metrics)
		a.health.Register("syscalls", health.SourceCheck(a.syscalls))
	}
	if cfg.Scanner.IsEnabled() {
		a.scanner = scanner.New(logger.WithComponent("scanner"), scanner.Config{
			Ports:     a.detector.Ports(),
			Sink:      a.detector,
			Interval:  cfg.Scanner.IntervalDuration(),
			Processes: cfg.Scanner.ProcessesEnabled(),
			Metrics:   a.metrics,
		})
	}
	if cfg.API.IsEnabled() {
		a.server = api.NewServer(api.Options{
			Engine:  a.detector,
			Alerts:  a.alerts,
			Metrics: a.metrics,
			Health:  a.health,
			Scanner: a.scanner,
			Logger:  logger.WithComponent("api"),
		})
	}
	return a, nil
}

func (a *Agent) Detector() *detector.Engine { return a.detector }
func (a *Agent) Alerts() *alerting.Engine   { return a.alerts }
func (a *Agent) Metrics() *metrics.Metrics  { return a.metrics }
func (a *Agent) Health() *health.Checker    { return a.health }
func (a *Agent) Scanner() *scanner.Scanner  { return a.scanner }

// Config returns the running configuration.
func (a *Agent) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// APIAddr returns the bound API address once Run has started the listener.
func (a *Agent) APIAddr() net.Addr {
	a.addrMu.RLock()
	defer a.addrMu.RUnlock()
	return a.apiAddr
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. SIGHUP triggers Reload.
func (a *Agent) Run(ctx context.Context) error {
	var ln net.Listener
	if a.server != nil {
		var err error
		ln, err = net.Listen("tcp", a.Config().API.Listen)
		if err != nil {
			return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to listen"), "addr", a.Config().API.Listen)
		}
		a.addrMu.Lock()
		a.apiAddr = ln.Addr()
		a.addrMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.alerts.Run(gctx, a.detector.Events()) })
	if a.writer != nil {
		g.Go(func() error { return a.writer.Run(gctx) })
	}

	var sources sync.WaitGroup
	if a.capture != nil {
		sources.Add(1)
		g.Go(func() error {
			defer sources.Done()
			return a.capture.Run(gctx)
		})
	}
	if a.syscalls != nil {
		sources.Add(1)
		g.Go(func() error {
			defer sources.Done()
			return a.syscalls.Run(gctx)
		})
	}
	if a.scanner != nil {
		sources.Add(1)
		g.Go(func() error {
			defer sources.Done()
			return a.scanner.Run(gctx)
		})
	}
	if ln != nil {
		g.Go(func() error { return a.server.Serve(gctx, ln) })
	}
	if retention := a.Config().Alerting.RetentionDuration(); a.store != nil && retention > 0 {
		g.Go(func() error {
			a.pruneLoop(gctx, retention)
			return nil
		})
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if _, err := a.Reload(); err != nil {
					a.logger.WithError(err).Error("Reload failed, keeping running config")
				}
			}
		}
	})

	a.logger.Info("Agent started",
		"interface", a.Config().Interface,
		"syscalls", a.syscalls != nil,
		"scanner", a.scanner != nil,
		"suspicious_ports", a.detector.Ports().Len())

	err := g.Wait()
	sources.Wait()
	a.detector.Close()
	for ev := range a.detector.Events() {
		a.alerts.Handle(ev)
	}
	a.alerts.Wait()
	if a.writer != nil {
		a.writer.Flush()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Agent stopped")
	return nil
}

// Close releases the alert database and the GeoIP reader.
func (a *Agent) Close() error {
	var first error
	if a.store != nil {
		first = a.store.Close()
	}
	if err := a.geo.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (a *Agent) pruneLoop(ctx context.Context, retention time.Duration) {
	prune := func() {
		n, err := a.store.Prune(time.Now().Add(-retention))
		if err != nil {
			a.logger.WithError(err).Warn("Failed to prune alert database")
			return
		}
		if n > 0 {
			a.logger.Info("Pruned alert database", "removed", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// Reload re-reads the config file and applies it. It returns the diff
// against the running config.
func (a *Agent) Reload() (string, error) {
	if a.path == "" {
		return "", errors.New(errors.KindUnsupported, "agent has no config file to reload")
	}
	next, err := config.LoadFile(a.path)
	if err != nil {
		return "", err
	}
	return a.Apply(next), nil
}

// Apply swaps in the reloadable parts of next: the suspicious port set and
// the alert channels. Other changes are logged and take effect on restart.
func (a *Agent) Apply(next *config.Config) string {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.mu.Unlock()

	a.detector.Ports().Replace(next.Detector.Ports())
	a.alerts.UpdateChannels(next.Alerting.Channels)

	diff := config.Diff(prev, next, "running", "reloaded")
	if diff == "" {
		a.logger.Info("Config reloaded, no changes")
		return diff
	}
	a.logger.Info("Config reloaded",
		"suspicious_ports", a.detector.Ports().Len(),
		"channels", len(next.Alerting.Channels),
		"diff", diff)
	for _, field := range restartRequired(prev, next) {
		a.logger.Warn("Setting changed but requires restart", "field", field)
	}
	return diff
}

func restartRequired(prev, next *config.Config) []string {
	var fields []string
	if prev.Interface != next.Interface {
		fields = append(fields, "interface")
	}
	if !reflect.DeepEqual(prev.Log, next.Log) {
		fields = append(fields, "log")
	}
	if prev.Detector.OutputBuffer != next.Detector.OutputBuffer {
		fields = append(fields, "detector.output_buffer")
	}
	if !reflect.DeepEqual(prev.Tracker, next.Tracker) {
		fields = append(fields, "tracker")
	}
	if !reflect.DeepEqual(prev.Syscalls, next.Syscalls) {
		fields = append(fields, "syscalls")
	}
	if !reflect.DeepEqual(prev.Scanner, next.Scanner) {
		fields = append(fields, "scanner")
	}
	if !reflect.DeepEqual(prev.API, next.API) {
		fields = append(fields, "api")
	}
	if prev.Alerting.History != next.Alerting.History {
		fields = append(fields, "alerting.history")
	}
	if prev.Alerting.Database != next.Alerting.Database || prev.Alerting.Retention != next.Alerting.Retention {
		fields = append(fields, "alerting.database")
	}
	if !reflect.DeepEqual(prev.Enrich, next.Enrich) {
		fields = append(fields, "enrich")
	}
	return fields
}
