// Package runtime provides the Observer struct and lifecycle management for
// the usage observer: the realtime stream session, the polling loops, the
// collections, and the HTTP API.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quotio/usage-observer/internal/archive"
	"github.com/quotio/usage-observer/internal/config"
	"github.com/quotio/usage-observer/internal/correlate"
	"github.com/quotio/usage-observer/internal/event"
	"github.com/quotio/usage-observer/internal/evidence"
	"github.com/quotio/usage-observer/internal/focus"
	"github.com/quotio/usage-observer/internal/management"
	"github.com/quotio/usage-observer/internal/metrics"
	"github.com/quotio/usage-observer/internal/record"
	"github.com/quotio/usage-observer/internal/server"
	"github.com/quotio/usage-observer/internal/stream"
)

// Option configures the Observer.
type Option func(*Observer)

// WithLogger sets the observer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) { o.logger = logger }
}

// WithManagementClient overrides the management API client, mainly for tests.
func WithManagementClient(c *management.Client) Option {
	return func(o *Observer) { o.client = c }
}

// Observer owns the ingestion pipeline and serves the REST API. All shared
// state (collections, evidence index, focus) is guarded by its own
// single-writer discipline; the observer's goroutines only hand off through
// those structures.
type Observer struct {
	cfg    *config.Config
	logger *slog.Logger

	client      *management.Client
	dedup       *event.Deduplicator
	requests    *record.Collection
	logs        *record.LogCollection
	index       *evidence.Index
	engine      *correlate.Engine
	coordinator *focus.Coordinator
	session     *stream.Session
	store       *archive.Store

	// evidenceLimiter throttles index refreshes: the history poll and the
	// post-outage refresh can both fire; at most one refresh per window.
	evidenceLimiter *rate.Limiter

	httpServer *http.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	// seenLogs dedupes polled log lines across overlapping fetch windows.
	logMu    sync.Mutex
	seenLogs map[string]struct{}
}

// New creates an Observer from configuration.
func New(cfg *config.Config, opts ...Option) (*Observer, error) {
	o := &Observer{
		cfg:         cfg,
		logger:      slog.Default(),
		dedup:       event.NewDeduplicator(),
		requests:    record.NewCollection(cfg.Collection.RequestBound),
		logs:        record.NewLogCollection(cfg.Collection.LogBound),
		index:       evidence.NewIndex(),
		coordinator: focus.NewCoordinator(),
		seenLogs:    make(map[string]struct{}),
		evidenceLimiter: rate.NewLimiter(
			rate.Every(time.Duration(cfg.Poll.EvidenceThrottleSeconds)*time.Second), 1),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		o.client = management.NewClient(cfg.Management.BaseURL,
			management.WithManagementKey(cfg.Management.Key))
	}
	o.engine = correlate.NewEngine(o.index)

	if cfg.Archive.Path != "" {
		store, err := archive.New(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		o.store = store
	}

	o.session = stream.New(o.client, o.dedup, o.ingestEvent,
		stream.WithLogger(o.logger),
		stream.WithHooks(stream.Hooks{
			OnConnect:   func() { metrics.StreamConnects.Inc() },
			OnDuplicate: func() { metrics.DuplicatesDropped.Inc() },
			OnGapFill: func(n int) {
				metrics.GapFillFetches.Inc()
				// Evidence is likely stale after an outage.
				o.refreshEvidence(context.Background())
			},
		}))

	return o, nil
}

// Start launches the stream session, polling loops, and HTTP server.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}
	o.started = true

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(3)
	go func() {
		defer o.wg.Done()
		o.session.Run(runCtx)
	}()
	go func() {
		defer o.wg.Done()
		o.pollHistory(runCtx)
	}()
	go func() {
		defer o.wg.Done()
		o.pollLogs(runCtx)
	}()

	srv := server.New(server.Deps{
		Requests:     o.requests,
		Logs:         o.logs,
		Engine:       o.engine,
		Focus:        o.coordinator,
		Stream:       o.session,
		Transfer:     o.client,
		FocusEnabled: o.cfg.Features.Observability,
	}, o.logger)

	o.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", o.cfg.Server.Port),
		Handler:      srv.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		o.logger.Info("HTTP server listening", slog.Int("port", o.cfg.Server.Port))
		if err := o.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	o.logger.Info("observer started",
		slog.String("management_url", o.cfg.Management.BaseURL),
		slog.Bool("archive", o.store != nil))
	return nil
}

// Shutdown stops the observer. Collections remain readable; in-flight loop
// iterations finish before their goroutines exit.
func (o *Observer) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}
	o.started = false

	o.logger.Info("shutting down observer")
	o.cancel()

	if o.httpServer != nil {
		if err := o.httpServer.Shutdown(ctx); err != nil {
			o.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if o.store != nil {
		if err := o.store.Close(); err != nil {
			o.logger.Error("failed to close archive", slog.String("error", err.Error()))
		}
	}

	o.logger.Info("observer shutdown complete")
	return nil
}

// Focus returns the focus coordinator shared across views.
func (o *Observer) Focus() *focus.Coordinator {
	return o.coordinator
}

// ingestEvent merges one deduplicated realtime event into the collections.
// Runs on the stream session goroutine only.
func (o *Observer) ingestEvent(e event.Event) {
	if e.Type == event.TypeConnected {
		return
	}

	o.requests.Append(requestFromEvent(e))
	metrics.EventsIngested.Inc()

	if o.store != nil {
		if err := o.store.InsertEvent(context.Background(), e); err != nil {
			// Archival is fail-soft; ingestion continues.
			o.logger.Warn("archive write failed", slog.String("error", err.Error()))
		}
	}
}

// requestFromEvent maps a realtime event onto a request record. Events carry
// only an outcome flag, so the status code is synthesized per event type.
func requestFromEvent(e event.Event) record.Request {
	status := http.StatusInternalServerError
	switch {
	case e.Type == event.TypeQuotaExceeded:
		status = http.StatusTooManyRequests
	case e.Success:
		status = http.StatusOK
	}
	return record.Request{
		ID:          uuid.New().String(),
		RequestID:   e.RequestID,
		Timestamp:   e.Timestamp,
		Model:       e.Model,
		Source:      e.Source,
		AccountHint: e.AuthFile,
		StatusCode:  status,
		Tokens:      e.Tokens,
	}
}

// pollHistory periodically refreshes the evidence index and the account list.
func (o *Observer) pollHistory(ctx context.Context) {
	interval := time.Duration(o.cfg.Poll.HistorySeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime immediately so views have evidence before the first tick.
	o.refreshEvidence(ctx)
	o.refreshAccounts(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refreshEvidence(ctx)
			o.refreshAccounts(ctx)
		}
	}
}

// refreshEvidence refreshes the evidence index, subject to the throttle. A
// failed refresh keeps the previous snapshot and is surfaced as a warning.
func (o *Observer) refreshEvidence(ctx context.Context) {
	if !o.evidenceLimiter.Allow() {
		return
	}
	if err := o.index.Refresh(ctx, o.client, o.cfg.Poll.HistoryLimit); err != nil {
		metrics.EvidenceRefreshErrors.Inc()
		o.logger.Warn("evidence refresh failed", slog.String("error", err.Error()))
		return
	}
	metrics.EvidenceRefreshes.Inc()
}

func (o *Observer) refreshAccounts(ctx context.Context) {
	accounts, err := o.client.AuthAccounts(ctx)
	if err != nil {
		o.logger.Warn("account refresh failed", slog.String("error", err.Error()))
		return
	}
	o.engine.SetAccounts(accounts)
}

// pollLogs fetches proxy log lines at a fast cadence and appends unseen ones.
func (o *Observer) pollLogs(ctx context.Context) {
	interval := time.Duration(o.cfg.Poll.LogsSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lines, err := o.client.Logs(ctx, o.cfg.Poll.LogLimit)
			if err != nil {
				o.logger.Debug("log poll failed", slog.String("error", err.Error()))
				continue
			}
			o.mergeLogs(lines)
		}
	}
}

func (o *Observer) mergeLogs(lines []management.LogLine) {
	o.logMu.Lock()
	defer o.logMu.Unlock()

	// Reset the seen set once it dwarfs the collection bound; an occasional
	// re-append is acceptable, unbounded growth is not.
	if len(o.seenLogs) > 8*o.cfg.Collection.LogBound {
		o.seenLogs = make(map[string]struct{})
	}

	for _, line := range lines {
		key := line.Timestamp + "|" + line.Level + "|" + line.Message
		if _, dup := o.seenLogs[key]; dup {
			continue
		}
		o.seenLogs[key] = struct{}{}

		ts, err := time.Parse(time.RFC3339, line.Timestamp)
		if err != nil {
			ts = time.Now()
		}
		o.logs.Append(record.LogEntry{
			ID:        uuid.New().String(),
			Timestamp: ts,
			Level:     line.Level,
			Message:   line.Message,
			Source:    line.Source,
		})
	}
}
