// Package stream manages the lifecycle of a realtime event subscription:
// connect, read, replay-on-reconnect, backoff, and cooperative cancellation.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quotio/usage-observer/internal/event"
)

const (
	defaultBackoff      = 1 * time.Second
	defaultGapFillLimit = 1000
)

// API is the subset of the management client the session needs.
type API interface {
	// StreamURL returns the SSE endpoint, or false when streaming is
	// unavailable.
	StreamURL(sinceSeq int64) (string, bool)
	// Authorize attaches credentials to an outgoing request.
	Authorize(req *http.Request)
	// UsageEvents is the REST gap-fill path used after a stream failure.
	UsageEvents(ctx context.Context, sinceSeq int64, limit int) ([]event.Event, error)
}

// Hooks receives lifecycle notifications. All fields are optional.
type Hooks struct {
	OnConnect    func()
	OnDisconnect func()
	OnDuplicate  func()
	OnGapFill    func(fetched int)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithHTTPClient sets the HTTP client used for the stream connection. It
// should have no overall timeout; the connection is long-lived.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithBackoff overrides the reconnect delay.
func WithBackoff(d time.Duration) Option {
	return func(s *Session) { s.backoff = d }
}

// WithGapFillLimit overrides the bounded batch size for replay fetches.
func WithGapFillLimit(n int) Option {
	return func(s *Session) { s.gapFill = n }
}

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// Session is a single long-lived subscription to the realtime event stream.
// Events pass through the deduplicator before reaching the sink; the sink is
// invoked from the session goroutine only.
//
// The session survives transient failures indefinitely: each failure triggers
// one bounded gap-fill fetch through the same ingestion path, then a fixed
// backoff, then a reconnect carrying the resume cursor.
type Session struct {
	api        API
	dedup      *event.Deduplicator
	sink       func(event.Event)
	logger     *slog.Logger
	httpClient *http.Client
	backoff    time.Duration
	gapFill    int
	hooks      Hooks

	mu        sync.Mutex
	active    bool
	connected bool
}

// New creates a Session feeding accepted events into sink.
func New(api API, dedup *event.Deduplicator, sink func(event.Event), opts ...Option) *Session {
	s := &Session{
		api:        api,
		dedup:      dedup,
		sink:       sink,
		logger:     slog.Default(),
		httpClient: &http.Client{},
		backoff:    defaultBackoff,
		gapFill:    defaultGapFillLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsActive reports whether Run is currently executing.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsConnected reports whether the stream is currently established.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Run subscribes and processes events until ctx is cancelled. Starting while
// already active is a no-op. Cancellation is cooperative: it is observed
// between connection attempts and between lines, never mid-read, and Run
// returns nil on cancellation.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = false
		s.connected = false
		s.mu.Unlock()
	}()

	for ctx.Err() == nil {
		if err := s.connectAndRead(ctx); err != nil {
			s.logger.Warn("stream disconnected",
				slog.String("error", err.Error()),
				slog.Int64("last_seen_seq", s.dedup.LastSeenSeq()))
			s.recover(ctx)
		}

		if ctx.Err() != nil {
			break
		}
		if !s.sleep(ctx, s.backoff) {
			break
		}
	}
	return nil
}

// streamUnavailableErr marks the endpoint as absent rather than failed.
type streamUnavailableErr struct{}

func (streamUnavailableErr) Error() string { return "stream endpoint unavailable" }

func (s *Session) connectAndRead(ctx context.Context) error {
	seq := s.dedup.LastSeenSeq()
	url, ok := s.api.StreamURL(seq)
	if !ok {
		return streamUnavailableErr{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if seq > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(seq, 10))
	}
	s.api.Authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusErr{code: resp.StatusCode}
	}

	s.setConnected(true)
	defer s.setConnected(false)

	scanner := bufio.NewScanner(resp.Body)
	// Events can carry large payload snippets.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		// Observe cancellation between lines; the current line always
		// finishes processing.
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var e event.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			// Malformed frames must not terminate the session.
			s.logger.Debug("skipping malformed event frame", slog.String("error", err.Error()))
			continue
		}
		s.ingest(e)
	}
	return scanner.Err()
}

// recover performs the one-shot REST fallback after a stream failure: fetch a
// bounded batch of events since the resume cursor and push them through the
// same ingestion path, so an outage loses nothing.
func (s *Session) recover(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	events, err := s.api.UsageEvents(ctx, s.dedup.LastSeenSeq(), s.gapFill)
	if err != nil {
		s.logger.Warn("gap-fill fetch failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range events {
		s.ingest(e)
	}
	if s.hooks.OnGapFill != nil {
		s.hooks.OnGapFill(len(events))
	}
}

func (s *Session) ingest(e event.Event) {
	if !s.dedup.Observe(e) {
		if s.hooks.OnDuplicate != nil {
			s.hooks.OnDuplicate()
		}
		return
	}
	if s.sink != nil {
		s.sink(e)
	}
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()

	if v && s.hooks.OnConnect != nil {
		s.hooks.OnConnect()
	}
	if !v && s.hooks.OnDisconnect != nil {
		s.hooks.OnDisconnect()
	}
}

// sleep waits for d or until cancellation, reporting whether the session
// should continue.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type statusErr struct {
	code int
}

func (e *statusErr) Error() string {
	return "stream returned status " + strconv.Itoa(e.code)
}
