// Package metrics exposes Prometheus counters for the ingestion path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts realtime events accepted into the collection.
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_events_ingested_total",
		Help: "Number of realtime events accepted after deduplication",
	})
	// DuplicatesDropped counts re-delivered events rejected by the deduplicator.
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_events_duplicate_total",
		Help: "Number of realtime events dropped as duplicates",
	})
	// StreamConnects counts established stream connections, including
	// reconnects after failures.
	StreamConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_stream_connects_total",
		Help: "Number of established stream connections",
	})
	// GapFillFetches counts REST fallback fetches after stream failures.
	GapFillFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_gap_fill_fetches_total",
		Help: "Number of REST gap-fill fetches triggered by stream failures",
	})
	// EvidenceRefreshes counts completed evidence index refreshes.
	EvidenceRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_evidence_refreshes_total",
		Help: "Number of completed evidence index refreshes",
	})
	// EvidenceRefreshErrors counts failed evidence refreshes.
	EvidenceRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_evidence_refresh_errors_total",
		Help: "Number of failed evidence index refreshes (prior snapshot kept)",
	})
)
