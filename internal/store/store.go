// Package store is the durable cache and resume ledger backing the
// pipeline. Every component reads and writes through it; replaying a run
// against a warm store issues no billed API call and no repeat crawl.
package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-engine/internal/model"
)

// Cache entry kinds. A (kind, key) pair maps to at most one live entry.
const (
	KindSearchPage  = "place-search-page"
	KindPlaceDetail = "place-detail"
	KindCrawl       = "crawl"
)

// Failure records an exhausted or permanent error for one unit of work,
// kept apart from successful payloads so retries are distinguishable from
// hits.
type Failure struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Key           string    `json:"key"`
	Reason        string    `json:"reason"`
	AttemptCount  int       `json:"attempt_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// Stats summarizes cache contents.
type Stats struct {
	PlacesCached      int `json:"places_cached"`
	SearchPagesCached int `json:"search_pages_cached"`
	DomainsCrawled    int `json:"domains_crawled"`
	Failures          int `json:"failures"`
}

// Store defines the persistence contract. Gets return (nil, nil) on a
// miss. Implementations must be safe for concurrent use: writers for the
// same key serialize, reads of cached keys do not block on unrelated
// in-flight writes.
type Store interface {
	// Place details, keyed by place id. raw holds the provider response
	// payload for reconstruction without re-billing.
	GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error)
	PutPlace(ctx context.Context, rec *model.PlaceRecord, raw []byte) error

	// Raw search page responses, keyed by (query, location, pageIndex).
	GetSearchPage(ctx context.Context, query, location string, page int) ([]byte, error)
	PutSearchPage(ctx context.Context, query, location string, page int, payload []byte) error

	// Crawl results, keyed by normalized domain.
	GetCrawl(ctx context.Context, domain string) (*model.CrawlResult, error)
	PutCrawl(ctx context.Context, result *model.CrawlResult) error

	// Failure ledger. RecordFailure upserts on (kind, key), incrementing
	// the attempt count.
	RecordFailure(ctx context.Context, kind, key, reason string) error
	ListFailures(ctx context.Context, kind string) ([]Failure, error)
	ClearFailures(ctx context.Context, kind string) error

	// Resume ledger. Page index -1 marks a whole (query, location) pair done.
	IsPageDone(ctx context.Context, runID, query, location string, page int) (bool, error)
	MarkPageDone(ctx context.Context, runID, query, location string, page int) error
	IsPlaceDone(ctx context.Context, runID, placeID string) (bool, error)
	MarkPlaceDone(ctx context.Context, runID, placeID string) error

	Stats(ctx context.Context) (*Stats, error)

	Migrate(ctx context.Context) error
	Close() error
}

// PairDonePage is the sentinel page index marking a completed pair in the
// progress table.
const PairDonePage = -1
