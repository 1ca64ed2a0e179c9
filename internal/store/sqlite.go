package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. WAL mode lets
// crawl workers read cached keys while the search path writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if absent) a SQLite database at the given path.
// An unreadable store is a fatal error here, not per-key.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS place_details (
	place_id   TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	payload    BLOB,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_pages (
	query      TEXT NOT NULL,
	location   TEXT NOT NULL,
	page_index INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (query, location, page_index)
);

CREATE TABLE IF NOT EXISTS crawl_results (
	domain     TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	status     TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failures (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	key             TEXT NOT NULL,
	reason          TEXT NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 1,
	last_attempt_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (kind, key)
);

CREATE TABLE IF NOT EXISTS progress (
	run_id     TEXT NOT NULL,
	query      TEXT NOT NULL,
	location   TEXT NOT NULL,
	page_index INTEGER NOT NULL,
	done       INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (run_id, query, location, page_index)
);

CREATE TABLE IF NOT EXISTS progress_places (
	run_id   TEXT NOT NULL,
	place_id TEXT NOT NULL,
	done     INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (run_id, place_id)
);

CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
CREATE INDEX IF NOT EXISTS idx_progress_run ON progress(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM place_details WHERE place_id = ?`, placeID,
	).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get place %s", placeID)
	}

	var rec model.PlaceRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal place %s", placeID)
	}
	return &rec, nil
}

func (s *SQLiteStore) PutPlace(ctx context.Context, rec *model.PlaceRecord, raw []byte) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal place")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO place_details (place_id, record, payload, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (place_id) DO UPDATE SET record = excluded.record, payload = excluded.payload, fetched_at = excluded.fetched_at`,
		rec.PlaceID, string(recordJSON), raw, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put place %s", rec.PlaceID)
}

func (s *SQLiteStore) GetSearchPage(ctx context.Context, query, location string, page int) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM search_pages WHERE query = ? AND location = ? AND page_index = ?`,
		query, location, page,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get search page %s|%s|%d", query, location, page)
	}
	return payload, nil
}

func (s *SQLiteStore) PutSearchPage(ctx context.Context, query, location string, page int, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_pages (query, location, page_index, payload, fetched_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (query, location, page_index) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		query, location, page, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put search page %s|%s|%d", query, location, page)
}

func (s *SQLiteStore) GetCrawl(ctx context.Context, domain string) (*model.CrawlResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM crawl_results WHERE domain = ?`, domain,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get crawl %s", domain)
	}

	var result model.CrawlResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal crawl %s", domain)
	}
	return &result, nil
}

func (s *SQLiteStore) PutCrawl(ctx context.Context, result *model.CrawlResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal crawl")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_results (domain, payload, status, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET payload = excluded.payload, status = excluded.status, fetched_at = excluded.fetched_at`,
		result.Domain, string(payload), string(result.Status), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put crawl %s", result.Domain)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, kind, key, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (id, kind, key, reason, attempt_count, last_attempt_at) VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (kind, key) DO UPDATE SET reason = excluded.reason, attempt_count = attempt_count + 1, last_attempt_at = excluded.last_attempt_at`,
		uuid.New().String(), kind, key, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record failure %s/%s", kind, key)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, kind string) ([]Failure, error) {
	query := `SELECT id, kind, key, reason, attempt_count, last_attempt_at FROM failures`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY last_attempt_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.Kind, &f.Key, &f.Reason, &f.AttemptCount, &f.LastAttemptAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

func (s *SQLiteStore) ClearFailures(ctx context.Context, kind string) error {
	query := `DELETE FROM failures`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "sqlite: clear failures")
}

func (s *SQLiteStore) IsPageDone(ctx context.Context, runID, query, location string, page int) (bool, error) {
	var done int
	err := s.db.QueryRowContext(ctx,
		`SELECT done FROM progress WHERE run_id = ? AND query = ? AND location = ? AND page_index = ?`,
		runID, query, location, page,
	).Scan(&done)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: is page done %s|%s|%d", query, location, page)
	}
	return done != 0, nil
}

func (s *SQLiteStore) MarkPageDone(ctx context.Context, runID, query, location string, page int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (run_id, query, location, page_index, done) VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT (run_id, query, location, page_index) DO UPDATE SET done = 1`,
		runID, query, location, page,
	)
	return eris.Wrapf(err, "sqlite: mark page done %s|%s|%d", query, location, page)
}

func (s *SQLiteStore) IsPlaceDone(ctx context.Context, runID, placeID string) (bool, error) {
	var done int
	err := s.db.QueryRowContext(ctx,
		`SELECT done FROM progress_places WHERE run_id = ? AND place_id = ?`,
		runID, placeID,
	).Scan(&done)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: is place done %s", placeID)
	}
	return done != 0, nil
}

func (s *SQLiteStore) MarkPlaceDone(ctx context.Context, runID, placeID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_places (run_id, place_id, done) VALUES (?, ?, 1)
		 ON CONFLICT (run_id, place_id) DO UPDATE SET done = 1`,
		runID, placeID,
	)
	return eris.Wrapf(err, "sqlite: mark place done %s", placeID)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM place_details`, &stats.PlacesCached},
		{`SELECT COUNT(*) FROM search_pages`, &stats.SearchPagesCached},
		{`SELECT COUNT(*) FROM crawl_results`, &stats.DomainsCrawled},
		{`SELECT COUNT(*) FROM failures`, &stats.Failures},
	} {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "sqlite: stats")
		}
	}
	return stats, nil
}
