package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// cache outlives a single machine's disk.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS place_details (
	place_id   TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	payload    BYTEA,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_pages (
	query      TEXT NOT NULL,
	location   TEXT NOT NULL,
	page_index INT NOT NULL,
	payload    BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (query, location, page_index)
);

CREATE TABLE IF NOT EXISTS crawl_results (
	domain     TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	status     TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failures (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	key             TEXT NOT NULL,
	reason          TEXT NOT NULL,
	attempt_count   INT NOT NULL DEFAULT 1,
	last_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (kind, key)
);

CREATE TABLE IF NOT EXISTS progress (
	run_id     TEXT NOT NULL,
	query      TEXT NOT NULL,
	location   TEXT NOT NULL,
	page_index INT NOT NULL,
	done       BOOLEAN NOT NULL DEFAULT true,
	PRIMARY KEY (run_id, query, location, page_index)
);

CREATE TABLE IF NOT EXISTS progress_places (
	run_id   TEXT NOT NULL,
	place_id TEXT NOT NULL,
	done     BOOLEAN NOT NULL DEFAULT true,
	PRIMARY KEY (run_id, place_id)
);

CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
CREATE INDEX IF NOT EXISTS idx_progress_run ON progress(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM place_details WHERE place_id = $1`, placeID,
	).Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get place %s", placeID)
	}

	var rec model.PlaceRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal place %s", placeID)
	}
	return &rec, nil
}

func (s *PostgresStore) PutPlace(ctx context.Context, rec *model.PlaceRecord, raw []byte) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal place")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO place_details (place_id, record, payload, fetched_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (place_id) DO UPDATE SET record = EXCLUDED.record, payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
		rec.PlaceID, recordJSON, raw, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put place %s", rec.PlaceID)
}

func (s *PostgresStore) GetSearchPage(ctx context.Context, query, location string, page int) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM search_pages WHERE query = $1 AND location = $2 AND page_index = $3`,
		query, location, page,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get search page %s|%s|%d", query, location, page)
	}
	return payload, nil
}

func (s *PostgresStore) PutSearchPage(ctx context.Context, query, location string, page int, payload []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_pages (query, location, page_index, payload, fetched_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (query, location, page_index) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
		query, location, page, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put search page %s|%s|%d", query, location, page)
}

func (s *PostgresStore) GetCrawl(ctx context.Context, domain string) (*model.CrawlResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM crawl_results WHERE domain = $1`, domain,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get crawl %s", domain)
	}

	var result model.CrawlResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal crawl %s", domain)
	}
	return &result, nil
}

func (s *PostgresStore) PutCrawl(ctx context.Context, result *model.CrawlResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal crawl")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_results (domain, payload, status, fetched_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain) DO UPDATE SET payload = EXCLUDED.payload, status = EXCLUDED.status, fetched_at = EXCLUDED.fetched_at`,
		result.Domain, payload, string(result.Status), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put crawl %s", result.Domain)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, kind, key, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failures (id, kind, key, reason, attempt_count, last_attempt_at) VALUES ($1, $2, $3, $4, 1, $5)
		 ON CONFLICT (kind, key) DO UPDATE SET reason = EXCLUDED.reason, attempt_count = failures.attempt_count + 1, last_attempt_at = EXCLUDED.last_attempt_at`,
		uuid.New().String(), kind, key, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record failure %s/%s", kind, key)
}

func (s *PostgresStore) ListFailures(ctx context.Context, kind string) ([]Failure, error) {
	query := `SELECT id, kind, key, reason, attempt_count, last_attempt_at FROM failures`
	var args []any
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY last_attempt_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.Kind, &f.Key, &f.Reason, &f.AttemptCount, &f.LastAttemptAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func (s *PostgresStore) ClearFailures(ctx context.Context, kind string) error {
	query := `DELETE FROM failures`
	var args []any
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	_, err := s.pool.Exec(ctx, query, args...)
	return eris.Wrap(err, "postgres: clear failures")
}

func (s *PostgresStore) IsPageDone(ctx context.Context, runID, query, location string, page int) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx,
		`SELECT done FROM progress WHERE run_id = $1 AND query = $2 AND location = $3 AND page_index = $4`,
		runID, query, location, page,
	).Scan(&done)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: is page done %s|%s|%d", query, location, page)
	}
	return done, nil
}

func (s *PostgresStore) MarkPageDone(ctx context.Context, runID, query, location string, page int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress (run_id, query, location, page_index, done) VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (run_id, query, location, page_index) DO UPDATE SET done = true`,
		runID, query, location, page,
	)
	return eris.Wrapf(err, "postgres: mark page done %s|%s|%d", query, location, page)
}

func (s *PostgresStore) IsPlaceDone(ctx context.Context, runID, placeID string) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx,
		`SELECT done FROM progress_places WHERE run_id = $1 AND place_id = $2`,
		runID, placeID,
	).Scan(&done)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: is place done %s", placeID)
	}
	return done, nil
}

func (s *PostgresStore) MarkPlaceDone(ctx context.Context, runID, placeID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress_places (run_id, place_id, done) VALUES ($1, $2, true)
		 ON CONFLICT (run_id, place_id) DO UPDATE SET done = true`,
		runID, placeID,
	)
	return eris.Wrapf(err, "postgres: mark place done %s", placeID)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
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
		if err := s.pool.QueryRow(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "postgres: stats")
		}
	}
	return stats, nil
}
