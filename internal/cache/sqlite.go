// Package cache provides the time-boxed cache-aside store backed by SQLite.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/coinsight/internal/types"
)

// Freshness windows are fixed per category and not negotiable per call.
const (
	PriceFreshness = 5 * time.Minute
	NewsFreshness  = 60 * time.Minute
)

// Compile-time interface compliance check.
var _ types.CacheStore = (*Store)(nil)

// ErrMiss signals that no fresh entry exists for (category, key). Stale and
// absent entries both report a miss.
var ErrMiss = errors.New("cache: miss")

// ErrStorage signals a persistence failure, distinct from a miss.
var ErrStorage = errors.New("cache: storage failure")

// Store is an append-only SQLite cache. Rows are never updated; newer
// inserts supersede older ones at read time via the freshness filter.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at dbPath and ensures the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_id TEXT NOT NULL,
		price REAL NOT NULL,
		market_cap REAL,
		volume_24h REAL,
		fetched_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_price_token_fetched ON price_history(token_id, fetched_at);

	CREATE TABLE IF NOT EXISTS news_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		articles_json TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_news_query_fetched ON news_cache(query, fetched_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Window returns the freshness window for a category.
func Window(category types.CacheCategory) time.Duration {
	if category == types.CacheNews {
		return NewsFreshness
	}
	return PriceFreshness
}

// Lookup returns the most recent payload for (category, key) if it was
// fetched within the category's freshness window; otherwise ErrMiss.
func (s *Store) Lookup(ctx context.Context, category types.CacheCategory, key string) (json.RawMessage, error) {
	cutoff := time.Now().Add(-Window(category)).Unix()

	switch category {
	case types.CachePrice:
		row := s.db.QueryRowContext(ctx,
			`SELECT price, market_cap, volume_24h FROM price_history
			 WHERE token_id = ? AND fetched_at >= ?
			 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
			key, cutoff)

		var p types.PricePayload
		var marketCap, volume sql.NullFloat64
		err := row.Scan(&p.Price, &marketCap, &volume)
		if err == sql.ErrNoRows {
			return nil, ErrMiss
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scan price row: %v", ErrStorage, err)
		}
		p.MarketCap = marketCap.Float64
		p.Volume24h = volume.Float64

		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: encode price payload: %v", ErrStorage, err)
		}
		return data, nil

	case types.CacheNews:
		row := s.db.QueryRowContext(ctx,
			`SELECT articles_json FROM news_cache
			 WHERE query = ? AND fetched_at >= ?
			 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
			key, cutoff)

		var articles []byte
		err := row.Scan(&articles)
		if err == sql.ErrNoRows {
			return nil, ErrMiss
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scan news row: %v", ErrStorage, err)
		}

		data, err := json.Marshal(struct {
			Articles json.RawMessage `json:"articles"`
		}{Articles: articles})
		if err != nil {
			return nil, fmt.Errorf("%w: encode news payload: %v", ErrStorage, err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrStorage, category)
	}
}

// Insert appends a new row for (category, key) inside a transaction. The
// transaction is rolled back and a storage error returned on any failure.
// Concurrent duplicate inserts for the same key are tolerated: lookups take
// the newest fresh row, so duplicates are benign.
func (s *Store) Insert(ctx context.Context, category types.CacheCategory, key string, payload json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}

	now := time.Now().Unix()
	switch category {
	case types.CachePrice:
		var p types.PricePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: decode price payload: %v", ErrStorage, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_history (token_id, price, market_cap, volume_24h, fetched_at)
			 VALUES (?, ?, ?, ?, ?)`,
			key, p.Price, p.MarketCap, p.Volume24h, now)

	case types.CacheNews:
		var n types.NewsPayload
		if err := json.Unmarshal(payload, &n); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: decode news payload: %v", ErrStorage, err)
		}
		articles, err2 := json.Marshal(n.Articles)
		if err2 != nil {
			tx.Rollback()
			return fmt.Errorf("%w: encode articles: %v", ErrStorage, err2)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO news_cache (query, articles_json, fetched_at) VALUES (?, ?, ?)`,
			key, string(articles), now)

	default:
		tx.Rollback()
		return fmt.Errorf("%w: unknown category %q", ErrStorage, category)
	}

	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: insert %s: %v", ErrStorage, category, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return nil
}

// Prune deletes rows fetched before the cutoff from both tables. Retention
// is housekeeping only; correctness relies solely on the freshness filter.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.Unix()
	var total int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune price_history: %v", ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM news_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune news_cache: %v", ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
