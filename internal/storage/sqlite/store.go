// Package sqlite implements the catalog store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS catalog_item (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    full_name      TEXT NOT NULL DEFAULT '',
    owner          TEXT NOT NULL DEFAULT '',
    lookup_key     TEXT NOT NULL,
    url            TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    stars          INTEGER NOT NULL DEFAULT 0 CHECK (stars >= 0),
    forks          INTEGER NOT NULL DEFAULT 0 CHECK (forks >= 0),
    language       TEXT NOT NULL DEFAULT '',
    topics         TEXT NOT NULL DEFAULT '[]',
    created_at     TEXT NOT NULL DEFAULT '',
    updated_at     TEXT NOT NULL DEFAULT '',
    score          INTEGER NOT NULL DEFAULT 0,
    tier           TEXT NOT NULL DEFAULT 'Low',
    enrichment     TEXT NOT NULL DEFAULT '{}',
    first_seen_at  TEXT NOT NULL DEFAULT '',
    last_synced_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_catalog_item_lookup_key ON catalog_item (lookup_key);
CREATE INDEX IF NOT EXISTS idx_catalog_item_rank ON catalog_item (score DESC, stars DESC);

CREATE TABLE IF NOT EXISTS sync_position (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    last_processed_index INTEGER NOT NULL,
    total_known          INTEGER NOT NULL,
    last_sync_time       TEXT NOT NULL DEFAULT '',
    sync_count           INTEGER NOT NULL DEFAULT 0,
    is_complete          INTEGER NOT NULL DEFAULT 0
);
`

const selectColumns = `id, name, full_name, owner, url, description, stars, forks, language,
    topics, created_at, updated_at, score, tier, enrichment, first_seen_at, last_synced_at`

const upsertSQL = `
INSERT INTO catalog_item (
    id, name, full_name, owner, lookup_key, url, description, stars, forks, language,
    topics, created_at, updated_at, score, tier, enrichment, first_seen_at, last_synced_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    full_name = excluded.full_name,
    owner = excluded.owner,
    lookup_key = excluded.lookup_key,
    url = excluded.url,
    description = excluded.description,
    stars = excluded.stars,
    forks = excluded.forks,
    language = excluded.language,
    topics = excluded.topics,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    score = excluded.score,
    tier = excluded.tier,
    enrichment = excluded.enrichment,
    last_synced_at = excluded.last_synced_at`

// Store is a SQLite-backed storage.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	slog.Info("SQLite catalog store opened", "path", path)
	return s, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListAll returns every item in rank order.
func (s *Store) ListAll(ctx context.Context) ([]catalog.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM catalog_item ORDER BY score DESC, stars DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog items: %w", err)
	}
	return items, nil
}

// GetByID returns one item by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (catalog.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM catalog_item WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Item{}, storage.ErrNotFound
	}
	return item, err
}

// GetByOwnerName returns the most relevant item matching owner/name.
func (s *Store) GetByOwnerName(ctx context.Context, owner, name string) (catalog.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM catalog_item WHERE lookup_key = ? ORDER BY score DESC LIMIT 1`,
		catalog.Key(owner, name))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Item{}, storage.ErrNotFound
	}
	return item, err
}

// UpsertBatch writes all items in one transaction. SQLite rolls back only
// the failing statement, so a bad item does not affect the rest.
func (s *Store) UpsertBatch(ctx context.Context, items []catalog.Item) []storage.ItemError {
	if len(items) == 0 {
		return nil
	}

	fail := func(err error) []storage.ItemError {
		out := make([]storage.ItemError, 0, len(items))
		for _, item := range items {
			out = append(out, storage.ItemError{ID: item.ID, Err: err})
		}
		return out
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fail(fmt.Errorf("failed to prepare upsert: %w", err))
	}
	defer func() {
		_ = stmt.Close()
	}()

	now := s.now().UTC()
	var itemErrs []storage.ItemError
	for _, item := range items {
		if err := s.upsertOne(ctx, stmt, item, now); err != nil {
			itemErrs = append(itemErrs, storage.ItemError{ID: item.ID, Err: err})
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return itemErrs
}

func (*Store) upsertOne(ctx context.Context, stmt *sql.Stmt, item catalog.Item, now time.Time) error {
	if item.ID == "" {
		return errors.New("item id is required")
	}
	topics, enrichment, err := storage.EncodeLists(item)
	if err != nil {
		return err
	}
	firstSeen := item.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}
	tier := item.Tier
	if tier == "" {
		tier = catalog.TierLow
	}

	_, err = stmt.ExecContext(ctx,
		item.ID, item.Name, item.FullName, item.Owner, item.Key(), item.URL, item.Description,
		item.Stars, item.Forks, item.Language, string(topics),
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
		item.Score, string(tier), string(enrichment),
		formatTime(firstSeen), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_item`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog items: %w", err)
	}
	return n, nil
}

// LoadPosition returns the persisted sync cursor.
func (s *Store) LoadPosition(ctx context.Context) (storage.PositionRecord, bool, error) {
	var (
		rec      storage.PositionRecord
		lastSync string
		complete int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_processed_index, total_known, last_sync_time, sync_count, is_complete
         FROM sync_position WHERE id = 1`,
	).Scan(&rec.LastProcessedIndex, &rec.TotalKnown, &lastSync, &rec.SyncCount, &complete)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PositionRecord{}, false, nil
	}
	if err != nil {
		return storage.PositionRecord{}, false, fmt.Errorf("failed to load sync position: %w", err)
	}
	rec.IsComplete = complete != 0
	if rec.LastSyncTime, err = parseTime(lastSync); err != nil {
		return storage.PositionRecord{}, false, err
	}
	return rec, true, nil
}

// SavePosition replaces the persisted sync cursor.
func (s *Store) SavePosition(ctx context.Context, rec storage.PositionRecord) error {
	complete := 0
	if rec.IsComplete {
		complete = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_position (id, last_processed_index, total_known, last_sync_time, sync_count, is_complete)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    last_processed_index = excluded.last_processed_index,
    total_known = excluded.total_known,
    last_sync_time = excluded.last_sync_time,
    sync_count = excluded.sync_count,
    is_complete = excluded.is_complete`,
		rec.LastProcessedIndex, rec.TotalKnown, formatTime(rec.LastSyncTime), rec.SyncCount, complete)
	if err != nil {
		return fmt.Errorf("failed to save sync position: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (catalog.Item, error) {
	var (
		item                  catalog.Item
		tier                  string
		topics, enrichment    string
		created, updated      string
		firstSeen, lastSynced string
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.FullName, &item.Owner, &item.URL, &item.Description,
		&item.Stars, &item.Forks, &item.Language, &topics,
		&created, &updated, &item.Score, &tier, &enrichment,
		&firstSeen, &lastSynced,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Item{}, err
		}
		return catalog.Item{}, fmt.Errorf("failed to scan catalog item: %w", err)
	}

	item.Tier = catalog.Tier(tier)
	if err := storage.DecodeLists(&item, []byte(topics), []byte(enrichment)); err != nil {
		return catalog.Item{}, err
	}
	for _, ts := range []struct {
		dst *time.Time
		src string
	}{
		{&item.CreatedAt, created},
		{&item.UpdatedAt, updated},
		{&item.FirstSeenAt, firstSeen},
		{&item.LastSyncedAt, lastSynced},
	} {
		t, err := parseTime(ts.src)
		if err != nil {
			return catalog.Item{}, err
		}
		*ts.dst = t
	}
	return item, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
