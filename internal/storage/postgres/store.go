// Package postgres implements the catalog store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

const selectColumns = `id, name, full_name, owner, url, description, stars, forks, language,
    topics, created_at, updated_at, score, tier, enrichment, first_seen_at, last_synced_at`

const upsertSQL = `
INSERT INTO catalog_item (
    id, name, full_name, owner, lookup_key, url, description, stars, forks, language,
    topics, created_at, updated_at, score, tier, enrichment, first_seen_at, last_synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    full_name = EXCLUDED.full_name,
    owner = EXCLUDED.owner,
    lookup_key = EXCLUDED.lookup_key,
    url = EXCLUDED.url,
    description = EXCLUDED.description,
    stars = EXCLUDED.stars,
    forks = EXCLUDED.forks,
    language = EXCLUDED.language,
    topics = EXCLUDED.topics,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at,
    score = EXCLUDED.score,
    tier = EXCLUDED.tier,
    enrichment = EXCLUDED.enrichment,
    last_synced_at = EXCLUDED.last_synced_at`

// Store is a PostgreSQL-backed storage.Store. The schema is managed by the
// migrations in the database package.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
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

// New wraps an existing pool. The store takes ownership of the pool and
// closes it on Close.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListAll returns every item in rank order.
func (s *Store) ListAll(ctx context.Context) ([]catalog.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM catalog_item ORDER BY score DESC, stars DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer rows.Close()

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
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM catalog_item WHERE id = $1`, id)
	return scanOne(row)
}

// GetByOwnerName returns the most relevant item matching owner/name.
func (s *Store) GetByOwnerName(ctx context.Context, owner, name string) (catalog.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM catalog_item WHERE lookup_key = $1 ORDER BY score DESC LIMIT 1`,
		catalog.Key(owner, name))
	return scanOne(row)
}

// UpsertBatch writes all items in one transaction, isolating each item in
// a savepoint so that a failing row is rolled back alone.
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fail(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		}
	}()

	now := s.now().UTC()
	var itemErrs []storage.ItemError
	for _, item := range items {
		if err := upsertOne(ctx, tx, item, now); err != nil {
			itemErrs = append(itemErrs, storage.ItemError{ID: item.ID, Err: err})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return itemErrs
}

func upsertOne(ctx context.Context, tx pgx.Tx, item catalog.Item, now time.Time) error {
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

	// Nested Begin creates a savepoint.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	_, err = sp.Exec(ctx, upsertSQL,
		item.ID, item.Name, item.FullName, item.Owner, item.Key(), item.URL, item.Description,
		item.Stars, item.Forks, item.Language, topics,
		nullTime(item.CreatedAt), nullTime(item.UpdatedAt),
		item.Score, string(tier), enrichment,
		firstSeen, now,
	)
	if err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_item`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog items: %w", err)
	}
	return n, nil
}

// LoadPosition returns the persisted sync cursor.
func (s *Store) LoadPosition(ctx context.Context) (storage.PositionRecord, bool, error) {
	var (
		rec      storage.PositionRecord
		lastSync *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed_index, total_known, last_sync_time, sync_count, is_complete
         FROM sync_position WHERE id = 1`,
	).Scan(&rec.LastProcessedIndex, &rec.TotalKnown, &lastSync, &rec.SyncCount, &rec.IsComplete)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.PositionRecord{}, false, nil
	}
	if err != nil {
		return storage.PositionRecord{}, false, fmt.Errorf("failed to load sync position: %w", err)
	}
	if lastSync != nil {
		rec.LastSyncTime = lastSync.UTC()
	}
	return rec, true, nil
}

// SavePosition replaces the persisted sync cursor.
func (s *Store) SavePosition(ctx context.Context, rec storage.PositionRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sync_position (id, last_processed_index, total_known, last_sync_time, sync_count, is_complete)
VALUES (1, $1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    last_processed_index = EXCLUDED.last_processed_index,
    total_known = EXCLUDED.total_known,
    last_sync_time = EXCLUDED.last_sync_time,
    sync_count = EXCLUDED.sync_count,
    is_complete = EXCLUDED.is_complete`,
		rec.LastProcessedIndex, rec.TotalKnown, nullTime(rec.LastSyncTime), rec.SyncCount, rec.IsComplete)
	if err != nil {
		return fmt.Errorf("failed to save sync position: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		slog.Info("Closing database connection pool")
		s.pool.Close()
	}
	return nil
}

func scanOne(row pgx.Row) (catalog.Item, error) {
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Item{}, storage.ErrNotFound
	}
	return item, err
}

func scanItem(row pgx.Row) (catalog.Item, error) {
	var (
		item                  catalog.Item
		tier                  string
		topics, enrichment    []byte
		created, updated      *time.Time
		firstSeen, lastSynced time.Time
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.FullName, &item.Owner, &item.URL, &item.Description,
		&item.Stars, &item.Forks, &item.Language, &topics,
		&created, &updated, &item.Score, &tier, &enrichment,
		&firstSeen, &lastSynced,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Item{}, err
		}
		return catalog.Item{}, fmt.Errorf("failed to scan catalog item: %w", err)
	}

	item.Tier = catalog.Tier(tier)
	if created != nil {
		item.CreatedAt = created.UTC()
	}
	if updated != nil {
		item.UpdatedAt = updated.UTC()
	}
	item.FirstSeenAt = firstSeen.UTC()
	item.LastSyncedAt = lastSynced.UTC()

	if err := storage.DecodeLists(&item, topics, enrichment); err != nil {
		return catalog.Item{}, err
	}
	return item, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
