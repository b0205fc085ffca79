package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

// Persistence stores the cursor between process restarts.
type Persistence interface {
	// Load returns the stored position, or ok=false on first run
	Load(ctx context.Context) (pos Position, ok bool, err error)

	// Save replaces the stored position
	Save(ctx context.Context, pos Position) error
}

// lockRetryDelay is how often a blocked caller polls the position lock.
const lockRetryDelay = 50 * time.Millisecond

// FilePersistence keeps the cursor in a JSON file. A sibling ".lock" file
// serialises writers across processes sharing the same path, e.g. the
// server and a one-shot sync command.
type FilePersistence struct {
	path string
}

var _ Persistence = (*FilePersistence)(nil)

// NewFilePersistence creates a file-backed persistence at path.
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

func (f *FilePersistence) lockPath() string {
	return f.path + ".lock"
}

// Save writes the position through a temporary file and an atomic rename
// while holding the exclusive file lock.
func (f *FilePersistence) Save(ctx context.Context, pos Position) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create position directory: %w", err)
	}

	lock := flock.New(f.lockPath())
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to lock position file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(pos, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync position: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary position file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename position file: %w", err)
	}
	return nil
}

// Load reads the position file; a missing file is a first run.
func (f *FilePersistence) Load(ctx context.Context) (Position, bool, error) {
	if _, err := os.Stat(filepath.Dir(f.path)); errors.Is(err, os.ErrNotExist) {
		return Position{}, false, nil
	}

	lock := flock.New(f.lockPath())
	if _, err := lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return Position{}, false, fmt.Errorf("failed to lock position file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Position{}, false, nil
		}
		return Position{}, false, fmt.Errorf("failed to read position file: %w", err)
	}

	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return Position{}, false, fmt.Errorf("failed to unmarshal position file: %w", err)
	}
	return pos, true, nil
}

// StorePersistence keeps the cursor in the catalog store next to the items.
type StorePersistence struct {
	store storage.Store
}

var _ Persistence = (*StorePersistence)(nil)

// NewStorePersistence creates a persistence backed by the durable store.
func NewStorePersistence(store storage.Store) *StorePersistence {
	return &StorePersistence{store: store}
}

// Load reads the cursor row.
func (s *StorePersistence) Load(ctx context.Context) (Position, bool, error) {
	rec, ok, err := s.store.LoadPosition(ctx)
	if err != nil || !ok {
		return Position{}, ok, err
	}
	return Position{
		LastProcessedIndex: rec.LastProcessedIndex,
		TotalKnown:         rec.TotalKnown,
		LastSyncTime:       rec.LastSyncTime,
		SyncCount:          rec.SyncCount,
		IsComplete:         rec.IsComplete,
	}, true, nil
}

// Save replaces the cursor row.
func (s *StorePersistence) Save(ctx context.Context, pos Position) error {
	return s.store.SavePosition(ctx, storage.PositionRecord{
		LastProcessedIndex: pos.LastProcessedIndex,
		TotalKnown:         pos.TotalKnown,
		LastSyncTime:       pos.LastSyncTime,
		SyncCount:          pos.SyncCount,
		IsComplete:         pos.IsComplete,
	})
}
