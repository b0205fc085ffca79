// Package position tracks progress of the circular sync cursor through the
// ranked catalog across repeated bounded cycles.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Position is a snapshot of the sync cursor. LastProcessedIndex stays within
// [-1, TotalKnown-1]; -1 means the next cycle starts from the beginning.
type Position struct {
	LastProcessedIndex int       `json:"lastProcessedIndex"`
	TotalKnown         int       `json:"totalKnown"`
	LastSyncTime       time.Time `json:"lastSyncTime,omitzero"`
	SyncCount          int       `json:"syncCount"`
	IsComplete         bool      `json:"isComplete"`
}

// Initial returns the cursor of a process that has never synced.
func Initial() Position {
	return Position{LastProcessedIndex: -1}
}

// normalized clamps an externally loaded position back into its invariant.
func (p Position) normalized() Position {
	if p.TotalKnown < 0 {
		p.TotalKnown = 0
	}
	if p.SyncCount < 0 {
		p.SyncCount = 0
	}
	if p.LastProcessedIndex < -1 || p.LastProcessedIndex > p.TotalKnown-1 {
		p.LastProcessedIndex = -1
	}
	return p
}

// Manager owns the process-wide cursor. All methods are safe for concurrent
// use; the orchestrator's single-flight guard keeps updates sequential.
type Manager struct {
	mu          sync.Mutex
	pos         Position
	persistence Persistence
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPersistence stores the cursor after every change so that a restarted
// process resumes where it left off.
func WithPersistence(p Persistence) Option {
	return func(m *Manager) {
		m.persistence = p
	}
}

// WithClock overrides the clock used for LastSyncTime.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager positioned at the start of the catalog.
func NewManager(opts ...Option) *Manager {
	m := &Manager{pos: Initial(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores the cursor from persistence. A missing or unreadable record
// leaves the manager at the start; the error is returned for logging only.
func (m *Manager) Load(ctx context.Context) error {
	if m.persistence == nil {
		return nil
	}
	pos, ok, err := m.persistence.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	m.pos = pos.normalized()
	m.mu.Unlock()

	slog.InfoContext(ctx, "Restored sync position",
		"last_processed_index", pos.LastProcessedIndex,
		"total_known", pos.TotalKnown,
		"sync_count", pos.SyncCount)
	return nil
}

// Next returns the index the next cycle starts from.
func (m *Manager) Next() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.LastProcessedIndex + 1
}

// Get returns a copy of the current position.
func (m *Manager) Get() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Update advances the cursor by processed items out of total. Reaching the
// last known index marks the pass complete and wraps the cursor to -1.
func (m *Manager) Update(ctx context.Context, processed, total int) Position {
	m.mu.Lock()
	next := m.pos
	if processed < 0 {
		processed = 0
	}
	if total < 0 {
		total = 0
	}

	idx := next.LastProcessedIndex + processed
	next.TotalKnown = total
	next.SyncCount++
	next.LastSyncTime = m.now().UTC()
	if idx >= total-1 {
		next.LastProcessedIndex = -1
		next.IsComplete = true
	} else {
		next.LastProcessedIndex = idx
		next.IsComplete = false
	}
	m.pos = next
	m.mu.Unlock()

	if next.IsComplete {
		slog.InfoContext(ctx, "Sync pass complete, cursor wrapped to start",
			"total_known", total,
			"sync_count", next.SyncCount)
	}
	m.save(ctx, next)
	return next
}

// Reset moves the cursor back to the start without touching the counters.
func (m *Manager) Reset(ctx context.Context) Position {
	m.mu.Lock()
	m.pos.LastProcessedIndex = -1
	m.pos.IsComplete = false
	next := m.pos
	m.mu.Unlock()

	slog.InfoContext(ctx, "Sync position reset")
	m.save(ctx, next)
	return next
}

// save persists pos; failures never propagate into the cycle.
func (m *Manager) save(ctx context.Context, pos Position) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(ctx, pos); err != nil {
		slog.WarnContext(ctx, "Failed to persist sync position", "error", err)
	}
}
