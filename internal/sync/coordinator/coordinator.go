package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
)

const (
	// DefaultInterval is the time between scheduled cycles
	DefaultInterval = time.Hour

	// jitterFraction is the maximum relative offset applied to the interval
	jitterFraction = 0.1
)

// Coordinator manages background sync scheduling
type Coordinator interface {
	// Start runs scheduled cycles. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for the current cycle to return
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager    pkgsync.Manager
	interval   time.Duration
	runOnStart bool

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithInterval sets the base interval between cycles
func WithInterval(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithoutInitialRun skips the cycle normally run on start
func WithoutInitialRun() Option {
	return func(c *defaultCoordinator) {
		c.runOnStart = false
	}
}

// New creates a new coordinator for manager
func New(manager pkgsync.Manager, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:    manager,
		interval:   DefaultInterval,
		runOnStart: true,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// jitteredInterval returns base offset by up to ±10%.
func jitteredInterval(base time.Duration) time.Duration {
	span := int64(float64(base) * jitterFraction)
	if span <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(2*span)) - time.Duration(span)
	return base + offset
}

// Start begins background sync coordination
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Background sync coordinator shut down")
	}()

	interval := jitteredInterval(c.interval)
	slog.Info("Starting background sync coordinator",
		"base_interval", c.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if c.runOnStart {
		c.runCycle(coordCtx)
	}

	for {
		select {
		case <-ticker.C:
			c.runCycle(coordCtx)
			ticker.Reset(jitteredInterval(c.interval))
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	slog.Info("Stopping sync coordinator")
	cancel()
	<-c.done
	return nil
}

func (c *defaultCoordinator) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := c.manager.Run(ctx, pkgsync.RunOptions{})
	switch {
	case errors.Is(err, pkgsync.ErrOutsideWindow):
		slog.DebugContext(ctx, "Scheduled sync skipped", "reason", err.Error())
	case err != nil:
		// The orchestrator already logged the failure with its phase.
		slog.DebugContext(ctx, "Scheduled sync failed", "error", err)
	case result != nil && result.RunID == "":
		slog.DebugContext(ctx, "Scheduled sync skipped", "reason", result.Message)
	}
}
