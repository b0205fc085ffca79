package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/otel"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/position"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/writer"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=orchestrator.go Manager
//go:generate mockgen -destination=mocks/mock_discoverer.go -package=mocks -source=orchestrator.go Discoverer

// DefaultBatchSize is the number of items fetched per cycle
const DefaultBatchSize = 50

const msgAlreadyRunning = "sync already running"

// Manager is the operational surface of the sync engine.
type Manager interface {
	// Run executes one cycle
	Run(ctx context.Context, opts RunOptions) (*SyncResult, error)

	// Status returns a snapshot of the orchestrator state
	Status() Status

	// ResetPosition moves the cursor back to the start of the catalog
	ResetPosition(ctx context.Context) position.Position
}

// Discoverer returns a window of the ranked catalog.
type Discoverer interface {
	Window(ctx context.Context, start, size int) ([]catalog.Item, int, error)
}

// Pinger checks durable store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CompletionHook runs after every successful cycle.
type CompletionHook func(ctx context.Context, result SyncResult)

// Orchestrator is the single-flight Manager implementation.
type Orchestrator struct {
	store     Pinger
	source    Discoverer
	writer    writer.SyncWriter
	position  *position.Manager
	batchSize int
	window    *Window
	now       func() time.Time
	metrics   *telemetry.SyncMetrics
	tracer    trace.Tracer

	mu         sync.Mutex
	running    bool
	phase      Phase
	lastResult *SyncResult
	hooks      []CompletionHook
}

var _ Manager = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the number of items fetched per cycle.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithWindow restricts scheduled cycles to w.
func WithWindow(w *Window) Option {
	return func(o *Orchestrator) {
		o.window = w
	}
}

// WithClock overrides the orchestrator clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSyncMetrics records cycle metrics.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithCompletionHook registers h to run after successful cycles.
func WithCompletionHook(h CompletionHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, h)
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	store Pinger,
	source Discoverer,
	w writer.SyncWriter,
	pos *position.Manager,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil || source == nil || w == nil {
		return nil, fmt.Errorf("store, source and writer are required")
	}
	if pos == nil {
		pos = position.NewManager()
	}
	o := &Orchestrator{
		store:     store,
		source:    source,
		writer:    w,
		position:  pos,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// OnComplete registers a hook to run after successful cycles.
func (o *Orchestrator) OnComplete(h CompletionHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

// Run executes one cycle. A failed cycle returns its SyncResult together
// with an *Error naming the failed step.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*SyncResult, error) {
	if !opts.Force && !o.window.Contains(o.now()) {
		slog.DebugContext(ctx, "Sync skipped outside window", "window", o.window.String())
		return &SyncResult{
			Message:   ErrOutsideWindow.Error(),
			Timestamp: o.now().UTC(),
		}, ErrOutsideWindow
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		if opts.Force {
			return nil, ErrSyncInProgress
		}
		return &SyncResult{Message: msgAlreadyRunning, Timestamp: o.now().UTC()}, nil
	}
	o.running = true
	o.phase = PhaseRunning
	hooks := append([]CompletionHook(nil), o.hooks...)
	o.mu.Unlock()

	var result *SyncResult
	released := false
	release := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if released {
			return
		}
		released = true
		o.running = false
		o.lastResult = result
		if result != nil && result.Success {
			o.phase = PhaseCompleted
		} else {
			o.phase = PhaseFailed
		}
	}
	defer release()

	result, cycleErr := o.cycle(ctx, opts)
	release()

	o.metrics.RecordCycle(ctx, result.Duration, result.Success, opts.Force)
	o.metrics.RecordItems(ctx, telemetry.OutcomeInserted, result.Inserted)
	o.metrics.RecordItems(ctx, telemetry.OutcomeUpdated, result.Updated)
	o.metrics.RecordItems(ctx, telemetry.OutcomeSkipped, result.Skipped)
	o.metrics.RecordItems(ctx, telemetry.OutcomeErrored, result.Errors)
	pos := o.position.Get()
	o.metrics.RecordPosition(ctx, pos.LastProcessedIndex, pos.TotalKnown)

	if result.Success {
		for _, h := range hooks {
			h(ctx, *result.clone())
		}
	}
	return result.clone(), cycleErr
}

func (o *Orchestrator) cycle(ctx context.Context, opts RunOptions) (res *SyncResult, cycleErr error) {
	start := o.now()
	result := &SyncResult{RunID: uuid.NewString(), Forced: opts.Force}

	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.Cycle",
		trace.WithAttributes(
			otel.AttrSyncRunID.String(result.RunID),
			otel.AttrSyncForced.Bool(opts.Force),
		))
	defer span.End()

	logger := slog.With("run_id", result.RunID, "forced", opts.Force)
	logger.InfoContext(ctx, "Starting sync cycle")

	finish := func(err *Error) (*SyncResult, error) {
		result.Duration = o.now().Sub(start)
		result.Timestamp = o.now().UTC()
		if err != nil {
			result.Success = false
			result.Message = err.Message
			result.ErrorDetails = append(result.ErrorDetails, err.Error())
			otel.RecordError(span, err)
			logger.ErrorContext(ctx, "Sync cycle failed",
				"phase", err.Phase,
				"error", err.Err,
				"duration", result.Duration)
			return result, err
		}
		result.Success = true
		result.Message = fmt.Sprintf("synced %d items: %d inserted, %d updated, %d skipped, %d errors",
			result.Fetched, result.Inserted, result.Updated, result.Skipped, result.Errors)
		logger.InfoContext(ctx, "Sync cycle completed",
			"fetched", result.Fetched,
			"inserted", result.Inserted,
			"updated", result.Updated,
			"skipped", result.Skipped,
			"errors", result.Errors,
			"duration", result.Duration)
		return result, nil
	}

	step := ErrorPhaseConnectivity
	defer func() {
		if r := recover(); r != nil {
			res, cycleErr = finish(&Error{
				Err:     fmt.Errorf("panic: %v", r),
				Message: "sync cycle panicked",
				Phase:   step,
			})
		}
	}()

	if err := o.store.Ping(ctx); err != nil {
		return finish(&Error{Err: err, Message: "database connectivity check failed", Phase: ErrorPhaseConnectivity})
	}

	step = ErrorPhaseFetch
	from := o.position.Next()
	batch, total, err := o.source.Window(ctx, from, o.batchSize)
	if err != nil {
		return finish(&Error{Err: err, Message: "failed to fetch catalog window", Phase: ErrorPhaseFetch})
	}
	// The catalog shrank below the cursor; restart the pass.
	if from > 0 && from >= total {
		logger.InfoContext(ctx, "Cursor beyond catalog, restarting pass", "start", from, "total", total)
		o.position.Reset(ctx)
		from = 0
		if batch, total, err = o.source.Window(ctx, from, o.batchSize); err != nil {
			return finish(&Error{Err: err, Message: "failed to fetch catalog window", Phase: ErrorPhaseFetch})
		}
	}
	span.SetAttributes(
		otel.AttrBatchStart.Int(from),
		otel.AttrBatchSize.Int(len(batch)),
		attribute.Int("sync.total_known", total),
	)
	result.Fetched = len(batch)

	step = ErrorPhasePersist
	counts := o.writer.Upsert(ctx, batch)
	result.Inserted = counts.Inserted
	result.Updated = counts.Updated
	result.Skipped = counts.Skipped
	result.Errors = counts.Errors
	result.ErrorDetails = counts.ErrorDetails
	if len(batch) > 0 && counts.Errors == len(batch) {
		// Nothing was written, so the cursor must not move.
		return finish(&Error{
			Err:     fmt.Errorf("%d of %d items failed", counts.Errors, len(batch)),
			Message: "failed to persist catalog window",
			Phase:   ErrorPhasePersist,
		})
	}

	o.position.Update(ctx, len(batch), total)
	return finish(nil)
}

// Status implements Manager.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Phase:      o.phase,
		Running:    o.running,
		LastResult: o.lastResult.clone(),
	}
	o.mu.Unlock()

	st.Position = o.position.Get()
	if o.window != nil {
		next := o.window.NextStart(o.now())
		st.NextWindowStart = &next
	}
	return st
}

// ResetPosition implements Manager.
func (o *Orchestrator) ResetPosition(ctx context.Context) position.Position {
	return o.position.Reset(ctx)
}
