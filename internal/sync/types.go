package sync

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/stacklok/toolhive-catalog-server/internal/sync/position"
)

var (
	// ErrSyncInProgress is returned to forced runs while a cycle is running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOutsideWindow is returned to scheduled runs outside the sync window
	ErrOutsideWindow = errors.New("outside of sync window")
)

// Phase is the lifecycle state of the orchestrator.
type Phase string

const (
	// PhaseIdle means no cycle has run yet
	PhaseIdle Phase = "Idle"
	// PhaseRunning means a cycle is in flight
	PhaseRunning Phase = "Running"
	// PhaseCompleted means the last cycle succeeded
	PhaseCompleted Phase = "Completed"
	// PhaseFailed means the last cycle failed
	PhaseFailed Phase = "Failed"
)

// ErrorPhase names the step of a cycle that failed.
type ErrorPhase string

// Cycle steps that can fail.
const (
	ErrorPhaseConnectivity ErrorPhase = "connectivity"
	ErrorPhaseFetch        ErrorPhase = "fetch"
	ErrorPhasePersist      ErrorPhase = "persist"
)

// Error is the failure of one cycle step.
type Error struct {
	Err     error
	Message string
	Phase   ErrorPhase
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RunOptions controls a single Run call.
type RunOptions struct {
	// Force bypasses the time window and fails fast when a cycle is running
	Force bool
}

// SyncResult is the immutable report of one cycle.
type SyncResult struct {
	RunID        string        `json:"runId,omitempty"`
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Forced       bool          `json:"forced"`
	Fetched      int           `json:"fetched"`
	Inserted     int           `json:"inserted"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
	ErrorDetails []string      `json:"errorDetails,omitempty"`
}

// clone returns a deep copy so callers never share ErrorDetails.
func (r *SyncResult) clone() *SyncResult {
	if r == nil {
		return nil
	}
	out := *r
	out.ErrorDetails = slices.Clone(r.ErrorDetails)
	return &out
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Phase           Phase             `json:"phase"`
	Running         bool              `json:"running"`
	LastResult      *SyncResult       `json:"lastResult,omitempty"`
	NextWindowStart *time.Time        `json:"nextWindowStart,omitempty"`
	Position        position.Position `json:"position"`
}
