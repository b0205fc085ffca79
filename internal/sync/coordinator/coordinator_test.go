package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/mocks"
)

func TestJitteredInterval(t *testing.T) {
	t.Parallel()

	base := time.Hour
	for range 100 {
		got := jitteredInterval(base)
		assert.GreaterOrEqual(t, got, 54*time.Minute)
		assert.Less(t, got, 66*time.Minute)
	}
	assert.Equal(t, time.Nanosecond, jitteredInterval(time.Nanosecond))
}

func TestCoordinator_RunsOnStartAndOnTick(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)

	var calls atomic.Int32
	manager.EXPECT().Run(gomock.Any(), pkgsync.RunOptions{}).DoAndReturn(
		func(context.Context, pkgsync.RunOptions) (*pkgsync.SyncResult, error) {
			calls.Add(1)
			return &pkgsync.SyncResult{RunID: "r", Success: true}, nil
		}).MinTimes(2)

	coord := New(manager, WithInterval(20*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Start(context.Background())
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)
}

func TestCoordinator_ToleratesSkipsAndFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)

	done := make(chan struct{})
	gomock.InOrder(
		manager.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&pkgsync.SyncResult{}, pkgsync.ErrOutsideWindow),
		manager.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&pkgsync.SyncResult{Message: "sync already running"}, nil),
		manager.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, pkgsync.RunOptions) (*pkgsync.SyncResult, error) {
				close(done)
				return &pkgsync.SyncResult{RunID: "r"}, &pkgsync.Error{Err: errors.New("x"), Phase: pkgsync.ErrorPhaseFetch}
			}),
		manager.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&pkgsync.SyncResult{RunID: "r", Success: true}, nil).AnyTimes(),
	)

	coord := New(manager, WithInterval(10*time.Millisecond))
	go func() {
		_ = coord.Start(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator stopped running cycles")
	}
	require.NoError(t, coord.Stop())
}

func TestCoordinator_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)

	coord := New(manager, WithoutInitialRun(), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Start(ctx)
	}()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on context cancellation")
	}
}

func TestCoordinator_StopBeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(mocks.NewMockManager(ctrl))
	require.NoError(t, coord.Stop())
}
