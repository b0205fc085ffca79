package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-catalog-server/internal/sync/coordinator"
)

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	startErr    error
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	err := m.startErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockCoordinator) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// Verify that Coordinator interface is properly defined
var _ coordinator.Coordinator = (*mockCoordinator)(nil)

// createTestApp creates a CatalogApp listening on a free local port with
// the coordinator replaced by coord.
func createTestApp(t *testing.T, coord *mockCoordinator) (*CatalogApp, string) {
	t.Helper()

	app := newTestApp(t, testConfig(), discovered(2))
	app.components.SyncCoordinator = coord

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	app.httpServer.Addr = addr

	return app, addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCatalogApp_StartStop(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{}
	app, addr := createTestApp(t, coord)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(context.Background())
	}()

	waitForServer(t, addr)
	assert.True(t, coord.wasStartCalled(), "sync coordinator should be started")

	resp, err := http.Get("http://" + addr + "/v1/sync/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Stop(5*time.Second))
	assert.True(t, coord.wasStopCalled(), "sync coordinator Stop should be called")

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	// Stop is idempotent.
	require.NoError(t, app.Stop(time.Second))
}

func TestCatalogApp_StartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	app, addr := createTestApp(t, &mockCoordinator{})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(ctx)
	}()

	waitForServer(t, addr)
	cancel()

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after the context was cancelled")
	}
}

func TestCatalogApp_CoordinatorFailureStopsServer(t *testing.T) {
	t.Parallel()

	app, _ := createTestApp(t, &mockCoordinator{startErr: assert.AnError})

	select {
	case startErr := <-startAsync(app):
		require.ErrorIs(t, startErr, assert.AnError)
		assert.Contains(t, startErr.Error(), "sync coordinator failed")
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after the coordinator failed")
	}
}

func TestCatalogApp_StartError_AddressInUse(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	app, _ := createTestApp(t, &mockCoordinator{})
	app.httpServer.Addr = listener.Addr().String()

	select {
	case startErr := <-startAsync(app):
		require.Error(t, startErr)
		assert.Contains(t, startErr.Error(), "HTTP server failed")
	case <-time.After(5 * time.Second):
		_ = app.Stop(time.Second)
		t.Fatal("Expected Start() to fail due to port in use")
	}
}

func TestCatalogApp_Getters(t *testing.T) {
	t.Parallel()

	app, addr := createTestApp(t, &mockCoordinator{})

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "database-only", app.GetConfig().Service.Strategy)
	assert.Equal(t, addr, app.GetHTTPServer().Addr)
}

func startAsync(app *CatalogApp) <-chan error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(context.Background())
	}()
	return errChan
}
