// Package app provides application lifecycle management for the catalog server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-catalog-server/internal/config"
	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
)

const shutdownTimeout = 30 * time.Second

// CatalogApp encapsulates all components needed to run the catalog API server.
// It provides lifecycle management and graceful shutdown capabilities.
type CatalogApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	stopOnce   sync.Once
	stopErr    error
}

// Start runs the HTTP server and the sync coordinator until ctx is done,
// Stop is called, or either of them fails.
func (app *CatalogApp) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(app.ctx, cancel)
	defer stopWatch()

	g, gctx := errgroup.WithContext(runCtx)

	if coord := app.components.SyncCoordinator; coord != nil {
		g.Go(func() error {
			if err := coord.Start(gctx); err != nil {
				return fmt.Errorf("sync coordinator failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// Unblock the server when the coordinator fails or the caller gives up.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// It stops the sync coordinator, shuts down the HTTP server, and releases the store.
// Calling Stop more than once returns the first result.
func (app *CatalogApp) Stop(timeout time.Duration) error {
	app.stopOnce.Do(func() {
		app.stopErr = app.stop(timeout)
	})
	return app.stopErr
}

func (app *CatalogApp) stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if coord := app.components.SyncCoordinator; coord != nil {
		if err := coord.Stop(); err != nil {
			slog.Error("Failed to stop sync coordinator", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	// Wait for in-flight persistence of live reads before closing the store.
	if svc := app.components.CatalogService; svc != nil {
		svc.Wait()
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server shutdown complete")
	return nil
}

// RunSync runs one forced cycle outside of the HTTP surface.
func (app *CatalogApp) RunSync(ctx context.Context) (*pkgsync.SyncResult, error) {
	return app.components.SyncManager.Run(ctx, pkgsync.RunOptions{Force: true})
}

// Close releases the store without touching the HTTP server. Used by
// commands that never call Start.
func (app *CatalogApp) Close() {
	if svc := app.components.CatalogService; svc != nil {
		svc.Wait()
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
}

// GetConfig returns the application configuration
func (app *CatalogApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *CatalogApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
