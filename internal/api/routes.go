package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-catalog-server/internal/api/common"
	"github.com/stacklok/toolhive-catalog-server/internal/service"
	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
)

// Routes serves the v1 catalog and operational endpoints
type Routes struct {
	service service.CatalogService
	sync    pkgsync.Manager
}

// Router creates the v1 router
func Router(svc service.CatalogService, mgr pkgsync.Manager) http.Handler {
	routes := &Routes{service: svc, sync: mgr}

	r := chi.NewRouter()
	r.Get("/projects", routes.listProjects)
	r.Get("/projects/{owner}/{name}", routes.getProject)
	r.Delete("/cache", routes.clearCache)
	r.Get("/cache", routes.cacheInfo)

	r.Route("/sync", func(r chi.Router) {
		r.Post("/", routes.forceSync)
		r.Get("/status", routes.syncStatus)
		r.Post("/position/reset", routes.resetPosition)
	})
	return r
}

// listProjects handles GET /v1/projects?strategy=...
func (rr *Routes) listProjects(w http.ResponseWriter, r *http.Request) {
	strategy := rr.service.DefaultStrategy()
	if name := r.URL.Query().Get("strategy"); name != "" {
		parsed, err := service.ParseStrategy(name)
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		strategy = parsed
	}

	res := rr.service.GetProjects(r.Context(), strategy)
	common.WriteJSONResponse(w, ProjectsResponse{
		Projects:   res.Items,
		Total:      len(res.Items),
		Strategy:   strategy.String(),
		Source:     res.Source,
		Cached:     res.Cached,
		Stale:      res.Stale,
		CapturedAt: res.CapturedAt,
	}, http.StatusOK)
}

// getProject handles GET /v1/projects/{owner}/{name}
func (rr *Routes) getProject(w http.ResponseWriter, r *http.Request) {
	owner, err := common.RepoPathParam(r, "owner")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, err := common.RepoPathParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := rr.service.GetProject(r.Context(), owner, name)
	if errors.Is(err, service.ErrNotFound) {
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get project", "owner", owner, "name", name, "error", err)
		common.WriteErrorResponse(w, "failed to get project", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, item, http.StatusOK)
}

// clearCache handles DELETE /v1/cache
func (rr *Routes) clearCache(w http.ResponseWriter, _ *http.Request) {
	before := rr.service.CacheInfo()
	rr.service.ClearCache()
	common.WriteJSONResponse(w, CacheClearResponse{Cleared: true, Before: before}, http.StatusOK)
}

// cacheInfo handles GET /v1/cache
func (rr *Routes) cacheInfo(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.service.CacheInfo(), http.StatusOK)
}

// forceSync handles POST /v1/sync. The cycle runs within the request and
// ignores the sync window. A client disconnect does not abort the cycle;
// only the request deadline bounds it.
func (rr *Routes) forceSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := detachedContext(r.Context())
	defer cancel()

	result, err := rr.sync.Run(ctx, pkgsync.RunOptions{Force: true})

	var cycleErr *pkgsync.Error
	switch {
	case errors.Is(err, pkgsync.ErrSyncInProgress):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.As(err, &cycleErr):
		common.WriteJSONResponse(w, result, http.StatusInternalServerError)
	case err != nil:
		slog.ErrorContext(r.Context(), "Forced sync failed", "error", err)
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, result, http.StatusOK)
	}
}

// syncStatus handles GET /v1/sync/status
func (rr *Routes) syncStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.sync.Status(), http.StatusOK)
}

// resetPosition handles POST /v1/sync/position/reset
func (rr *Routes) resetPosition(w http.ResponseWriter, r *http.Request) {
	pos := rr.sync.ResetPosition(r.Context())
	common.WriteJSONResponse(w, PositionResponse{Position: pos}, http.StatusOK)
}

// detachedContext keeps the values and deadline of parent but not its
// cancellation.
func detachedContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if deadline, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, deadline)
	}
	return ctx, func() {}
}
