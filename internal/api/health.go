package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-catalog-server/internal/api/common"
	"github.com/stacklok/toolhive-catalog-server/internal/service"
	"github.com/stacklok/toolhive-catalog-server/internal/versions"
)

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.CatalogService) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(svc service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "catalog service not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, HealthResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
