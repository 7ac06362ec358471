// Package httptransport is the thin HTTP layer over the audit services. It
// delegates to domain services without embedding business logic so transport
// concerns remain isolated.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports readiness of a backing dependency.
type HealthChecker func(ctx context.Context) error

// Deps collects everything the router wires together.
type Deps struct {
	Query  *QueryHandler
	Export *ExportHandler
	Ingest *IngestHandler

	JWTSigningKey string
	Logger        *slog.Logger
	Health        map[string]HealthChecker
}

// NewRouter wires all endpoints. The download route and the internal ingest
// route sit outside bearer auth: the first is guarded by its token, the
// second by the shared secret.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/api/audit/export/download/{token}", deps.Export.handleDownload)
	r.Post("/internal/audit/events", deps.Ingest.handleIngest)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(deps.JWTSigningKey, deps.Logger))

		r.Get("/api/audit/logs", deps.Query.handleSearch)
		r.Get("/api/audit/logs/{id}", deps.Query.handleDetail)
		r.Get("/api/audit/statistics", deps.Query.handleStatistics)

		r.Post("/api/audit/export", deps.Export.handleRequest)
		r.Get("/api/audit/export/{id}/status", deps.Export.handleStatus)
		r.Get("/api/audit/export/history", deps.Export.handleHistory)
	})

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(checks)+1)
		body["status"] = "ok"
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				body["status"] = "degraded"
				continue
			}
			body[name] = "ok"
		}
		writeJSON(w, status, body)
	}
}
