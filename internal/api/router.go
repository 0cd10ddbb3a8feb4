// Package api exposes the production, analytics and screenshot services over
// HTTP. Every /api route is scoped to the tenant named in the request headers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/loomtrack/internal/analytics"
	"github.com/sells-group/loomtrack/internal/catalog"
	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/internal/production"
	"github.com/sells-group/loomtrack/internal/screenshot"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes.
type Deps struct {
	Health      Pinger
	Catalog     *catalog.Service
	Production  *production.Service
	Analytics   *analytics.Service
	Screenshots *screenshot.Service
	Templates   *screenshot.Templates
	Names       *screenshot.Names
	// Gatherer serves /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

type handlers struct {
	Deps
	uploads *TenantLimiter
	now     func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps, cfg config.ServerConfig) http.Handler {
	h := &handlers{Deps: d, uploads: NewTenantLimiter(cfg.UploadRatePerMin), now: time.Now}
	if h.Gatherer == nil {
		h.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerTenant, headerUser},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Route("/production", h.productionRoutes)
		r.Route("/screenshots", h.screenshotRoutes)
		r.Route("/machines", h.machineRoutes)
		r.Route("/workers", h.workerRoutes)
	})
	return r
}

func (h *handlers) productionRoutes(r chi.Router) {
	r.Get("/", h.listShifts)
	r.Post("/", h.submitShift)
	r.Get("/stats", h.stats)
	r.Get("/summary/daily", h.dailySummary)
	r.Get("/summary/{date}", h.daySnapshot)
	r.Get("/summaries", h.listSummaries)
	r.Post("/summaries/resync", h.resync)
	r.Get("/analytics/worker/{id}", h.workerAnalytics)
	r.Get("/analytics/machine/{id}", h.machineAnalytics)
	r.Get("/analytics/electricity", h.electricityAnalytics)
	r.Get("/{id}", h.getShift)
	r.Put("/{id}", h.updateShift)
	r.Delete("/{id}", h.deleteShift)
}

func (h *handlers) screenshotRoutes(r chi.Router) {
	r.With(h.uploads.Limit).Post("/upload", h.upload)
	r.Get("/status/{id}", h.extractionStatus)
	r.Get("/records", h.listExtractions)
	r.Put("/verify/{id}", h.verifyExtraction)
	r.Delete("/records/{id}", h.deleteExtraction)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.listTemplates)
		r.Post("/", h.createTemplate)
		r.Get("/default", h.defaultTemplate)
		r.Get("/{id}", h.getTemplate)
		r.Put("/{id}", h.updateTemplate)
		r.Delete("/{id}", h.deleteTemplate)
	})
	r.Route("/worker-mappings", func(r chi.Router) {
		r.Get("/", h.listNameMappings)
		r.Post("/", h.createNameMapping)
		r.Get("/{id}", h.getNameMapping)
		r.Put("/{id}", h.updateNameMapping)
		r.Delete("/{id}", h.deleteNameMapping)
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.Health != nil {
		if err := h.Health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
