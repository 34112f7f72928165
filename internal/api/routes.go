// Package api serves the engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/lead-disposition/internal/engine"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
)

var log = logger.With("api")

// MaintenanceFunc runs one maintenance cycle and returns its report.
type MaintenanceFunc func(ctx context.Context) (any, error)

// Options configures the router.
type Options struct {
	Metrics     *metrics.Recorder
	CORSOrigins []string
	// Maintenance overrides the in-process cycle behind
	// POST /api/v1/maintenance/run, e.g. with the lock-guarded worker.
	Maintenance MaintenanceFunc
	// Fill defaults apply when a fill request leaves them unset.
	FillFreshRatio    float64
	FillMaxPerCompany int
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	eng         *engine.Engine
	maintenance MaintenanceFunc
	fillRatio   float64
	fillCap     int
	started     time.Time
}

// NewHandlers creates the handlers over eng.
func NewHandlers(eng *engine.Engine, opts Options) *Handlers {
	h := &Handlers{
		eng:         eng,
		maintenance: opts.Maintenance,
		fillRatio:   opts.FillFreshRatio,
		fillCap:     opts.FillMaxPerCompany,
		started:     time.Now(),
	}
	if h.maintenance == nil {
		h.maintenance = func(ctx context.Context) (any, error) { return eng.RunMaintenance(ctx) }
	}
	return h
}

// SetupRoutes builds the router.
func SetupRoutes(h *Handlers, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.HealthCheck)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/contacts", func(r chi.Router) {
			r.Post("/", h.CreateContact)
			r.Post("/bulk", h.BulkCreateContacts)
			r.Post("/import", h.ImportContacts)
			r.Route("/{clientID}/{email}", func(r chi.Router) {
				r.Get("/", h.GetContact)
				r.Post("/transition", h.ApplyTransition)
				r.Post("/touch", h.RecordTouch)
				r.Get("/history", h.ContactHistory)
				r.Get("/history/verify", h.VerifyContactHistory)
				r.Get("/assignments", h.ContactAssignments)
			})
		})

		r.Route("/companies/{domain}", func(r chi.Router) {
			r.Get("/", h.GetCompany)
			r.Get("/ownership", h.CanTarget)
			r.Get("/ownership/history", h.OwnershipHistory)
			r.Post("/claim", h.Claim)
			r.Post("/release", h.Release)
			r.Post("/transfer", h.Transfer)
		})
		r.Post("/ownership/sweep", h.SweepExpired)

		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.Get("/available", h.FindAvailable)
			r.Get("/owned", h.ListOwned)
			r.Get("/tam/health", h.TamHealth)
			r.Get("/tam/trends", h.TamTrends)
			r.Post("/tam/snapshots", h.ComputeSnapshot)
		})

		r.Post("/campaigns/{campaignID}/assignments", h.AssignToCampaign)
		r.Post("/campaigns/{campaignID}/fill", h.FillCampaign)
		r.Post("/assignments/{id}/complete", h.CompleteAssignment)

		r.Post("/maintenance/run", h.RunMaintenance)
	})

	return r
}

// HealthCheck pings the store with a cheap read.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if _, err := h.eng.Store().DistinctClients(ctx); err != nil {
		log.Warn("health check store read failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}
