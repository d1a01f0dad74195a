package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"govconsole/internal/config"
	"govconsole/internal/http/handlers"
	middlewarex "govconsole/internal/http/middleware"
	"govconsole/internal/logger"
	"govconsole/internal/metrics"
	govsvc "govconsole/internal/services/governance"
	"govconsole/internal/services/views"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	Config     config.Cfg
	Governance *govsvc.Service
	Views      *views.Registry
	Logs       *logger.Ring
	Metrics    *metrics.Metrics
}

// NewRouter creates the HTTP router
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middlewarex.RequestLogger(logger.Component("http")))
	r.Use(chimw.Recoverer)
	r.Use(middlewarex.RequestMetrics(deps.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", deps.Metrics.Handler())

	// Admin routes (protected by admin token)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewarex.AdminAuth(deps.Config.Sec.AdminToken))
		if deps.Logs != nil {
			r.Get("/logs", handlers.ListLogs(deps.Logs))
			r.Delete("/logs", handlers.ClearLogs(deps.Logs))
		}
	})

	// API routes (protected by API key auth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarex.APIKeyAuth(deps.Config.Sec.APIKeys))
		r.Use(middlewarex.CallerPrincipal)

		r.Get("/governance", handlers.GetGovernance(deps.Governance))
		r.Get("/governance/me", handlers.GetMyParticipant(deps.Governance))

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", handlers.ListProposals(deps.Governance, deps.Config.Views.ListPrefix))
			r.Post("/", handlers.AddProposal(deps.Governance))
			r.Get("/{id}", handlers.GetProposal(deps.Governance))
			r.Post("/{id}/vote", handlers.VoteProposal(deps.Governance))
			r.Post("/{id}/perform", handlers.PerformProposal(deps.Governance))
		})

		if deps.Views != nil {
			r.Route("/views", func(r chi.Router) {
				r.Post("/", handlers.OpenView(deps.Views))
				r.Get("/{id}", handlers.GetView(deps.Views))
				r.Delete("/{id}", handlers.CloseView(deps.Views))
				r.Patch("/{id}/state", handlers.UpdateViewState(deps.Views))
				r.Put("/{id}/table", handlers.ApplyViewTable(deps.Views))
				r.Delete("/{id}/state", handlers.ClearViewState(deps.Views))
				r.Post("/{id}/refresh", handlers.RefreshView(deps.Views))
			})
		}
	})

	return r
}
