package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes wires every endpoint onto a chi router.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	// Public one-click unsubscribe; linked from outgoing mail.
	r.Get("/u/{token}", h.Unsubscribe)

	r.Route("/api", func(r chi.Router) {
		r.Route("/training", func(r chi.Router) {
			r.Post("/run", h.RunTraining)
			r.Post("/run/user/{userID}", h.RunTrainingForUser)
			r.Post("/run/domain/{domainID}", h.RunTrainingForDomain)
			r.Post("/domains/{domainID}/apply", h.ApplyTrainingConfig)
			r.Get("/config", h.GetTrainingConfig)
			r.Get("/status", h.GetTrainingStatus)
			r.Get("/statistics", h.GetTrainingStatistics)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/domains/{domain}", h.GetDomainAnalytics)
			r.Get("/senders", h.AnalyzeSender)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Post("/ingest", h.IngestMetrics)
			r.Get("/diagnostics", h.ParseDiagnosticFile)
		})

		r.Route("/bounce", func(r chi.Router) {
			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", h.ListBounceCredentials)
				r.Post("/", h.CreateBounceCredential)
				r.Get("/{id}", h.GetBounceCredential)
				r.Put("/{id}", h.UpdateBounceCredential)
				r.Delete("/{id}", h.DeleteBounceCredential)
				r.Post("/{id}/test", h.TestBounceCredential)
			})
			r.Post("/process", h.ProcessBounces)
			r.Get("/statistics", h.GetBounceStatistics)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Get("/stats", h.GetSuppressionStats)
			r.Post("/import", h.ImportSuppressions)
			r.Get("/export", h.ExportSuppressions)
			r.Post("/cleanup", h.CleanupSuppressions)
			r.Delete("/{email}", h.RemoveSuppression)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Get("/{id}", h.GetCampaign)
			r.Post("/{id}/start", h.StartCampaign)
			r.Post("/{id}/pause", h.PauseCampaign)
			r.Post("/{id}/resume", h.ResumeCampaign)
			r.Post("/{id}/stop", h.StopCampaign)
			r.Post("/{id}/run", h.RunCampaign)
		})
	})

	return r
}
