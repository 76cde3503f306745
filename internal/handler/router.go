// internal/handler/router.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the full HTTP surface.
func NewRouter(campaigns *CampaignHandler, templates *TemplateHandler, cron *CronHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Time-triggered campaign processing
	r.Get("/cron/process-campaigns", cron.ProcessCampaigns)

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaigns.CreateCampaign)
		r.Get("/", campaigns.ListCampaigns)
		r.Get("/{id}", campaigns.GetCampaign)
		r.Put("/{id}", campaigns.UpdateCampaign)
		r.Post("/{id}/status", campaigns.TransitionStatus)
		r.Post("/{id}/personalized-preview", campaigns.PersonalizedPreview)
		r.Post("/{id}/enrollments", campaigns.Enroll)
		r.Get("/{id}/enrollments", campaigns.ListEnrollments)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Post("/", templates.Create)
		r.Get("/", templates.List)
		r.Get("/{id}", templates.Get)
		r.Put("/{id}", templates.Update)
		r.Delete("/{id}", templates.Delete)
	})

	return r
}
