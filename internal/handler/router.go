package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ddanshin/shortguard/internal/middleware"
)

func (h *Handler) SetupRouter(adminToken string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger(h.logger))

	r.Get("/ping", h.PingHandler)
	r.Get("/{shortCode}", h.RedirectHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireToken(adminToken))

		r.Post("/shortlinks", h.CreateShortlinkHandler)
		r.Delete("/shortlinks/{id}", h.DeleteShortlinkHandler)
		r.Get("/shortlinks/{id}/targets", h.ListTargetsHandler)
		r.Post("/shortlinks/{id}/targets", h.AddTargetHandler)
		r.Get("/shortlinks/{id}/analytics/export", h.ExportAnalyticsHandler)

		r.Delete("/targets/{id}", h.DeleteTargetHandler)
		r.Post("/targets/{id}/promote", h.PromoteTargetHandler)
		r.Put("/targets/{id}/status", h.TargetStatusHandler)

		r.Post("/domain-checks", h.CreateDomainCheckHandler)
		r.Put("/domain-checks/{id}/status", h.DomainCheckStatusHandler)

		r.Put("/tenants/{id}/notifications", h.NotificationSettingsHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})

	return r
}
