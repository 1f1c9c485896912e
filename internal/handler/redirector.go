package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/service"
)

func (h *Handler) RedirectHandler(rw http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	if shortCode == "" {
		http.Error(rw, "Empty short code", http.StatusBadRequest)
		return
	}

	meta := service.RequestMeta{
		IP: clientIP(r),
		// Country is only populated by the fronting proxy; the client
		// cannot be trusted to set it.
		Country:   r.Header.Get("CF-IPCountry"),
		Referrer:  r.Header.Get("Referer"),
		UserAgent: r.UserAgent(),
	}

	resolution, err := h.resolver.Resolve(r.Context(), shortCode, r.Host, meta)
	if err != nil {
		if errors.Is(err, service.ErrNoDestination) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Resolve failed", zap.String("short_code", shortCode), zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.Redirect(rw, r, resolution.URL, http.StatusFound)
}

func (h *Handler) PingHandler(rw http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		http.Error(rw, "Storage unavailable", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusOK)
}
