package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
)

// TargetStatusHandler is the external health checker's entry point for
// target transitions: it mutates the blocked flag, runs the election and
// journals the change atomically.
func (h *Handler) TargetStatusHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	var req models.SetBlockedRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	if _, err := h.health.SetTargetBlocked(r.Context(), id, req.Blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update target status", zap.Int64("target_id", id), zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DomainCheckStatusHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	var req models.SetBlockedRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	if _, err := h.health.SetDomainCheckBlocked(r.Context(), id, req.Blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update domain check status", zap.Int64("domain_check_id", id), zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateDomainCheckHandler(rw http.ResponseWriter, r *http.Request) {
	var req models.CreateDomainCheckRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	if req.TenantID <= 0 || req.Domain == "" {
		http.Error(rw, "tenant_id and domain are required", http.StatusBadRequest)
		return
	}

	check := &models.DomainCheck{TenantID: req.TenantID, Domain: req.Domain}
	if err := h.store.CreateDomainCheck(r.Context(), check); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			http.Error(rw, "Domain already monitored for this tenant", http.StatusConflict)
			return
		}
		h.logger.Error("Failed to create domain check", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(rw, http.StatusCreated, models.CreateDomainCheckResponse{ID: check.ID})
}

func (h *Handler) NotificationSettingsHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	var req models.NotificationSettingsRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	if req.IntervalMinutes < 1 {
		http.Error(rw, "interval_minutes must be at least 1", http.StatusBadRequest)
		return
	}

	err := h.store.UpdateTenantNotificationSettings(r.Context(), id, req.Enabled, req.TelegramChatID, req.IntervalMinutes)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update notification settings", zap.Int64("tenant_id", id), zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
