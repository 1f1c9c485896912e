package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
)

func parseID(rw http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(rw, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateShortlinkHandler(rw http.ResponseWriter, r *http.Request) {
	var req models.CreateShortlinkRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	if req.TenantID <= 0 {
		http.Error(rw, "tenant_id is required", http.StatusBadRequest)
		return
	}
	if req.TargetURL == "" {
		http.Error(rw, "target_url is required", http.StatusBadRequest)
		return
	}
	if _, err := url.ParseRequestURI(req.TargetURL); err != nil {
		http.Error(rw, "target_url is not a valid URL", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetTenant(r.Context(), req.TenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Tenant not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load tenant", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	shortCode := req.ShortCode
	if shortCode == "" {
		shortCode = generateShortCode()
	}

	link := &models.Shortlink{
		TenantID:  req.TenantID,
		ShortCode: shortCode,
		AliasID:   req.AliasID,
	}
	if err := h.store.CreateShortlink(r.Context(), link); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			http.Error(rw, "Short code already taken", http.StatusConflict)
			return
		}
		h.logger.Error("Failed to create shortlink", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// First target of a new shortlink becomes primary automatically. A
	// failed attach must not leave a targetless shortlink squatting on
	// the code.
	if _, err := h.election.AttachTarget(r.Context(), link.ID, req.TargetURL, false); err != nil {
		h.logger.Error("Failed to attach first target", zap.Error(err))
		if delErr := h.store.DeleteShortlink(r.Context(), link.ID); delErr != nil {
			h.logger.Error("Failed to delete shortlink after attach failure",
				zap.Int64("shortlink_id", link.ID), zap.Error(delErr))
		}
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	shortURL, _ := url.JoinPath(h.baseURL, link.ShortCode)
	writeJSON(rw, http.StatusCreated, models.CreateShortlinkResponse{
		ID:       link.ID,
		ShortURL: shortURL,
	})
}

func (h *Handler) DeleteShortlinkHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	if err := h.store.DeleteShortlink(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to delete shortlink", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTargetsHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	if _, err := h.store.GetShortlink(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load shortlink", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	targets, err := h.store.ListTargets(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list targets", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	out := make([]models.TargetResponse, 0, len(targets))
	for _, target := range targets {
		out = append(out, models.TargetResponse{
			ID:      target.ID,
			URL:     target.URL,
			Blocked: target.Blocked,
			Primary: target.Primary,
		})
	}
	writeJSON(rw, http.StatusOK, out)
}

func (h *Handler) AddTargetHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	var req models.AddTargetRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	if req.URL == "" {
		http.Error(rw, "url is required", http.StatusBadRequest)
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		http.Error(rw, "url is not valid", http.StatusBadRequest)
		return
	}

	target, err := h.election.AttachTarget(r.Context(), id, req.URL, req.Primary)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to attach target", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(rw, http.StatusCreated, models.TargetResponse{
		ID:      target.ID,
		URL:     target.URL,
		Blocked: target.Blocked,
		Primary: target.Primary,
	})
}

func (h *Handler) DeleteTargetHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	if err := h.election.RemoveTarget(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to remove target", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PromoteTargetHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	if err := h.election.PromoteTarget(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to promote target", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
