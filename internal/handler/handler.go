package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/service"
)

type Handler struct {
	store    repository.Store
	resolver *service.Resolver
	election *service.Election
	health   *service.Health
	baseURL  string
	logger   *zap.Logger
}

func NewHandler(store repository.Store, resolver *service.Resolver, election *service.Election, health *service.Health, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		resolver: resolver,
		election: election,
		health:   health,
		baseURL:  baseURL,
		logger:   logger,
	}
}

func generateShortCode() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)[:8]
}

func writeJSON(rw http.ResponseWriter, status int, payload any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(rw).Encode(payload); err != nil {
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
	}
}

func decodeJSON(rw http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(rw, "Content-Type must be application/json", http.StatusBadRequest)
		return false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// clientIP prefers the proxy-supplied address and falls back to the
// connection peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
