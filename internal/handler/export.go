package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/repository"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{
	"time", "ip", "country", "referrer",
	"browser", "browser_version", "platform", "platform_version", "device_type",
}

// ExportAnalyticsHandler streams a shortlink's redirect log as CSV, one
// row per redirect.
func (h *Handler) ExportAnalyticsHandler(rw http.ResponseWriter, r *http.Request) {
	id, ok := parseID(rw, r)
	if !ok {
		return
	}

	link, err := h.store.GetShortlink(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(rw, "Not Found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load shortlink", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	entries, err := h.store.ListRedirectLogs(r.Context(), link.ID)
	if err != nil {
		h.logger.Error("Failed to list redirect logs", zap.Error(err))
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/csv")
	rw.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", link.ShortCode+"-analytics.csv"))
	rw.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(rw)
	defer writer.Flush()

	if err := writer.Write(exportHeader); err != nil {
		return
	}
	for _, entry := range entries {
		record := []string{
			entry.CreatedAt.Format(exportTimeLayout),
			entry.IP,
			entry.Country,
			entry.Referrer,
			entry.Browser,
			entry.BrowserVersion,
			entry.Platform,
			entry.PlatformVersion,
			entry.DeviceType,
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}
