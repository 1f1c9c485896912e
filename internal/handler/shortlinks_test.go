package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/service"
)

const testAdminToken = "test-admin-token"

// brokenTargetStore rejects every target insert.
type brokenTargetStore struct {
	*repository.MemoryStore
}

func (s *brokenTargetStore) CreateTarget(ctx context.Context, target *models.Target, demoteSiblings bool) error {
	return errors.New("targets table unavailable")
}

func (e *testEnv) apiRequest(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Authorization", "Bearer "+testAdminToken)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.handler.SetupRouter(testAdminToken).ServeHTTP(w, request)
	return w
}

func TestCreateShortlinkHandler(t *testing.T) {
	t.Run("creates shortlink with generated code", func(t *testing.T) {
		env := newTestEnv(t)
		tenant := &models.Tenant{Name: "acme"}
		require.NoError(t, env.store.CreateTenant(context.Background(), tenant))

		w := env.apiRequest(t, http.MethodPost, "/api/shortlinks", models.CreateShortlinkRequest{
			TenantID:  tenant.ID,
			TargetURL: "https://a.com",
		})

		require.Equal(t, http.StatusCreated, w.Code)

		var resp models.CreateShortlinkResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.NotZero(t, resp.ID)
		assert.Contains(t, resp.ShortURL, "http://localhost:8080/")

		// The first target must come out as primary.
		targets, err := env.store.ListTargets(context.Background(), resp.ID)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.True(t, targets[0].Primary)
		assert.Equal(t, "https://a.com", targets[0].URL)
	})

	t.Run("custom code conflict", func(t *testing.T) {
		env := newTestEnv(t)
		tenant := &models.Tenant{Name: "acme"}
		require.NoError(t, env.store.CreateTenant(context.Background(), tenant))

		req := models.CreateShortlinkRequest{
			TenantID:  tenant.ID,
			ShortCode: "taken",
			TargetURL: "https://a.com",
		}
		require.Equal(t, http.StatusCreated, env.apiRequest(t, http.MethodPost, "/api/shortlinks", req).Code)
		assert.Equal(t, http.StatusConflict, env.apiRequest(t, http.MethodPost, "/api/shortlinks", req).Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.apiRequest(t, http.MethodPost, "/api/shortlinks", models.CreateShortlinkRequest{
			TenantID:  999,
			TargetURL: "https://a.com",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid target url", func(t *testing.T) {
		env := newTestEnv(t)
		tenant := &models.Tenant{Name: "acme"}
		require.NoError(t, env.store.CreateTenant(context.Background(), tenant))

		w := env.apiRequest(t, http.MethodPost, "/api/shortlinks", models.CreateShortlinkRequest{
			TenantID:  tenant.ID,
			TargetURL: "not a url",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("attach failure leaves no orphan shortlink", func(t *testing.T) {
		logger := zap.NewNop()
		base := repository.NewMemoryStore()
		store := &brokenTargetStore{MemoryStore: base}
		resolver := service.NewResolver(store, logger)
		election := service.NewElection(store, logger)
		health := service.NewHealth(store, logger)
		env := &testEnv{
			store:    base,
			handler:  NewHandler(store, resolver, election, health, "http://localhost:8080", logger),
			election: election,
			health:   health,
		}

		tenant := &models.Tenant{Name: "acme"}
		require.NoError(t, base.CreateTenant(context.Background(), tenant))

		w := env.apiRequest(t, http.MethodPost, "/api/shortlinks", models.CreateShortlinkRequest{
			TenantID:  tenant.ID,
			ShortCode: "wanted",
			TargetURL: "https://a.com",
		})
		require.Equal(t, http.StatusInternalServerError, w.Code)

		// The code must be free for a retry.
		_, err := base.GetShortlinkByCode(context.Background(), "wanted")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t)

		request := httptest.NewRequest(http.MethodPost, "/api/shortlinks", bytes.NewBufferString("{}"))
		request.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		env.handler.SetupRouter(testAdminToken).ServeHTTP(w, request)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTargetHandlers(t *testing.T) {
	t.Run("add target as primary demotes the current one", func(t *testing.T) {
		env := newTestEnv(t)
		link := env.createShortlink(t, "abc123", "https://a.com")

		w := env.apiRequest(t, http.MethodPost, fmt.Sprintf("/api/shortlinks/%d/targets", link.ID),
			models.AddTargetRequest{URL: "https://b.com", Primary: true})

		require.Equal(t, http.StatusCreated, w.Code)
		var created models.TargetResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
		assert.True(t, created.Primary)

		targets, err := env.store.ListTargets(context.Background(), link.ID)
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.False(t, targets[0].Primary)
		assert.True(t, targets[1].Primary)
	})

	t.Run("list targets", func(t *testing.T) {
		env := newTestEnv(t)
		link := env.createShortlink(t, "abc123", "https://a.com", "https://b.com")

		w := env.apiRequest(t, http.MethodGet, fmt.Sprintf("/api/shortlinks/%d/targets", link.ID), nil)

		require.Equal(t, http.StatusOK, w.Code)
		var targets []models.TargetResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&targets))
		require.Len(t, targets, 2)
		assert.Equal(t, "https://a.com", targets[0].URL)
		assert.True(t, targets[0].Primary)
	})

	t.Run("blocking primary elects the next target", func(t *testing.T) {
		env := newTestEnv(t)
		link := env.createShortlink(t, "abc123", "https://a.com", "https://b.com")
		targets, err := env.store.ListTargets(context.Background(), link.ID)
		require.NoError(t, err)

		w := env.apiRequest(t, http.MethodPut, fmt.Sprintf("/api/targets/%d/status", targets[0].ID),
			models.SetBlockedRequest{Blocked: true})
		require.Equal(t, http.StatusNoContent, w.Code)

		after, err := env.store.ListTargets(context.Background(), link.ID)
		require.NoError(t, err)
		assert.True(t, after[0].Blocked)
		assert.False(t, after[0].Primary)
		assert.True(t, after[1].Primary)
	})

	t.Run("promote and delete", func(t *testing.T) {
		env := newTestEnv(t)
		link := env.createShortlink(t, "abc123", "https://a.com", "https://b.com")
		targets, err := env.store.ListTargets(context.Background(), link.ID)
		require.NoError(t, err)

		w := env.apiRequest(t, http.MethodPost, fmt.Sprintf("/api/targets/%d/promote", targets[1].ID), nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.apiRequest(t, http.MethodDelete, fmt.Sprintf("/api/targets/%d", targets[1].ID), nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		// The remaining target gets the primary role back.
		after, err := env.store.ListTargets(context.Background(), link.ID)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.True(t, after[0].Primary)
	})

	t.Run("unknown target", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.apiRequest(t, http.MethodPut, "/api/targets/999/status", models.SetBlockedRequest{Blocked: true})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDomainCheckHandlers(t *testing.T) {
	env := newTestEnv(t)
	tenant := &models.Tenant{Name: "acme"}
	require.NoError(t, env.store.CreateTenant(context.Background(), tenant))

	req := models.CreateDomainCheckRequest{TenantID: tenant.ID, Domain: "example.com"}
	w := env.apiRequest(t, http.MethodPost, "/api/domain-checks", req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp models.CreateDomainCheckResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	// Same domain twice for one tenant is a conflict.
	assert.Equal(t, http.StatusConflict, env.apiRequest(t, http.MethodPost, "/api/domain-checks", req).Code)

	w = env.apiRequest(t, http.MethodPut, fmt.Sprintf("/api/domain-checks/%d/status", resp.ID),
		models.SetBlockedRequest{Blocked: true})
	require.Equal(t, http.StatusNoContent, w.Code)

	pending, err := env.store.ListUndelivered(context.Background(), tenant.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "example.com", pending[0].Domain)
	assert.True(t, pending[0].NewBlocked)
}

func TestNotificationSettingsHandler(t *testing.T) {
	env := newTestEnv(t)
	tenant := &models.Tenant{Name: "acme"}
	require.NoError(t, env.store.CreateTenant(context.Background(), tenant))

	w := env.apiRequest(t, http.MethodPut, fmt.Sprintf("/api/tenants/%d/notifications", tenant.ID),
		models.NotificationSettingsRequest{Enabled: true, TelegramChatID: "chat-1", IntervalMinutes: 10})
	require.Equal(t, http.StatusNoContent, w.Code)

	updated, err := env.store.GetTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.True(t, updated.NotificationsEnabled)
	assert.Equal(t, "chat-1", updated.TelegramChatID)
	assert.Equal(t, 10, updated.IntervalMinutes)

	w = env.apiRequest(t, http.MethodPut, fmt.Sprintf("/api/tenants/%d/notifications", tenant.ID),
		models.NotificationSettingsRequest{Enabled: true, TelegramChatID: "chat-1", IntervalMinutes: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportAnalyticsHandler(t *testing.T) {
	env := newTestEnv(t)
	link := env.createShortlink(t, "abc123", "https://a.com")

	entry := &models.RedirectLog{
		ShortlinkID:     link.ID,
		IP:              "203.0.113.9",
		Country:         "DE",
		Referrer:        "https://search.example/",
		Browser:         "Chrome",
		BrowserVersion:  "120.0.0.0",
		Platform:        "Windows",
		PlatformVersion: "10.0",
		DeviceType:      "desktop",
		CreatedAt:       time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.store.InsertRedirectLog(context.Background(), entry))

	w := env.apiRequest(t, http.MethodGet, fmt.Sprintf("/api/shortlinks/%d/analytics/export", link.ID), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "abc123-analytics.csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, []string{
		"2026-08-30 12:00:00", "203.0.113.9", "DE", "https://search.example/",
		"Chrome", "120.0.0.0", "Windows", "10.0", "desktop",
	}, records[1])
}
