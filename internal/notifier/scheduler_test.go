package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/service"
)

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeChannel records sends and can be told to fail for specific chat ids
// or after N successful sends.
type fakeChannel struct {
	mu        sync.Mutex
	sent      []sentMessage
	failChats map[string]bool
	failAfter int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{failChats: make(map[string]bool), failAfter: -1}
}

func (f *fakeChannel) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failChats[chatID] {
		return errors.New("channel unreachable")
	}
	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		return errors.New("channel unreachable")
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeChannel) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fixture struct {
	store     *repository.MemoryStore
	channel   *fakeChannel
	scheduler *Scheduler
	election  *service.Election
	health    *service.Health
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	channel := newFakeChannel()
	resolver := service.NewResolver(store, logger)

	return &fixture{
		store:     store,
		channel:   channel,
		scheduler: NewScheduler(store, channel, resolver, "http://sho.rt", logger),
		election:  service.NewElection(store, logger),
		health:    service.NewHealth(store, logger),
	}
}

func (f *fixture) addTenant(t *testing.T, chatID string, intervalMinutes int, lastNotified *time.Time) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:                 "acme",
		NotificationsEnabled: true,
		TelegramChatID:       chatID,
		IntervalMinutes:      intervalMinutes,
	}
	require.NoError(t, f.store.CreateTenant(context.Background(), tenant))
	if lastNotified != nil {
		require.NoError(t, f.store.SetTenantLastNotified(context.Background(), tenant.ID, *lastNotified))
		tenant.LastNotifiedAt = lastNotified
	}
	return tenant
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSchedulerDueCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("interval not reached sends nothing", func(t *testing.T) {
		f := newFixture(t)
		f.addTenant(t, "chat-1", 5, timePtr(time.Now().Add(-4*time.Minute)))

		f.scheduler.RunPass(ctx)

		assert.Empty(t, f.channel.messages())
	})

	t.Run("interval elapsed delivers pending change", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, timePtr(time.Now().Add(-6*time.Minute)))

		link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
		require.NoError(t, f.store.CreateShortlink(ctx, link))
		first, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
		require.NoError(t, err)
		_, err = f.election.AttachTarget(ctx, link.ID, "https://b.com", false)
		require.NoError(t, err)
		_, err = f.health.SetTargetBlocked(ctx, first.ID, true)
		require.NoError(t, err)

		before := time.Now()
		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 1)
		assert.Equal(t, "chat-1", messages[0].ChatID)
		assert.Contains(t, messages[0].Text, "Shortlink Domain Alert")
		assert.Contains(t, messages[0].Text, "sho.rt/abc123")
		assert.Contains(t, messages[0].Text, "Automatically redirected to:* https://b.com")

		pending, err := f.store.ListUndelivered(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Empty(t, pending)

		updated, err := f.store.GetTenant(ctx, tenant.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastNotifiedAt)
		assert.False(t, updated.LastNotifiedAt.Before(before))

		// Naming the new destination in the alert is not a visit.
		logs, err := f.store.ListRedirectLogs(ctx, link.ID)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("never notified tenant is due immediately", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 60, nil)

		check := &models.DomainCheck{TenantID: tenant.ID, Domain: "example.com"}
		require.NoError(t, f.store.CreateDomainCheck(ctx, check))

		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 1)
		assert.Contains(t, messages[0].Text, "Domain Check Report")
	})

	t.Run("disabled notifications are never picked up", func(t *testing.T) {
		f := newFixture(t)
		tenant := &models.Tenant{Name: "acme", NotificationsEnabled: false, TelegramChatID: "chat-1"}
		require.NoError(t, f.store.CreateTenant(ctx, tenant))

		f.scheduler.RunPass(ctx)
		assert.Empty(t, f.channel.messages())
	})
}

func TestSchedulerDiffMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("changes of both kinds build two messages", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, nil)

		link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
		require.NoError(t, f.store.CreateShortlink(ctx, link))
		target, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
		require.NoError(t, err)
		_, err = f.health.SetTargetBlocked(ctx, target.ID, true)
		require.NoError(t, err)

		check := &models.DomainCheck{TenantID: tenant.ID, Domain: "example.com"}
		require.NoError(t, f.store.CreateDomainCheck(ctx, check))
		_, err = f.health.SetDomainCheckBlocked(ctx, check.ID, true)
		require.NoError(t, err)

		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 2)
		assert.Contains(t, messages[0].Text, "Domain Check Report")
		assert.Contains(t, messages[0].Text, "1. example.com")
		assert.Contains(t, messages[1].Text, "Shortlink Domain Alert")
	})

	t.Run("alert mentions fallback when nothing active remains", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, nil)

		alias := &models.Alias{CustomDomain: "brand.example", FallbackURL: "https://fallback.example"}
		require.NoError(t, f.store.CreateAlias(ctx, alias))
		link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123", AliasID: &alias.ID}
		require.NoError(t, f.store.CreateShortlink(ctx, link))
		target, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
		require.NoError(t, err)
		_, err = f.health.SetTargetBlocked(ctx, target.ID, true)
		require.NoError(t, err)

		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 1)
		assert.Contains(t, messages[0].Text, "Fallback redirect to:* https://fallback.example")
		// The alias domain also fronts the short URL.
		assert.Contains(t, messages[0].Text, "brand.example/abc123")
	})

	t.Run("alert notes missing active target", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, nil)

		link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
		require.NoError(t, f.store.CreateShortlink(ctx, link))
		target, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
		require.NoError(t, err)
		_, err = f.health.SetTargetBlocked(ctx, target.ID, true)
		require.NoError(t, err)

		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 1)
		assert.Contains(t, messages[0].Text, "No active target available")
	})
}

func TestSchedulerPeriodicReports(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending changes sends snapshots", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, nil)

		check := &models.DomainCheck{TenantID: tenant.ID, Domain: "example.com", Blocked: true}
		require.NoError(t, f.store.CreateDomainCheck(ctx, check))

		link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
		require.NoError(t, f.store.CreateShortlink(ctx, link))
		_, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
		require.NoError(t, err)

		f.scheduler.RunPass(ctx)

		messages := f.channel.messages()
		require.Len(t, messages, 2)
		assert.Contains(t, messages[0].Text, "current status of your monitored domains")
		assert.Contains(t, messages[0].Text, "1. example.com 🚫")
		assert.Contains(t, messages[1].Text, "Shortlink Status Report")
		assert.Contains(t, messages[1].Text, "Primary: https://a.com")
	})

	t.Run("tenant with no data gets silence and no commit", func(t *testing.T) {
		f := newFixture(t)
		tenant := f.addTenant(t, "chat-1", 5, nil)

		f.scheduler.RunPass(ctx)

		assert.Empty(t, f.channel.messages())
		updated, err := f.store.GetTenant(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Nil(t, updated.LastNotifiedAt)
	})
}

func TestSchedulerAtLeastOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tenant := f.addTenant(t, "chat-1", 5, nil)

	link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
	require.NoError(t, f.store.CreateShortlink(ctx, link))
	target, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
	require.NoError(t, err)
	_, err = f.health.SetTargetBlocked(ctx, target.ID, true)
	require.NoError(t, err)

	f.channel.failChats["chat-1"] = true
	f.scheduler.RunPass(ctx)

	// Failed send: nothing delivered, nothing committed.
	pending, err := f.store.ListUndelivered(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	updated, err := f.store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.LastNotifiedAt)

	// Channel recovers: the same batch goes out on the next pass.
	f.channel.failChats["chat-1"] = false
	f.scheduler.RunPass(ctx)

	messages := f.channel.messages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "https://a.com")

	pending, err = f.store.ListUndelivered(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSchedulerPartialFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tenant := f.addTenant(t, "chat-1", 5, nil)

	link := &models.Shortlink{TenantID: tenant.ID, ShortCode: "abc123"}
	require.NoError(t, f.store.CreateShortlink(ctx, link))
	target, err := f.election.AttachTarget(ctx, link.ID, "https://a.com", false)
	require.NoError(t, err)
	_, err = f.health.SetTargetBlocked(ctx, target.ID, true)
	require.NoError(t, err)

	check := &models.DomainCheck{TenantID: tenant.ID, Domain: "example.com"}
	require.NoError(t, f.store.CreateDomainCheck(ctx, check))
	_, err = f.health.SetDomainCheckBlocked(ctx, check.ID, true)
	require.NoError(t, err)

	// First message succeeds, second fails mid-pass.
	f.channel.failAfter = 1
	f.scheduler.RunPass(ctx)

	pending, err := f.store.ListUndelivered(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "no journal rows may be marked delivered on partial failure")

	updated, err := f.store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.LastNotifiedAt)
}

func TestSchedulerTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	broken := f.addTenant(t, "chat-broken", 5, nil)
	healthy := &models.Tenant{
		Name:                 "beta",
		NotificationsEnabled: true,
		TelegramChatID:       "chat-ok",
		IntervalMinutes:      5,
	}
	require.NoError(t, f.store.CreateTenant(ctx, healthy))

	for _, tenant := range []*models.Tenant{broken, healthy} {
		check := &models.DomainCheck{TenantID: tenant.ID, Domain: "example.com"}
		require.NoError(t, f.store.CreateDomainCheck(ctx, check))
		_, err := f.health.SetDomainCheckBlocked(ctx, check.ID, true)
		require.NoError(t, err)
	}

	f.channel.failChats["chat-broken"] = true
	f.scheduler.RunPass(ctx)

	messages := f.channel.messages()
	require.Len(t, messages, 1, "the healthy tenant must still be served")
	assert.Equal(t, "chat-ok", messages[0].ChatID)

	pending, err := f.store.ListUndelivered(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stillPending, err := f.store.ListUndelivered(ctx, broken.ID)
	require.NoError(t, err)
	assert.Len(t, stillPending, 1)
}

func TestDomainCheckReportCounts(t *testing.T) {
	tenant := models.Tenant{Name: "acme"}
	changes := []models.StatusChange{
		{Domain: "a.com", NewBlocked: true},
		{Domain: "b.com", NewBlocked: false},
		{Domain: "c.com", NewBlocked: true},
	}

	text := buildDomainCheckReport(tenant, changes)

	assert.Contains(t, text, "Domains with status change:* 3")
	assert.Contains(t, text, "1. a.com 🚫 (Blocked)")
	assert.Contains(t, text, "2. b.com ✅ (Active)")
	assert.Contains(t, text, "• Blocked: 2")
	assert.Contains(t, text, "• Active: 1")
	assert.Equal(t, 1, strings.Count(text, "Hello acme"))
}
