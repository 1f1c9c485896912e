package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/service"
)

// Scheduler runs the periodic notification pass: find due tenants, build
// either diff reports from undelivered journal rows or heartbeat
// snapshots, deliver them, and commit delivery state only when every send
// for the tenant succeeded. Delivery is therefore at-least-once; a failed
// pass retries the same batch on the next due cycle.
type Scheduler struct {
	store    repository.Store
	channel  Channel
	resolver *service.Resolver
	baseURL  string
	logger   *zap.Logger
	cron     *cron.Cron

	now func() time.Time
}

func NewScheduler(store repository.Store, channel Channel, resolver *service.Resolver, baseURL string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		channel:  channel,
		resolver: resolver,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins ticking. SkipIfStillRunning guarantees a new tick never
// overlaps a pass that is still executing.
func (s *Scheduler) Start(tick time.Duration) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", tick), func() {
		s.RunPass(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule notification pass: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Notification scheduler started", zap.Duration("tick", tick))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Notification scheduler stopped")
}

// RunPass processes every notifiable tenant once. One tenant's channel
// failure never aborts the others.
func (s *Scheduler) RunPass(ctx context.Context) {
	tenants, err := s.store.ListNotifiableTenants(ctx)
	if err != nil {
		s.logger.Error("Failed to list tenants for notification pass", zap.Error(err))
		return
	}

	sent, skipped := 0, 0
	for _, tenant := range tenants {
		if !s.due(tenant) {
			skipped++
			continue
		}

		delivered, err := s.processTenant(ctx, tenant)
		if err != nil {
			s.logger.Error("Notification pass failed for tenant",
				zap.Int64("tenant_id", tenant.ID),
				zap.Error(err),
			)
			continue
		}
		if delivered {
			sent++
		}
	}

	s.logger.Info("Notification pass completed",
		zap.Int("tenants", len(tenants)),
		zap.Int("sent", sent),
		zap.Int("skipped", skipped),
	)
}

// due reports whether the tenant's interval has elapsed since the last
// successful send. Never-notified tenants are always due.
func (s *Scheduler) due(tenant models.Tenant) bool {
	if tenant.LastNotifiedAt == nil {
		return true
	}
	interval := time.Duration(tenant.IntervalMinutes) * time.Minute
	return s.now().Sub(*tenant.LastNotifiedAt) >= interval
}

// processTenant builds and delivers this tenant's messages. It reports
// whether anything was sent; journal rows and last_notified_at are only
// committed when every send succeeded.
func (s *Scheduler) processTenant(ctx context.Context, tenant models.Tenant) (bool, error) {
	pending, err := s.store.ListUndelivered(ctx, tenant.ID)
	if err != nil {
		return false, fmt.Errorf("list undelivered changes: %w", err)
	}

	var messages []string

	if len(pending) > 0 {
		var domainChanges, targetChanges []models.StatusChange
		for _, change := range pending {
			switch change.Kind {
			case models.ChangeKindDomainCheck:
				domainChanges = append(domainChanges, change)
			case models.ChangeKindTargetURL:
				targetChanges = append(targetChanges, change)
			}
		}

		if len(domainChanges) > 0 {
			messages = append(messages, buildDomainCheckReport(tenant, domainChanges))
		}
		if len(targetChanges) > 0 {
			messages = append(messages, s.buildShortlinkAlert(ctx, tenant, targetChanges))
		}
	} else {
		domainReport, err := s.buildPeriodicDomainReport(ctx, tenant)
		if err != nil {
			return false, err
		}
		shortlinkReport, err := s.buildPeriodicShortlinkReport(ctx, tenant)
		if err != nil {
			return false, err
		}
		if domainReport != "" {
			messages = append(messages, domainReport)
		}
		if shortlinkReport != "" {
			messages = append(messages, shortlinkReport)
		}
	}

	// Nothing on record at all: silence is fine, not a failure.
	if len(messages) == 0 {
		return false, nil
	}

	for _, message := range messages {
		if err := s.channel.Send(ctx, tenant.TelegramChatID, message); err != nil {
			return false, fmt.Errorf("send notification: %w", err)
		}
	}

	if len(pending) > 0 {
		ids := make([]int64, len(pending))
		for i, change := range pending {
			ids[i] = change.ID
		}
		if err := s.store.MarkDelivered(ctx, ids); err != nil {
			return false, fmt.Errorf("mark delivered: %w", err)
		}
	}

	if err := s.store.SetTenantLastNotified(ctx, tenant.ID, s.now()); err != nil {
		return false, fmt.Errorf("update last notified: %w", err)
	}

	s.logger.Info("Notifications delivered",
		zap.Int64("tenant_id", tenant.ID),
		zap.Int("messages", len(messages)),
		zap.Int("changes", len(pending)),
	)
	return true, nil
}
