package service

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
)

// Health is the entry point for the external health checker. It applies a
// blocked-state transition, runs the primary election and writes the
// journal row in one transaction, so a persisted flag change can never
// lose its journal entry.
type Health struct {
	store  repository.Store
	logger *zap.Logger
}

func NewHealth(store repository.Store, logger *zap.Logger) *Health {
	return &Health{store: store, logger: logger}
}

// SetTargetBlocked flips a target's blocked flag. A call that does not
// change the state is a no-op and returns no journal entry. Blocking the
// current primary elects the first unblocked sibling by ascending id, or
// leaves the shortlink without a primary when none exists.
func (h *Health) SetTargetBlocked(ctx context.Context, targetID int64, blocked bool) (*models.StatusChange, error) {
	target, err := h.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	if target.Blocked == blocked {
		return nil, nil
	}

	link, err := h.store.GetShortlink(ctx, target.ShortlinkID)
	if err != nil {
		return nil, fmt.Errorf("get shortlink: %w", err)
	}

	change := &models.StatusChange{
		TenantID:        link.TenantID,
		Kind:            models.ChangeKindTargetURL,
		ShortlinkID:     &link.ID,
		TargetID:        &target.ID,
		Domain:          hostOf(target.URL),
		URL:             target.URL,
		PreviousBlocked: target.Blocked,
		NewBlocked:      blocked,
	}

	update := repository.TargetUpdate{
		SetBlocked: &repository.TargetFlag{TargetID: target.ID, Blocked: blocked},
		Journal:    change,
	}

	// The successor choice happens inside the store's critical section,
	// from state read there, so a sibling blocked concurrently can never
	// be elected off a stale snapshot.
	if blocked {
		update.ElectPrimary = &target.ShortlinkID
	}

	if err := h.store.ApplyTargetUpdate(ctx, update); err != nil {
		return nil, fmt.Errorf("apply target update: %w", err)
	}

	h.logger.Info("Target blocked state changed",
		zap.Int64("shortlink_id", link.ID),
		zap.Int64("target_id", target.ID),
		zap.Bool("blocked", blocked),
		zap.Bool("was_primary", target.Primary),
	)
	return change, nil
}

// SetDomainCheckBlocked flips a monitored domain's blocked flag and
// journals the transition. Unchanged state is a no-op.
func (h *Health) SetDomainCheckBlocked(ctx context.Context, id int64, blocked bool) (*models.StatusChange, error) {
	check, err := h.store.GetDomainCheck(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get domain check: %w", err)
	}
	if check.Blocked == blocked {
		return nil, nil
	}

	change := &models.StatusChange{
		TenantID:        check.TenantID,
		Kind:            models.ChangeKindDomainCheck,
		DomainCheckID:   &check.ID,
		Domain:          check.Domain,
		PreviousBlocked: check.Blocked,
		NewBlocked:      blocked,
	}

	if err := h.store.SetDomainCheckBlocked(ctx, check.ID, blocked, change); err != nil {
		return nil, fmt.Errorf("set domain check blocked: %w", err)
	}

	h.logger.Info("Domain check state changed",
		zap.Int64("domain_check_id", check.ID),
		zap.String("domain", check.Domain),
		zap.Bool("blocked", blocked),
	)
	return change, nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
