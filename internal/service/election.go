package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
)

// Election owns every mutation of the primary flag. Callers never flip
// is_primary directly; they go through AttachTarget, PromoteTarget,
// RemoveTarget or the health service, so the single-primary rule holds
// after every committed write.
type Election struct {
	store  repository.Store
	logger *zap.Logger
}

func NewElection(store repository.Store, logger *zap.Logger) *Election {
	return &Election{store: store, logger: logger}
}

// CurrentPrimary returns the primary target of the set, nil when there is
// none. Two primaries is corrupted data and is surfaced, not repaired.
func CurrentPrimary(targets []models.Target) (*models.Target, error) {
	var primary *models.Target
	for i := range targets {
		if !targets[i].Primary {
			continue
		}
		if primary != nil {
			return nil, fmt.Errorf("%w: shortlink %d has two primary targets (%d, %d)",
				repository.ErrIntegrity, targets[i].ShortlinkID, primary.ID, targets[i].ID)
		}
		primary = &targets[i]
	}
	return primary, nil
}

// AttachTarget creates a target for the shortlink. An explicitly requested
// primary demotes all siblings first; otherwise the new target is promoted
// automatically when the shortlink has no primary at all (which covers the
// very first target).
func (e *Election) AttachTarget(ctx context.Context, shortlinkID int64, url string, makePrimary bool) (*models.Target, error) {
	targets, err := e.store.ListTargets(ctx, shortlinkID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	primary, err := CurrentPrimary(targets)
	if err != nil {
		return nil, err
	}

	target := &models.Target{
		ShortlinkID: shortlinkID,
		URL:         url,
		Primary:     makePrimary || primary == nil,
	}

	if err := e.store.CreateTarget(ctx, target, makePrimary && primary != nil); err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	e.logger.Info("Target attached",
		zap.Int64("shortlink_id", shortlinkID),
		zap.Int64("target_id", target.ID),
		zap.Bool("primary", target.Primary),
	)
	return target, nil
}

// PromoteTarget makes an existing target the primary, demoting siblings in
// the same transaction.
func (e *Election) PromoteTarget(ctx context.Context, targetID int64) error {
	target, err := e.store.GetTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get target: %w", err)
	}
	if target.Primary {
		return nil
	}

	update := repository.TargetUpdate{
		ClearPrimary: &target.ShortlinkID,
		SetPrimary:   &target.ID,
	}
	if err := e.store.ApplyTargetUpdate(ctx, update); err != nil {
		return fmt.Errorf("promote target: %w", err)
	}

	e.logger.Info("Target promoted",
		zap.Int64("shortlink_id", target.ShortlinkID),
		zap.Int64("target_id", target.ID),
	)
	return nil
}

// RemoveTarget deletes a target. Deleting the primary promotes the oldest
// remaining target of the shortlink, if any.
func (e *Election) RemoveTarget(ctx context.Context, targetID int64) error {
	target, err := e.store.GetTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get target: %w", err)
	}

	update := repository.TargetUpdate{Delete: &target.ID}

	if target.Primary {
		targets, err := e.store.ListTargets(ctx, target.ShortlinkID)
		if err != nil {
			return fmt.Errorf("list targets: %w", err)
		}
		for _, sibling := range targets {
			if sibling.ID != target.ID {
				successorID := sibling.ID
				update.SetPrimary = &successorID
				break
			}
		}
	}

	if err := e.store.ApplyTargetUpdate(ctx, update); err != nil {
		return fmt.Errorf("remove target: %w", err)
	}

	e.logger.Info("Target removed",
		zap.Int64("shortlink_id", target.ShortlinkID),
		zap.Int64("target_id", target.ID),
		zap.Bool("was_primary", target.Primary),
	)
	return nil
}
