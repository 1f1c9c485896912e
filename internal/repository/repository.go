package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ddanshin/shortguard/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrIntegrity signals corrupted data (e.g. two primary targets for one
	// shortlink) that must not be silently repaired.
	ErrIntegrity = errors.New("data integrity violation")
)

// TargetFlag addresses one target's blocked flag inside a TargetUpdate.
type TargetFlag struct {
	TargetID int64
	Blocked  bool
}

// TargetUpdate is one atomic mutation of target rows plus an optional
// journal insert. All non-nil parts commit together or not at all, so a
// concurrent reader never observes zero or two primaries mid-swap.
type TargetUpdate struct {
	SetBlocked *TargetFlag
	// ClearPrimary drops is_primary on every target of the given shortlink.
	ClearPrimary *int64
	// SetPrimary raises is_primary on the given target after ClearPrimary.
	SetPrimary *int64
	// Delete removes the given target.
	Delete  *int64
	Journal *models.StatusChange
	// ElectPrimary re-checks the given shortlink's primary after the other
	// mutations, inside the same transaction or lock: when the current
	// primary is blocked, its flag moves to the first unblocked target by
	// ascending id, or is dropped when none remains. The state of the
	// shortlink's targets is read under the same critical section, never
	// from a caller snapshot.
	ElectPrimary *int64
}

// electPrimary decides the post-mutation primary for a shortlink's targets
// (sorted id asc). needed reports whether flags must change; successor is
// the target to promote, nil when the flag is only dropped.
func electPrimary(targets []models.Target) (successor *int64, needed bool, err error) {
	var primary *models.Target
	for i := range targets {
		if !targets[i].Primary {
			continue
		}
		if primary != nil {
			return nil, false, fmt.Errorf("%w: shortlink %d has two primary targets (%d, %d)",
				ErrIntegrity, targets[i].ShortlinkID, primary.ID, targets[i].ID)
		}
		primary = &targets[i]
	}

	if primary == nil || !primary.Blocked {
		return nil, false, nil
	}

	for i := range targets {
		if !targets[i].Blocked {
			return &targets[i].ID, true, nil
		}
	}
	return nil, true, nil
}

// Store is the persistence contract shared by the postgres and in-memory
// implementations. Targets are always returned in insertion order (id asc);
// undelivered journal rows in created_at order.
type Store interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	ListNotifiableTenants(ctx context.Context) ([]models.Tenant, error)
	UpdateTenantNotificationSettings(ctx context.Context, id int64, enabled bool, chatID string, intervalMinutes int) error
	SetTenantLastNotified(ctx context.Context, id int64, at time.Time) error

	CreateAlias(ctx context.Context, alias *models.Alias) error
	GetAlias(ctx context.Context, id int64) (*models.Alias, error)
	GetAliasByHost(ctx context.Context, host string) (*models.Alias, error)

	CreateShortlink(ctx context.Context, link *models.Shortlink) error
	GetShortlink(ctx context.Context, id int64) (*models.Shortlink, error)
	GetShortlinkByCode(ctx context.Context, shortCode string) (*models.Shortlink, error)
	ListShortlinksByTenant(ctx context.Context, tenantID int64) ([]models.Shortlink, error)
	DeleteShortlink(ctx context.Context, id int64) error

	// CreateTarget inserts a target with the flags already decided by the
	// caller. When demoteSiblings is set, every other target of the same
	// shortlink loses is_primary in the same transaction.
	CreateTarget(ctx context.Context, target *models.Target, demoteSiblings bool) error
	GetTarget(ctx context.Context, id int64) (*models.Target, error)
	ListTargets(ctx context.Context, shortlinkID int64) ([]models.Target, error)
	ApplyTargetUpdate(ctx context.Context, update TargetUpdate) error

	CreateDomainCheck(ctx context.Context, check *models.DomainCheck) error
	GetDomainCheck(ctx context.Context, id int64) (*models.DomainCheck, error)
	ListDomainChecks(ctx context.Context, tenantID int64) ([]models.DomainCheck, error)
	// SetDomainCheckBlocked updates the flag and inserts the journal row in
	// one transaction.
	SetDomainCheckBlocked(ctx context.Context, id int64, blocked bool, journal *models.StatusChange) error

	ListUndelivered(ctx context.Context, tenantID int64) ([]models.StatusChange, error)
	MarkDelivered(ctx context.Context, ids []int64) error

	InsertRedirectLog(ctx context.Context, entry *models.RedirectLog) error
	ListRedirectLogs(ctx context.Context, shortlinkID int64) ([]models.RedirectLog, error)

	Ping(ctx context.Context) error
	Close() error
}
