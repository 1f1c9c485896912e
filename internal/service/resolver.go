package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/models"
	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/uaparser"
)

// ErrNoDestination means the short code resolved to nothing usable; the
// HTTP layer answers 404.
var ErrNoDestination = errors.New("no destination for short code")

// reservedCodes are path prefixes claimed by this server's own routes.
var reservedCodes = map[string]struct{}{
	"admin":    {},
	"api":      {},
	"internal": {},
	"ping":     {},
}

// Resolution is a successful redirect decision. Target is nil when the
// destination came from a legacy URL or an alias fallback.
type Resolution struct {
	URL       string
	Shortlink *models.Shortlink
	Target    *models.Target

	// visit marks destinations that count as redirect-log entries:
	// targets and legacy URLs, not alias fallbacks.
	visit bool
}

// RequestMeta carries the request attributes captured into the redirect
// log. Country must come from a trusted proxy header, never from the
// client.
type RequestMeta struct {
	IP        string
	Country   string
	Referrer  string
	UserAgent string
}

type Resolver struct {
	store  repository.Store
	logger *zap.Logger
}

func NewResolver(store repository.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve picks the destination URL for a short code and records the
// visit. Order: reserved codes out, active primary, first active target,
// legacy single-URL column, shortlink alias fallback, host alias
// fallback. All targets blocked never redirects to a blocked one;
// resolution falls through to the fallbacks instead.
func (r *Resolver) Resolve(ctx context.Context, shortCode, requestHost string, meta RequestMeta) (*Resolution, error) {
	resolution, err := r.Peek(ctx, shortCode, requestHost)
	if err != nil {
		return nil, err
	}
	if resolution.visit {
		r.logRedirect(ctx, resolution.Shortlink, meta)
	}
	return resolution, nil
}

// Peek resolves like Resolve but leaves no trace: no redirect-log row is
// written. The notifier uses it to name a shortlink's current destination
// without fabricating analytics.
func (r *Resolver) Peek(ctx context.Context, shortCode, requestHost string) (*Resolution, error) {
	if _, reserved := reservedCodes[shortCode]; reserved {
		return nil, ErrNoDestination
	}

	hostAlias, err := r.store.GetAliasByHost(ctx, requestHost)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup alias by host: %w", err)
	}

	link, err := r.store.GetShortlinkByCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if hostAlias != nil && hostAlias.FallbackURL != "" {
				return &Resolution{URL: hostAlias.FallbackURL}, nil
			}
			return nil, ErrNoDestination
		}
		return nil, fmt.Errorf("lookup shortlink: %w", err)
	}

	targets, err := r.store.ListTargets(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	if target := pickTarget(targets); target != nil {
		return &Resolution{URL: target.URL, Shortlink: link, Target: target, visit: true}, nil
	}

	if len(targets) == 0 && link.LegacyURL != "" {
		return &Resolution{URL: link.LegacyURL, Shortlink: link, visit: true}, nil
	}

	if link.AliasID != nil {
		linkAlias, err := r.store.GetAlias(ctx, *link.AliasID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup shortlink alias: %w", err)
		}
		if linkAlias != nil && linkAlias.FallbackURL != "" {
			return &Resolution{URL: linkAlias.FallbackURL, Shortlink: link}, nil
		}
	}

	if hostAlias != nil && hostAlias.FallbackURL != "" {
		return &Resolution{URL: hostAlias.FallbackURL, Shortlink: link}, nil
	}

	return nil, ErrNoDestination
}

// pickTarget prefers the active primary, then any active target with the
// primary flag winning ties and ascending id after that. Blocked targets
// are never picked.
func pickTarget(targets []models.Target) *models.Target {
	var best *models.Target
	for i := range targets {
		target := &targets[i]
		if target.Blocked {
			continue
		}
		if target.Primary {
			return target
		}
		if best == nil {
			best = target
		}
	}
	return best
}

// logRedirect records the redirect side effect. It is best-effort and
// never fails the redirect itself.
func (r *Resolver) logRedirect(ctx context.Context, link *models.Shortlink, meta RequestMeta) {
	parsed := uaparser.Parse(meta.UserAgent)

	entry := &models.RedirectLog{
		ShortlinkID:     link.ID,
		IP:              meta.IP,
		Country:         meta.Country,
		Referrer:        meta.Referrer,
		Browser:         parsed.Browser,
		BrowserVersion:  parsed.BrowserVersion,
		Platform:        parsed.Platform,
		PlatformVersion: parsed.PlatformVersion,
		DeviceType:      parsed.DeviceType,
	}

	if err := r.store.InsertRedirectLog(ctx, entry); err != nil {
		r.logger.Error("Failed to write redirect log",
			zap.Int64("shortlink_id", link.ID),
			zap.Error(err),
		)
	}
}
