package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/ddanshin/shortguard/internal/models"
)

const alertTimeLayout = "02 Jan 2006 15:04:05"

// shortURL builds the externally visible short URL: the shortlink's custom
// domain alias when present, the configured base URL otherwise.
func (s *Scheduler) shortURL(ctx context.Context, link models.Shortlink) string {
	base := s.baseURL
	if link.AliasID != nil {
		if alias, err := s.store.GetAlias(ctx, *link.AliasID); err == nil && alias.CustomDomain != "" {
			base = alias.CustomDomain
		}
	}
	base = strings.TrimPrefix(base, "https://")
	base = strings.TrimPrefix(base, "http://")
	return strings.TrimRight(base, "/") + "/" + link.ShortCode
}

func statusIcon(blocked bool) string {
	if blocked {
		return "🚫"
	}
	return "✅"
}

// buildDomainCheckReport summarizes domain-check transitions: a numbered
// list plus blocked/active counts.
func buildDomainCheckReport(tenant models.Tenant, changes []models.StatusChange) string {
	var b strings.Builder

	b.WriteString("🔎 *Domain Check Report*\n\n")
	fmt.Fprintf(&b, "Hello %s,\n\n", tenant.Name)
	b.WriteString("Here is the latest status for your monitored domains:\n\n")
	fmt.Fprintf(&b, "📊 *Domains with status change:* %d\n\n", len(changes))

	blocked, active := 0, 0
	for i, change := range changes {
		statusText := "Active"
		if change.NewBlocked {
			statusText = "Blocked"
			blocked++
		} else {
			active++
		}
		fmt.Fprintf(&b, "%d. %s %s (%s)\n", i+1, change.Domain, statusIcon(change.NewBlocked), statusText)
	}

	b.WriteString("\n📌 *Summary:*\n")
	fmt.Fprintf(&b, "• Blocked: %d\n", blocked)
	fmt.Fprintf(&b, "• Active: %d\n", active)
	fmt.Fprintf(&b, "• Total Changes: %d\n", len(changes))

	return b.String()
}

// buildShortlinkAlert renders one alert block per target transition. For a
// target that just became blocked it re-resolves the shortlink and names
// the destination traffic now goes to, the fallback URL, or the fact that
// nothing active remains.
func (s *Scheduler) buildShortlinkAlert(ctx context.Context, tenant models.Tenant, changes []models.StatusChange) string {
	var b strings.Builder

	b.WriteString("🚨 *Shortlink Domain Alert*\n\n")
	fmt.Fprintf(&b, "Hello %s,\n\n", tenant.Name)
	b.WriteString("We detected status changes on your shortlink target domains:\n\n")

	for _, change := range changes {
		statusText := "ACTIVE"
		if change.NewBlocked {
			statusText = "BLOCKED"
		}

		fmt.Fprintf(&b, "%s *Domain:* %s\n", statusIcon(change.NewBlocked), change.Domain)

		var link *models.Shortlink
		if change.ShortlinkID != nil {
			if found, err := s.store.GetShortlink(ctx, *change.ShortlinkID); err == nil {
				link = found
			}
		}
		if link != nil {
			fmt.Fprintf(&b, "📎 *Shortlink:* %s\n", s.shortURL(ctx, *link))
		}
		fmt.Fprintf(&b, "🔗 *Target URL:* %s\n", change.URL)
		fmt.Fprintf(&b, "📌 *Status:* %s\n", statusText)

		if change.NewBlocked && !change.PreviousBlocked && link != nil {
			s.writeNewDestination(ctx, &b, *link)
		}

		fmt.Fprintf(&b, "🕒 *Time:* %s\n\n", change.CreatedAt.Format(alertTimeLayout))
	}

	b.WriteString("✅ Your shortlink service will continue to operate using available active domains.\n")

	return b.String()
}

// writeNewDestination reports where the shortlink points after the
// election triggered by a blocking event. Peek keeps the lookup out of
// the redirect log: an alert is not a visit.
func (s *Scheduler) writeNewDestination(ctx context.Context, b *strings.Builder, link models.Shortlink) {
	resolution, err := s.resolver.Peek(ctx, link.ShortCode, "")
	if err == nil && resolution.Target != nil {
		fmt.Fprintf(b, "🔄 *Automatically redirected to:* %s ✅ (ACTIVE)\n", resolution.URL)
		return
	}
	if err == nil {
		fmt.Fprintf(b, "🔄 *Fallback redirect to:* %s\n", resolution.URL)
		return
	}
	b.WriteString("⚠️ *No active target available*\n")
}

// buildPeriodicDomainReport is the heartbeat report when no transitions
// are pending: the full current state of every monitored domain. Empty
// when the tenant monitors nothing.
func (s *Scheduler) buildPeriodicDomainReport(ctx context.Context, tenant models.Tenant) (string, error) {
	checks, err := s.store.ListDomainChecks(ctx, tenant.ID)
	if err != nil {
		return "", fmt.Errorf("list domain checks: %w", err)
	}
	if len(checks) == 0 {
		return "", nil
	}

	blocked, active := 0, 0
	var b strings.Builder

	b.WriteString("🔎 *Domain Check Report*\n\n")
	fmt.Fprintf(&b, "Hello %s,\n\n", tenant.Name)
	b.WriteString("Here is the current status of your monitored domains:\n\n")
	b.WriteString("📊 *All Domains Status*\n")
	fmt.Fprintf(&b, "Total Domains: %d\n\n", len(checks))

	for i, check := range checks {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, check.Domain, statusIcon(check.Blocked))
		if check.Blocked {
			blocked++
		} else {
			active++
		}
	}

	b.WriteString("\n📌 *Summary:*\n")
	fmt.Fprintf(&b, "• Blocked: %d\n", blocked)
	fmt.Fprintf(&b, "• Active: %d\n", active)
	fmt.Fprintf(&b, "• Total: %d\n", len(checks))

	return b.String(), nil
}

// buildPeriodicShortlinkReport is the heartbeat report over the tenant's
// shortlinks. Empty when the tenant has none.
func (s *Scheduler) buildPeriodicShortlinkReport(ctx context.Context, tenant models.Tenant) (string, error) {
	links, err := s.store.ListShortlinksByTenant(ctx, tenant.ID)
	if err != nil {
		return "", fmt.Errorf("list shortlinks: %w", err)
	}
	if len(links) == 0 {
		return "", nil
	}

	var b strings.Builder

	b.WriteString("📎 *Shortlink Status Report*\n\n")
	fmt.Fprintf(&b, "Hello %s,\n\n", tenant.Name)
	b.WriteString("Here is the current status of your shortlinks:\n\n")

	totalActive, totalBlocked := 0, 0
	for _, link := range links {
		targets, err := s.store.ListTargets(ctx, link.ID)
		if err != nil {
			return "", fmt.Errorf("list targets: %w", err)
		}

		fmt.Fprintf(&b, "📎 *Shortlink:* %s\n", s.shortURL(ctx, link))

		var primary, firstActive *models.Target
		activeCount, blockedCount := 0, 0
		for i := range targets {
			target := &targets[i]
			if target.Blocked {
				blockedCount++
				continue
			}
			activeCount++
			if target.Primary {
				primary = target
			}
			if firstActive == nil {
				firstActive = target
			}
		}

		switch {
		case primary != nil:
			fmt.Fprintf(&b, "   ✅ Primary: %s\n", primary.URL)
		case firstActive != nil:
			fmt.Fprintf(&b, "   ✅ Active: %s\n", firstActive.URL)
		default:
			b.WriteString("   🚫 All targets blocked\n")
		}

		if blockedCount > 0 {
			fmt.Fprintf(&b, "   ⚠️ Blocked: %d target(s)\n", blockedCount)
		}
		b.WriteString("\n")

		if activeCount > 0 {
			totalActive++
		} else {
			totalBlocked++
		}
	}

	b.WriteString("📊 *Summary:*\n")
	fmt.Fprintf(&b, "• Active Shortlinks: %d\n", totalActive)
	fmt.Fprintf(&b, "• Blocked Shortlinks: %d\n", totalBlocked)
	fmt.Fprintf(&b, "• Total: %d\n", len(links))

	return b.String(), nil
}
