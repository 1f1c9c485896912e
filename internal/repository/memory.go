package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ddanshin/shortguard/internal/models"
)

// MemoryStore keeps everything in mutex-guarded maps. It backs the server
// when no database DSN is configured and all package tests.
type MemoryStore struct {
	mu sync.RWMutex

	tenants      map[int64]models.Tenant
	aliases      map[int64]models.Alias
	shortlinks   map[int64]models.Shortlink
	targets      map[int64]models.Target
	domainChecks map[int64]models.DomainCheck
	changes      map[int64]models.StatusChange
	redirectLogs map[int64]models.RedirectLog

	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:      make(map[int64]models.Tenant),
		aliases:      make(map[int64]models.Alias),
		shortlinks:   make(map[int64]models.Shortlink),
		targets:      make(map[int64]models.Target),
		domainChecks: make(map[int64]models.DomainCheck),
		changes:      make(map[int64]models.StatusChange),
		redirectLogs: make(map[int64]models.RedirectLog),
	}
}

func (m *MemoryStore) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant.ID = m.nextIDLocked()
	if tenant.IntervalMinutes <= 0 {
		tenant.IntervalMinutes = 5
	}
	m.tenants[tenant.ID] = *tenant
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id int64) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tenant, nil
}

func (m *MemoryStore) ListNotifiableTenants(_ context.Context) ([]models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Tenant
	for _, tenant := range m.tenants {
		if tenant.NotificationsEnabled && tenant.TelegramChatID != "" {
			out = append(out, tenant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateTenantNotificationSettings(_ context.Context, id int64, enabled bool, chatID string, intervalMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	tenant.NotificationsEnabled = enabled
	tenant.TelegramChatID = chatID
	tenant.IntervalMinutes = intervalMinutes
	m.tenants[id] = tenant
	return nil
}

func (m *MemoryStore) SetTenantLastNotified(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	tenant.LastNotifiedAt = &at
	m.tenants[id] = tenant
	return nil
}

func (m *MemoryStore) CreateAlias(_ context.Context, alias *models.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alias.ID = m.nextIDLocked()
	m.aliases[alias.ID] = *alias
	return nil
}

func (m *MemoryStore) GetAlias(_ context.Context, id int64) (*models.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alias, ok := m.aliases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &alias, nil
}

func (m *MemoryStore) GetAliasByHost(_ context.Context, host string) (*models.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := []string{host, "http://" + host, "https://" + host}

	var best *models.Alias
	for _, alias := range m.aliases {
		for _, candidate := range candidates {
			if strings.EqualFold(alias.CustomDomain, candidate) {
				if best == nil || alias.ID < best.ID {
					a := alias
					best = &a
				}
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *MemoryStore) CreateShortlink(_ context.Context, link *models.Shortlink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.shortlinks {
		if existing.ShortCode == link.ShortCode {
			return ErrConflict
		}
	}

	link.ID = m.nextIDLocked()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	m.shortlinks[link.ID] = *link
	return nil
}

func (m *MemoryStore) GetShortlink(_ context.Context, id int64) (*models.Shortlink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.shortlinks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (m *MemoryStore) GetShortlinkByCode(_ context.Context, shortCode string) (*models.Shortlink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.shortlinks {
		if link.ShortCode == shortCode {
			l := link
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListShortlinksByTenant(_ context.Context, tenantID int64) ([]models.Shortlink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Shortlink
	for _, link := range m.shortlinks {
		if link.TenantID == tenantID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteShortlink(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shortlinks[id]; !ok {
		return ErrNotFound
	}
	delete(m.shortlinks, id)
	for targetID, target := range m.targets {
		if target.ShortlinkID == id {
			delete(m.targets, targetID)
		}
	}
	return nil
}

func (m *MemoryStore) CreateTarget(_ context.Context, target *models.Target, demoteSiblings bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shortlinks[target.ShortlinkID]; !ok {
		return ErrNotFound
	}

	if demoteSiblings {
		for id, sibling := range m.targets {
			if sibling.ShortlinkID == target.ShortlinkID && sibling.Primary {
				sibling.Primary = false
				m.targets[id] = sibling
			}
		}
	}

	target.ID = m.nextIDLocked()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now()
	}
	m.targets[target.ID] = *target
	return nil
}

func (m *MemoryStore) GetTarget(_ context.Context, id int64) (*models.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target, ok := m.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &target, nil
}

func (m *MemoryStore) ListTargets(_ context.Context, shortlinkID int64) ([]models.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Target
	for _, target := range m.targets {
		if target.ShortlinkID == shortlinkID {
			out = append(out, target)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ApplyTargetUpdate(_ context.Context, update TargetUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if update.SetBlocked != nil {
		target, ok := m.targets[update.SetBlocked.TargetID]
		if !ok {
			return ErrNotFound
		}
		target.Blocked = update.SetBlocked.Blocked
		m.targets[target.ID] = target
	}

	if update.ClearPrimary != nil {
		for id, target := range m.targets {
			if target.ShortlinkID == *update.ClearPrimary && target.Primary {
				target.Primary = false
				m.targets[id] = target
			}
		}
	}

	if update.SetPrimary != nil {
		target, ok := m.targets[*update.SetPrimary]
		if !ok {
			return ErrNotFound
		}
		target.Primary = true
		m.targets[target.ID] = target
	}

	if update.Delete != nil {
		if _, ok := m.targets[*update.Delete]; !ok {
			return ErrNotFound
		}
		delete(m.targets, *update.Delete)
	}

	if update.ElectPrimary != nil {
		var targets []models.Target
		for _, target := range m.targets {
			if target.ShortlinkID == *update.ElectPrimary {
				targets = append(targets, target)
			}
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

		successor, needed, err := electPrimary(targets)
		if err != nil {
			return err
		}
		if needed {
			for id, target := range m.targets {
				if target.ShortlinkID == *update.ElectPrimary && target.Primary {
					target.Primary = false
					m.targets[id] = target
				}
			}
			if successor != nil {
				target := m.targets[*successor]
				target.Primary = true
				m.targets[*successor] = target
			}
		}
	}

	if update.Journal != nil {
		change := *update.Journal
		change.ID = m.nextIDLocked()
		if change.CreatedAt.IsZero() {
			change.CreatedAt = time.Now()
		}
		change.Delivered = false
		m.changes[change.ID] = change
	}

	return nil
}

func (m *MemoryStore) CreateDomainCheck(_ context.Context, check *models.DomainCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.domainChecks {
		if existing.TenantID == check.TenantID && existing.Domain == check.Domain {
			return ErrConflict
		}
	}

	check.ID = m.nextIDLocked()
	m.domainChecks[check.ID] = *check
	return nil
}

func (m *MemoryStore) GetDomainCheck(_ context.Context, id int64) (*models.DomainCheck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	check, ok := m.domainChecks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &check, nil
}

func (m *MemoryStore) ListDomainChecks(_ context.Context, tenantID int64) ([]models.DomainCheck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.DomainCheck
	for _, check := range m.domainChecks {
		if check.TenantID == tenantID {
			out = append(out, check)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (m *MemoryStore) SetDomainCheckBlocked(_ context.Context, id int64, blocked bool, journal *models.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	check, ok := m.domainChecks[id]
	if !ok {
		return ErrNotFound
	}
	check.Blocked = blocked
	m.domainChecks[id] = check

	if journal != nil {
		change := *journal
		change.ID = m.nextIDLocked()
		if change.CreatedAt.IsZero() {
			change.CreatedAt = time.Now()
		}
		change.Delivered = false
		m.changes[change.ID] = change
	}
	return nil
}

func (m *MemoryStore) ListUndelivered(_ context.Context, tenantID int64) ([]models.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.StatusChange
	for _, change := range m.changes {
		if change.TenantID == tenantID && !change.Delivered {
			out = append(out, change)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkDelivered(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		change, ok := m.changes[id]
		if !ok {
			continue
		}
		change.Delivered = true
		m.changes[id] = change
	}
	return nil
}

func (m *MemoryStore) InsertRedirectLog(_ context.Context, entry *models.RedirectLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextIDLocked()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.redirectLogs[entry.ID] = *entry
	return nil
}

func (m *MemoryStore) ListRedirectLogs(_ context.Context, shortlinkID int64) ([]models.RedirectLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RedirectLog
	for _, entry := range m.redirectLogs {
		if entry.ShortlinkID == shortlinkID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
