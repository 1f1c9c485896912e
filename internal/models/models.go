package models

import "time"

// ChangeKind discriminates journal rows.
type ChangeKind string

const (
	ChangeKindTargetURL   ChangeKind = "target_url"
	ChangeKindDomainCheck ChangeKind = "domain_check"
)

type Tenant struct {
	ID                   int64      `db:"id"`
	Name                 string     `db:"name"`
	NotificationsEnabled bool       `db:"notifications_enabled"`
	TelegramChatID       string     `db:"telegram_chat_id"`
	IntervalMinutes      int        `db:"interval_minutes"`
	LastNotifiedAt       *time.Time `db:"last_notified_at"`
}

type Shortlink struct {
	ID        int64     `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	ShortCode string    `db:"short_code"`
	AliasID   *int64    `db:"alias_id"`
	LegacyURL string    `db:"legacy_url"`
	CreatedAt time.Time `db:"created_at"`
}

type Target struct {
	ID          int64     `db:"id"`
	ShortlinkID int64     `db:"shortlink_id"`
	URL         string    `db:"url"`
	Blocked     bool      `db:"blocked"`
	Primary     bool      `db:"is_primary"`
	CreatedAt   time.Time `db:"created_at"`
}

type Alias struct {
	ID           int64  `db:"id"`
	CustomDomain string `db:"custom_domain"`
	FallbackURL  string `db:"fallback_url"`
}

type DomainCheck struct {
	ID       int64  `db:"id"`
	TenantID int64  `db:"tenant_id"`
	Domain   string `db:"domain"`
	Blocked  bool   `db:"blocked"`
}

// StatusChange is one journal row. Rows are append-only; only Delivered
// ever changes after insert.
type StatusChange struct {
	ID              int64      `db:"id"`
	TenantID        int64      `db:"tenant_id"`
	Kind            ChangeKind `db:"kind"`
	ShortlinkID     *int64     `db:"shortlink_id"`
	TargetID        *int64     `db:"target_id"`
	DomainCheckID   *int64     `db:"domain_check_id"`
	Domain          string     `db:"domain"`
	URL             string     `db:"url"`
	PreviousBlocked bool       `db:"previous_blocked"`
	NewBlocked      bool       `db:"new_blocked"`
	Delivered       bool       `db:"delivered"`
	CreatedAt       time.Time  `db:"created_at"`
}

type RedirectLog struct {
	ID              int64     `db:"id"`
	ShortlinkID     int64     `db:"shortlink_id"`
	IP              string    `db:"ip"`
	Country         string    `db:"country"`
	Referrer        string    `db:"referrer"`
	Browser         string    `db:"browser"`
	BrowserVersion  string    `db:"browser_version"`
	Platform        string    `db:"platform"`
	PlatformVersion string    `db:"platform_version"`
	DeviceType      string    `db:"device_type"`
	CreatedAt       time.Time `db:"created_at"`
}

type CreateShortlinkRequest struct {
	TenantID  int64  `json:"tenant_id"`
	ShortCode string `json:"short_code,omitempty"`
	TargetURL string `json:"target_url"`
	AliasID   *int64 `json:"alias_id,omitempty"`
}

type CreateShortlinkResponse struct {
	ID       int64  `json:"id"`
	ShortURL string `json:"short_url"`
}

type AddTargetRequest struct {
	URL     string `json:"url"`
	Primary bool   `json:"primary,omitempty"`
}

type TargetResponse struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Blocked bool   `json:"blocked"`
	Primary bool   `json:"primary"`
}

type SetBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

type CreateDomainCheckRequest struct {
	TenantID int64  `json:"tenant_id"`
	Domain   string `json:"domain"`
}

type CreateDomainCheckResponse struct {
	ID int64 `json:"id"`
}

type NotificationSettingsRequest struct {
	Enabled         bool   `json:"enabled"`
	TelegramChatID  string `json:"telegram_chat_id"`
	IntervalMinutes int    `json:"interval_minutes"`
}
