package models

import "time"

// LinkStatus is the lifecycle state of a link.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusDisabled LinkStatus = "disabled"
	LinkStatusExpired  LinkStatus = "expired"
)

// DefaultRedirectDelay is the interstitial delay in seconds for new links.
const DefaultRedirectDelay = 10

// LinkSettings holds owner-controlled presentation settings
type LinkSettings struct {
	RedirectDelay int    `gorm:"not null" json:"redirect_delay" validate:"gte=0,lte=120"`
	PasswordHash  string `json:"-"`
	AdEnabled     bool   `gorm:"not null" json:"ad_enabled"`
}

// LinkAnalytics is the denormalized counter snapshot kept on the link row.
// It only moves forward, except when a reconciliation repair overwrites it.
type LinkAnalytics struct {
	Clicks         int64      `gorm:"not null" json:"clicks" validate:"gte=0"`
	UniqueVisitors int64      `gorm:"not null" json:"unique_visitors" validate:"gte=0"`
	Earnings       float64    `gorm:"not null" json:"earnings" validate:"gte=0"`
	LastClickedAt  *time.Time `json:"last_clicked_at,omitempty"`
}

// Link represents a shortened URL
type Link struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	OwnerID   string     `gorm:"size:128;not null;index" json:"owner_id" validate:"required,max=128"`
	URL       string     `gorm:"type:text;not null" json:"url" validate:"required,url"`
	Code      string     `gorm:"size:64;uniqueIndex;not null" json:"code" validate:"required,max=64"`
	Title     string     `json:"title" validate:"max=255"`
	Status    LinkStatus `gorm:"type:varchar(16);not null;index" json:"status" validate:"oneof=active disabled expired"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Settings  LinkSettings  `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	Analytics LinkAnalytics `gorm:"embedded;embeddedPrefix:analytics_" json:"analytics"`

	// OwnerCounted is flipped once the owner's total_links has been incremented.
	OwnerCounted bool `gorm:"not null" json:"-"`
}

// EffectiveStatus derives the status as of now. A link whose expiry has
// passed is expired regardless of what is stored.
func (l *Link) EffectiveStatus(now time.Time) LinkStatus {
	if l.Status == LinkStatusExpired {
		return LinkStatusExpired
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return LinkStatusExpired
	}
	return l.Status
}

// HasPassword reports whether the link is password gated.
func (l *Link) HasPassword() bool {
	return l.Settings.PasswordHash != ""
}
