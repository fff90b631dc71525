package models

import "time"

// Device classes produced by user agent parsing.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Unknown is the bucket used when a dimension could not be derived.
const Unknown = "unknown"

// Click is one immutable redirect event. The click log is the source of
// truth from which every counter can be recomputed.
type Click struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	LinkID      string    `gorm:"size:36;not null;index:idx_clicks_link_time,priority:1" json:"link_id" validate:"required"`
	OwnerID     string    `gorm:"size:128;not null;index" json:"owner_id" validate:"required"`
	OccurredAt  time.Time `gorm:"not null;index:idx_clicks_link_time,priority:2" json:"timestamp" validate:"required"`
	IP          string    `gorm:"size:64" json:"ip" validate:"max=64"`
	UserAgent   string    `gorm:"type:text" json:"user_agent"`
	Referer     string    `gorm:"type:text" json:"referer"`
	Browser     string    `gorm:"size:64;not null" json:"browser" validate:"required,max=64"`
	OS          string    `gorm:"size:64;not null" json:"os" validate:"required,max=64"`
	Device      string    `gorm:"size:16;not null" json:"device" validate:"oneof=desktop mobile tablet bot unknown"`
	Country     string    `gorm:"size:64;not null" json:"country" validate:"required,max=64"`
	City        string    `gorm:"size:128" json:"city,omitempty" validate:"max=128"`
	VisitorHash string    `gorm:"size:64;not null" json:"-" validate:"required"`
	Earned      float64   `gorm:"not null" json:"earned" validate:"gte=0"`
}
