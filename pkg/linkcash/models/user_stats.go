package models

import "time"

// UserStats aggregates counters across every link a user owns.
type UserStats struct {
	UserID        string    `gorm:"primaryKey;size:128" json:"user_id" validate:"required"`
	TotalLinks    int64     `gorm:"not null" json:"total_links"`
	TotalClicks   int64     `gorm:"not null" json:"total_clicks"`
	TotalEarnings float64   `gorm:"not null" json:"total_earnings"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the table name for UserStats
func (UserStats) TableName() string {
	return "user_stats"
}
