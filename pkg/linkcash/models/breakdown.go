package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Dimension names a breakdown axis
type Dimension string

const (
	DimensionCountry Dimension = "country"
	DimensionBrowser Dimension = "browser"
)

// MaxBreakdownKeyLength bounds the key a dimension value is counted under.
const MaxBreakdownKeyLength = 64

// BreakdownKey is the key a dimension value is counted under: its first
// word ("Windows 10" counts as "Windows"), cut to MaxBreakdownKeyLength
// runes. Blank values count as Unknown. The recorder, the fold and
// reconciliation all key through here.
func BreakdownKey(v string) string {
	fields := strings.Fields(strings.ToValidUTF8(v, ""))
	if len(fields) == 0 {
		return Unknown
	}
	return TruncateRunes(fields[0], MaxBreakdownKeyLength)
}

// TruncateRunes cuts v to at most n runes.
func TruncateRunes(v string, n int) string {
	if utf8.RuneCountInString(v) <= n {
		return v
	}
	return string([]rune(v)[:n])
}

// Breakdown is a per-link counter for one key of one dimension.
// Its clicks may lag the link's total but never exceed it.
type Breakdown struct {
	ID           uint      `gorm:"primarykey" json:"-"`
	LinkID       string    `gorm:"size:36;not null;uniqueIndex:idx_breakdown_key,priority:1" json:"link_id" validate:"required"`
	Dimension    Dimension `gorm:"type:varchar(16);not null;uniqueIndex:idx_breakdown_key,priority:2" json:"dimension" validate:"oneof=country browser"`
	DimensionKey string    `gorm:"size:128;not null;uniqueIndex:idx_breakdown_key,priority:3" json:"key" validate:"required,max=128"`
	Clicks       int64     `gorm:"not null" json:"clicks" validate:"gte=0"`
	Earnings     float64   `gorm:"not null" json:"earnings" validate:"gte=0"`
	FirstSeenAt  time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt   time.Time `gorm:"not null" json:"last_seen_at"`
}

// TableName keeps the table name independent of the struct name
func (Breakdown) TableName() string {
	return "link_breakdowns"
}

// LinkVisitor marks that a visitor hash has been seen on a link
type LinkVisitor struct {
	LinkID      string    `gorm:"primaryKey;size:36" json:"link_id" validate:"required"`
	VisitorHash string    `gorm:"primaryKey;size:64" json:"visitor_hash" validate:"required"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
}
