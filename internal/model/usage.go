package model

import (
	"time"
)

// FeatureUsage 按 (用户, 伴侣, 功能, 自然日) 维度计数，同一功能在不同伴侣下独立计数
type FeatureUsage struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;uniqueIndex:uk_usage_key" json:"user_id"`
	CompanionID int64     `gorm:"not null;uniqueIndex:uk_usage_key" json:"companion_id"`
	Feature     string    `gorm:"size:50;not null;uniqueIndex:uk_usage_key" json:"feature"`
	Day         string    `gorm:"size:10;not null;uniqueIndex:uk_usage_key" json:"day"` // YYYY-MM-DD (UTC)
	Used        int       `gorm:"default:0" json:"used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FeatureUsage) TableName() string {
	return "feature_usages"
}

// UsageDay 自然日键，统一用 UTC
func UsageDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
