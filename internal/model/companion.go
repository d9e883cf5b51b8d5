package model

import (
	"time"
)

// Companion 伴侣角色，RequiredPlan 决定可见性门槛
type Companion struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Tagline      string    `gorm:"size:200" json:"tagline"`
	RequiredPlan string    `gorm:"size:20;not null;default:free" json:"required_plan"`
	SortOrder    int       `gorm:"default:0" json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Companion) TableName() string {
	return "companions"
}

// AccessibleBy 按访问等级判断可见性
func (c *Companion) AccessibleBy(accessTier string) bool {
	return PlanRank(c.RequiredPlan) <= PlanRank(accessTier)
}
