package model

import (
	"time"
)

// 防滥用指标类型
const (
	AbuseKindIP          = "ip"
	AbuseKindFingerprint = "fingerprint"
)

// AntiAbuseRecord 按 IP / 设备指纹统计赠送次数，只增不删
type AntiAbuseRecord struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Kind         string    `gorm:"size:20;not null;uniqueIndex:uk_abuse_kind_value" json:"kind"`
	Value        string    `gorm:"size:100;not null;uniqueIndex:uk_abuse_kind_value" json:"value"`
	AttemptCount int       `gorm:"default:0" json:"attempt_count"` // 所有尝试，含被拒绝的
	GrantCount   int       `gorm:"default:0" json:"grant_count"`   // 实际放行的赠送
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

func (AntiAbuseRecord) TableName() string {
	return "anti_abuse_records"
}
