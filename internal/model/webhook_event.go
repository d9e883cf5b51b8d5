package model

import (
	"time"
)

// WebhookEvent 已处理的支付事件，行存在即表示已应用（唯一幂等机制）
type WebhookEvent struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	ExternalEventID string    `gorm:"size:100;uniqueIndex;not null" json:"external_event_id"`
	Type            string    `gorm:"size:100;not null;index" json:"type"`
	Payload         string    `gorm:"type:text" json:"payload"`
	ProcessedAt     time.Time `gorm:"not null" json:"processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
