package repository

import (
	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// WithTx 返回绑定到事务的副本
func (r *WebhookRepository) WithTx(tx *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: tx}
}

// Exists 判断事件是否已应用过
func (r *WebhookRepository) Exists(externalEventID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.WebhookEvent{}).
		Where("external_event_id = ?", externalEventID).Count(&count).Error
	return count > 0, err
}

// Create 记录已应用的事件，与状态迁移同一事务提交
func (r *WebhookRepository) Create(event *model.WebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *WebhookRepository) GetByExternalID(externalEventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.Where("external_event_id = ?", externalEventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
