package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type AntiAbuseRepository struct {
	db *gorm.DB
}

func NewAntiAbuseRepository(db *gorm.DB) *AntiAbuseRepository {
	return &AntiAbuseRepository{db: db}
}

// WithTx 返回绑定到事务的副本
func (r *AntiAbuseRepository) WithTx(tx *gorm.DB) *AntiAbuseRepository {
	return &AntiAbuseRepository{db: tx}
}

// Get 查询指标记录，不存在返回 nil
func (r *AntiAbuseRepository) Get(kind, value string) (*model.AntiAbuseRecord, error) {
	var record model.AntiAbuseRecord
	err := r.db.Where("kind = ? AND value = ?", kind, value).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Touch 记录一次尝试，granted 为真时同时累计放行次数。
// upsert 走唯一索引，并发注册同一指标不会互相覆盖计数
func (r *AntiAbuseRepository) Touch(kind, value string, granted bool, now time.Time) error {
	grantDelta := 0
	if granted {
		grantDelta = 1
	}

	record := model.AntiAbuseRecord{
		Kind:         kind,
		Value:        value,
		AttemptCount: 1,
		GrantCount:   grantDelta,
		FirstSeen:    now,
		LastSeen:     now,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "value"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"grant_count":   gorm.Expr("grant_count + ?", grantDelta),
			"last_seen":     now,
		}),
	}).Create(&record).Error
}
