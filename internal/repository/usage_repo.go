package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// WithTx 返回绑定到事务的副本
func (r *UsageRepository) WithTx(tx *gorm.DB) *UsageRepository {
	return &UsageRepository{db: tx}
}

// GetUsed 查询某 (用户, 伴侣, 功能, 日) 的已用次数，无记录返回 0
func (r *UsageRepository) GetUsed(userID, companionID int64, feature, day string) (int, error) {
	var usage model.FeatureUsage
	err := r.db.Where("user_id = ? AND companion_id = ? AND feature = ? AND day = ?",
		userID, companionID, feature, day).First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Used, nil
}

// GetUsedForUpdate 行锁读取计数，配合唯一索引保证并发下不超限
func (r *UsageRepository) GetUsedForUpdate(userID, companionID int64, feature, day string) (int, error) {
	var usage model.FeatureUsage
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND companion_id = ? AND feature = ? AND day = ?",
			userID, companionID, feature, day).First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Used, nil
}

// Increment 累加计数，首次使用时插入
func (r *UsageRepository) Increment(userID, companionID int64, feature, day string, amount int) error {
	result := r.db.Model(&model.FeatureUsage{}).
		Where("user_id = ? AND companion_id = ? AND feature = ? AND day = ?",
			userID, companionID, feature, day).
		Update("used", gorm.Expr("used + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	return r.db.Create(&model.FeatureUsage{
		UserID:      userID,
		CompanionID: companionID,
		Feature:     feature,
		Day:         day,
		Used:        amount,
	}).Error
}

// SumByFeature 汇总某用户当日各功能用量（跨伴侣）
func (r *UsageRepository) SumByFeature(userID int64, day string) (map[string]int, error) {
	type row struct {
		Feature string
		Sum     int
	}
	var rows []row
	err := r.db.Model(&model.FeatureUsage{}).
		Select("feature, COALESCE(SUM(used), 0) as sum").
		Where("user_id = ? AND day = ?", userID, day).
		Group("feature").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[string]int, len(rows))
	for _, r := range rows {
		sums[r.Feature] = r.Sum
	}
	return sums, nil
}
