package repository

import (
	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type CompanionRepository struct {
	db *gorm.DB
}

func NewCompanionRepository(db *gorm.DB) *CompanionRepository {
	return &CompanionRepository{db: db}
}

func (r *CompanionRepository) Create(companion *model.Companion) error {
	return r.db.Create(companion).Error
}

func (r *CompanionRepository) GetByID(id int64) (*model.Companion, error) {
	var companion model.Companion
	err := r.db.Where("id = ?", id).First(&companion).Error
	if err != nil {
		return nil, err
	}
	return &companion, nil
}

func (r *CompanionRepository) List() ([]model.Companion, error) {
	var companions []model.Companion
	err := r.db.Order("sort_order, id").Find(&companions).Error
	return companions, err
}

func (r *CompanionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.Companion{}).Count(&count).Error
	return count, err
}
