package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 返回绑定到事务的副本
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 行锁读取，用于事务内的状态迁移
func (r *UserRepository) GetByIDForUpdate(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(username string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ListScheduledDowngrades 查询降级时间已到的用户
func (r *UserRepository) ListScheduledDowngrades(now time.Time) ([]model.User, error) {
	var users []model.User
	err := r.db.Where("scheduled_downgrade_at IS NOT NULL AND scheduled_downgrade_at <= ?", now).
		Find(&users).Error
	return users, err
}

// ListPastDueBeyondGrace 查询 past_due 且周期结束已超过宽限期的用户
func (r *UserRepository) ListPastDueBeyondGrace(cutoff time.Time) ([]model.User, error) {
	var users []model.User
	err := r.db.Where("subscription_status = ? AND current_period_end IS NOT NULL AND current_period_end <= ?",
		model.SubStatusPastDue, cutoff).
		Find(&users).Error
	return users, err
}

// ListExpiredTrials 查询试用窗口已结束但仍留有试用积分的用户
func (r *UserRepository) ListExpiredTrials(now time.Time) ([]model.User, error) {
	var users []model.User
	err := r.db.
		Joins("JOIN credit_balances ON credit_balances.user_id = users.id").
		Where("users.trial_expires_at IS NOT NULL AND users.trial_expires_at <= ? AND credit_balances.trial_remaining > 0", now).
		Find(&users).Error
	return users, err
}
