package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

// TestUser 创建测试用户（带零余额行）
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{
		Username:           fmt.Sprintf("testuser_%d", time.Now().UnixNano()%1000000),
		Email:              fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		PasswordHash:       "$2a$10$abcdefghijklmnopqrstuvwxyz123456", // bcrypt hash placeholder
		Plan:               model.PlanFree,
		BillingCycle:       model.CycleNone,
		SubscriptionStatus: model.SubStatusNone,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	if err := db.Create(&model.CreditBalance{UserID: user.ID}).Error; err != nil {
		t.Fatalf("Failed to create test balance: %v", err)
	}

	return user
}

// WithPlan 设置套餐和订阅状态
func WithPlan(plan, status, cycle string) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
		u.SubscriptionStatus = status
		u.BillingCycle = cycle
	}
}

// WithTrialUsed 标记试用已用
func WithTrialUsed() func(*model.User) {
	return func(u *model.User) {
		u.TrialUsed = true
	}
}

// WithTrial 设置试用窗口
func WithTrial(startedAt, expiresAt time.Time) func(*model.User) {
	return func(u *model.User) {
		u.TrialUsed = true
		u.TrialStartedAt = &startedAt
		u.TrialExpiresAt = &expiresAt
	}
}

// WithPeriodEnd 设置当前计费周期结束时间
func WithPeriodEnd(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.CurrentPeriodEnd = &at
	}
}

// WithScheduledDowngrade 设置预定降级时间
func WithScheduledDowngrade(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.ScheduledDowngradeAt = &at
	}
}

// GrantCredits 通过流水+余额写入积分，保持两者一致
func GrantCredits(t *testing.T, db *gorm.DB, userID int64, pool string, amount int) {
	t.Helper()

	entry := &model.CreditLedgerEntry{
		UserID: userID,
		Pool:   pool,
		Delta:  amount,
		Reason: "test_grant",
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("Failed to create test ledger entry: %v", err)
	}

	var column string
	switch pool {
	case model.PoolMonthly:
		column = "monthly_remaining"
	case model.PoolTopup:
		column = "topup_remaining"
	case model.PoolTrial:
		column = "trial_remaining"
	default:
		t.Fatalf("Unknown pool: %s", pool)
	}

	err := db.Model(&model.CreditBalance{}).Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", amount)).Error
	if err != nil {
		t.Fatalf("Failed to update test balance: %v", err)
	}
}

// TestCompanion 创建测试伴侣
func TestCompanion(t *testing.T, db *gorm.DB, name, requiredPlan string) *model.Companion {
	t.Helper()

	companion := &model.Companion{
		Name:         name,
		RequiredPlan: requiredPlan,
	}

	if err := db.Create(companion).Error; err != nil {
		t.Fatalf("Failed to create test companion: %v", err)
	}

	return companion
}

// GetBalance 读取余额行
func GetBalance(t *testing.T, db *gorm.DB, userID int64) *model.CreditBalance {
	t.Helper()

	var balance model.CreditBalance
	if err := db.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		t.Fatalf("Failed to load test balance: %v", err)
	}
	return &balance
}
