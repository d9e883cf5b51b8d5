package model

import (
	"time"
)

// 订阅套餐
const (
	PlanFree  = "free"
	PlanBasic = "basic"
	PlanPro   = "pro"
)

// 订阅状态
const (
	SubStatusNone     = "none"
	SubStatusActive   = "active"
	SubStatusPastDue  = "past_due"
	SubStatusCanceled = "canceled"
)

// 计费周期
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
	CycleNone    = "none"
)

var planRanks = map[string]int{
	PlanFree:  0,
	PlanBasic: 1,
	PlanPro:   2,
}

// PlanRank 套餐等级序号，未知套餐视为 free
func PlanRank(plan string) int {
	return planRanks[plan]
}

type User struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	Username               string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email                  string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash           string     `gorm:"size:255" json:"-"`
	Plan                   string     `gorm:"size:20;default:free;index" json:"plan"`
	BillingCycle           string     `gorm:"size:20;default:none" json:"billing_cycle"`
	SubscriptionStatus     string     `gorm:"size:20;default:none;index" json:"subscription_status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	ScheduledDowngradeAt   *time.Time `gorm:"index" json:"scheduled_downgrade_at,omitempty"`
	TrialUsed              bool       `gorm:"default:false" json:"trial_used"` // 单向标记，置位后不再复位
	TrialStartedAt         *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt         *time.Time `gorm:"index" json:"trial_expires_at,omitempty"`
	ProviderCustomerID     *string    `gorm:"size:100;index" json:"-"`
	ProviderSubscriptionID *string    `gorm:"size:100" json:"-"`
	SignupIP               string     `gorm:"size:50" json:"-"`
	SignupFingerprint      string     `gorm:"size:100" json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// TrialActive 试用是否生效，仅由时间窗口决定，与剩余试用积分无关
func (u *User) TrialActive(now time.Time) bool {
	return u.TrialExpiresAt != nil && now.Before(*u.TrialExpiresAt)
}
