package model

import (
	"time"
)

// 积分池，消费时按 monthly -> topup -> trial 固定顺序扣减
const (
	PoolMonthly = "monthly"
	PoolTopup   = "topup"
	PoolTrial   = "trial"
)

// SpendOrder 扣减顺序
var SpendOrder = []string{PoolMonthly, PoolTopup, PoolTrial}

// 流水原因
const (
	ReasonSignupBonus   = "signup_bonus"
	ReasonMonthlyReset  = "monthly_reset"
	ReasonTopupPurchase = "topup_purchase"
	ReasonTrialGrant    = "trial_grant"
	ReasonTrialRevoke   = "trial_revoke"
	ReasonSpend         = "spend"
)

// CreditBalance 物化余额，始终可由流水重算得出，流水为唯一事实来源
type CreditBalance struct {
	ID                 int64      `gorm:"primaryKey" json:"id"`
	UserID             int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	MonthlyRemaining   int        `gorm:"default:0" json:"monthly_remaining"`
	TopupRemaining     int        `gorm:"default:0" json:"topup_remaining"`
	TrialRemaining     int        `gorm:"default:0" json:"trial_remaining"`
	LastMonthlyResetAt *time.Time `json:"last_monthly_reset_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}

// Pool 按池名取余额
func (b *CreditBalance) Pool(pool string) int {
	switch pool {
	case PoolMonthly:
		return b.MonthlyRemaining
	case PoolTopup:
		return b.TopupRemaining
	case PoolTrial:
		return b.TrialRemaining
	}
	return 0
}

// Total 三池合计
func (b *CreditBalance) Total() int {
	return b.MonthlyRemaining + b.TopupRemaining + b.TrialRemaining
}

// CreditLedgerEntry 积分流水，只追加，永不修改或删除
type CreditLedgerEntry struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Pool      string    `gorm:"size:20;not null;index" json:"pool"`
	Delta     int       `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"size:50;not null" json:"reason"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"` // JSON，引擎不解释内容
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger_entries"
}
