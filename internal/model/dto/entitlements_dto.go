package dto

// EntitlementsSnapshot 某一时刻的权益快照，只读值，计算后不再变化
// access_tier 决定可见范围（可被试用临时提升），limit_tier 决定数值上限（始终为付费套餐）
type EntitlementsSnapshot struct {
	AccessTier string                  `json:"access_tier"`
	LimitTier  string                  `json:"limit_tier"`
	Trial      TrialInfo               `json:"trial"`
	Credits    CreditInfo              `json:"credits"`
	Features   map[string]FeatureQuota `json:"features"`
	Companions []CompanionAccess       `json:"companions"`
}

// TrialInfo 试用状态
type TrialInfo struct {
	Active           bool   `json:"active"`
	ExpiresAt        string `json:"expires_at,omitempty"` // RFC3339
	CreditsRemaining int    `json:"credits_remaining"`
}

// CreditInfo 各池余额
type CreditInfo struct {
	Monthly int `json:"monthly"`
	Topup   int `json:"topup"`
	Trial   int `json:"trial"`
	Total   int `json:"total"`
}

// FeatureQuota 功能每日用量，limit 为 0 表示不限
type FeatureQuota struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// CompanionAccess 伴侣可见性
type CompanionAccess struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Tagline      string `json:"tagline,omitempty"`
	RequiredPlan string `json:"required_plan"`
	Accessible   bool   `json:"accessible"`
}
