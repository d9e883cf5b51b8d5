package dto

// SpendRequest 消费请求
type SpendRequest struct {
	Feature     string `json:"feature" binding:"required,max=50"`
	CompanionID int64  `json:"companion_id" binding:"required,min=1"`
	Amount      int    `json:"amount,omitempty" binding:"omitempty,min=1,max=100"`
}

// SpendResponse 消费响应
type SpendResponse struct {
	Success         bool           `json:"success"`
	DeductedByPool  map[string]int `json:"deducted_by_pool"`
	RemainingByPool map[string]int `json:"remaining_by_pool"`
	FeatureUsed     int            `json:"feature_used"`
}

// LedgerEntryItem 流水列表项
type LedgerEntryItem struct {
	ID        int64  `json:"id"`
	Pool      string `json:"pool"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}
