package dto

// 已验签的支付服务商事件类型
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// checkout 模式
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment" // 一次性补充包购买
)

// PaymentEvent 支付服务商回调事件（at-least-once 投递，靠 external id 去重）
type PaymentEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data PaymentEventData `json:"data"`
}

// PaymentEventData 事件载荷，不同类型只用到部分字段
type PaymentEventData struct {
	UserID         int64  `json:"user_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Plan           string `json:"plan,omitempty"`
	BillingCycle   string `json:"billing_cycle,omitempty"`
	PeriodEnd      int64  `json:"period_end,omitempty"` // unix 秒
	Credits        int    `json:"credits,omitempty"`    // 补充包积分数
}
