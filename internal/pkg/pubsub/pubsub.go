package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelCreditUpdates = "credit_updates"
)

// 消息类型
const (
	TypeBalanceUpdate = "balance_update"
	TypeDriftAlert    = "reconciliation_drift" // 运维告警，不面向终端用户
)

// CreditMessage 积分变更 / 对账漂移消息
type CreditMessage struct {
	Type    string         `json:"type"`
	UserID  int64          `json:"user_id"`
	Monthly int            `json:"monthly"`
	Topup   int            `json:"topup"`
	Trial   int            `json:"trial"`
	Reason  string         `json:"reason,omitempty"`
	Drift   map[string]int `json:"drift,omitempty"` // 池 -> 物化值与流水和之差
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布积分消息
func (p *Publisher) Publish(ctx context.Context, msg *CreditMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal credit message: %w", err)
	}

	return p.client.Publish(ctx, ChannelCreditUpdates, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅积分消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*CreditMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelCreditUpdates)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var creditMsg CreditMessage
			if err := json.Unmarshal([]byte(msg.Payload), &creditMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&creditMsg)
		}
	}
}
