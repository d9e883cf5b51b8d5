package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/signature"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// SignatureHeader 支付服务商签名头
const SignatureHeader = "X-Payment-Signature"

// WebhookHandler 支付回调入口。这组接口面向支付服务商而不是前端，
// 用真实 HTTP 状态码驱动对方的重投策略：2xx 确认、4xx 丢弃、5xx 重投。
type WebhookHandler struct {
	subscriptionService *service.SubscriptionService
	webhookSecret       string
}

func NewWebhookHandler(subscriptionService *service.SubscriptionService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
		webhookSecret:       webhookSecret,
	}
}

// HandlePaymentEvent POST /webhooks/payments
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	// 验签在解析之前，签名不对的载荷一个字节都不信
	sig := c.GetHeader(SignatureHeader)
	if !signature.Verify(h.webhookSecret, raw, sig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event dto.PaymentEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	err = h.subscriptionService.HandleEvent(c.Request.Context(), raw, &event)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrDuplicateEvent):
		// 重投按成功应答，避免无限重试
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
	case errors.Is(err, service.ErrEventUserMissing),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrUnknownPlan),
		errors.Is(err, service.ErrInvalidAmount):
		// 载荷本身有问题，重投也不会变好
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("Webhook event %s failed: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
