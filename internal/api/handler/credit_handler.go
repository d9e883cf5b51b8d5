package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/middleware"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// CreditHandler 积分消费与流水接口
type CreditHandler struct {
	usageService  *service.UsageService
	creditService *service.CreditService
}

func NewCreditHandler(usageService *service.UsageService, creditService *service.CreditService) *CreditHandler {
	return &CreditHandler{
		usageService:  usageService,
		creditService: creditService,
	}
}

// Spend POST /api/v1/credits/spend
func (h *CreditHandler) Spend(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	resp, err := h.usageService.Use(userID, req.CompanionID, req.Feature, req.Amount, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownFeature):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrCompanionNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrCompanionLocked):
			response.CompanionLockedError(c, "")
		case errors.Is(err, service.ErrFeatureLimitReached):
			response.FeatureLimitError(c, "")
		case errors.Is(err, service.ErrInsufficientCredits):
			response.CreditsError(c, "")
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// Ledger GET /api/v1/credits/ledger?page=1&page_size=20
func (h *CreditHandler) Ledger(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.creditService.ListLedger(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	items := make([]dto.LedgerEntryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.LedgerEntryItem{
			ID:        e.ID,
			Pool:      e.Pool,
			Delta:     e.Delta,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
