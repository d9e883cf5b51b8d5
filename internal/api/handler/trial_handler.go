package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/middleware"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// TrialHandler 一次性试用接口
type TrialHandler struct {
	trialService *service.TrialService
}

func NewTrialHandler(trialService *service.TrialService) *TrialHandler {
	return &TrialHandler{trialService: trialService}
}

// Start POST /api/v1/trial/start
func (h *TrialHandler) Start(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	user, err := h.trialService.Start(userID, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTrialAlreadyUsed):
			response.TrialUsedError(c, "")
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, gin.H{
		"trial_started_at": user.TrialStartedAt.UTC().Format(time.RFC3339),
		"trial_expires_at": user.TrialExpiresAt.UTC().Format(time.RFC3339),
	})
}
