package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/middleware"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// EntitlementsHandler 权益快照接口
type EntitlementsHandler struct {
	entitlementsService *service.EntitlementsService
}

func NewEntitlementsHandler(entitlementsService *service.EntitlementsService) *EntitlementsHandler {
	return &EntitlementsHandler{entitlementsService: entitlementsService}
}

// GetEntitlements GET /api/v1/entitlements
func (h *EntitlementsHandler) GetEntitlements(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	snapshot, err := h.entitlementsService.Snapshot(userID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, snapshot)
}

// ListCompanions GET /api/v1/companions
// 可见性随当前用户层级计算
func (h *EntitlementsHandler) ListCompanions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	snapshot, err := h.entitlementsService.Snapshot(userID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"companions": snapshot.Companions})
}
