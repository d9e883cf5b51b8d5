package api

import (
	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/handler"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/middleware"
)

type Router struct {
	authHandler         *handler.AuthHandler
	entitlementsHandler *handler.EntitlementsHandler
	creditHandler       *handler.CreditHandler
	trialHandler        *handler.TrialHandler
	webhookHandler      *handler.WebhookHandler
	wsHandler           *handler.WSHandler
	cfg                 *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	entitlementsHandler *handler.EntitlementsHandler,
	creditHandler *handler.CreditHandler,
	trialHandler *handler.TrialHandler,
	webhookHandler *handler.WebhookHandler,
	wsHandler *handler.WSHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:         authHandler,
		entitlementsHandler: entitlementsHandler,
		creditHandler:       creditHandler,
		trialHandler:        trialHandler,
		webhookHandler:      webhookHandler,
		wsHandler:           wsHandler,
		cfg:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	// 支付回调不走 /api/v1 也不走业务码封装，状态码直接面向服务商
	engine.POST("/webhooks/payments", r.webhookHandler.HandlePaymentEvent)

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// WebSocket 推送
			authenticated.GET("/ws", r.wsHandler.Connect)

			// 权益
			authenticated.GET("/entitlements", r.entitlementsHandler.GetEntitlements)
			authenticated.GET("/companions", r.entitlementsHandler.ListCompanions)

			// 积分
			credits := authenticated.Group("/credits")
			{
				credits.POST("/spend", r.creditHandler.Spend)
				credits.GET("/ledger", r.creditHandler.Ledger)
			}

			// 试用
			authenticated.POST("/trial/start", r.trialHandler.Start)
		}
	}

	return engine
}
