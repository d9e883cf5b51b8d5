package main

import (
	"context"
	"fmt"
	"log"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/handler"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/database"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/pubsub"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/queue"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/ws"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue 和 Pub/Sub
	billingQueue := queue.NewQueue(rdb, cfg.Queue.BillingQueue)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 初始化 WebSocket Hub，订阅余额变更并推给在线用户
	wsHub := ws.NewHub()
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.CreditMessage) {
			wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil {
			log.Printf("Credit updates subscription stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	companionRepo := repository.NewCompanionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	abuseRepo := repository.NewAntiAbuseRepository(db)

	// 伴侣目录按配置初始化
	if err := seedCompanions(companionRepo, cfg); err != nil {
		log.Fatalf("Failed to seed companions: %v", err)
	}

	// 初始化 Service
	creditService := service.NewCreditService(db, creditRepo, publisher)
	antiAbuseService := service.NewAntiAbuseService(db, abuseRepo, cfg)
	authService := service.NewAuthService(db, userRepo, creditRepo, creditService, antiAbuseService, cfg)
	entitlementsService := service.NewEntitlementsService(userRepo, creditRepo, companionRepo, usageRepo, cfg)
	usageService := service.NewUsageService(db, userRepo, companionRepo, usageRepo, creditService, cfg)
	trialService := service.NewTrialService(db, userRepo, creditService, cfg)
	subscriptionService := service.NewSubscriptionService(db, userRepo, webhookRepo, creditService, billingQueue, cfg)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	entitlementsHandler := handler.NewEntitlementsHandler(entitlementsService)
	creditHandler := handler.NewCreditHandler(usageService, creditService)
	trialHandler := handler.NewTrialHandler(trialService)
	webhookHandler := handler.NewWebhookHandler(subscriptionService, cfg.Billing.WebhookSecret)
	wsHandler := handler.NewWSHandler(wsHub)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		entitlementsHandler,
		creditHandler,
		trialHandler,
		webhookHandler,
		wsHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// seedCompanions 首次启动按配置建伴侣目录，已有数据则不动
func seedCompanions(companionRepo *repository.CompanionRepository, cfg *config.Config) error {
	count, err := companionRepo.Count()
	if err != nil {
		return err
	}
	if count > 0 || len(cfg.Companions) == 0 {
		return nil
	}

	for _, seed := range cfg.Companions {
		companion := &model.Companion{
			Name:         seed.Name,
			Tagline:      seed.Tagline,
			RequiredPlan: seed.RequiredPlan,
			SortOrder:    seed.SortOrder,
		}
		if err := companionRepo.Create(companion); err != nil {
			return err
		}
	}
	log.Printf("Seeded %d companions", len(cfg.Companions))
	return nil
}
