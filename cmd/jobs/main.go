package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/database"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/cron"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/pubsub"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/queue"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/worker"
)

// 账务后台进程：定时任务 + 队列消费，和 API 服务分开部署
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

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	billingQueue := queue.NewQueue(rdb, cfg.Queue.BillingQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository 与 Service
	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	creditService := service.NewCreditService(db, creditRepo, publisher)
	subscriptionService := service.NewSubscriptionService(db, userRepo, webhookRepo, creditService, billingQueue, cfg)
	trialService := service.NewTrialService(db, userRepo, creditService, cfg)

	// 定时任务
	cronService := cron.NewService(subscriptionService, trialService, creditService, creditRepo, userRepo, cfg)
	cronService.Start()
	defer cronService.Stop()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// 启动队列消费
	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	log.Printf("Billing jobs started, workers: %d", maxWorkers)

	processor := worker.NewProcessor(billingQueue, creditService)
	for i := 1; i < maxWorkers; i++ {
		go processor.Run(ctx)
	}
	processor.Run(ctx)
}
