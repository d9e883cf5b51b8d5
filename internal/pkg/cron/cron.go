package cron

import (
	"log"
	"time"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// Service 账务后台任务：月度积分刷新、到期降级、试用回收、流水对账巡检。
// webhook 是主路径，这里全是兜底，每个任务都可以安全重跑。
type Service struct {
	subscriptionService *service.SubscriptionService
	trialService        *service.TrialService
	creditService       *service.CreditService
	creditRepo          *repository.CreditRepository
	userRepo            *repository.UserRepository
	cfg                 *config.Config
	stopChan            chan struct{}
}

func NewService(
	subscriptionService *service.SubscriptionService,
	trialService *service.TrialService,
	creditService *service.CreditService,
	creditRepo *repository.CreditRepository,
	userRepo *repository.UserRepository,
	cfg *config.Config,
) *Service {
	return &Service{
		subscriptionService: subscriptionService,
		trialService:        trialService,
		creditService:       creditService,
		creditRepo:          creditRepo,
		userRepo:            userRepo,
		cfg:                 cfg,
		stopChan:            make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runMonthlyRefresh()
	go s.runBillingSweeps()
	go s.runReconcileAudit()
	log.Println("Cron service started (monthly refresh + billing sweeps + reconcile audit)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runMonthlyRefresh 每日 UTC 零点检查一次满周期未刷新的账户
func (s *Service) runMonthlyRefresh() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.RefreshStaleMonthly(time.Now()); err != nil {
				log.Printf("Monthly refresh failed: %v", err)
			}
			timer.Reset(24 * time.Hour)
		}
	}
}

// runBillingSweeps 每 5 分钟执行到期降级与过期试用回收
func (s *Service) runBillingSweeps() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunSweeps(time.Now())
		}
	}
}

// runReconcileAudit 每小时对账一次最近有流水的账户
func (s *Service) runReconcileAudit() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunReconcileAudit(time.Now())
		}
	}
}

// RefreshStaleMonthly 给满一个周期没刷新过的账户重置 monthly 池。
// 付费活跃用户的刷新由续费事件驱动，这里只兜免费与掉队的账户。
func (s *Service) RefreshStaleMonthly(now time.Time) (int, error) {
	cycleDays := s.cfg.Billing.MonthlyCycleDays
	if cycleDays <= 0 {
		cycleDays = 30
	}
	cutoff := now.Add(-time.Duration(cycleDays) * 24 * time.Hour)

	balances, err := s.creditRepo.ListStaleMonthlyResets(cutoff)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, b := range balances {
		user, err := s.userRepo.GetByID(b.UserID)
		if err != nil {
			log.Printf("Monthly refresh: failed to load user %d: %v", b.UserID, err)
			continue
		}

		// 付费且在续的账户等 webhook，不在这里动
		if user.Plan != model.PlanFree && user.SubscriptionStatus == model.SubStatusActive {
			continue
		}

		applied, err := s.creditService.ResetMonthly(user.ID, s.cfg.MonthlyCredits(user.Plan), cutoff, now, nil)
		if err != nil {
			log.Printf("Monthly refresh: failed for user %d: %v", user.ID, err)
			continue
		}
		if applied {
			refreshed++
		}
	}

	if refreshed > 0 {
		log.Printf("Monthly refresh completed: %d accounts", refreshed)
	}
	return refreshed, nil
}

// RunSweeps 立即执行降级与试用回收（测试或手动触发）
func (s *Service) RunSweeps(now time.Time) {
	if downgraded, err := s.subscriptionService.ProcessScheduledDowngrades(now); err != nil {
		log.Printf("Downgrade sweep failed: %v", err)
	} else if downgraded > 0 {
		log.Printf("Downgrade sweep completed: %d users", downgraded)
	}

	if swept, err := s.trialService.SweepExpired(now); err != nil {
		log.Printf("Trial sweep failed: %v", err)
	} else if swept > 0 {
		log.Printf("Trial sweep completed: %d users", swept)
	}
}

// RunReconcileAudit 对账最近一小时有流水的账户，返回发现漂移的账户数
func (s *Service) RunReconcileAudit(now time.Time) int {
	userIDs, err := s.creditRepo.ListRecentActiveUserIDs(now.Add(-time.Hour))
	if err != nil {
		log.Printf("Reconcile audit: failed to list users: %v", err)
		return 0
	}

	drifted := 0
	for _, userID := range userIDs {
		report, err := s.creditService.Reconcile(userID)
		if err != nil {
			log.Printf("Reconcile audit: failed for user %d: %v", userID, err)
			continue
		}
		if report.Corrected {
			drifted++
		}
	}

	if drifted > 0 {
		log.Printf("Reconcile audit found drift on %d accounts", drifted)
	}
	return drifted
}
