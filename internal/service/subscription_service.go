package service

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/queue"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

var (
	ErrDuplicateEvent   = errors.New("事件已处理")
	ErrEventUserMissing = errors.New("事件缺少用户信息")
	ErrUnknownPlan      = errors.New("未知套餐")
)

// SubscriptionService 订阅状态机：唯一入口是支付服务商的已验签事件。
// 事件 at-least-once 投递，同一事务内写去重记录 + 应用副作用，重投自然变成空操作。
type SubscriptionService struct {
	db            *gorm.DB
	userRepo      *repository.UserRepository
	webhookRepo   *repository.WebhookRepository
	creditService *CreditService
	billingQueue  *queue.Queue // 可为 nil
	cfg           *config.Config
}

func NewSubscriptionService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	webhookRepo *repository.WebhookRepository,
	creditService *CreditService,
	billingQueue *queue.Queue,
	cfg *config.Config,
) *SubscriptionService {
	return &SubscriptionService{
		db:            db,
		userRepo:      userRepo,
		webhookRepo:   webhookRepo,
		creditService: creditService,
		billingQueue:  billingQueue,
		cfg:           cfg,
	}
}

// HandleEvent 处理一条已验签事件。重复事件返回 ErrDuplicateEvent（调用方按成功应答），
// 未知事件类型只落库不应用副作用，同样算处理成功。
func (s *SubscriptionService) HandleEvent(ctx context.Context, raw []byte, event *dto.PaymentEvent) error {
	if event.ID == "" {
		return ErrEventUserMissing
	}
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wr := s.webhookRepo.WithTx(tx)

		exists, err := wr.Exists(event.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEvent
		}

		switch event.Type {
		case dto.EventCheckoutCompleted:
			err = s.applyCheckoutCompleted(tx, event, now)
		case dto.EventPaymentSucceeded:
			err = s.applyPaymentSucceeded(tx, event, now)
		case dto.EventPaymentFailed:
			err = s.applyPaymentFailed(tx, event)
		case dto.EventSubscriptionDeleted:
			err = s.applySubscriptionDeleted(tx, event, now)
		default:
			// 只记录不处理，避免重投风暴
			log.Printf("Ignoring unknown payment event type %q (id=%s)", event.Type, event.ID)
		}
		if err != nil {
			return err
		}

		return wr.Create(&model.WebhookEvent{
			ExternalEventID: event.ID,
			Type:            event.Type,
			Payload:         string(raw),
			ProcessedAt:     now,
		})
	})
	if err != nil {
		return err
	}

	s.enqueueFollowup(event)
	return nil
}

func (s *SubscriptionService) applyCheckoutCompleted(tx *gorm.DB, event *dto.PaymentEvent, now time.Time) error {
	user, err := s.lockEventUser(tx, event)
	if err != nil {
		return err
	}

	// 一次性补充包：只发积分，不碰订阅状态
	if event.Data.Mode == dto.CheckoutModePayment {
		if event.Data.Credits <= 0 {
			return ErrInvalidAmount
		}
		_, err := s.creditService.grantTx(tx, user.ID, model.PoolTopup, event.Data.Credits,
			model.ReasonTopupPurchase, map[string]interface{}{"event_id": event.ID})
		return err
	}

	plan := event.Data.Plan
	if _, ok := s.cfg.Tiers[plan]; !ok {
		return ErrUnknownPlan
	}

	user.Plan = plan
	user.SubscriptionStatus = model.SubStatusActive
	user.BillingCycle = event.Data.BillingCycle
	if user.BillingCycle == "" {
		user.BillingCycle = model.CycleMonthly
	}
	user.CurrentPeriodEnd = periodEndFrom(event, user.BillingCycle, now)
	user.ScheduledDowngradeAt = nil
	if event.Data.CustomerID != "" {
		customerID := event.Data.CustomerID
		user.ProviderCustomerID = &customerID
	}
	if event.Data.SubscriptionID != "" {
		subscriptionID := event.Data.SubscriptionID
		user.ProviderSubscriptionID = &subscriptionID
	}
	if err := s.userRepo.WithTx(tx).Update(user); err != nil {
		return err
	}

	// 新订阅立即开启新积分周期
	_, err = s.creditService.resetMonthlyTx(tx, user.ID, s.cfg.MonthlyCredits(plan), now, now,
		map[string]interface{}{"event_id": event.ID, "plan": plan})
	return err
}

func (s *SubscriptionService) applyPaymentSucceeded(tx *gorm.DB, event *dto.PaymentEvent, now time.Time) error {
	user, err := s.lockEventUser(tx, event)
	if err != nil {
		return err
	}

	// 续费把 past_due 拉回 active
	user.SubscriptionStatus = model.SubStatusActive
	user.CurrentPeriodEnd = periodEndFrom(event, user.BillingCycle, now)
	user.ScheduledDowngradeAt = nil
	if err := s.userRepo.WithTx(tx).Update(user); err != nil {
		return err
	}

	_, err = s.creditService.resetMonthlyTx(tx, user.ID, s.cfg.MonthlyCredits(user.Plan), now, now,
		map[string]interface{}{"event_id": event.ID, "plan": user.Plan})
	return err
}

func (s *SubscriptionService) applyPaymentFailed(tx *gorm.DB, event *dto.PaymentEvent) error {
	user, err := s.lockEventUser(tx, event)
	if err != nil {
		return err
	}

	// 进入宽限期：权益暂不回收，超过宽限由后台任务降级
	return s.userRepo.WithTx(tx).UpdateFields(user.ID, map[string]interface{}{
		"subscription_status": model.SubStatusPastDue,
	})
}

func (s *SubscriptionService) applySubscriptionDeleted(tx *gorm.DB, event *dto.PaymentEvent, now time.Time) error {
	user, err := s.lockEventUser(tx, event)
	if err != nil {
		return err
	}

	// 取消后当前周期跑完再降级
	user.SubscriptionStatus = model.SubStatusCanceled
	downgradeAt := now
	if user.CurrentPeriodEnd != nil && user.CurrentPeriodEnd.After(now) {
		downgradeAt = *user.CurrentPeriodEnd
	}
	user.ScheduledDowngradeAt = &downgradeAt
	return s.userRepo.WithTx(tx).Update(user)
}

// ProcessScheduledDowngrades 执行到期降级：取消到期的 + past_due 超过宽限期的。
// 逐用户独立事务，单个失败不影响其余。
func (s *SubscriptionService) ProcessScheduledDowngrades(now time.Time) (int, error) {
	due, err := s.userRepo.ListScheduledDowngrades(now)
	if err != nil {
		return 0, err
	}

	graceCutoff := now.Add(-time.Duration(s.cfg.Billing.GracePeriodDays) * 24 * time.Hour)
	pastDue, err := s.userRepo.ListPastDueBeyondGrace(graceCutoff)
	if err != nil {
		return 0, err
	}

	applied := 0
	seen := make(map[int64]struct{})
	for _, u := range append(due, pastDue...) {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}

		if err := s.downgradeToFree(u.ID, now); err != nil {
			log.Printf("Failed to downgrade user %d: %v", u.ID, err)
			continue
		}
		applied++
	}
	return applied, nil
}

func (s *SubscriptionService) downgradeToFree(userID int64, now time.Time) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ur := s.userRepo.WithTx(tx)
		user, err := ur.GetByIDForUpdate(userID)
		if err != nil {
			return err
		}

		// 锁内复核，事件可能在扫描和加锁之间把用户拉回 active
		eligible := false
		if user.ScheduledDowngradeAt != nil && !user.ScheduledDowngradeAt.After(now) {
			eligible = true
		}
		if user.SubscriptionStatus == model.SubStatusPastDue &&
			user.CurrentPeriodEnd != nil &&
			!user.CurrentPeriodEnd.After(now.Add(-time.Duration(s.cfg.Billing.GracePeriodDays)*24*time.Hour)) {
			eligible = true
		}
		if !eligible {
			return nil
		}

		user.Plan = model.PlanFree
		user.SubscriptionStatus = model.SubStatusNone
		user.BillingCycle = model.CycleNone
		user.CurrentPeriodEnd = nil
		user.ScheduledDowngradeAt = nil
		user.ProviderSubscriptionID = nil
		if err := ur.Update(user); err != nil {
			return err
		}

		// 降级即把 monthly 池置为 free 额度，topup/trial 不动
		_, err = s.creditService.resetMonthlyTx(tx, user.ID, s.cfg.MonthlyCredits(model.PlanFree), now, now,
			map[string]interface{}{"downgrade": true})
		return err
	})
	if err != nil {
		return err
	}

	s.creditService.publishBalanceUpdate(userID, model.ReasonMonthlyReset)
	return nil
}

func (s *SubscriptionService) lockEventUser(tx *gorm.DB, event *dto.PaymentEvent) (*model.User, error) {
	if event.Data.UserID <= 0 {
		return nil, ErrEventUserMissing
	}
	user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(event.Data.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// enqueueFollowup 入队事后对账和余额推送任务，webhook 请求内不做慢工作。
// 入队失败只记日志（对账由巡检兜底）
func (s *SubscriptionService) enqueueFollowup(event *dto.PaymentEvent) {
	if s.billingQueue == nil || event.Data.UserID <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, task := range []string{queue.TaskReconcile, queue.TaskNotifyChange} {
		err := s.billingQueue.Push(ctx, &queue.BillingTask{
			Task:            task,
			UserID:          event.Data.UserID,
			ExternalEventID: event.ID,
			EventType:       event.Type,
		})
		if err != nil {
			log.Printf("Failed to enqueue %s task for user %d: %v", task, event.Data.UserID, err)
		}
	}
}

func periodEndFrom(event *dto.PaymentEvent, cycle string, now time.Time) *time.Time {
	if event.Data.PeriodEnd > 0 {
		t := time.Unix(event.Data.PeriodEnd, 0)
		return &t
	}
	var t time.Time
	if cycle == model.CycleYearly {
		t = now.AddDate(1, 0, 0)
	} else {
		t = now.AddDate(0, 1, 0)
	}
	return &t
}
