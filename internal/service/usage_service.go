package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

var (
	ErrUnknownFeature      = errors.New("未知功能")
	ErrCompanionNotFound   = errors.New("伴侣不存在")
	ErrCompanionLocked     = errors.New("当前套餐无法访问该伴侣")
	ErrFeatureLimitReached = errors.New("今日次数已用完")
)

// UsageService 功能调用入口：伴侣可见性 -> 每日限额 -> 积分扣减 -> 用量记账，
// 后三步同一事务，要么全部生效要么全部不发生。
type UsageService struct {
	db            *gorm.DB
	userRepo      *repository.UserRepository
	companionRepo *repository.CompanionRepository
	usageRepo     *repository.UsageRepository
	creditService *CreditService
	cfg           *config.Config
}

func NewUsageService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	companionRepo *repository.CompanionRepository,
	usageRepo *repository.UsageRepository,
	creditService *CreditService,
	cfg *config.Config,
) *UsageService {
	return &UsageService{
		db:            db,
		userRepo:      userRepo,
		companionRepo: companionRepo,
		usageRepo:     usageRepo,
		creditService: creditService,
		cfg:           cfg,
	}
}

// Use 消费一次功能调用。amount 为调用次数，积分消耗 = 次数 x 单价。
// 每日限额取伴侣所属档位的配置，按 (用户, 伴侣, 功能, 日) 独立计数，
// 同一功能对不同伴侣互不占额。
func (s *UsageService) Use(userID, companionID int64, feature string, amount int, now time.Time) (*dto.SpendResponse, error) {
	if amount <= 0 {
		amount = 1
	}

	cost, ok := s.cfg.FeatureCost(feature)
	if !ok {
		return nil, ErrUnknownFeature
	}

	companion, err := s.companionRepo.GetByID(companionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanionNotFound
		}
		return nil, err
	}

	day := model.UsageDay(now)
	var resp *dto.SpendResponse

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 用户行锁串行化同一用户的并发调用
		user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if !companion.AccessibleBy(accessTierFor(user, now)) {
			return ErrCompanionLocked
		}

		// 限额按伴侣档位计，计数行加锁防止并发超限
		ur := s.usageRepo.WithTx(tx)
		used, err := ur.GetUsedForUpdate(userID, companionID, feature, day)
		if err != nil {
			return err
		}
		limit := s.cfg.FeatureLimit(companion.RequiredPlan, feature)
		if limit > 0 && used+amount > limit {
			return ErrFeatureLimitReached
		}

		result, err := s.creditService.spendTx(tx, userID, cost*amount, model.ReasonSpend,
			map[string]interface{}{"feature": feature, "companion_id": companionID})
		if err != nil {
			return err
		}

		if err := ur.Increment(userID, companionID, feature, day, amount); err != nil {
			return err
		}

		resp = &dto.SpendResponse{
			Success:        true,
			DeductedByPool: result.Deductions,
			RemainingByPool: map[string]int{
				model.PoolMonthly: result.Balance.MonthlyRemaining,
				model.PoolTopup:   result.Balance.TopupRemaining,
				model.PoolTrial:   result.Balance.TrialRemaining,
			},
			FeatureUsed: used + amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.creditService.publishBalanceUpdate(userID, model.ReasonSpend)
	return resp, nil
}
