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

var ErrUserNotFound = errors.New("用户不存在")

// EntitlementsService 权益解析：把订阅状态 + 试用 + 积分 + 用量折算成一份只读快照。
// 快照是纯函数计算结果，任何写路径都不依赖它。
type EntitlementsService struct {
	userRepo      *repository.UserRepository
	creditRepo    *repository.CreditRepository
	companionRepo *repository.CompanionRepository
	usageRepo     *repository.UsageRepository
	cfg           *config.Config
}

func NewEntitlementsService(
	userRepo *repository.UserRepository,
	creditRepo *repository.CreditRepository,
	companionRepo *repository.CompanionRepository,
	usageRepo *repository.UsageRepository,
	cfg *config.Config,
) *EntitlementsService {
	return &EntitlementsService{
		userRepo:      userRepo,
		creditRepo:    creditRepo,
		companionRepo: companionRepo,
		usageRepo:     usageRepo,
		cfg:           cfg,
	}
}

// accessTierFor 可见层级：试用期内临时提升到最高套餐，其余时间等于付费套餐
func accessTierFor(user *model.User, now time.Time) string {
	if user.TrialActive(now) {
		return model.PlanPro
	}
	return user.Plan
}

// limitTierFor 限额层级：始终等于付费套餐，试用不放大数值限额
func limitTierFor(user *model.User) string {
	return user.Plan
}

// Snapshot 读取并计算用户当前权益快照
func (s *EntitlementsService) Snapshot(userID int64, now time.Time) (*dto.EntitlementsSnapshot, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	balance, err := s.creditRepo.GetBalance(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		balance = &model.CreditBalance{UserID: userID}
	}

	companions, err := s.companionRepo.List()
	if err != nil {
		return nil, err
	}

	usage, err := s.usageRepo.SumByFeature(userID, model.UsageDay(now))
	if err != nil {
		return nil, err
	}

	return ComputeSnapshot(s.cfg, user, balance, companions, usage, now), nil
}

// ComputeSnapshot 纯计算，不触库
func ComputeSnapshot(
	cfg *config.Config,
	user *model.User,
	balance *model.CreditBalance,
	companions []model.Companion,
	usageByFeature map[string]int,
	now time.Time,
) *dto.EntitlementsSnapshot {
	accessTier := accessTierFor(user, now)
	limitTier := limitTierFor(user)

	snapshot := &dto.EntitlementsSnapshot{
		AccessTier: accessTier,
		LimitTier:  limitTier,
		Trial: dto.TrialInfo{
			Active:           user.TrialActive(now),
			CreditsRemaining: clampNonNegative(balance.TrialRemaining),
		},
		Credits: dto.CreditInfo{
			Monthly: clampNonNegative(balance.MonthlyRemaining),
			Topup:   clampNonNegative(balance.TopupRemaining),
			Trial:   clampNonNegative(balance.TrialRemaining),
		},
		Features:   make(map[string]dto.FeatureQuota),
		Companions: make([]dto.CompanionAccess, 0, len(companions)),
	}
	snapshot.Credits.Total = snapshot.Credits.Monthly + snapshot.Credits.Topup + snapshot.Credits.Trial

	if snapshot.Trial.Active && user.TrialExpiresAt != nil {
		snapshot.Trial.ExpiresAt = user.TrialExpiresAt.UTC().Format(time.RFC3339)
	}

	for _, f := range cfg.Features {
		limit := cfg.FeatureLimit(limitTier, f.Name)
		used := usageByFeature[f.Name]
		remaining := 0
		if limit > 0 {
			remaining = clampNonNegative(limit - used)
		}
		snapshot.Features[f.Name] = dto.FeatureQuota{
			Limit:     limit,
			Used:      used,
			Remaining: remaining,
		}
	}

	for _, c := range companions {
		snapshot.Companions = append(snapshot.Companions, dto.CompanionAccess{
			ID:           c.ID,
			Name:         c.Name,
			Tagline:      c.Tagline,
			RequiredPlan: c.RequiredPlan,
			Accessible:   c.AccessibleBy(accessTier),
		})
	}

	return snapshot
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
