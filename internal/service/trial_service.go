package service

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

var ErrTrialAlreadyUsed = errors.New("试用机会已使用")

// TrialService 一次性试用：时间窗口 + 试用积分一起发，trial_used 置位后永不复位
type TrialService struct {
	db            *gorm.DB
	userRepo      *repository.UserRepository
	creditService *CreditService
	cfg           *config.Config
}

func NewTrialService(db *gorm.DB, userRepo *repository.UserRepository, creditService *CreditService, cfg *config.Config) *TrialService {
	return &TrialService{
		db:            db,
		userRepo:      userRepo,
		creditService: creditService,
		cfg:           cfg,
	}
}

// Start 开启试用。已用过或已是付费套餐都算资格耗尽，并发重复请求靠行锁串行化
func (s *TrialService) Start(userID int64, now time.Time) (*model.User, error) {
	var user *model.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ur := s.userRepo.WithTx(tx)

		var err error
		user, err = ur.GetByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if user.TrialUsed || user.Plan != model.PlanFree {
			return ErrTrialAlreadyUsed
		}

		expiresAt := now.Add(time.Duration(s.cfg.Billing.Trial.DurationHours) * time.Hour)
		user.TrialUsed = true
		user.TrialStartedAt = &now
		user.TrialExpiresAt = &expiresAt
		if err := ur.Update(user); err != nil {
			return err
		}

		_, err = s.creditService.grantTx(tx, userID, model.PoolTrial, s.cfg.Billing.Trial.Credits,
			model.ReasonTrialGrant, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.creditService.publishBalanceUpdate(userID, model.ReasonTrialGrant)
	return user, nil
}

// SweepExpired 回收过期试用的剩余积分（可配置关闭）。逐用户独立事务。
func (s *TrialService) SweepExpired(now time.Time) (int, error) {
	if !s.cfg.Billing.Trial.RevokeLeftover {
		return 0, nil
	}

	users, err := s.userRepo.ListExpiredTrials(now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, u := range users {
		var revoked int
		err := s.db.Transaction(func(tx *gorm.DB) error {
			user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(u.ID)
			if err != nil {
				return err
			}
			// 锁内复核过期
			if user.TrialExpiresAt == nil || now.Before(*user.TrialExpiresAt) {
				return nil
			}
			revoked, err = s.creditService.revokeTrialTx(tx, user.ID, nil)
			return err
		})
		if err != nil {
			log.Printf("Failed to revoke trial credits for user %d: %v", u.ID, err)
			continue
		}
		if revoked > 0 {
			s.creditService.publishBalanceUpdate(u.ID, model.ReasonTrialRevoke)
			swept++
		}
	}
	return swept, nil
}
