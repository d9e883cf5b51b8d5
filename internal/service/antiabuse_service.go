package service

import (
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

// AntiAbuseService 注册赠送门控：同 IP / 同设备指纹的发放次数封顶。
// 只拦赠送，绝不拦注册本身。
type AntiAbuseService struct {
	db        *gorm.DB
	abuseRepo *repository.AntiAbuseRepository
	cfg       *config.Config
}

func NewAntiAbuseService(db *gorm.DB, abuseRepo *repository.AntiAbuseRepository, cfg *config.Config) *AntiAbuseService {
	return &AntiAbuseService{
		db:        db,
		abuseRepo: abuseRepo,
		cfg:       cfg,
	}
}

// MayGrantSignupBonus 判定本次注册是否发放赠送，并记录本次尝试。
// 上限配置为 0 或负数表示该维度不设限；指纹为空时只按 IP 判定。
func (s *AntiAbuseService) MayGrantSignupBonus(ip, fingerprint string, now time.Time) (bool, error) {
	allowed := true

	if ip != "" {
		over, err := s.overLimit(model.AbuseKindIP, ip, s.cfg.AntiAbuse.MaxGrantsPerIP)
		if err != nil {
			return false, err
		}
		if over {
			allowed = false
		}
	}
	if fingerprint != "" {
		over, err := s.overLimit(model.AbuseKindFingerprint, fingerprint, s.cfg.AntiAbuse.MaxGrantsPerFingerprint)
		if err != nil {
			return false, err
		}
		if over {
			allowed = false
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ar := s.abuseRepo.WithTx(tx)
		if ip != "" {
			if err := ar.Touch(model.AbuseKindIP, ip, allowed, now); err != nil {
				return err
			}
		}
		if fingerprint != "" {
			if err := ar.Touch(model.AbuseKindFingerprint, fingerprint, allowed, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func (s *AntiAbuseService) overLimit(kind, value string, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	record, err := s.abuseRepo.Get(kind, value)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.GrantCount >= max, nil
}
