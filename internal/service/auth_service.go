package service

import (
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/jwt"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrUsernameExists     = errors.New("用户名已被占用")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
)

// AuthService 注册登录。注册时创建零余额行并按防滥用门控发放赠送积分。
type AuthService struct {
	db            *gorm.DB
	userRepo      *repository.UserRepository
	creditRepo    *repository.CreditRepository
	creditService *CreditService
	antiAbuse     *AntiAbuseService
	cfg           *config.Config
}

func NewAuthService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	creditRepo *repository.CreditRepository,
	creditService *CreditService,
	antiAbuse *AntiAbuseService,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:            db,
		userRepo:      userRepo,
		creditRepo:    creditRepo,
		creditService: creditService,
		antiAbuse:     antiAbuse,
		cfg:           cfg,
	}
}

// Register 注册新用户。赠送被防滥用拦下时注册照常完成，只是不发积分。
func (s *AuthService) Register(req *dto.RegisterRequest, ip string) (*dto.RegisterResponse, error) {
	now := time.Now()

	exists, err := s.userRepo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	exists, err = s.userRepo.ExistsByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// 门控失败按不发放处理，注册流程不受影响
	bonusAllowed, err := s.antiAbuse.MayGrantSignupBonus(ip, req.Fingerprint, now)
	if err != nil {
		log.Printf("Anti-abuse check failed for ip=%s: %v", ip, err)
		bonusAllowed = false
	}
	if s.cfg.Billing.SignupBonus <= 0 {
		bonusAllowed = false
	}

	user := &model.User{
		Username:           req.Username,
		Email:              req.Email,
		PasswordHash:       string(hash),
		Plan:               model.PlanFree,
		BillingCycle:       model.CycleNone,
		SubscriptionStatus: model.SubStatusNone,
		SignupIP:           ip,
		SignupFingerprint:  req.Fingerprint,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(user); err != nil {
			return err
		}

		// 余额行与用户同生命周期，积分周期从注册开始计
		balance := &model.CreditBalance{UserID: user.ID, LastMonthlyResetAt: &now}
		if err := s.creditRepo.WithTx(tx).CreateBalance(balance); err != nil {
			return err
		}

		if bonusAllowed {
			_, err := s.creditService.grantTx(tx, user.ID, model.PoolMonthly, s.cfg.Billing.SignupBonus,
				model.ReasonSignupBonus, nil)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.RegisterResponse{
		UserID:       user.ID,
		BonusGranted: bonusAllowed,
	}, nil
}

// Login 校验密码并签发 JWT
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token:  token,
		UserID: user.ID,
	}, nil
}
