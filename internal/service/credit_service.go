package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/pubsub"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
)

var (
	ErrInsufficientCredits = errors.New("积分不足")
	ErrInvalidAmount       = errors.New("数量必须大于零")
	ErrInvalidPool         = errors.New("无效的积分池")
)

// SpendResult 一次扣减的结果
type SpendResult struct {
	Deductions map[string]int // 池 -> 本次扣减数
	Balance    *model.CreditBalance
}

// DriftReport 对账结果，Drift 记录物化余额与流水和之差（仅不一致的池）
type DriftReport struct {
	UserID    int64
	Drift     map[string]int
	Corrected bool
}

// CreditService 积分账本：只追加流水 + 物化余额，流水是唯一事实来源
type CreditService struct {
	db         *gorm.DB
	creditRepo *repository.CreditRepository
	publisher  *pubsub.Publisher // 可为 nil（测试 / 后台任务）
}

func NewCreditService(db *gorm.DB, creditRepo *repository.CreditRepository, publisher *pubsub.Publisher) *CreditService {
	return &CreditService{
		db:         db,
		creditRepo: creditRepo,
		publisher:  publisher,
	}
}

// Grant 发放积分：同一事务内追加流水并累加余额
func (s *CreditService) Grant(userID int64, pool string, amount int, reason string, metadata map[string]interface{}) (*model.CreditBalance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var balance *model.CreditBalance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.grantTx(tx, userID, pool, amount, reason, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishBalance(balance, reason)
	return balance, nil
}

// Spend 消费积分：按 monthly -> topup -> trial 固定顺序扣减，不足则整体失败，绝不部分扣减
func (s *CreditService) Spend(userID int64, amount int, reason string, metadata map[string]interface{}) (*SpendResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *SpendResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.spendTx(tx, userID, amount, reason, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishBalance(result.Balance, reason)
	return result, nil
}

// ResetMonthly 月度重置：把 monthly 池"置为"额度并丢弃剩余（不滚存），
// 重置本身也记一条流水（delta = 新额度 - 旧余额），账本始终自洽。
// cycleStart 之后已重置过则跳过，崩溃后重跑不会重复发放。
func (s *CreditService) ResetMonthly(userID int64, allotment int, cycleStart, now time.Time, metadata map[string]interface{}) (bool, error) {
	if allotment < 0 {
		return false, ErrInvalidAmount
	}

	var applied bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.resetMonthlyTx(tx, userID, allotment, cycleStart, now, metadata)
		return err
	})
	if err != nil {
		return false, err
	}

	if applied {
		if balance, err := s.GetBalance(userID); err == nil {
			s.publishBalance(balance, model.ReasonMonthlyReset)
		}
	}
	return applied, nil
}

// Reconcile 按流水重算余额并与物化值比对，不一致时以流水为准覆写并发运维告警
func (s *CreditService) Reconcile(userID int64) (*DriftReport, error) {
	report := &DriftReport{
		UserID: userID,
		Drift:  make(map[string]int),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		cr := s.creditRepo.WithTx(tx)

		balance, err := cr.GetBalanceForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		sums, err := cr.SumByPool(userID)
		if err != nil {
			return err
		}

		for _, pool := range model.SpendOrder {
			if diff := balance.Pool(pool) - sums[pool]; diff != 0 {
				report.Drift[pool] = diff
			}
		}
		if len(report.Drift) == 0 {
			return nil
		}

		balance.MonthlyRemaining = sums[model.PoolMonthly]
		balance.TopupRemaining = sums[model.PoolTopup]
		balance.TrialRemaining = sums[model.PoolTrial]
		if err := cr.SaveBalance(balance); err != nil {
			return err
		}

		report.Corrected = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Corrected {
		log.Printf("Reconciliation drift corrected for user %d: %v", userID, report.Drift)
		s.publishDrift(report)
	}
	return report, nil
}

// GetBalance 无锁读取，余额行缺失时返回零值（不报错）
func (s *CreditService) GetBalance(userID int64) (*model.CreditBalance, error) {
	balance, err := s.creditRepo.GetBalance(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.CreditBalance{UserID: userID}, nil
		}
		return nil, err
	}
	return balance, nil
}

// ListLedger 流水分页
func (s *CreditService) ListLedger(userID int64, page, pageSize int) ([]model.CreditLedgerEntry, int64, error) {
	return s.creditRepo.ListEntries(userID, page, pageSize)
}

func (s *CreditService) grantTx(tx *gorm.DB, userID int64, pool string, amount int, reason string, metadata map[string]interface{}) (*model.CreditBalance, error) {
	if !validPool(pool) {
		return nil, ErrInvalidPool
	}

	cr := s.creditRepo.WithTx(tx)
	balance, err := lockOrCreateBalance(cr, userID)
	if err != nil {
		return nil, err
	}

	entry := &model.CreditLedgerEntry{
		UserID:   userID,
		Pool:     pool,
		Delta:    amount,
		Reason:   reason,
		Metadata: marshalMetadata(metadata),
	}
	if err := cr.CreateEntry(entry); err != nil {
		return nil, err
	}

	addToPool(balance, pool, amount)
	if err := cr.SaveBalance(balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (s *CreditService) spendTx(tx *gorm.DB, userID int64, amount int, reason string, metadata map[string]interface{}) (*SpendResult, error) {
	cr := s.creditRepo.WithTx(tx)

	balance, err := cr.GetBalanceForUpdate(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInsufficientCredits
		}
		return nil, err
	}

	if balance.Total() < amount {
		return nil, ErrInsufficientCredits
	}

	meta := marshalMetadata(metadata)
	deductions := make(map[string]int)
	left := amount
	for _, pool := range model.SpendOrder {
		if left == 0 {
			break
		}
		available := balance.Pool(pool)
		if available == 0 {
			continue
		}

		take := available
		if take > left {
			take = left
		}

		entry := &model.CreditLedgerEntry{
			UserID:   userID,
			Pool:     pool,
			Delta:    -take,
			Reason:   reason,
			Metadata: meta,
		}
		if err := cr.CreateEntry(entry); err != nil {
			return nil, err
		}

		addToPool(balance, pool, -take)
		deductions[pool] = take
		left -= take
	}

	if err := cr.SaveBalance(balance); err != nil {
		return nil, err
	}

	return &SpendResult{Deductions: deductions, Balance: balance}, nil
}

func (s *CreditService) resetMonthlyTx(tx *gorm.DB, userID int64, allotment int, cycleStart, now time.Time, metadata map[string]interface{}) (bool, error) {
	cr := s.creditRepo.WithTx(tx)

	balance, err := lockOrCreateBalance(cr, userID)
	if err != nil {
		return false, err
	}

	// 本周期已重置过
	if balance.LastMonthlyResetAt != nil && balance.LastMonthlyResetAt.After(cycleStart) {
		return false, nil
	}

	if delta := allotment - balance.MonthlyRemaining; delta != 0 {
		entry := &model.CreditLedgerEntry{
			UserID:   userID,
			Pool:     model.PoolMonthly,
			Delta:    delta,
			Reason:   model.ReasonMonthlyReset,
			Metadata: marshalMetadata(metadata),
		}
		if err := cr.CreateEntry(entry); err != nil {
			return false, err
		}
	}

	balance.MonthlyRemaining = allotment
	balance.LastMonthlyResetAt = &now
	if err := cr.SaveBalance(balance); err != nil {
		return false, err
	}
	return true, nil
}

// revokeTrialTx 回收剩余试用积分（可配置），同样走流水
func (s *CreditService) revokeTrialTx(tx *gorm.DB, userID int64, metadata map[string]interface{}) (int, error) {
	cr := s.creditRepo.WithTx(tx)

	balance, err := cr.GetBalanceForUpdate(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if balance.TrialRemaining <= 0 {
		return 0, nil
	}

	revoked := balance.TrialRemaining
	entry := &model.CreditLedgerEntry{
		UserID:   userID,
		Pool:     model.PoolTrial,
		Delta:    -revoked,
		Reason:   model.ReasonTrialRevoke,
		Metadata: marshalMetadata(metadata),
	}
	if err := cr.CreateEntry(entry); err != nil {
		return 0, err
	}

	balance.TrialRemaining = 0
	if err := cr.SaveBalance(balance); err != nil {
		return 0, err
	}
	return revoked, nil
}

func (s *CreditService) publishBalance(balance *model.CreditBalance, reason string) {
	if s.publisher == nil || balance == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.publisher.Publish(ctx, &pubsub.CreditMessage{
		Type:    pubsub.TypeBalanceUpdate,
		UserID:  balance.UserID,
		Monthly: balance.MonthlyRemaining,
		Topup:   balance.TopupRemaining,
		Trial:   balance.TrialRemaining,
		Reason:  reason,
	})
	if err != nil {
		log.Printf("Failed to publish balance update for user %d: %v", balance.UserID, err)
	}
}

// NotifyBalance 读取当前余额并向在线端推送
func (s *CreditService) NotifyBalance(userID int64, reason string) {
	s.publishBalanceUpdate(userID, reason)
}

// publishBalanceUpdate 读取当前余额并推送，事务外调用
func (s *CreditService) publishBalanceUpdate(userID int64, reason string) {
	if s.publisher == nil {
		return
	}
	balance, err := s.GetBalance(userID)
	if err != nil {
		log.Printf("Failed to load balance for push, user %d: %v", userID, err)
		return
	}
	s.publishBalance(balance, reason)
}

func (s *CreditService) publishDrift(report *DriftReport) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.publisher.Publish(ctx, &pubsub.CreditMessage{
		Type:   pubsub.TypeDriftAlert,
		UserID: report.UserID,
		Drift:  report.Drift,
	})
	if err != nil {
		log.Printf("Failed to publish drift alert for user %d: %v", report.UserID, err)
	}
}

func lockOrCreateBalance(cr *repository.CreditRepository, userID int64) (*model.CreditBalance, error) {
	balance, err := cr.GetBalanceForUpdate(userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := cr.CreateBalance(&model.CreditBalance{UserID: userID}); err != nil {
		return nil, err
	}
	return cr.GetBalanceForUpdate(userID)
}

func addToPool(balance *model.CreditBalance, pool string, delta int) {
	switch pool {
	case model.PoolMonthly:
		balance.MonthlyRemaining += delta
	case model.PoolTopup:
		balance.TopupRemaining += delta
	case model.PoolTrial:
		balance.TrialRemaining += delta
	}
}

func validPool(pool string) bool {
	switch pool {
	case model.PoolMonthly, model.PoolTopup, model.PoolTrial:
		return true
	}
	return false
}

func marshalMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}
