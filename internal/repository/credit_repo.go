package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// WithTx 返回绑定到事务的副本
func (r *CreditRepository) WithTx(tx *gorm.DB) *CreditRepository {
	return &CreditRepository{db: tx}
}

func (r *CreditRepository) CreateBalance(balance *model.CreditBalance) error {
	return r.db.Create(balance).Error
}

func (r *CreditRepository) GetBalance(userID int64) (*model.CreditBalance, error) {
	var balance model.CreditBalance
	err := r.db.Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetBalanceForUpdate 行锁读取余额，同一用户的并发扣减在此串行化
func (r *CreditRepository) GetBalanceForUpdate(userID int64) (*model.CreditBalance, error) {
	var balance model.CreditBalance
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *CreditRepository) SaveBalance(balance *model.CreditBalance) error {
	return r.db.Save(balance).Error
}

// CreateEntry 追加流水，行一旦写入永不修改
func (r *CreditRepository) CreateEntry(entry *model.CreditLedgerEntry) error {
	return r.db.Create(entry).Error
}

// SumByPool 按池汇总流水（对账用，流水为权威数据）
func (r *CreditRepository) SumByPool(userID int64) (map[string]int, error) {
	type row struct {
		Pool string
		Sum  int
	}
	var rows []row
	err := r.db.Model(&model.CreditLedgerEntry{}).
		Select("pool, COALESCE(SUM(delta), 0) as sum").
		Where("user_id = ?", userID).
		Group("pool").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := map[string]int{
		model.PoolMonthly: 0,
		model.PoolTopup:   0,
		model.PoolTrial:   0,
	}
	for _, r := range rows {
		sums[r.Pool] = r.Sum
	}
	return sums, nil
}

// ListEntries 按时间倒序分页查询流水
func (r *CreditRepository) ListEntries(userID int64, page, pageSize int) ([]model.CreditLedgerEntry, int64, error) {
	var total int64
	if err := r.db.Model(&model.CreditLedgerEntry{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.CreditLedgerEntry
	err := r.db.Where("user_id = ?", userID).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// ListRecentActiveUserIDs 查询近期有流水的用户（对账扫描范围）
func (r *CreditRepository) ListRecentActiveUserIDs(since time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&model.CreditLedgerEntry{}).
		Where("created_at >= ?", since).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListStaleMonthlyResets 查询上次月度重置早于 cutoff 的余额行（免费套餐周期刷新）
func (r *CreditRepository) ListStaleMonthlyResets(cutoff time.Time) ([]model.CreditBalance, error) {
	var balances []model.CreditBalance
	err := r.db.Where("last_monthly_reset_at IS NULL OR last_monthly_reset_at <= ?", cutoff).
		Find(&balances).Error
	return balances, err
}
