package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/testutil"
)

func newUsageService(db *gorm.DB) *UsageService {
	return NewUsageService(
		db,
		repository.NewUserRepository(db),
		repository.NewCompanionRepository(db),
		repository.NewUsageRepository(db),
		newCreditService(db),
		testConfig(),
	)
}

func TestUsageService_Use(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	user := testutil.TestUser(t, db)
	companion := testutil.TestCompanion(t, db, "小暖", model.PlanFree)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 2)
	testutil.GrantCredits(t, db, user.ID, model.PoolTopup, 10)

	// image 单价 5：monthly 2 + topup 3
	resp, err := svc.Use(user.ID, companion.ID, "image", 1, time.Now())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]int{model.PoolMonthly: 2, model.PoolTopup: 3}, resp.DeductedByPool)
	assert.Equal(t, 7, resp.RemainingByPool[model.PoolTopup])
	assert.Equal(t, 1, resp.FeatureUsed)

	assertLedgerConsistent(t, db, user.ID)
}

func TestUsageService_Use_CompanionLocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	user := testutil.TestUser(t, db)
	companion := testutil.TestCompanion(t, db, "星河", model.PlanPro)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 100)

	_, err := svc.Use(user.ID, companion.ID, "chat", 1, time.Now())
	assert.ErrorIs(t, err, ErrCompanionLocked)

	// 拒绝时不扣积分不记用量
	balance := testutil.GetBalance(t, db, user.ID)
	assert.Equal(t, 100, balance.MonthlyRemaining)
}

func TestUsageService_Use_TrialUnlocksCompanion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	now := time.Now()
	user := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-time.Hour), now.Add(4*time.Hour)),
	)
	companion := testutil.TestCompanion(t, db, "星河", model.PlanPro)
	testutil.GrantCredits(t, db, user.ID, model.PoolTrial, 60)

	// 试用期内 pro 伴侣可用，消费从 trial 池走（monthly/topup 为空）
	resp, err := svc.Use(user.ID, companion.ID, "chat", 1, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.PoolTrial: 1}, resp.DeductedByPool)
}

func TestUsageService_Use_CapFollowsCompanionTier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	now := time.Now()
	user := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-time.Hour), now.Add(4*time.Hour)),
	)
	free := testutil.TestCompanion(t, db, "小暖", model.PlanFree)
	pro := testutil.TestCompanion(t, db, "星河", model.PlanPro)
	testutil.GrantCredits(t, db, user.ID, model.PoolTrial, 60)

	// 限额取伴侣档位：pro 档 image 不限次，试用解锁的伴侣按 pro 算
	for i := 0; i < 4; i++ {
		_, err := svc.Use(user.ID, pro.ID, "image", 1, now)
		require.NoError(t, err)
	}

	// free 伴侣仍按 free 档的 3 次/日计，试用不放大数值限额
	for i := 0; i < 3; i++ {
		_, err := svc.Use(user.ID, free.ID, "image", 1, now)
		require.NoError(t, err)
	}
	_, err := svc.Use(user.ID, free.ID, "image", 1, now)
	assert.ErrorIs(t, err, ErrFeatureLimitReached)
}

func TestUsageService_Use_LimitPerCompanion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	now := time.Now()
	user := testutil.TestUser(t, db)
	c1 := testutil.TestCompanion(t, db, "小暖", model.PlanFree)
	c2 := testutil.TestCompanion(t, db, "拾光", model.PlanFree)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 100)

	// image 限 3 次/日，按伴侣独立计数
	for i := 0; i < 3; i++ {
		_, err := svc.Use(user.ID, c1.ID, "image", 1, now)
		require.NoError(t, err)
	}
	_, err := svc.Use(user.ID, c1.ID, "image", 1, now)
	assert.ErrorIs(t, err, ErrFeatureLimitReached)

	// 同一功能换伴侣不占额
	resp, err := svc.Use(user.ID, c2.ID, "image", 1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.FeatureUsed)

	// 次日重新计
	tomorrow := now.Add(24 * time.Hour)
	_, err = svc.Use(user.ID, c1.ID, "image", 1, tomorrow)
	require.NoError(t, err)
}

func TestUsageService_Use_InsufficientCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	now := time.Now()
	user := testutil.TestUser(t, db)
	companion := testutil.TestCompanion(t, db, "小暖", model.PlanFree)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 2)

	// voice 单价 3 > 余额 2：整体失败，用量不记
	_, err := svc.Use(user.ID, companion.ID, "voice", 1, now)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	used, repoErr := repository.NewUsageRepository(db).GetUsed(user.ID, companion.ID, "voice", model.UsageDay(now))
	require.NoError(t, repoErr)
	assert.Equal(t, 0, used)
	assertLedgerConsistent(t, db, user.ID)
}

func TestUsageService_Use_UnknownFeature(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	user := testutil.TestUser(t, db)
	companion := testutil.TestCompanion(t, db, "小暖", model.PlanFree)

	_, err := svc.Use(user.ID, companion.ID, "teleport", 1, time.Now())
	assert.ErrorIs(t, err, ErrUnknownFeature)

	_, err = svc.Use(user.ID, 9999, "chat", 1, time.Now())
	assert.ErrorIs(t, err, ErrCompanionNotFound)
}

func TestUsageService_Use_UnlimitedFeature(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newUsageService(db)
	now := time.Now()
	user := testutil.TestUser(t, db, testutil.WithPlan(model.PlanBasic, model.SubStatusActive, model.CycleMonthly))
	companion := testutil.TestCompanion(t, db, "知秋", model.PlanBasic)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 200)

	// basic 档 chat 不限次，只受积分约束
	for i := 0; i < 40; i++ {
		_, err := svc.Use(user.ID, companion.ID, "chat", 1, now)
		require.NoError(t, err)
	}

	balance := testutil.GetBalance(t, db, user.ID)
	assert.Equal(t, 160, balance.MonthlyRemaining)
}
