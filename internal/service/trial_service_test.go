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

func newTrialService(db *gorm.DB) *TrialService {
	return NewTrialService(db, repository.NewUserRepository(db), newCreditService(db), testConfig())
}

func TestTrialService_Start(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)
	user := testutil.TestUser(t, db)
	now := time.Now()

	got, err := svc.Start(user.ID, now)
	require.NoError(t, err)

	assert.True(t, got.TrialUsed)
	require.NotNil(t, got.TrialExpiresAt)
	assert.Equal(t, now.Add(5*time.Hour).Unix(), got.TrialExpiresAt.Unix())
	assert.True(t, got.TrialActive(now))

	// 试用积分进 trial 池并走流水
	balance := testutil.GetBalance(t, db, user.ID)
	assert.Equal(t, 60, balance.TrialRemaining)
	assertLedgerConsistent(t, db, user.ID)
}

func TestTrialService_Start_OncePerUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)
	user := testutil.TestUser(t, db)
	now := time.Now()

	_, err := svc.Start(user.ID, now)
	require.NoError(t, err)

	// 再来一次：拒绝且不二次发放
	_, err = svc.Start(user.ID, now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)

	balance := testutil.GetBalance(t, db, user.ID)
	assert.Equal(t, 60, balance.TrialRemaining)
}

func TestTrialService_Start_UsedStaysUsedAfterExpiry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)
	now := time.Now()
	user := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-10*time.Hour), now.Add(-5*time.Hour)),
	)

	// 试用已过期但标记不复位
	_, err := svc.Start(user.ID, now)
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)
}

func TestTrialService_Start_PaidUserIneligible(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)
	user := testutil.TestUser(t, db, testutil.WithPlan(model.PlanBasic, model.SubStatusActive, model.CycleMonthly))

	_, err := svc.Start(user.ID, time.Now())
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)
}

func TestTrialService_Start_UserNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)

	_, err := svc.Start(34567, time.Now())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTrialService_SweepExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	svc := newTrialService(db)
	now := time.Now()

	expired := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-8*time.Hour), now.Add(-3*time.Hour)),
	)
	testutil.GrantCredits(t, db, expired.ID, model.PoolTrial, 25)
	testutil.GrantCredits(t, db, expired.ID, model.PoolTopup, 10)

	active := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-time.Hour), now.Add(4*time.Hour)),
	)
	testutil.GrantCredits(t, db, active.ID, model.PoolTrial, 60)

	swept, err := svc.SweepExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	// 过期用户 trial 清零并记 trial_revoke 流水，其他池不动
	balance := testutil.GetBalance(t, db, expired.ID)
	assert.Equal(t, 0, balance.TrialRemaining)
	assert.Equal(t, 10, balance.TopupRemaining)
	assertLedgerConsistent(t, db, expired.ID)

	var entry model.CreditLedgerEntry
	err = db.Where("user_id = ? AND reason = ?", expired.ID, model.ReasonTrialRevoke).First(&entry).Error
	require.NoError(t, err)
	assert.Equal(t, -25, entry.Delta)

	// 未过期的不动
	balance = testutil.GetBalance(t, db, active.ID)
	assert.Equal(t, 60, balance.TrialRemaining)

	// 重跑无事可做
	swept, err = svc.SweepExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestTrialService_SweepExpired_Disabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	cfg := testConfig()
	cfg.Billing.Trial.RevokeLeftover = false
	svc := NewTrialService(db, repository.NewUserRepository(db), newCreditService(db), cfg)

	now := time.Now()
	user := testutil.TestUser(t, db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-8*time.Hour), now.Add(-3*time.Hour)),
	)
	testutil.GrantCredits(t, db, user.ID, model.PoolTrial, 25)

	swept, err := svc.SweepExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// 关闭回收时剩余试用积分保留
	balance := testutil.GetBalance(t, db, user.ID)
	assert.Equal(t, 25, balance.TrialRemaining)
}
