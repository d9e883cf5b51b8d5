package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/testutil"
)

func TestCreditRepository_SumByPool(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCreditRepository(db)

	user := testutil.TestUser(t, db)
	testutil.GrantCredits(t, db, user.ID, model.PoolMonthly, 100)
	testutil.GrantCredits(t, db, user.ID, model.PoolTopup, 50)

	// 再记一笔消费
	err := repo.CreateEntry(&model.CreditLedgerEntry{
		UserID: user.ID,
		Pool:   model.PoolMonthly,
		Delta:  -30,
		Reason: model.ReasonSpend,
	})
	require.NoError(t, err)

	sums, err := repo.SumByPool(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, sums[model.PoolMonthly])
	assert.Equal(t, 50, sums[model.PoolTopup])
	// 没有流水的池也要有键
	assert.Equal(t, 0, sums[model.PoolTrial])
}

func TestCreditRepository_SumByPool_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCreditRepository(db)

	sums, err := repo.SumByPool(12345)
	require.NoError(t, err)
	assert.Equal(t, 0, sums[model.PoolMonthly])
	assert.Equal(t, 0, sums[model.PoolTopup])
	assert.Equal(t, 0, sums[model.PoolTrial])
}

func TestCreditRepository_ListEntries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCreditRepository(db)

	user := testutil.TestUser(t, db)
	for i := 0; i < 5; i++ {
		testutil.GrantCredits(t, db, user.ID, model.PoolTopup, 10+i)
	}

	entries, total, err := repo.ListEntries(user.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, entries, 3)

	// 倒序：最后发放的在前
	assert.Equal(t, 14, entries[0].Delta)

	entries, _, err = repo.ListEntries(user.ID, 2, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreditRepository_ListRecentActiveUserIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCreditRepository(db)

	active := testutil.TestUser(t, db)
	testutil.GrantCredits(t, db, active.ID, model.PoolMonthly, 10)
	testutil.GrantCredits(t, db, active.ID, model.PoolTopup, 10)

	quiet := testutil.TestUser(t, db)
	_ = quiet

	ids, err := repo.ListRecentActiveUserIDs(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	// 去重后只出现一次
	require.Len(t, ids, 1)
	assert.Equal(t, active.ID, ids[0])
}

func TestCreditRepository_ListStaleMonthlyResets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCreditRepository(db)
	now := time.Now()

	// 从未重置过（标记为空）也算过期
	never := testutil.TestUser(t, db)

	stale := testutil.TestUser(t, db)
	err := db.Model(&model.CreditBalance{}).Where("user_id = ?", stale.ID).
		Update("last_monthly_reset_at", now.Add(-40*24*time.Hour)).Error
	require.NoError(t, err)

	fresh := testutil.TestUser(t, db)
	err = db.Model(&model.CreditBalance{}).Where("user_id = ?", fresh.ID).
		Update("last_monthly_reset_at", now.Add(-24*time.Hour)).Error
	require.NoError(t, err)

	balances, err := repo.ListStaleMonthlyResets(now.Add(-30 * 24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, balances, 2)

	ids := []int64{balances[0].UserID, balances[1].UserID}
	assert.Contains(t, ids, never.ID)
	assert.Contains(t, ids, stale.ID)
}
