package repository

import (
	"context"
	"fmt"
	"testing"

	"oxigame/internal/infrastructure/database"
	"oxigame/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newAccount(id, code string) *model.Account {
	return &model.Account{
		ID:               id,
		RegisteredAt:     1_700_000_000,
		Upgrades:         model.Upgrades{"miner_1": 1, "vault_main": 1},
		Language:         "en",
		RatePerHour:      1000,
		LastAccrualAt:    1_700_000_000,
		ReferralCode:     code,
		ReferredAccounts: datatypes.JSONSlice[string]{},
	}
}

func TestAccountCreateAndGet(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newAccount("1001", "f97555")))

	got, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "f97555", got.ReferralCode)
	assert.Equal(t, model.Upgrades{"miner_1": 1, "vault_main": 1}, got.Upgrades)
	assert.Empty(t, got.ReferredAccounts)

	_, err = repo.GetByID(ctx, "404")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountCreateConflicts(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newAccount("1001", "f97555")))

	dup := newAccount("1001", "other1")
	dup.Language = "ru"
	assert.ErrorIs(t, repo.Create(ctx, nil, dup), ErrAccountExists)

	got, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)

	assert.ErrorIs(t, repo.Create(ctx, nil, newAccount("1002", "f97555")), ErrReferralCodeTaken)
}

func TestAccountGetByReferralCode(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, nil, newAccount("1001", "f97555")))

	got, err := repo.GetByReferralCode(ctx, nil, "f97555")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1001", got.ID)

	got, err = repo.GetByReferralCode(ctx, nil, "zzzzzz")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAccountReplace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, nil, newAccount("1001", "f97555")))

	acct, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	stale := *acct

	acct.Balance = 2000
	acct.ReferredAccounts = append(acct.ReferredAccounts, "1002")
	require.NoError(t, repo.Replace(ctx, nil, acct))
	assert.Equal(t, 1, acct.Version)

	got, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), got.Balance)
	assert.Equal(t, []string{"1002"}, []string(got.ReferredAccounts))
	assert.Equal(t, 1, got.Version)

	// 旧版本写入被拒绝，版本号不变
	stale.Balance = 1
	assert.ErrorIs(t, repo.Replace(ctx, nil, &stale), ErrOptimisticLock)
	assert.Equal(t, 0, stale.Version)

	missing := newAccount("404", "aaaaaa")
	assert.ErrorIs(t, repo.Replace(ctx, nil, missing), ErrAccountNotFound)
}

func TestAccountReplaceZeroValues(t *testing.T) {
	repo := NewAccountRepository(setupTestDB(t))
	ctx := context.Background()

	a := newAccount("1001", "f97555")
	a.Balance = 500
	require.NoError(t, repo.Create(ctx, nil, a))

	a.Balance = 0
	require.NoError(t, repo.Replace(ctx, nil, a))

	got, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Balance)
}

func TestAccountGetByIDForUpdateInTransaction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, nil, newAccount("1001", "f97555")))

	err := db.Transaction(func(tx *gorm.DB) error {
		acct, err := repo.GetByIDForUpdate(ctx, tx, "1001")
		if err != nil {
			return err
		}
		acct.Balance = 42
		return repo.Replace(ctx, tx, acct)
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Balance)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.GetByIDForUpdate(ctx, tx, "404")
		return err
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestOutboxRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, nil, &model.OutboxMessage{
			MessageKey: fmt.Sprintf("%d", 1000+i),
			EventType:  model.EventAccountRegistered,
			Topic:      "oxi.account.events",
			Payload:    "{}",
			Status:     model.OutboxStatusPending,
		}))
	}

	pending, err := repo.GetPendingMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "1000", pending[0].MessageKey)

	require.NoError(t, repo.UpdateStatus(ctx, pending[0].ID, model.OutboxStatusSent))
	require.NoError(t, repo.IncrementRetryCount(ctx, pending[1].ID))
	require.NoError(t, repo.MarkAsFailed(ctx, pending[1].ID))

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "1002", pending[0].MessageKey)
}
