package service

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"oxigame/internal/config"
	"oxigame/internal/economy"
	"oxigame/internal/infrastructure/database"
	"oxigame/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "secret"

type testEnv struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	cfg   *config.Config
	rules *economy.Rules

	mu    sync.Mutex
	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return &testEnv{
		db:  db,
		mr:  mr,
		rdb: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		cfg: &config.Config{
			Auth:  config.AuthConfig{SharedSecret: testSecret},
			Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{AccountEvent: "oxi.account.events"}},
			Business: config.BusinessConfig{
				LockTTLSeconds:      5,
				LockRetryIntervalMs: 5,
				LockMaxRetries:      400,
			},
		},
		rules: &economy.Rules{
			Capacity:           economy.CapacityTable{1: 5000, 2: 12000, 3: 50000},
			DefaultRatePerHour: 1000,
			ReferralBonus:      25000,
			DefaultUpgrades:    map[string]int{"miner_1": 1, economy.VaultSlot: 1},
			Upgrades: economy.UpgradeTable{
				economy.SlotKindMiner: {
					1: {BuyPrice: 1500, RateBonus: 1000},
					2: {BuyPrice: 2000, RateBonus: 500},
				},
				economy.SlotKindVault: {
					2: {BuyPrice: 4000},
					3: {BuyPrice: 10000},
				},
			},
		},
		clock: time.Unix(1_700_000_000, 0),
	}
}

func (e *testEnv) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = e.clock.Add(d)
}

func (e *testEnv) accountService() *AccountService {
	s := NewAccountService(e.db, e.rdb, e.cfg, e.rules)
	s.now = e.now
	return s
}

func (e *testEnv) registerService() *RegisterService {
	s := NewRegisterService(e.db, e.rdb, e.cfg, e.rules)
	s.now = e.now
	return s
}

func (e *testEnv) upgradeService() *UpgradeService {
	s := NewUpgradeService(e.db, e.rdb, e.cfg, e.rules)
	s.now = e.now
	return s
}

// seedAccount 直接写库，绕过注册流程
func (e *testEnv) seedAccount(t *testing.T, id string, mutate func(a *model.Account)) *model.Account {
	ts := economy.Timestamp(e.now())
	a := &model.Account{
		ID:               id,
		RegisteredAt:     ts,
		Upgrades:         e.rules.NewUpgrades(),
		Language:         "en",
		RatePerHour:      e.rules.DefaultRatePerHour,
		LastAccrualAt:    ts,
		ReferralCode:     economy.ReferralCode(id),
		ReferredAccounts: datatypes.JSONSlice[string]{},
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, e.db.Create(a).Error)
	return a
}

func (e *testEnv) load(t *testing.T, id string) *model.Account {
	var a model.Account
	require.NoError(t, e.db.Where("id = ?", id).First(&a).Error)
	return &a
}

func (e *testEnv) events(t *testing.T, eventType string) []model.OutboxMessage {
	var msgs []model.OutboxMessage
	require.NoError(t, e.db.Where("event_type = ?", eventType).Order("id ASC").Find(&msgs).Error)
	return msgs
}

func strPtr(s string) *string {
	return &s
}
