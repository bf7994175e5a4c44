package service

import (
	"context"
	"fmt"
	"time"

	"oxigame/internal/config"
	"oxigame/internal/economy"
	"oxigame/internal/metrics"
	"oxigame/internal/model"
	"oxigame/internal/repository"
	"oxigame/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService 查询和领取挂机产出
type AccountService struct {
	db          *gorm.DB
	rules       *economy.Rules
	accountRepo *repository.AccountRepository
	locker      accountLocker
	now         func() time.Time
}

func NewAccountService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, rules *economy.Rules) *AccountService {
	return &AccountService{
		db:          db,
		rules:       rules,
		accountRepo: repository.NewAccountRepository(db),
		locker:      newAccountLocker(redisClient, &cfg.Business),
		now:         time.Now,
	}
}

// Peek 只读查询，不加锁也不写库，重复调用结果一致（时间推进除外）
func (s *AccountService) Peek(ctx context.Context, id string) (*AccountStatus, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	q, err := s.rules.Quote(account.Upgrades, account.Balance, account.RatePerHour, account.LastAccrualAt, economy.Timestamp(s.now()))
	if err != nil {
		return nil, classify(fmt.Errorf("账户 %s: %w", id, err))
	}

	return buildStatus(account, q), nil
}

// Claim 把待领取产出结算进余额，结算时间推进到当前时间
//
// 同一时刻重复领取第二次入账为 0
func (s *AccountService) Claim(ctx context.Context, id string) (*AccountStatus, error) {
	unlock, err := s.locker.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		account    *model.Account
		settlement economy.Settlement
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err = s.accountRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		settlement, err = settle(s.rules, account, s.now())
		if err != nil {
			return err
		}

		return s.accountRepo.Replace(ctx, tx, account)
	})
	if err != nil {
		return nil, classify(err)
	}

	metrics.RecordClaim(settlement.Pending)
	logger.Log.Debug("[Claim] 领取成功",
		zap.String("account_id", id),
		zap.Uint64("settled", settlement.Pending),
		zap.Uint64("balance", account.Balance),
	)

	return buildStatus(account, settlement.Quote), nil
}

// settle 在账户上应用结算结果
func settle(rules *economy.Rules, account *model.Account, now time.Time) (economy.Settlement, error) {
	s, err := rules.Settle(account.Upgrades, account.Balance, account.RatePerHour, account.LastAccrualAt, economy.Timestamp(now))
	if err != nil {
		return economy.Settlement{}, fmt.Errorf("账户 %s: %w", account.ID, err)
	}
	account.Balance = s.Balance
	account.LastAccrualAt = s.LastAccrualAt
	return s, nil
}
