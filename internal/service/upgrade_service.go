package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// UpgradeService 用余额购买矿机或金库升级
type UpgradeService struct {
	db          *gorm.DB
	rules       *economy.Rules
	accountRepo *repository.AccountRepository
	events      eventWriter
	locker      accountLocker
	now         func() time.Time
}

func NewUpgradeService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, rules *economy.Rules) *UpgradeService {
	return &UpgradeService{
		db:          db,
		rules:       rules,
		accountRepo: repository.NewAccountRepository(db),
		events: eventWriter{
			outboxRepo: repository.NewOutboxRepository(db),
			topic:      cfg.Kafka.Topic.AccountEvent,
		},
		locker: newAccountLocker(redisClient, &cfg.Business),
		now:    time.Now,
	}
}

type UpgradeRequest struct {
	ID   uint64 `json:"id"`
	Slot string `json:"slot"`
}

type UpgradeResponse struct {
	Account       *AccountStatus `json:"account"`
	Slot          string         `json:"slot"`
	Tier          int            `json:"tier"`
	Price         uint64         `json:"price"`
	NextPrice     uint64         `json:"next_price"`      // 已满级时为 0
	NextRateBonus uint64         `json:"next_rate_bonus"` // 已满级时为 0
}

// Purchase 升级一个槽位
//
// 先按旧产出速率结算到当前时间，再扣款升级，新速率只从升级后开始生效。
// 账户还没有的矿机槽位视为 0 级，价格表配置了 1 级时可以直接购买。
func (s *UpgradeService) Purchase(ctx context.Context, req *UpgradeRequest) (*UpgradeResponse, error) {
	if req.ID == 0 {
		return nil, fmt.Errorf("%w: id 必须大于0", ErrInvalidParam)
	}
	slot := strings.TrimSpace(req.Slot)
	kind, err := economy.SlotKind(slot)
	if err != nil {
		return nil, err
	}
	if kind == economy.SlotKindVault && slot != economy.VaultSlot {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}

	id := fmt.Sprintf("%d", req.ID)
	unlock, err := s.locker.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		account    *model.Account
		settlement economy.Settlement
		cost       economy.UpgradeCost
		newTier    int
	)

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err = s.accountRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err = settle(s.rules, account, now); err != nil {
			return err
		}

		current := account.Upgrades[slot]
		cost, err = s.rules.Upgrades.Next(slot, current)
		if err != nil {
			return err
		}
		if account.Balance < cost.BuyPrice {
			return fmt.Errorf("%w: 需要 %d，当前 %d", ErrInsufficientBalance, cost.BuyPrice, account.Balance)
		}

		newTier = current + 1
		if kind == economy.SlotKindVault {
			if _, err := s.rules.Capacity.Capacity(newTier); err != nil {
				return err
			}
		}

		upgrades := make(model.Upgrades, len(account.Upgrades)+1)
		for k, v := range account.Upgrades {
			upgrades[k] = v
		}
		upgrades[slot] = newTier

		account.Upgrades = upgrades
		account.Balance -= cost.BuyPrice
		if kind == economy.SlotKindMiner {
			account.RatePerHour += cost.RateBonus
		}

		// 升级后重新计算容量和使用率，待领取为 0
		settlement, err = s.rules.Settle(account.Upgrades, account.Balance, account.RatePerHour, account.LastAccrualAt, account.LastAccrualAt)
		if err != nil {
			return err
		}

		if err := s.accountRepo.Replace(ctx, tx, account); err != nil {
			return err
		}

		return s.events.write(ctx, tx, model.EventUpgradePurchased, id, now, map[string]interface{}{
			"slot":          slot,
			"tier":          newTier,
			"price":         cost.BuyPrice,
			"rate_per_hour": account.RatePerHour,
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			logger.Log.Debug("[Upgrade] 余额不足", zap.String("account_id", id), zap.String("slot", slot))
		}
		return nil, classify(err)
	}

	metrics.Upgrades.WithLabelValues(kind).Inc()
	logger.Log.Info("[Upgrade] 升级成功",
		zap.String("account_id", id),
		zap.String("slot", slot),
		zap.Int("tier", newTier),
		zap.Uint64("price", cost.BuyPrice),
	)

	resp := &UpgradeResponse{
		Account: buildStatus(account, settlement.Quote),
		Slot:    slot,
		Tier:    newTier,
		Price:   cost.BuyPrice,
	}
	if next, err := s.rules.Upgrades.Next(slot, newTier); err == nil {
		resp.NextPrice = next.BuyPrice
		resp.NextRateBonus = next.RateBonus
	}
	return resp, nil
}
