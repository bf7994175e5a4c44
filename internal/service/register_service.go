package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"strconv"
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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================================
// 注册与邀请奖励
// ============================================================================
//
// 带邀请码注册时，新账户和邀请人各得一份奖励，并把新账户ID追加到邀请人的
// referredAccounts。新账户ID只能注册一次，所以同一对邀请关系最多发放一次奖励。
//
// 两个账户的写入在同一个数据库事务内完成，要么都成功要么都回滚，
// 不会出现邀请人已加奖励而新账户没建出来的情况。
//
// 邀请码查不到时正常注册，不发奖励，也不报错。
//
// ============================================================================

type RegisterService struct {
	db           *gorm.DB
	rules        *economy.Rules
	sharedSecret string
	accountRepo  *repository.AccountRepository
	events       eventWriter
	locker       accountLocker
	now          func() time.Time
}

func NewRegisterService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, rules *economy.Rules) *RegisterService {
	return &RegisterService{
		db:           db,
		rules:        rules,
		sharedSecret: cfg.Auth.SharedSecret,
		accountRepo:  repository.NewAccountRepository(db),
		events: eventWriter{
			outboxRepo: repository.NewOutboxRepository(db),
			topic:      cfg.Kafka.Topic.AccountEvent,
		},
		locker: newAccountLocker(redisClient, &cfg.Business),
		now:    time.Now,
	}
}

type RegisterRequest struct {
	Password     string  `json:"password"`
	ID           uint64  `json:"id"`
	Username     *string `json:"username"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Language     string  `json:"language"`
	FromReferral *string `json:"from_referal"`
}

type RegisterResponse struct {
	Account  *AccountStatus `json:"account"`
	Referred bool           `json:"referred"` // 是否通过有效邀请码注册并发放了奖励
}

func (s *RegisterService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.sharedSecret)) != 1 {
		return nil, ErrUnauthorized
	}
	if req.ID == 0 {
		return nil, fmt.Errorf("%w: id 必须大于0", ErrInvalidParam)
	}
	if strings.TrimSpace(req.Language) == "" {
		return nil, fmt.Errorf("%w: language 不能为空", ErrInvalidParam)
	}

	id := strconv.FormatUint(req.ID, 10)

	// 先在锁外解析邀请人，以便两个账户按顺序一起加锁
	var referrerID string
	if code := referralCode(req); code != "" {
		referrer, err := s.accountRepo.GetByReferralCode(ctx, nil, code)
		if err != nil {
			return nil, err
		}
		if referrer != nil && referrer.ID != id {
			referrerID = referrer.ID
		}
	}

	lockIDs := []string{id}
	if referrerID != "" {
		lockIDs = append(lockIDs, referrerID)
	}
	unlock, err := s.locker.lock(ctx, lockIDs...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	account := s.newAccount(id, req, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.accountRepo.Exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if exists {
			return ErrAccountExists
		}

		if referrerID != "" {
			if err := s.grantReferral(ctx, tx, referrerID, account, now); err != nil {
				return err
			}
		}

		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}

		return s.events.write(ctx, tx, model.EventAccountRegistered, id, now, map[string]interface{}{
			"language":    account.Language,
			"referred_by": referrerID,
		})
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			logger.Log.Info("[Register] 账户已注册", zap.String("account_id", id))
		}
		return nil, classify(err)
	}

	referred := referrerID != ""
	metrics.RecordRegistration(referred)
	logger.Log.Info("[Register] 注册成功",
		zap.String("account_id", id),
		zap.String("referrer_id", referrerID),
	)

	q, err := s.rules.Quote(account.Upgrades, account.Balance, account.RatePerHour, account.LastAccrualAt, economy.Timestamp(now))
	if err != nil {
		return nil, classify(err)
	}

	return &RegisterResponse{Account: buildStatus(account, q), Referred: referred}, nil
}

// grantReferral 给邀请人和新账户各加一份奖励，并记录邀请关系
func (s *RegisterService) grantReferral(ctx context.Context, tx *gorm.DB, referrerID string, account *model.Account, now time.Time) error {
	referrer, err := s.accountRepo.GetByIDForUpdate(ctx, tx, referrerID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return fmt.Errorf("%w: 邀请人 %s 已不存在", ErrInconsistent, referrerID)
		}
		return err
	}

	for _, existing := range referrer.ReferredAccounts {
		if existing == account.ID {
			return fmt.Errorf("%w: 邀请人 %s 已记录账户 %s", ErrInconsistent, referrerID, account.ID)
		}
	}

	bonus := s.rules.ReferralBonus
	referrer.ReferredAccounts = append(referrer.ReferredAccounts, account.ID)
	referrer.Balance = addBonus(referrer.Balance, bonus)
	account.Balance = addBonus(account.Balance, bonus)

	if err := s.accountRepo.Replace(ctx, tx, referrer); err != nil {
		return err
	}

	return s.events.write(ctx, tx, model.EventReferralBonusGranted, referrerID, now, map[string]interface{}{
		"referrer_id": referrerID,
		"referred_id": account.ID,
		"bonus":       bonus,
	})
}

func (s *RegisterService) newAccount(id string, req *RegisterRequest, now time.Time) *model.Account {
	ts := economy.Timestamp(now)
	return &model.Account{
		ID:               id,
		Username:         req.Username,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		RegisteredAt:     ts,
		Upgrades:         s.rules.NewUpgrades(),
		Language:         req.Language,
		Balance:          0,
		RatePerHour:      s.rules.DefaultRatePerHour,
		LastAccrualAt:    ts,
		ReferralCode:     economy.ReferralCode(id),
		ReferredAccounts: datatypes.JSONSlice[string]{},
	}
}

func referralCode(req *RegisterRequest) string {
	if req.FromReferral == nil {
		return ""
	}
	return strings.TrimSpace(*req.FromReferral)
}

func addBonus(balance, bonus uint64) uint64 {
	if balance > math.MaxUint64-bonus {
		return math.MaxUint64
	}
	return balance + bonus
}
