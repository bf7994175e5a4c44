package service

import (
	"oxigame/internal/economy"
	"oxigame/internal/model"
)

// AccountStatus 账户记录加上按当前时间推算出的字段
type AccountStatus struct {
	ID                string         `json:"id"`
	Username          *string        `json:"username"`
	FirstName         *string        `json:"first_name"`
	LastName          *string        `json:"last_name"`
	RegisteredAt      float64        `json:"registered_at"`
	Upgrades          map[string]int `json:"upgrades"`
	Language          string         `json:"language"`
	Balance           uint64         `json:"balance"`
	RatePerHour       uint64         `json:"rate_per_hour"`
	LastAccrualAt     float64        `json:"last_accrual_at"`
	ReferralCode      string         `json:"referral_code"`
	ReferredAccounts  []string       `json:"referred_accounts"`
	PendingAccrual    uint64         `json:"pending_accrual"` // 查询时为待领取数量，领取后为本次入账数量
	VaultCapacity     uint64         `json:"vault_capacity"`
	VaultUsagePercent uint64         `json:"vault_usage_percent"`
	ReferralCount     int            `json:"referral_count"`
}

func buildStatus(account *model.Account, q economy.Quote) *AccountStatus {
	referred := []string(account.ReferredAccounts)
	if referred == nil {
		referred = []string{}
	}

	return &AccountStatus{
		ID:                account.ID,
		Username:          account.Username,
		FirstName:         account.FirstName,
		LastName:          account.LastName,
		RegisteredAt:      account.RegisteredAt,
		Upgrades:          account.Upgrades,
		Language:          account.Language,
		Balance:           account.Balance,
		RatePerHour:       account.RatePerHour,
		LastAccrualAt:     account.LastAccrualAt,
		ReferralCode:      account.ReferralCode,
		ReferredAccounts:  referred,
		PendingAccrual:    q.Pending,
		VaultCapacity:     q.Capacity,
		VaultUsagePercent: q.UsagePercent,
		ReferralCount:     len(referred),
	}
}
