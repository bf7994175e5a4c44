package config

import (
	"fmt"
	"strconv"

	"oxigame/internal/economy"
)

// EconomyConfig 游戏经济参数
//
// yaml 中的等级表使用字符串 key（"1": 5000），在 Rules() 中转换为 int
type EconomyConfig struct {
	DefaultRatePerHour uint64                           `mapstructure:"default_rate_per_hour"`
	ReferralBonus      uint64                           `mapstructure:"referral_bonus"`
	DefaultUpgrades    map[string]int                   `mapstructure:"default_upgrades"`
	VaultCapacity      map[string]uint64                `mapstructure:"vault_capacity"`
	Upgrades           map[string]map[string]UpgradeRow `mapstructure:"upgrades"`
}

// UpgradeRow 某个升级等级的价格与产出加成
type UpgradeRow struct {
	BuyPrice  uint64 `mapstructure:"buy_price"`
	TokensAdd uint64 `mapstructure:"tokens_add"`
}

// Rules 把配置转换为经济规则并做一致性校验
func (c *EconomyConfig) Rules() (*economy.Rules, error) {
	capacity := make(economy.CapacityTable, len(c.VaultCapacity))
	for k, v := range c.VaultCapacity {
		tier, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("vault_capacity 等级 %q 不是整数", k)
		}
		capacity[tier] = v
	}

	upgrades := make(economy.UpgradeTable, len(c.Upgrades))
	for kind, rows := range c.Upgrades {
		costs := make(map[int]economy.UpgradeCost, len(rows))
		for k, row := range rows {
			tier, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("upgrades.%s 等级 %q 不是整数", kind, k)
			}
			costs[tier] = economy.UpgradeCost{BuyPrice: row.BuyPrice, RateBonus: row.TokensAdd}
		}
		upgrades[kind] = costs
	}

	defaults := c.DefaultUpgrades
	if len(defaults) == 0 {
		defaults = map[string]int{"miner_1": 1, economy.VaultSlot: 1}
	}

	rules := &economy.Rules{
		Capacity:           capacity,
		Upgrades:           upgrades,
		DefaultRatePerHour: c.DefaultRatePerHour,
		ReferralBonus:      c.ReferralBonus,
		DefaultUpgrades:    defaults,
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
