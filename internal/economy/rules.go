package economy

import (
	"errors"
	"fmt"
	"sort"
)

// VaultSlot 金库槽位名，容量查询依赖它
const VaultSlot = "vault_main"

var (
	ErrUnknownTier = errors.New("等级不在容量表中")
	ErrUnknownSlot = errors.New("未知的升级槽位")
	ErrMaxTier     = errors.New("已达到最高等级")
)

// CapacityTable 金库等级 -> 最大可存储数量
type CapacityTable map[int]uint64

// Capacity 查询等级对应的容量，查不到时返回 ErrUnknownTier，不会默认为 0
func (t CapacityTable) Capacity(tier int) (uint64, error) {
	c, ok := t[tier]
	if !ok {
		return 0, fmt.Errorf("%w: tier=%d", ErrUnknownTier, tier)
	}
	return c, nil
}

// Rules 进程级只读的经济配置
type Rules struct {
	Capacity           CapacityTable
	Upgrades           UpgradeTable
	DefaultRatePerHour uint64
	ReferralBonus      uint64
	DefaultUpgrades    map[string]int
}

// Validate 启动时校验配置自洽：默认金库等级和所有可升级到的金库等级都必须有容量
func (r *Rules) Validate() error {
	if len(r.Capacity) == 0 {
		return errors.New("economy.vault_capacity 不能为空")
	}
	if r.DefaultRatePerHour == 0 {
		return errors.New("economy.default_rate_per_hour 必须大于0")
	}

	tier, ok := r.DefaultUpgrades[VaultSlot]
	if !ok {
		return fmt.Errorf("economy.default_upgrades 缺少 %s", VaultSlot)
	}
	if _, err := r.Capacity.Capacity(tier); err != nil {
		return fmt.Errorf("默认金库等级: %w", err)
	}

	for kind := range r.Upgrades {
		if kind != SlotKindMiner && kind != SlotKindVault {
			return fmt.Errorf("%w: %s", ErrUnknownSlot, kind)
		}
	}

	for _, t := range sortedTiers(r.Upgrades[SlotKindVault]) {
		if _, err := r.Capacity.Capacity(t); err != nil {
			return fmt.Errorf("金库升级表: %w", err)
		}
	}
	return nil
}

// NewUpgrades 返回注册时的默认升级表副本
func (r *Rules) NewUpgrades() map[string]int {
	upgrades := make(map[string]int, len(r.DefaultUpgrades))
	for k, v := range r.DefaultUpgrades {
		upgrades[k] = v
	}
	return upgrades
}

// VaultCapacity 按账户升级表查询金库容量
func (r *Rules) VaultCapacity(upgrades map[string]int) (uint64, error) {
	tier, ok := upgrades[VaultSlot]
	if !ok {
		return 0, fmt.Errorf("%w: 缺少 %s 槽位", ErrUnknownTier, VaultSlot)
	}
	return r.Capacity.Capacity(tier)
}

func sortedTiers(m map[int]UpgradeCost) []int {
	tiers := make([]int, 0, len(m))
	for t := range m {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)
	return tiers
}
