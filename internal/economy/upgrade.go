package economy

import (
	"fmt"
	"strings"
)

const (
	SlotKindMiner = "miner"
	SlotKindVault = "vault"
)

// UpgradeCost 升级到某个等级的价格；RateBonus 只对矿机有意义
type UpgradeCost struct {
	BuyPrice  uint64
	RateBonus uint64
}

// UpgradeTable 槽位类型 -> 目标等级 -> 价格
type UpgradeTable map[string]map[int]UpgradeCost

// SlotKind 从槽位名推导类型：miner_1 -> miner，vault_main -> vault
func SlotKind(slot string) (string, error) {
	prefix, _, _ := strings.Cut(slot, "_")
	switch prefix {
	case SlotKindMiner, SlotKindVault:
		return prefix, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
}

// Next 查询从 currentTier 升一级的价格
func (t UpgradeTable) Next(slot string, currentTier int) (UpgradeCost, error) {
	kind, err := SlotKind(slot)
	if err != nil {
		return UpgradeCost{}, err
	}
	cost, ok := t[kind][currentTier+1]
	if !ok {
		return UpgradeCost{}, fmt.Errorf("%w: slot=%s tier=%d", ErrMaxTier, slot, currentTier)
	}
	return cost, nil
}
