package economy

import (
	"math"
	"time"
)

// ============================================================================
// 挂机产出计算
// ============================================================================
//
// 产出不依赖任何定时任务，完全由"上次结算时间"到"现在"的时间差推算：
//
//   pending = floor((now - last) / 3600 * ratePerHour)
//   pending = min(pending, 金库容量)
//
// 小数部分直接截断丢弃，不保留余数到下一次结算。
// 容量上限只作用于本次新增产出，不约束已有余额。
//
// ============================================================================

// Quote 一次产出查询的结果
type Quote struct {
	Pending      uint64 // 待领取产出（已按容量截断）
	Capacity     uint64 // 当前金库容量
	UsagePercent uint64 // floor(balance*100/capacity)，余额超过容量时会大于 100
}

// Settlement 结算后的新状态
type Settlement struct {
	Quote
	Balance       uint64
	LastAccrualAt float64
}

// Timestamp 把时间转换为浮点秒，与存储格式一致
func Timestamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// PendingAccrual 计算 last 到 now 之间的产出并按容量截断
func PendingAccrual(last, now float64, ratePerHour, capacity uint64) uint64 {
	elapsed := now - last
	if elapsed <= 0 || ratePerHour == 0 {
		return 0
	}

	raw := math.Floor(elapsed / 3600 * float64(ratePerHour))
	if raw >= float64(capacity) {
		return capacity
	}
	return uint64(raw)
}

// Quote 只读计算，不修改任何状态
func (r *Rules) Quote(upgrades map[string]int, balance, ratePerHour uint64, last, now float64) (Quote, error) {
	capacity, err := r.VaultCapacity(upgrades)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Pending:      PendingAccrual(last, now, ratePerHour, capacity),
		Capacity:     capacity,
		UsagePercent: usagePercent(balance, capacity),
	}, nil
}

// Settle 计算结算结果：余额加上产出，结算时间推进到 now（时间不会倒退）
func (r *Rules) Settle(upgrades map[string]int, balance, ratePerHour uint64, last, now float64) (Settlement, error) {
	q, err := r.Quote(upgrades, balance, ratePerHour, last, now)
	if err != nil {
		return Settlement{}, err
	}

	newBalance := balance + q.Pending
	if newBalance < balance {
		newBalance = math.MaxUint64
	}
	q.UsagePercent = usagePercent(newBalance, q.Capacity)

	return Settlement{
		Quote:         q,
		Balance:       newBalance,
		LastAccrualAt: math.Max(last, now),
	}, nil
}

func usagePercent(balance, capacity uint64) uint64 {
	if capacity == 0 {
		return 0
	}
	if balance > math.MaxUint64/100 {
		return balance / capacity * 100
	}
	return balance * 100 / capacity
}
