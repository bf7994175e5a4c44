package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 账户级分布式锁
// ============================================================================
//
// 同一个账户的领取、升级、被邀请入账必须串行，否则：
//
//   请求1: 读取 last=10:00 -> 结算 2000 -> 写入 last=12:00
//   请求2: 读取 last=10:00 -> 结算 2000 -> 写入 last=12:00   重复入账！
//
// 锁粒度是单个账户，不同账户之间完全并发，没有进程级全局锁。
//
// 加锁：SET key token NX EX ttl
// 释放：Lua 脚本比较 token 后再 DEL，避免误删别人续上的锁
//
// 邀请注册同时涉及两个账户，用 LockInOrder 按 key 排序加锁，
// 两个请求交叉持锁时不会互相等待形成死锁。
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁持有者标识，释放时校验
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// NewAccountLock 创建账户锁，value 使用请求级 token 便于排查谁持有锁
func NewAccountLock(client *redis.Client, accountID, token string, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("account:lock:%s", accountID)
	return NewDistributedLock(client, key, token, expiration)
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// LockInOrder 按 key 排序依次加锁，任一失败则释放已持有的锁
//
// 返回的 unlock 按加锁的逆序释放
func LockInOrder(ctx context.Context, retryInterval time.Duration, maxRetries int, locks ...*DistributedLock) (func(), error) {
	ordered := make([]*DistributedLock, 0, len(locks))
	seen := make(map[string]bool, len(locks))
	for _, l := range locks {
		if seen[l.key] {
			continue
		}
		seen[l.key] = true
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key < ordered[j].key })

	held := make([]*DistributedLock, 0, len(ordered))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock(context.Background())
		}
	}

	for _, l := range ordered {
		if err := l.Lock(ctx, retryInterval, maxRetries); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, l)
	}

	return unlock, nil
}
