package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oxigame/internal/config"
	"oxigame/internal/infrastructure/lock"
	"oxigame/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

// accountLocker 按账户加 Redis 锁，同一请求内的多把锁共享一个 token
type accountLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func newAccountLocker(client *redis.Client, cfg *config.BusinessConfig) accountLocker {
	return accountLocker{
		client:        client,
		ttl:           time.Duration(cfg.LockTTLSeconds) * time.Second,
		retryInterval: time.Duration(cfg.LockRetryIntervalMs) * time.Millisecond,
		maxRetries:    cfg.LockMaxRetries,
	}
}

// lock 锁住给定账户，返回的 unlock 必须调用
func (l accountLocker) lock(ctx context.Context, accountIDs ...string) (func(), error) {
	token := idgen.GenerateLockToken()
	locks := make([]*lock.DistributedLock, 0, len(accountIDs))
	for _, id := range accountIDs {
		locks = append(locks, lock.NewAccountLock(l.client, id, token, l.ttl))
	}

	unlock, err := lock.LockInOrder(ctx, l.retryInterval, l.maxRetries, locks...)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("%w: 加锁: %v", ErrStorage, err)
	}
	return unlock, nil
}
