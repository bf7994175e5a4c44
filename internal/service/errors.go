package service

import (
	"errors"
	"fmt"

	"oxigame/internal/economy"
	"oxigame/internal/infrastructure/lock"
	"oxigame/internal/repository"
)

// 业务错误分类，handler 通过 errors.Is 映射到 HTTP 状态码和错误码
var (
	ErrUnauthorized        = errors.New("鉴权失败")
	ErrInvalidParam        = errors.New("参数错误")
	ErrInconsistent        = errors.New("账户数据不一致")
	ErrBusy                = errors.New("系统繁忙，请稍后重试")
	ErrInsufficientBalance = errors.New("余额不足")

	ErrAccountNotFound   = repository.ErrAccountNotFound
	ErrAccountExists     = repository.ErrAccountExists
	ErrReferralCodeTaken = repository.ErrReferralCodeTaken
	ErrStorage           = repository.ErrStorage
	ErrUnknownSlot       = economy.ErrUnknownSlot
	ErrMaxTier           = economy.ErrMaxTier
)

// classify 把下层错误归入上面的分类
//
// 容量表查不到等级说明账户数据或配置已损坏，不能当作容量 0 继续计算；
// 持锁后仍然发生版本冲突，通常是锁过期被别的请求抢走，按繁忙处理让客户端重试。
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, economy.ErrUnknownTier):
		return fmt.Errorf("%w: %v", ErrInconsistent, err)
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	case errors.Is(err, lock.ErrLockFailed):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
