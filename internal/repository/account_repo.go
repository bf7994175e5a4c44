package repository

import (
	"context"
	"errors"
	"fmt"

	"oxigame/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound   = errors.New("账户不存在")
	ErrAccountExists     = errors.New("账户已注册")
	ErrReferralCodeTaken = errors.New("邀请码冲突")
	ErrOptimisticLock    = errors.New("乐观锁冲突，请重试")
	ErrStorage           = errors.New("存储操作失败")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageErr("查询账户", err)
	}
	return &account, nil
}

// GetByIDForUpdate 事务内加行锁读取（sqlite 下 FOR UPDATE 子句会被忽略）
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageErr("加锁查询账户", err)
	}
	return &account, nil
}

// GetByReferralCode 按邀请码查找账户，不存在时返回 nil, nil
func (r *AccountRepository) GetByReferralCode(ctx context.Context, tx *gorm.DB, code string) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("referral_code = ?", code).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("按邀请码查询账户", err)
	}
	return &account, nil
}

func (r *AccountRepository) Exists(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	if err := tx.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, storageErr("统计账户", err)
	}
	return count > 0, nil
}

// Create 不存在时插入
//
// 主键或邀请码唯一索引冲突都会导致 0 行写入，再按 ID 查一次区分是哪种冲突
func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return storageErr("创建账户", result.Error)
	}

	if result.RowsAffected == 0 {
		exists, err := r.Exists(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAccountExists
		}
		return ErrReferralCodeTaken
	}

	return nil
}

// Replace 整行覆盖写入，以 version 做乐观锁校验，成功后 version+1
func (r *AccountRepository) Replace(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}

	expected := account.Version
	account.Version = expected + 1

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", account.ID, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(account)

	if result.Error != nil {
		account.Version = expected
		return storageErr("更新账户", result.Error)
	}

	if result.RowsAffected == 0 {
		account.Version = expected
		exists, err := r.Exists(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrOptimisticLock
	}

	return nil
}
