package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Account 玩家账户表
// 记录挂机产出余额、升级等级和邀请关系，是整个经济系统的核心数据
type Account struct {
	ID               string                      `gorm:"type:varchar(32);primaryKey" json:"id"` // 外部数字ID的十进制字符串
	Username         *string                     `gorm:"type:varchar(64)" json:"username"`      // 展示名，可为空
	FirstName        *string                     `gorm:"type:varchar(64)" json:"first_name"`
	LastName         *string                     `gorm:"type:varchar(64)" json:"last_name"`
	RegisteredAt     float64                     `gorm:"not null" json:"registered_at"`      // 注册时间（Unix 秒）
	Upgrades         Upgrades                    `gorm:"type:json;not null" json:"upgrades"` // 槽位 -> 等级，必须包含 vault_main
	Language         string                      `gorm:"type:varchar(16);not null" json:"language"`
	Balance          uint64                      `gorm:"not null;default:0" json:"balance"` // 已结算余额
	RatePerHour      uint64                      `gorm:"not null" json:"rate_per_hour"`     // 每小时产出
	LastAccrualAt    float64                     `gorm:"not null" json:"last_accrual_at"`   // 上次结算时间（Unix 秒）
	ReferralCode     string                      `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code"`
	ReferredAccounts datatypes.JSONSlice[string] `gorm:"type:json" json:"referred_accounts"` // 通过本账户邀请码注册的账户，只追加
	Version          int                         `gorm:"not null;default:0" json:"-"`        // 乐观锁版本号
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"-"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"-"`
}

func (Account) TableName() string {
	return "account"
}

// Upgrades 槽位 -> 等级，以 JSON 存储
type Upgrades map[string]int

// Value implements the driver.Valuer interface
func (u Upgrades) Value() (driver.Value, error) {
	if u == nil {
		return "{}", nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (u *Upgrades) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*u = make(Upgrades)
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("无法解析 upgrades 字段:", value))
	}

	if len(bytes) == 0 {
		*u = make(Upgrades)
		return nil
	}

	result := make(map[string]int)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*u = Upgrades(result)
	return nil
}
