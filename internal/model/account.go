package model

import (
	"time"
)

// MileageAccount 用户里程账户表
// 记录用户的里程余额，是整个积分体系的核心数据
//
// 【重要】balance 是物化视图：任何时刻必须等于该账户全部流水的带符号合计
// （earn + admin_adjust − use），且永远 >= 0
type MileageAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"` // 用户ID，业务方传入
	Balance   int64     `gorm:"not null;default:0" json:"balance"`   // 可用里程余额
	Version   int       `gorm:"not null;default:0" json:"version"`   // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MileageAccount) TableName() string {
	return "mileage_account"
}
