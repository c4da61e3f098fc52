package model

import (
	"time"
)

// User 用户表（核心只读取 id/name，注册等流程由外部系统负责）
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}

// Business 商家表
// 核销和结算都挂在商家ID上；商家的入驻审核属于外部系统
type Business struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	OwnerUserID int64     `gorm:"index" json:"owner_user_id"` // 商家主账号，用于自核销校验
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Business) TableName() string {
	return "business"
}
