package model

import (
	"time"
)

// RewardPolicy 奖励/补贴政策表
// 核心对政策只读；管理端修改政策属于外部系统
//
// 【关键点】结算单上的政府补贴按核销那一刻的政策值快照计算并落库，
// 政策之后再怎么改都不影响已生成的结算单
type RewardPolicy struct {
	ID                         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventCouponGovernmentRatio int       `gorm:"not null;default:50" json:"event_coupon_government_ratio"` // 活动券政府补贴比例（百分比 0-100）
	TokenTTLMinutes            int       `gorm:"not null;default:10" json:"token_ttl_minutes"`             // 核销令牌有效期（分钟）
	SignupRewardAmount         int64     `gorm:"not null;default:0" json:"signup_reward_amount"`           // 注册奖励里程
	ReferralRewardAmount       int64     `gorm:"not null;default:0" json:"referral_reward_amount"`         // 推荐奖励里程
	CreatedAt                  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RewardPolicy) TableName() string {
	return "reward_policy"
}
