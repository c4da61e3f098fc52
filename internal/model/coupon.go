package model

import (
	"time"
)

// 优惠券类型
const (
	CouponTypeBasic = "BASIC" // 普通券，商家全额承担
	CouponTypeEvent = "EVENT" // 活动券，政府按比例补贴
)

// 折扣类型
const (
	DiscountTypeAmount     = "AMOUNT"     // 定额折扣
	DiscountTypePercentage = "PERCENTAGE" // 按订单金额百分比折扣
)

// Coupon 优惠券表
// 折扣条款签发后不可变；只有 is_used/used_at/used_business_id 会变化，且只变一次
//
// 【关键点】is_used 是独立于令牌状态的终态标志：
// 令牌一次性已经能防止重复核销，这里再留一道防线
type Coupon struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	CouponType     string     `gorm:"type:varchar(20);not null" json:"coupon_type"`
	DiscountType   string     `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue  int64      `gorm:"not null" json:"discount_value"` // AMOUNT 为金额，PERCENTAGE 为百分比（0-100）
	Title          string     `gorm:"type:varchar(128)" json:"title"`
	IsUsed         bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt         *time.Time `json:"used_at"`
	UsedBusinessID int64      `gorm:"default:0" json:"used_business_id"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

// IsExpiredAt 按给定时间判断优惠券本身是否过期（独立于令牌的过期时间）
func (c *Coupon) IsExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
