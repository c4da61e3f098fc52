package model

import (
	"time"
)

// ============================================================================
// 核销令牌状态常量
// ============================================================================

const (
	TokenStatusIssued  = "ISSUED"  // 已签发，等待商家扫码
	TokenStatusUsed    = "USED"    // 已核销（终态）
	TokenStatusExpired = "EXPIRED" // 已过期（终态，由清理任务或惰性检查写入）
	TokenStatusRevoked = "REVOKED" // 已作废（终态，被重新签发的令牌取代）
)

// ValidTokenTransitions 令牌状态机
// ISSUED 是唯一的非终态；USED/EXPIRED/REVOKED 之间不允许任何转移
var ValidTokenTransitions = map[string][]string{
	TokenStatusIssued: {TokenStatusUsed, TokenStatusExpired, TokenStatusRevoked},
}

// TokenCanTransitionTo 校验令牌状态转移是否合法
func TokenCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidTokenTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// 令牌类型
const (
	TokenTypeMileage = "MILEAGE" // 里程核销令牌
	TokenTypeCoupon  = "COUPON"  // 优惠券核销令牌
)

// RedemptionToken 核销令牌表
// 每个令牌对应一张二维码，短时效、一次性
//
// 【关键点】expires_at 是派生事实：校验和核销必须实时对比当前时间，
// 不能只信存储的 status —— 清理任务可能还没来得及把过期令牌置为 EXPIRED
type RedemptionToken struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"` // UUID，不可猜测的凭证ID
	OwnerUserID      int64      `gorm:"index;not null" json:"owner_user_id"`   // 令牌归属用户
	TokenType        string     `gorm:"type:varchar(20);not null" json:"token_type"`
	ReferenceID      string     `gorm:"type:varchar(64);index" json:"reference_id"` // 优惠券ID（里程令牌为空）
	Status           string     `gorm:"type:varchar(20);index;not null" json:"status"`
	IssuedAt         time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt           *time.Time `json:"used_at"`
	UsedByBusinessID int64      `gorm:"default:0" json:"used_by_business_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedemptionToken) TableName() string {
	return "redemption_token"
}

// IsExpiredAt 按给定时间判断令牌是否已过期（与存储状态无关）
func (t *RedemptionToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
