package model

import (
	"time"
)

// ============================================================================
// 里程流水类型常量
// ============================================================================

const (
	MileageTypeEarn        = "EARN"         // 获得里程（注册/推荐奖励等）
	MileageTypeUse         = "USE"          // 使用里程（扫码核销）
	MileageTypeAdminAdjust = "ADMIN_ADJUST" // 管理员调整（可正可负）
)

// 流水来源类型
const (
	ReferenceTypeReferral   = "REFERRAL"    // 推荐奖励
	ReferenceTypeSignup     = "SIGNUP"      // 注册奖励
	ReferenceTypeMileageUse = "MILEAGE_USE" // 商家核销
	ReferenceTypeAdmin      = "ADMIN"       // 管理员操作
)

// SignedAmount 返回该类型流水对余额的带符号影响
// EARN 和 ADMIN_ADJUST 按存储值计入，USE 恒为扣减
func SignedAmount(mileageType string, amount int64) int64 {
	if mileageType == MileageTypeUse {
		return -amount
	}
	return amount
}

// ============================================================================
// 里程流水实体
// ============================================================================

// MileageTransaction 里程流水表
// 记录账户的每一笔里程变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯；修正只能新增 ADMIN_ADJUST 流水
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. reference_type/reference_id 关联产生流水的业务实体（推荐、结算等）
type MileageTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	AccountID     int64     `gorm:"index;not null" json:"account_id"`                            // 账户ID
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                       // 流水类型
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（EARN/USE 存正数，ADMIN_ADJUST 可为负）
	Description   string    `gorm:"type:varchar(256)" json:"description"`                        // 描述
	ReferenceType string    `gorm:"type:varchar(32);not null" json:"reference_type"`             // 来源类型
	ReferenceID   string    `gorm:"type:varchar(64)" json:"reference_id"`                        // 来源ID
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 变动前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 变动后余额
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (MileageTransaction) TableName() string {
	return "mileage_transaction"
}
