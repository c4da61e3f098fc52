package model

import (
	"time"
)

// ============================================================================
// 商家结算状态常量
// ============================================================================

const (
	SettlementStatusRequested = "REQUESTED" // 核销时自动创建
	SettlementStatusApproved  = "APPROVED"  // 管理员审核通过
	SettlementStatusPaid      = "PAID"      // 已打款（终态）
	SettlementStatusRejected  = "REJECTED"  // 已驳回（终态）
)

// ValidSettlementTransitions 结算单状态机
// 核销执行器只负责创建 REQUESTED 记录，后续转移全部属于管理员审批流程
var ValidSettlementTransitions = map[string][]string{
	SettlementStatusRequested: {SettlementStatusApproved, SettlementStatusRejected},
	SettlementStatusApproved:  {SettlementStatusPaid},
}

// SettlementCanTransitionTo 校验结算状态转移是否合法
func SettlementCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidSettlementTransitions[currentStatus]
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

// 结算类型
const (
	SettlementTypeMileageUse  = "MILEAGE_USE"  // 里程核销结算
	SettlementTypeEventCoupon = "EVENT_COUPON" // 活动券核销结算（含政府补贴）
)

// 结算单关联的业务实体类型
const (
	SettlementRefMileageTransaction = "MILEAGE_TRANSACTION"
	SettlementRefCoupon             = "COUPON"
)

// BusinessSettlement 商家结算表
// 每次成功核销产生且仅产生一条，金额与政府补贴按核销当时的政策快照计算，
// 之后不再重算
type BusinessSettlement struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SettlementNo      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"settlement_no"`
	BusinessID        int64      `gorm:"index;not null" json:"business_id"`
	SettlementType    string     `gorm:"type:varchar(20);not null" json:"settlement_type"`
	Amount            int64      `gorm:"not null" json:"amount"`             // 应结算给商家的金额
	GovernmentSupport int64      `gorm:"not null" json:"government_support"` // 其中政府补贴部分
	ReferenceType     string     `gorm:"type:varchar(32);not null" json:"reference_type"`
	ReferenceID       string     `gorm:"type:varchar(64);not null" json:"reference_id"`
	Status            string     `gorm:"type:varchar(20);index;not null" json:"status"`
	RejectReason      string     `gorm:"type:varchar(256)" json:"reject_reason"`
	RequestedAt       time.Time  `gorm:"index;not null" json:"requested_at"`
	ProcessedAt       *time.Time `json:"processed_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessSettlement) TableName() string {
	return "business_settlement"
}
