package repository

import (
	"context"
	"errors"
	"time"

	"buzz/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSettlementNotFound      = errors.New("结算单不存在")
	ErrSettlementStateConflict = errors.New("结算单状态不允许该操作")
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, settlement *model.BusinessSettlement) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(settlement).Error
}

func (r *SettlementRepository) GetByID(ctx context.Context, settlementID int64) (*model.BusinessSettlement, error) {
	var settlement model.BusinessSettlement
	err := r.db.WithContext(ctx).Where("id = ?", settlementID).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// UpdateStatus 条件转移结算单状态
// 先按状态机校验，再用 WHERE status = fromStatus 防并发审批互踩
func (r *SettlementRepository) UpdateStatus(ctx context.Context, settlementID int64, fromStatus, toStatus, rejectReason string) error {
	if !model.SettlementCanTransitionTo(fromStatus, toStatus) {
		return ErrSettlementStateConflict
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       toStatus,
		"processed_at": &now,
	}
	if rejectReason != "" {
		updates["reject_reason"] = rejectReason
	}

	result := r.db.WithContext(ctx).
		Model(&model.BusinessSettlement{}).
		Where("id = ? AND status = ?", settlementID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSettlementStateConflict
	}

	return nil
}

// SettlementFilter 管理端结算单查询条件
type SettlementFilter struct {
	BusinessID int64
	Status     string
	From       *time.Time
	To         *time.Time
}

func (r *SettlementRepository) List(ctx context.Context, filter SettlementFilter, page, pageSize int) ([]*model.BusinessSettlement, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.BusinessSettlement{})

	if filter.BusinessID > 0 {
		query = query.Where("business_id = ?", filter.BusinessID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("requested_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("requested_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var settlements []*model.BusinessSettlement
	err := query.
		Order("requested_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&settlements).Error

	return settlements, total, err
}
