package repository

import (
	"context"
	"errors"
	"time"

	"buzz/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCouponNotFound    = errors.New("优惠券不存在")
	ErrCouponAlreadyUsed = errors.New("优惠券已使用")
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, tx *gorm.DB, coupon *model.Coupon) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(coupon).Error
}

func (r *CouponRepository) GetByID(ctx context.Context, tx *gorm.DB, couponID string) (*model.Coupon, error) {
	if tx == nil {
		tx = r.db
	}
	var coupon model.Coupon
	err := tx.WithContext(ctx).Where("id = ?", couponID).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// MarkUsed 条件核销优惠券，is_used 只允许 false -> true 一次
func (r *CouponRepository) MarkUsed(ctx context.Context, tx *gorm.DB, couponID string, businessID int64, usedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("id = ? AND is_used = ?", couponID, false).
		Updates(map[string]interface{}{
			"is_used":          true,
			"used_at":          usedAt,
			"used_business_id": businessID,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCouponAlreadyUsed
	}

	return nil
}

func (r *CouponRepository) ListByUserID(ctx context.Context, userID int64, onlyUsable bool) ([]*model.Coupon, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if onlyUsable {
		query = query.Where("is_used = ? AND expires_at > ?", false, time.Now())
	}

	var coupons []*model.Coupon
	err := query.Order("created_at DESC").Find(&coupons).Error
	return coupons, err
}
