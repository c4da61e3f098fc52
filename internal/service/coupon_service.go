package service

import (
	"context"
	"time"

	"buzz/internal/model"
	"buzz/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CouponService 优惠券存取
// 券的发放入口（活动系统/管理端）在外部，这里只负责落库和查询；
// 核销路径见 RedeemService
type CouponService struct {
	db         *gorm.DB
	couponRepo *repository.CouponRepository
}

func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{
		db:         db,
		couponRepo: repository.NewCouponRepository(db),
	}
}

// IssueCouponRequest 发券请求
type IssueCouponRequest struct {
	UserID        int64
	CouponType    string
	DiscountType  string
	DiscountValue int64
	Title         string
	ValidDays     int
}

func (s *CouponService) Issue(ctx context.Context, req *IssueCouponRequest) (*model.Coupon, error) {
	if req.DiscountValue <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.DiscountType == model.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, ErrInvalidAmount
	}

	validDays := req.ValidDays
	if validDays <= 0 {
		validDays = 30
	}

	coupon := &model.Coupon{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		CouponType:    req.CouponType,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		Title:         req.Title,
		ExpiresAt:     time.Now().AddDate(0, 0, validDays),
	}

	if err := s.couponRepo.Create(ctx, nil, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *CouponService) Get(ctx context.Context, couponID string) (*model.Coupon, error) {
	return s.couponRepo.GetByID(ctx, nil, couponID)
}

func (s *CouponService) ListByUser(ctx context.Context, userID int64, onlyUsable bool) ([]*model.Coupon, error) {
	return s.couponRepo.ListByUserID(ctx, userID, onlyUsable)
}
