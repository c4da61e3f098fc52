package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"buzz/internal/config"
	"buzz/internal/model"
	"buzz/internal/qr"
	"buzz/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenService 核销令牌的签发与校验
type TokenService struct {
	db            *gorm.DB
	cfg           *config.Config
	codec         *qr.Codec
	policyService *PolicyService
	tokenRepo     *repository.TokenRepository
	couponRepo    *repository.CouponRepository
	accountRepo   *repository.AccountRepository
	businessRepo  *repository.BusinessRepository
}

func NewTokenService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *TokenService {
	return &TokenService{
		db:            db,
		cfg:           cfg,
		codec:         qr.NewCodec(cfg.Business.QRSigningSecret),
		policyService: NewPolicyService(db, redisClient, cfg),
		tokenRepo:     repository.NewTokenRepository(db),
		couponRepo:    repository.NewCouponRepository(db),
		accountRepo:   repository.NewAccountRepository(db),
		businessRepo:  repository.NewBusinessRepository(db),
	}
}

// IssueResult 签发结果，qr_data 为签名载荷，qr_image 为可直接展示的 PNG
type IssueResult struct {
	Token    *model.RedemptionToken `json:"token"`
	QRData   string                 `json:"qr_data"`
	QRImage  string                 `json:"qr_image"`
	Balance  int64                  `json:"balance"`
	UserName string                 `json:"user_name"`
	Coupon   *model.Coupon          `json:"coupon,omitempty"`
}

// IssueMileage 签发里程核销令牌
//
// 【关键点】重新签发会作废该用户仍存活的里程令牌：
// 同一标的同一时刻最多一张活码，旧截图/旧二维码不能再用
func (s *TokenService) IssueMileage(ctx context.Context, userID int64) (*IssueResult, error) {
	user, err := s.businessRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := s.issue(ctx, userID, model.TokenTypeMileage, "")
	if err != nil {
		return nil, err
	}

	result, err := s.buildIssueResult(token)
	if err != nil {
		return nil, err
	}
	result.Balance = account.Balance
	result.UserName = user.Name
	return result, nil
}

// IssueCoupon 签发优惠券核销令牌
// 优惠券必须存在、归属该用户、未使用、未过期，否则 CouponNotEligible
func (s *TokenService) IssueCoupon(ctx context.Context, userID int64, couponID string) (*IssueResult, error) {
	coupon, err := s.couponRepo.GetByID(ctx, nil, couponID)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, ErrCouponNotEligible
		}
		return nil, err
	}

	if coupon.UserID != userID || coupon.IsUsed || coupon.IsExpiredAt(time.Now()) {
		return nil, ErrCouponNotEligible
	}

	token, err := s.issue(ctx, userID, model.TokenTypeCoupon, couponID)
	if err != nil {
		return nil, err
	}

	result, err := s.buildIssueResult(token)
	if err != nil {
		return nil, err
	}
	result.Coupon = coupon
	return result, nil
}

func (s *TokenService) issue(ctx context.Context, userID int64, tokenType, referenceID string) (*model.RedemptionToken, error) {
	now := time.Now()
	token := &model.RedemptionToken{
		ID:          uuid.NewString(),
		OwnerUserID: userID,
		TokenType:   tokenType,
		ReferenceID: referenceID,
		Status:      model.TokenStatusIssued,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.policyService.TokenTTL(ctx)),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		revoked, err := s.tokenRepo.RevokeLive(ctx, tx, userID, tokenType, referenceID)
		if err != nil {
			return fmt.Errorf("作废旧令牌失败: %w", err)
		}
		if revoked > 0 {
			log.Printf("[TokenService] 重新签发，作废旧令牌: userID=%d, type=%s, count=%d", userID, tokenType, revoked)
		}
		if err := s.tokenRepo.Create(ctx, tx, token); err != nil {
			return fmt.Errorf("创建令牌失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return token, nil
}

func (s *TokenService) buildIssueResult(token *model.RedemptionToken) (*IssueResult, error) {
	qrData, err := s.codec.Encode(token.ID, token.TokenType, token.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("签名二维码载荷失败: %w", err)
	}
	qrImage, err := qr.RenderPNG(qrData)
	if err != nil {
		return nil, fmt.Errorf("渲染二维码失败: %w", err)
	}
	return &IssueResult{Token: token, QRData: qrData, QRImage: qrImage}, nil
}

// 校验失败原因（对外返回的 reason 字段）
const (
	ReasonNotFound    = "not_found"
	ReasonExpired     = "expired"
	ReasonAlreadyUsed = "already_used"
	ReasonRevoked     = "revoked"
)

// VerifyResult 校验结果
type VerifyResult struct {
	Valid       bool                   `json:"valid"`
	Reason      string                 `json:"reason,omitempty"`
	Token       *model.RedemptionToken `json:"-"`
	OwnerUserID int64                  `json:"owner_user_id,omitempty"`
	UserName    string                 `json:"user_name,omitempty"`
	Balance     int64                  `json:"balance,omitempty"`
	Coupon      *model.Coupon          `json:"coupon,omitempty"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
}

// Verify 校验扫到的二维码，纯读操作，绝不改令牌状态
//
// 【关键点】过期必须拿当前时间现算，不能信存储的 status=ISSUED ——
// 清理任务可能还没跑到这张令牌
func (s *TokenService) Verify(ctx context.Context, qrData string) (*VerifyResult, error) {
	claims, err := s.codec.Decode(qrData)
	if err != nil {
		if errors.Is(err, qr.ErrPayloadExpired) && claims != nil && claims.TokenID != "" {
			return &VerifyResult{Valid: false, Reason: ReasonExpired}, nil
		}
		// 验签失败：伪造/损坏的载荷一律按不存在处理，不暴露细节
		return &VerifyResult{Valid: false, Reason: ReasonNotFound}, nil
	}

	return s.VerifyByTokenID(ctx, claims.TokenID)
}

// VerifyByTokenID 按令牌ID校验（内部复用，核销前的预检也走这里）
func (s *TokenService) VerifyByTokenID(ctx context.Context, tokenID string) (*VerifyResult, error) {
	token, err := s.tokenRepo.GetByID(ctx, nil, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return &VerifyResult{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	now := time.Now()
	switch {
	case token.Status == model.TokenStatusUsed:
		return &VerifyResult{Valid: false, Reason: ReasonAlreadyUsed}, nil
	case token.Status == model.TokenStatusRevoked:
		return &VerifyResult{Valid: false, Reason: ReasonRevoked}, nil
	case token.Status == model.TokenStatusExpired || token.IsExpiredAt(now):
		return &VerifyResult{Valid: false, Reason: ReasonExpired}, nil
	}

	result := &VerifyResult{
		Valid:       true,
		Token:       token,
		OwnerUserID: token.OwnerUserID,
		ExpiresAt:   &token.ExpiresAt,
	}

	if user, err := s.businessRepo.GetUserByID(ctx, token.OwnerUserID); err == nil {
		result.UserName = user.Name
	}

	switch token.TokenType {
	case model.TokenTypeMileage:
		account, err := s.accountRepo.GetOrCreate(ctx, token.OwnerUserID)
		if err != nil {
			return nil, err
		}
		result.Balance = account.Balance
	case model.TokenTypeCoupon:
		coupon, err := s.couponRepo.GetByID(ctx, nil, token.ReferenceID)
		if err != nil {
			return nil, err
		}
		result.Coupon = coupon
	}

	return result, nil
}

// DecodeQR 验签并解出令牌ID（核销入口用）
func (s *TokenService) DecodeQR(qrData string) (string, error) {
	claims, err := s.codec.Decode(qrData)
	if err != nil {
		if errors.Is(err, qr.ErrPayloadExpired) && claims != nil && claims.TokenID != "" {
			return claims.TokenID, nil // 让核销流程按 TokenExpired 报错，而不是"不存在"
		}
		return "", ErrTokenNotFound
	}
	return claims.TokenID, nil
}
