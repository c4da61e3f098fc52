package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"buzz/internal/model"
	"buzz/internal/qr"
)

func TestIssueMileageTokenRevokesPriorLiveToken(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	ctx := context.Background()

	seedUser(t, db, 1, "顾客甲")
	seedPolicy(t, db, cfg)
	seedBalance(t, db, 1, 5000)

	tokenService := NewTokenService(db, nil, cfg)

	first, err := tokenService.IssueMileage(ctx, 1)
	if err != nil {
		t.Fatalf("首次签发失败: %v", err)
	}
	second, err := tokenService.IssueMileage(ctx, 1)
	if err != nil {
		t.Fatalf("重新签发失败: %v", err)
	}

	var stored model.RedemptionToken
	db.Where("id = ?", first.Token.ID).First(&stored)
	if stored.Status != model.TokenStatusRevoked {
		t.Fatalf("旧令牌应被作废，实际 %s", stored.Status)
	}

	stored = model.RedemptionToken{}
	db.Where("id = ?", second.Token.ID).First(&stored)
	if stored.Status != model.TokenStatusIssued {
		t.Fatalf("新令牌应为 ISSUED，实际 %s", stored.Status)
	}

	// 同一标的同一时刻最多一张活码
	var liveCount int64
	db.Model(&model.RedemptionToken{}).
		Where("owner_user_id = ? AND token_type = ? AND status = ?", 1, model.TokenTypeMileage, model.TokenStatusIssued).
		Count(&liveCount)
	if liveCount != 1 {
		t.Fatalf("存活令牌应只有一张，实际 %d", liveCount)
	}
}

func TestIssueMileageTokenCarriesBalanceAndQR(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	ctx := context.Background()

	seedUser(t, db, 1, "顾客甲")
	seedPolicy(t, db, cfg)
	seedBalance(t, db, 1, 7000)

	tokenService := NewTokenService(db, nil, cfg)
	result, err := tokenService.IssueMileage(ctx, 1)
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	if result.Balance != 7000 {
		t.Fatalf("签发结果应带当前余额 7000，实际 %d", result.Balance)
	}
	if result.UserName != "顾客甲" {
		t.Fatalf("签发结果用户名不对: %s", result.UserName)
	}
	if result.QRData == "" || result.QRImage == "" {
		t.Fatalf("qr_data/qr_image 不能为空")
	}

	// qr_data 必须能验签且指向这张令牌
	claims, err := qr.NewCodec(cfg.Business.QRSigningSecret).Decode(result.QRData)
	if err != nil {
		t.Fatalf("验签失败: %v", err)
	}
	if claims.TokenID != result.Token.ID || claims.TokenType != model.TokenTypeMileage {
		t.Fatalf("载荷内容不对: %+v", claims)
	}
}

func TestIssueCouponTokenEligibility(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	ctx := context.Background()

	seedUser(t, db, 1, "顾客甲")
	seedUser(t, db, 2, "顾客乙")
	seedPolicy(t, db, cfg)

	coupon := seedCoupon(t, db, 1, model.CouponTypeBasic, model.DiscountTypeAmount, 1000)
	tokenService := NewTokenService(db, nil, cfg)

	// 不存在的券
	if _, err := tokenService.IssueCoupon(ctx, 1, "no-such-coupon"); !errors.Is(err, ErrCouponNotEligible) {
		t.Fatalf("不存在的券应报不可用，实际 %v", err)
	}

	// 别人的券
	if _, err := tokenService.IssueCoupon(ctx, 2, coupon.ID); !errors.Is(err, ErrCouponNotEligible) {
		t.Fatalf("他人券应报不可用，实际 %v", err)
	}

	// 过期的券
	expired := seedCoupon(t, db, 1, model.CouponTypeBasic, model.DiscountTypeAmount, 1000)
	db.Model(&model.Coupon{}).Where("id = ?", expired.ID).
		Update("expires_at", time.Now().Add(-time.Hour))
	if _, err := tokenService.IssueCoupon(ctx, 1, expired.ID); !errors.Is(err, ErrCouponNotEligible) {
		t.Fatalf("过期券应报不可用，实际 %v", err)
	}

	// 合法签发
	result, err := tokenService.IssueCoupon(ctx, 1, coupon.ID)
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}
	if result.Token.ReferenceID != coupon.ID {
		t.Fatalf("令牌应指向该券，实际 %s", result.Token.ReferenceID)
	}
}

func TestVerifyReasons(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	ctx := context.Background()

	seedUser(t, db, 1, "顾客甲")
	seedBusiness(t, db, 100, "街角咖啡", 9)
	seedPolicy(t, db, cfg)
	seedBalance(t, db, 1, 5000)

	tokenService := NewTokenService(db, nil, cfg)

	// 伪造载荷：验签直接失败，按不存在处理
	forged, err := tokenService.Verify(ctx, "coupon_123_1700000000")
	if err != nil {
		t.Fatalf("校验出错: %v", err)
	}
	if forged.Valid || forged.Reason != ReasonNotFound {
		t.Fatalf("伪造载荷应报 not_found，实际 %+v", forged)
	}

	// 正常令牌
	issued := issueMileageToken(t, db, cfg, 1)
	ok, err := tokenService.Verify(ctx, issued.QRData)
	if err != nil {
		t.Fatalf("校验出错: %v", err)
	}
	if !ok.Valid || ok.Balance != 5000 || ok.OwnerUserID != 1 {
		t.Fatalf("有效令牌校验结果不对: %+v", ok)
	}

	// 过期（状态仍是 ISSUED，实时现算）
	expireToken(t, db, issued.Token.ID)
	expired, err := tokenService.VerifyByTokenID(ctx, issued.Token.ID)
	if err != nil {
		t.Fatalf("校验出错: %v", err)
	}
	if expired.Valid || expired.Reason != ReasonExpired {
		t.Fatalf("过期令牌应报 expired，实际 %+v", expired)
	}

	// 已使用
	fresh := issueMileageToken(t, db, cfg, 1)
	redeemService := NewRedeemService(db, nil, cfg)
	if _, err := redeemService.RedeemMileage(ctx, &RedeemMileageRequest{
		TokenID: fresh.Token.ID, BusinessID: 100, Amount: 100,
	}); err != nil {
		t.Fatalf("核销失败: %v", err)
	}
	used, _ := tokenService.VerifyByTokenID(ctx, fresh.Token.ID)
	if used.Valid || used.Reason != ReasonAlreadyUsed {
		t.Fatalf("已用令牌应报 already_used，实际 %+v", used)
	}

	// 被重新签发作废
	old := issueMileageToken(t, db, cfg, 1)
	_ = issueMileageToken(t, db, cfg, 1)
	revoked, _ := tokenService.VerifyByTokenID(ctx, old.Token.ID)
	if revoked.Valid || revoked.Reason != ReasonRevoked {
		t.Fatalf("作废令牌应报 revoked，实际 %+v", revoked)
	}
}

// 校验是纯读操作，跑多少遍都不改令牌状态
func TestVerifyDoesNotMutate(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	ctx := context.Background()

	seedUser(t, db, 1, "顾客甲")
	seedPolicy(t, db, cfg)
	seedBalance(t, db, 1, 5000)

	tokenService := NewTokenService(db, nil, cfg)
	issued := issueMileageToken(t, db, cfg, 1)

	for i := 0; i < 5; i++ {
		if _, err := tokenService.Verify(ctx, issued.QRData); err != nil {
			t.Fatalf("校验出错: %v", err)
		}
	}

	var stored model.RedemptionToken
	db.Where("id = ?", issued.Token.ID).First(&stored)
	if stored.Status != model.TokenStatusIssued {
		t.Fatalf("校验后状态应保持 ISSUED，实际 %s", stored.Status)
	}
}
