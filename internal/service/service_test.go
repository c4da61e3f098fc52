package service

import (
	"context"
	"testing"
	"time"

	"buzz/internal/config"
	"buzz/internal/infrastructure/database"
	"buzz/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 内存 sqlite，单连接保证串行写（sqlite 单写者）
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				RedemptionResult: "test.redemption.result",
				SettlementResult: "test.settlement.result",
			},
		},
		Business: config.BusinessConfig{
			TokenTTLMinutes:            10,
			EventCouponGovernmentRatio: 50,
			MaxRetryCount:              3,
			RedeemMaxRetries:           3,
			QRSigningSecret:            "test-secret",
		},
	}
}

func seedUser(t *testing.T, db *gorm.DB, id int64, name string) {
	t.Helper()
	if err := db.Create(&model.User{ID: id, Name: name}).Error; err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
}

func seedBusiness(t *testing.T, db *gorm.DB, id int64, name string, ownerUserID int64) {
	t.Helper()
	if err := db.Create(&model.Business{ID: id, Name: name, OwnerUserID: ownerUserID}).Error; err != nil {
		t.Fatalf("创建商家失败: %v", err)
	}
}

func seedPolicy(t *testing.T, db *gorm.DB, cfg *config.Config) {
	t.Helper()
	policyService := NewPolicyService(db, nil, cfg)
	if err := policyService.EnsureDefault(context.Background()); err != nil {
		t.Fatalf("初始化政策失败: %v", err)
	}
}

func seedBalance(t *testing.T, db *gorm.DB, userID, amount int64) {
	t.Helper()
	mileageService := NewMileageService(db)
	if _, err := mileageService.Earn(context.Background(), userID, amount,
		model.ReferenceTypeSignup, "", "测试初始余额"); err != nil {
		t.Fatalf("充入测试余额失败: %v", err)
	}
}

func seedCoupon(t *testing.T, db *gorm.DB, userID int64, couponType, discountType string, discountValue int64) *model.Coupon {
	t.Helper()
	couponService := NewCouponService(db)
	coupon, err := couponService.Issue(context.Background(), &IssueCouponRequest{
		UserID:        userID,
		CouponType:    couponType,
		DiscountType:  discountType,
		DiscountValue: discountValue,
		Title:         "测试优惠券",
		ValidDays:     30,
	})
	if err != nil {
		t.Fatalf("发券失败: %v", err)
	}
	return coupon
}

// expireToken 把令牌的有效期改到过去，模拟"已过期但清理任务还没跑"
func expireToken(t *testing.T, db *gorm.DB, tokenID string) {
	t.Helper()
	err := db.Model(&model.RedemptionToken{}).
		Where("id = ?", tokenID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("改写令牌有效期失败: %v", err)
	}
}

func issueMileageToken(t *testing.T, db *gorm.DB, cfg *config.Config, userID int64) *IssueResult {
	t.Helper()
	tokenService := NewTokenService(db, nil, cfg)
	result, err := tokenService.IssueMileage(context.Background(), userID)
	if err != nil {
		t.Fatalf("签发里程令牌失败: %v", err)
	}
	return result
}

func issueCouponToken(t *testing.T, db *gorm.DB, cfg *config.Config, userID int64, couponID string) *IssueResult {
	t.Helper()
	tokenService := NewTokenService(db, nil, cfg)
	result, err := tokenService.IssueCoupon(context.Background(), userID, couponID)
	if err != nil {
		t.Fatalf("签发优惠券令牌失败: %v", err)
	}
	return result
}
