package job

import (
	"context"
	"testing"
	"time"

	"buzz/internal/config"
	"buzz/internal/infrastructure/database"
	"buzz/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func seedToken(t *testing.T, db *gorm.DB, status string, expiresAt time.Time) *model.RedemptionToken {
	t.Helper()
	token := &model.RedemptionToken{
		ID:          uuid.NewString(),
		OwnerUserID: 1,
		TokenType:   model.TokenTypeMileage,
		Status:      status,
		IssuedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:   expiresAt,
	}
	if err := db.Create(token).Error; err != nil {
		t.Fatalf("创建令牌失败: %v", err)
	}
	return token
}

func TestSweepOnceIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{}
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	seedToken(t, db, model.TokenStatusIssued, past)
	seedToken(t, db, model.TokenStatusIssued, past)
	live := seedToken(t, db, model.TokenStatusIssued, future)

	sweeper := NewTokenSweeper(db, cfg)

	cleaned, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if cleaned != 2 {
		t.Fatalf("首次清理应处理 2 个令牌，实际 %d", cleaned)
	}

	// 紧接着再跑一次必须是 0，清理可以随便重复
	cleaned, err = sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if cleaned != 0 {
		t.Fatalf("第二次清理应为 0，实际 %d", cleaned)
	}

	var stored model.RedemptionToken
	db.Where("id = ?", live.ID).First(&stored)
	if stored.Status != model.TokenStatusIssued {
		t.Fatalf("未到期令牌不应被动过: %s", stored.Status)
	}
}

func TestSweepOnlyTouchesIssuedTokens(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{}
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)

	used := seedToken(t, db, model.TokenStatusUsed, past)
	revoked := seedToken(t, db, model.TokenStatusRevoked, past)
	seedToken(t, db, model.TokenStatusIssued, past)

	sweeper := NewTokenSweeper(db, cfg)
	cleaned, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("只应清理 ISSUED 令牌，实际处理 %d", cleaned)
	}

	var stored model.RedemptionToken
	db.Where("id = ?", used.ID).First(&stored)
	if stored.Status != model.TokenStatusUsed {
		t.Fatalf("USED 令牌不应被改写: %s", stored.Status)
	}
	stored = model.RedemptionToken{}
	db.Where("id = ?", revoked.ID).First(&stored)
	if stored.Status != model.TokenStatusRevoked {
		t.Fatalf("REVOKED 令牌不应被改写: %s", stored.Status)
	}
}

func TestSweeperStartStop(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.Business.SweepIntervalSeconds = 1

	sweeper := NewTokenSweeper(db, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("取消后任务应退出")
	}
}
