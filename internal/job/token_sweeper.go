package job

import (
	"context"
	"log"
	"time"

	"buzz/internal/config"
	"buzz/internal/repository"

	"gorm.io/gorm"
)

// TokenSweeper 过期令牌清理任务
//
// 纯维护操作：只把 ISSUED 且已过有效期的令牌置为 EXPIRED，
// 不碰余额、不碰结算，随便跑、重复跑都安全（第二次 cleaned=0）。
// 管理端的"清理过期令牌"按钮直接调 SweepOnce。
type TokenSweeper struct {
	db        *gorm.DB
	tokenRepo *repository.TokenRepository
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
}

func NewTokenSweeper(db *gorm.DB, cfg *config.Config) *TokenSweeper {
	interval := time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &TokenSweeper{
		db:        db,
		tokenRepo: repository.NewTokenRepository(db),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  interval,
	}
}

func (j *TokenSweeper) Start(ctx context.Context) {
	log.Println("[TokenSweeper] 过期令牌清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[TokenSweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[TokenSweeper] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.SweepOnce(ctx); err != nil {
				log.Printf("[TokenSweeper] 清理失败: %v", err)
			}
		}
	}
}

func (j *TokenSweeper) Stop() {
	close(j.stopCh)
}

// SweepOnce 执行一次清理，返回本次置为过期的令牌数
func (j *TokenSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cleaned, err := j.tokenRepo.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if cleaned > 0 {
		log.Printf("[TokenSweeper] 本次清理 %d 个过期令牌", cleaned)
	}
	return cleaned, nil
}
