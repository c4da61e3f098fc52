package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"buzz/internal/config"
	"buzz/internal/model"
	"buzz/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	policyCacheKey = "policy:current"
	policyCacheTTL = 30 * time.Second
)

// PolicyService 政策快照提供方
// 核心对政策只读；为了不让每次签发/核销都打一次政策表，
// 当前政策在 Redis 里缓存一小段时间（redis 不可用时直接回源数据库）
type PolicyService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	policyRepo  *repository.PolicyRepository
}

func NewPolicyService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PolicyService {
	return &PolicyService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		policyRepo:  repository.NewPolicyRepository(db),
	}
}

// EnsureDefault 启动时保证政策表至少有一行，缺省值来自配置
func (s *PolicyService) EnsureDefault(ctx context.Context) error {
	_, err := s.policyRepo.GetCurrent(ctx, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrPolicyNotFound) {
		return err
	}

	policy := &model.RewardPolicy{
		EventCouponGovernmentRatio: s.cfg.Business.EventCouponGovernmentRatio,
		TokenTTLMinutes:            s.cfg.Business.TokenTTLMinutes,
	}
	if policy.TokenTTLMinutes <= 0 {
		policy.TokenTTLMinutes = 10
	}
	log.Printf("[PolicyService] 初始化默认政策: 补贴比例=%d%%, 令牌有效期=%d分钟",
		policy.EventCouponGovernmentRatio, policy.TokenTTLMinutes)
	return s.policyRepo.Create(ctx, policy)
}

// Current 取当前生效的政策快照
func (s *PolicyService) Current(ctx context.Context) (*model.RewardPolicy, error) {
	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, policyCacheKey).Result(); err == nil {
			policy := &model.RewardPolicy{}
			if json.Unmarshal([]byte(cached), policy) == nil {
				return policy, nil
			}
		}
	}

	policy, err := s.policyRepo.GetCurrent(ctx, nil)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if payload, err := json.Marshal(policy); err == nil {
			if err := s.redisClient.Set(ctx, policyCacheKey, payload, policyCacheTTL).Err(); err != nil {
				log.Printf("[PolicyService] 写入政策缓存失败: %v", err)
			}
		}
	}

	return policy, nil
}

// CurrentInTx 在核销事务内取政策（绕过缓存，保证快照值与事务一致）
func (s *PolicyService) CurrentInTx(ctx context.Context, tx *gorm.DB) (*model.RewardPolicy, error) {
	return s.policyRepo.GetCurrent(ctx, tx)
}

// TokenTTL 当前令牌有效期
func (s *PolicyService) TokenTTL(ctx context.Context) time.Duration {
	policy, err := s.Current(ctx)
	if err != nil || policy.TokenTTLMinutes <= 0 {
		minutes := s.cfg.Business.TokenTTLMinutes
		if minutes <= 0 {
			minutes = 10
		}
		return time.Duration(minutes) * time.Minute
	}
	return time.Duration(policy.TokenTTLMinutes) * time.Minute
}
