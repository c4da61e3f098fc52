package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：同一张二维码被复制后由两台商家设备同时扫描核销
//
// 数据库层的条件更新（WHERE status='ISSUED'）已经保证了正确性：
// 最多一个事务能命中令牌行。分布式锁的作用是在那之前就把
// 同一令牌的并发请求串行化，减少无谓的事务冲突和回滚。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】Lua 脚本保证"检查+删除"的原子性：
// 只有 value 匹配（锁还是自己的）才删除，避免误删后续持有者的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewTokenLock 创建核销锁（按令牌维度）
//
// 同一令牌串行核销，不同令牌完全并行；value 用本次请求的标识便于追踪
func NewTokenLock(client *redis.Client, tokenID, requestTag string) *DistributedLock {
	key := fmt.Sprintf("redeem:lock:token:%s", tokenID)
	return NewDistributedLock(client, key, requestTag, 30*time.Second)
}

// NewAccountLock 创建账户锁（按用户维度）
// 同一用户的里程变动串行，防止多端同时发起核销/调整
func NewAccountLock(client *redis.Client, userID int64, requestTag string) *DistributedLock {
	key := fmt.Sprintf("mileage:lock:user:%d", userID)
	return NewDistributedLock(client, key, requestTag, 30*time.Second)
}
