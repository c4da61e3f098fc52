package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"buzz/internal/config"
	"buzz/internal/infrastructure/lock"
	"buzz/internal/model"
	"buzz/internal/repository"
	"buzz/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// RedeemService 核销执行器 —— 整个系统的正确性核心
//
// 一次核销 = 一个原子事务：令牌 ISSUED->USED、账本/优惠券变更、
// 结算单创建、发件箱事件，要么全部提交，要么全部回滚。
//
// 【并发策略】正确性由数据库条件更新兜底（WHERE status='ISSUED'、
// WHERE balance >= amount），Redis 锁只是把同一令牌的并发请求提前
// 串行化，减少事务冲突；锁丢了也不会错，只会多一些回滚。
type RedeemService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	policyService   *PolicyService
	tokenRepo       *repository.TokenRepository
	couponRepo      *repository.CouponRepository
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	settlementRepo  *repository.SettlementRepository
	businessRepo    *repository.BusinessRepository
	outboxRepo      *repository.OutboxRepository
}

func NewRedeemService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RedeemService {
	return &RedeemService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		policyService:   NewPolicyService(db, redisClient, cfg),
		tokenRepo:       repository.NewTokenRepository(db),
		couponRepo:      repository.NewCouponRepository(db),
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		settlementRepo:  repository.NewSettlementRepository(db),
		businessRepo:    repository.NewBusinessRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// RedeemMileageRequest 里程核销请求
// ExpectedUserID 可选：商家端扫码后会带上校验过的用户ID，
// 传了就和令牌归属交叉校验，防止拿错码扣错人
type RedeemMileageRequest struct {
	TokenID        string
	BusinessID     int64
	Amount         int64
	Description    string
	ExpectedUserID int64
}

// RedeemCouponRequest 优惠券核销请求
// OrderAmount 仅百分比券需要，用于计算实际折扣额
type RedeemCouponRequest struct {
	TokenID     string
	BusinessID  int64
	OrderAmount int64
}

// RedeemResult 核销结果
type RedeemResult struct {
	TransactionNo     string        `json:"transaction_no,omitempty"`
	SettlementNo      string        `json:"settlement_no"`
	SettlementID      int64         `json:"settlement_id"`
	UsedAmount        int64         `json:"used_amount"`
	RemainingBalance  int64         `json:"remaining_balance,omitempty"`
	DiscountAmount    int64         `json:"discount_amount,omitempty"`
	GovernmentSupport int64         `json:"government_support,omitempty"`
	Coupon            *model.Coupon `json:"coupon,omitempty"`
	BusinessName      string        `json:"business_name"`
}

// RedeemMileage 里程核销
//
// 校验顺序（见错误定义）：令牌不存在 -> 已过期（按当前时间现算）->
// 非 ISSUED -> 金额校验 -> 余额校验。前面任何一步失败都不产生副作用。
func (s *RedeemService) RedeemMileage(ctx context.Context, req *RedeemMileageRequest) (*RedeemResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	token, business, err := s.precheck(ctx, req.TokenID, req.BusinessID, model.TokenTypeMileage)
	if err != nil {
		return nil, err
	}
	if req.ExpectedUserID != 0 && req.ExpectedUserID != token.OwnerUserID {
		return nil, ErrOwnerMismatch
	}

	unlockToken := s.acquireTokenLock(ctx, req.TokenID)
	defer unlockToken()

	// 账户锁把同一用户的并发余额变动也提前串行化，进一步压低乐观锁冲突
	unlockAccount := s.acquireAccountLock(ctx, token.OwnerUserID)
	defer unlockAccount()

	var result *RedeemResult
	err = s.withConflictRetry(func() error {
		var innerErr error
		result, innerErr = s.redeemMileageTx(ctx, token, business, req)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RedeemService] 里程核销成功: tokenID=%s, userID=%d, businessID=%d, amount=%d, 剩余=%d",
		token.ID, token.OwnerUserID, req.BusinessID, req.Amount, result.RemainingBalance)
	return result, nil
}

func (s *RedeemService) redeemMileageTx(ctx context.Context, token *model.RedemptionToken, business *model.Business, req *RedeemMileageRequest) (*RedeemResult, error) {
	result := &RedeemResult{BusinessName: business.Name, UsedAmount: req.Amount}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 余额必须在事务内重读：签发令牌到扫码之间余额可能已经变了
		account, err := s.accountRepo.GetByUserID(ctx, tx, token.OwnerUserID)
		if err != nil {
			return err
		}
		if req.Amount > account.Balance {
			return ErrInsufficientBalance
		}

		if err := s.accountRepo.Deduct(ctx, tx, token.OwnerUserID, req.Amount, account.Version); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientBalance
			}
			return err // ErrOptimisticLock 由外层重试
		}

		trans := &model.MileageTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			AccountID:     account.ID,
			UserID:        token.OwnerUserID,
			Type:          model.MileageTypeUse,
			Amount:        req.Amount,
			Description:   req.Description,
			ReferenceType: model.ReferenceTypeMileageUse,
			ReferenceID:   token.ID,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance - req.Amount,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		// 令牌一次性语义的落点：并发时只有一个事务能命中这行
		if err := s.tokenRepo.MarkUsed(ctx, tx, token.ID, business.ID, now); err != nil {
			if errors.Is(err, repository.ErrTokenStatusInvalid) {
				return ErrTokenAlreadyUsed
			}
			return err
		}

		settlement := &model.BusinessSettlement{
			SettlementNo:      idgen.GenerateSettlementNo(),
			BusinessID:        business.ID,
			SettlementType:    model.SettlementTypeMileageUse,
			Amount:            req.Amount,
			GovernmentSupport: 0,
			ReferenceType:     model.SettlementRefMileageTransaction,
			ReferenceID:       trans.TransactionNo,
			Status:            model.SettlementStatusRequested,
			RequestedAt:       now,
		}
		if err := s.settlementRepo.Create(ctx, tx, settlement); err != nil {
			return fmt.Errorf("创建结算单失败: %w", err)
		}

		if err := s.enqueueEvent(ctx, tx, settlement, token, map[string]interface{}{
			"transaction_no":    trans.TransactionNo,
			"used_amount":       req.Amount,
			"remaining_balance": account.Balance - req.Amount,
		}); err != nil {
			return err
		}

		result.TransactionNo = trans.TransactionNo
		result.SettlementNo = settlement.SettlementNo
		result.SettlementID = settlement.ID
		result.RemainingBalance = account.Balance - req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RedeemCoupon 优惠券核销
func (s *RedeemService) RedeemCoupon(ctx context.Context, req *RedeemCouponRequest) (*RedeemResult, error) {
	token, business, err := s.precheck(ctx, req.TokenID, req.BusinessID, model.TokenTypeCoupon)
	if err != nil {
		return nil, err
	}

	unlock := s.acquireTokenLock(ctx, req.TokenID)
	defer unlock()

	var result *RedeemResult
	err = s.withConflictRetry(func() error {
		var innerErr error
		result, innerErr = s.redeemCouponTx(ctx, token, business, req)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RedeemService] 优惠券核销成功: tokenID=%s, couponID=%s, businessID=%d, 折扣=%d, 补贴=%d",
		token.ID, token.ReferenceID, req.BusinessID, result.DiscountAmount, result.GovernmentSupport)
	return result, nil
}

func (s *RedeemService) redeemCouponTx(ctx context.Context, token *model.RedemptionToken, business *model.Business, req *RedeemCouponRequest) (*RedeemResult, error) {
	result := &RedeemResult{BusinessName: business.Name}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		coupon, err := s.couponRepo.GetByID(ctx, tx, token.ReferenceID)
		if err != nil {
			return err
		}

		// 优惠券有独立于令牌的过期时间和终态标志，这里各查一遍
		if coupon.IsExpiredAt(now) {
			return ErrCouponExpired
		}
		if coupon.IsUsed {
			return ErrCouponAlreadyUsed
		}

		discountAmount, err := computeDiscount(coupon, req.OrderAmount)
		if err != nil {
			return err
		}

		if err := s.couponRepo.MarkUsed(ctx, tx, coupon.ID, business.ID, now); err != nil {
			if errors.Is(err, repository.ErrCouponAlreadyUsed) {
				return ErrCouponAlreadyUsed
			}
			return err
		}

		if err := s.tokenRepo.MarkUsed(ctx, tx, token.ID, business.ID, now); err != nil {
			if errors.Is(err, repository.ErrTokenStatusInvalid) {
				return ErrTokenAlreadyUsed
			}
			return err
		}

		// 政府补贴按核销这一刻的政策快照计算并落库，之后不再重算
		var governmentSupport int64
		if coupon.CouponType == model.CouponTypeEvent {
			policy, err := s.policyService.CurrentInTx(ctx, tx)
			if err != nil {
				return fmt.Errorf("读取政策失败: %w", err)
			}
			governmentSupport = discountAmount * int64(policy.EventCouponGovernmentRatio) / 100
		}

		settlement := &model.BusinessSettlement{
			SettlementNo:      idgen.GenerateSettlementNo(),
			BusinessID:        business.ID,
			SettlementType:    model.SettlementTypeEventCoupon,
			Amount:            discountAmount,
			GovernmentSupport: governmentSupport,
			ReferenceType:     model.SettlementRefCoupon,
			ReferenceID:       coupon.ID,
			Status:            model.SettlementStatusRequested,
			RequestedAt:       now,
		}
		if err := s.settlementRepo.Create(ctx, tx, settlement); err != nil {
			return fmt.Errorf("创建结算单失败: %w", err)
		}

		if err := s.enqueueEvent(ctx, tx, settlement, token, map[string]interface{}{
			"coupon_id":          coupon.ID,
			"discount_amount":    discountAmount,
			"government_support": governmentSupport,
		}); err != nil {
			return err
		}

		coupon.IsUsed = true
		coupon.UsedAt = &now
		coupon.UsedBusinessID = business.ID

		result.SettlementNo = settlement.SettlementNo
		result.SettlementID = settlement.ID
		result.UsedAmount = discountAmount
		result.DiscountAmount = discountAmount
		result.GovernmentSupport = governmentSupport
		result.Coupon = coupon
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// precheck 核销前置校验（纯读），返回令牌和商家
// 这里的结论只用于快速失败；一次性语义最终由事务内的条件更新保证
func (s *RedeemService) precheck(ctx context.Context, tokenID string, businessID int64, wantType string) (*model.RedemptionToken, *model.Business, error) {
	token, err := s.tokenRepo.GetByID(ctx, nil, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, nil, ErrTokenNotFound
		}
		return nil, nil, err
	}

	// 过期优先于存储状态：清理任务没跑也一样算过期
	if token.IsExpiredAt(time.Now()) {
		return nil, nil, ErrTokenExpired
	}

	switch token.Status {
	case model.TokenStatusIssued:
		// 继续
	case model.TokenStatusRevoked:
		return nil, nil, ErrTokenRevoked
	case model.TokenStatusExpired:
		return nil, nil, ErrTokenExpired
	default:
		return nil, nil, ErrTokenAlreadyUsed
	}

	if token.TokenType != wantType {
		return nil, nil, ErrTokenTypeMismatch
	}

	business, err := s.businessRepo.GetByID(ctx, businessID)
	if err != nil {
		return nil, nil, err
	}

	// 商家不能核销自己账号的令牌
	if business.OwnerUserID != 0 && business.OwnerUserID == token.OwnerUserID {
		return nil, nil, ErrOwnerMismatch
	}

	return token, business, nil
}

// withConflictRetry 乐观锁冲突时有限次重跑整个原子步骤
// 重试撞上已完成的核销会拿到 TokenAlreadyUsed，不会放大账本
func (s *RedeemService) withConflictRetry(fn func() error) error {
	maxRetries := s.cfg.Business.RedeemMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return err
		}
		log.Printf("[RedeemService] 乐观锁冲突，重试核销: attempt=%d", attempt+1)
	}
	return ErrConcurrencyConflict
}

func (s *RedeemService) acquireTokenLock(ctx context.Context, tokenID string) func() {
	if s.redisClient == nil {
		return func() {}
	}
	tokenLock := lock.NewTokenLock(s.redisClient, tokenID, idgen.GenerateTransactionNo())
	if err := tokenLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		// 拿不到锁不阻断核销：条件更新兜底，只是冲突概率变高
		log.Printf("[RedeemService] 获取令牌锁失败，降级为纯数据库并发控制: tokenID=%s, err=%v", tokenID, err)
		return func() {}
	}
	return func() { tokenLock.Unlock(ctx) }
}

func (s *RedeemService) acquireAccountLock(ctx context.Context, userID int64) func() {
	if s.redisClient == nil {
		return func() {}
	}
	accountLock := lock.NewAccountLock(s.redisClient, userID, idgen.GenerateTransactionNo())
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		log.Printf("[RedeemService] 获取账户锁失败，降级为纯数据库并发控制: userID=%d, err=%v", userID, err)
		return func() {}
	}
	return func() { accountLock.Unlock(ctx) }
}

func (s *RedeemService) enqueueEvent(ctx context.Context, tx *gorm.DB, settlement *model.BusinessSettlement, token *model.RedemptionToken, extra map[string]interface{}) error {
	payload := map[string]interface{}{
		"settlement_no":   settlement.SettlementNo,
		"settlement_type": settlement.SettlementType,
		"business_id":     settlement.BusinessID,
		"user_id":         token.OwnerUserID,
		"token_id":        token.ID,
		"amount":          settlement.Amount,
		"redeemed_at":     time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	payloadBytes, _ := json.Marshal(payload)

	topic := s.cfg.Kafka.Topic.RedemptionResult
	outboxMsg := &model.OutboxMessage{
		MessageKey: settlement.SettlementNo,
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// computeDiscount 按折扣条款计算实际折扣额
// 百分比券需要订单金额；定额券直接取面额
func computeDiscount(coupon *model.Coupon, orderAmount int64) (int64, error) {
	switch coupon.DiscountType {
	case model.DiscountTypeAmount:
		return coupon.DiscountValue, nil
	case model.DiscountTypePercentage:
		if orderAmount <= 0 {
			return 0, ErrInvalidAmount
		}
		return orderAmount * coupon.DiscountValue / 100, nil
	default:
		return 0, fmt.Errorf("未知折扣类型: %s", coupon.DiscountType)
	}
}
