package service

import (
	"errors"
)

// ============================================================================
// 业务错误定义
// ============================================================================
//
// 步骤化校验失败（令牌不存在/过期/已用、余额不足等）都是同步返回、
// 不产生任何落库副作用的终态错误；只有 ErrConcurrencyConflict 是瞬态，
// 调用方可以拿同一个令牌安全重试 —— 重试撞上已完成的核销会得到
// ErrTokenAlreadyUsed，而不是第二次扣款。

var (
	ErrTokenNotFound       = errors.New("核销令牌不存在")
	ErrTokenExpired        = errors.New("核销令牌已过期")
	ErrTokenAlreadyUsed    = errors.New("核销令牌已使用")
	ErrTokenRevoked        = errors.New("核销令牌已作废")
	ErrTokenTypeMismatch   = errors.New("令牌类型不匹配")
	ErrOwnerMismatch       = errors.New("不能核销本商家自己的令牌")
	ErrInvalidAmount       = errors.New("核销金额不合法")
	ErrInsufficientBalance = errors.New("里程余额不足")
	ErrCouponNotEligible   = errors.New("优惠券不可用")
	ErrCouponExpired       = errors.New("优惠券已过期")
	ErrCouponAlreadyUsed   = errors.New("优惠券已使用")
	ErrConcurrencyConflict = errors.New("系统繁忙，请重试")
)
