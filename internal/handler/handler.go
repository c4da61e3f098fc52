package handler

import (
	"errors"
	"strconv"
	"time"

	"buzz/internal/config"
	"buzz/internal/job"
	"buzz/internal/repository"
	"buzz/internal/service"
	"buzz/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	tokenService      *service.TokenService
	redeemService     *service.RedeemService
	mileageService    *service.MileageService
	couponService     *service.CouponService
	settlementService *service.SettlementService
	policyService     *service.PolicyService
	sweeper           *job.TokenSweeper
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		tokenService:      service.NewTokenService(db, rdb, cfg),
		redeemService:     service.NewRedeemService(db, rdb, cfg),
		mileageService:    service.NewMileageService(db),
		couponService:     service.NewCouponService(db),
		settlementService: service.NewSettlementService(db, cfg),
		policyService:     service.NewPolicyService(db, rdb, cfg),
		sweeper:           job.NewTokenSweeper(db, cfg),
	}
}

// serviceError 把业务错误映射成响应码
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		response.BusinessError(c, response.CodeTokenNotFound, err.Error())
	case errors.Is(err, service.ErrTokenExpired):
		response.BusinessError(c, response.CodeTokenExpired, err.Error())
	case errors.Is(err, service.ErrTokenAlreadyUsed):
		response.BusinessError(c, response.CodeTokenAlreadyUsed, err.Error())
	case errors.Is(err, service.ErrTokenRevoked):
		response.BusinessError(c, response.CodeTokenRevoked, err.Error())
	case errors.Is(err, service.ErrTokenTypeMismatch):
		response.BusinessError(c, response.CodeTokenTypeMismatch, err.Error())
	case errors.Is(err, service.ErrOwnerMismatch):
		response.BusinessError(c, response.CodeOwnerMismatch, err.Error())
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrCouponNotEligible):
		response.BusinessError(c, response.CodeCouponNotEligible, err.Error())
	case errors.Is(err, service.ErrCouponExpired):
		response.BusinessError(c, response.CodeCouponExpired, err.Error())
	case errors.Is(err, service.ErrCouponAlreadyUsed):
		response.BusinessError(c, response.CodeCouponAlreadyUsed, err.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		// 瞬态错误：客户端可以拿同一令牌安全重试
		response.BusinessError(c, response.CodeConcurrencyConflict, err.Error())
	case errors.Is(err, repository.ErrSettlementStateConflict):
		response.BusinessError(c, response.CodeSettlementConflict, err.Error())
	case errors.Is(err, repository.ErrSettlementNotFound):
		response.BusinessError(c, response.CodeSettlementNotFound, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 二维码签发接口
// ============================================================

// GetMileageQR 签发里程核销二维码
// GET /api/v1/mileage/qr?user_id=xxx
func (h *Handler) GetMileageQR(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	result, err := h.tokenService.IssueMileage(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token_id":   result.Token.ID,
		"qr_data":    result.QRData,
		"qr_image":   result.QRImage,
		"balance":    result.Balance,
		"user_name":  result.UserName,
		"expires_at": result.Token.ExpiresAt,
	})
}

// GetCouponQR 签发优惠券核销二维码
// GET /api/v1/qr/coupon/:coupon_id?user_id=xxx
func (h *Handler) GetCouponQR(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}
	couponID := c.Param("coupon_id")

	result, err := h.tokenService.IssueCoupon(c.Request.Context(), userID, couponID)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token_id":   result.Token.ID,
		"qr_data":    result.QRData,
		"qr_image":   result.QRImage,
		"expires_at": result.Token.ExpiresAt,
		"coupon": gin.H{
			"id":             result.Coupon.ID,
			"coupon_type":    result.Coupon.CouponType,
			"discount_type":  result.Coupon.DiscountType,
			"discount_value": result.Coupon.DiscountValue,
			"expires_at":     result.Coupon.ExpiresAt,
		},
	})
}

// ============================================================
// 校验接口（纯读，商家扫码后的预检）
// ============================================================

// VerifyQRRequest 扫码校验请求
type VerifyQRRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// VerifyMileageQR 校验里程二维码
// POST /api/v1/mileage/verify-qr
func (h *Handler) VerifyMileageQR(c *gin.Context) {
	var req VerifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.tokenService.Verify(c.Request.Context(), req.QRData)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	if !result.Valid {
		response.Success(c, gin.H{"valid": false, "reason": result.Reason})
		return
	}

	response.Success(c, gin.H{
		"valid": true,
		"user": gin.H{
			"id":      result.OwnerUserID,
			"name":    result.UserName,
			"balance": result.Balance,
		},
		"expires_at": result.ExpiresAt,
	})
}

// VerifyCoupon 校验优惠券二维码
// POST /api/v1/coupons/verify
func (h *Handler) VerifyCoupon(c *gin.Context) {
	var req VerifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.tokenService.Verify(c.Request.Context(), req.QRData)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	if !result.Valid {
		response.Success(c, gin.H{"valid": false, "reason": result.Reason})
		return
	}

	response.Success(c, gin.H{
		"valid":  true,
		"coupon": result.Coupon,
		"user": gin.H{
			"id":   result.OwnerUserID,
			"name": result.UserName,
		},
	})
}

// ============================================================
// 核销接口
// ============================================================

// UseMileageRequest 里程核销请求
// qr_data 和 token_id 二选一；user_id 可选，传了就和令牌归属交叉校验
type UseMileageRequest struct {
	QRData      string `json:"qr_data"`
	TokenID     string `json:"token_id"`
	UserID      int64  `json:"user_id"`
	Amount      int64  `json:"amount" binding:"required"`
	BusinessID  int64  `json:"business_id" binding:"required"`
	Description string `json:"description"`
}

// UseMileage 里程核销
// POST /api/v1/mileage/use
//
// 【关键点】核销是全系统最核心的操作：
// 1. 一次性：同一令牌并发核销只会成功一次，其余得到"已使用"
// 2. 原子性：令牌状态、余额扣减、流水、结算单同生同死
// 3. 幂等（对调用方）：重试已完成的核销不会二次扣款
func (h *Handler) UseMileage(c *gin.Context) {
	var req UseMileageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tokenID, ok := h.resolveTokenID(c, req.QRData, req.TokenID)
	if !ok {
		return
	}

	result, err := h.redeemService.RedeemMileage(c.Request.Context(), &service.RedeemMileageRequest{
		TokenID:        tokenID,
		BusinessID:     req.BusinessID,
		Amount:         req.Amount,
		Description:    req.Description,
		ExpectedUserID: req.UserID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_id":    result.TransactionNo,
		"used_amount":       result.UsedAmount,
		"remaining_balance": result.RemainingBalance,
		"settlement_id":     result.SettlementID,
		"business_name":     result.BusinessName,
	})
}

// UseCouponRequest 优惠券核销请求
type UseCouponRequest struct {
	QRData      string `json:"qr_data"`
	TokenID     string `json:"token_id"`
	BusinessID  int64  `json:"business_id" binding:"required"`
	OrderAmount int64  `json:"order_amount"` // 百分比券必传
}

// UseCoupon 优惠券核销
// POST /api/v1/coupons/use
func (h *Handler) UseCoupon(c *gin.Context) {
	var req UseCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tokenID, ok := h.resolveTokenID(c, req.QRData, req.TokenID)
	if !ok {
		return
	}

	result, err := h.redeemService.RedeemCoupon(c.Request.Context(), &service.RedeemCouponRequest{
		TokenID:     tokenID,
		BusinessID:  req.BusinessID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"settlement_id":      result.SettlementID,
		"discount_amount":    result.DiscountAmount,
		"government_support": result.GovernmentSupport,
		"coupon":             result.Coupon,
		"business_name":      result.BusinessName,
	})
}

func (h *Handler) resolveTokenID(c *gin.Context, qrData, tokenID string) (string, bool) {
	if tokenID != "" {
		return tokenID, true
	}
	if qrData == "" {
		response.ParamError(c, "qr_data 和 token_id 至少传一个")
		return "", false
	}
	id, err := h.tokenService.DecodeQR(qrData)
	if err != nil {
		serviceError(c, err)
		return "", false
	}
	return id, true
}

// ============================================================
// 里程账本接口
// ============================================================

// EarnMileageRequest 获得里程请求（注册/推荐等外部业务回调）
type EarnMileageRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceID   string `json:"reference_id"`
	Description   string `json:"description"`
}

// EarnMileage 获得里程
// POST /api/v1/mileage/earn
func (h *Handler) EarnMileage(c *gin.Context) {
	var req EarnMileageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.mileageService.Earn(c.Request.Context(), req.UserID, req.Amount,
		req.ReferenceType, req.ReferenceID, req.Description)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_id": trans.TransactionNo,
		"balance":        trans.BalanceAfter,
	})
}

// AdminAdjustRequest 管理员调整请求
type AdminAdjustRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description"`
	Reason      string `json:"reason" binding:"required"`
}

// AdminAdjust 管理员直接调整账本（绕过令牌流程）
// POST /api/v1/mileage/admin/adjust
func (h *Handler) AdminAdjust(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.mileageService.AdminAdjust(c.Request.Context(), req.UserID, req.Amount,
		req.Description, req.Reason)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_id": trans.TransactionNo,
		"balance":        trans.BalanceAfter,
	})
}

// MileageHistory 里程流水查询
// GET /api/v1/mileage/history?user_id=xxx&page=1&page_size=10
func (h *Handler) MileageHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.mileageService.History(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	balance, err := h.mileageService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"balance":   balance,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 优惠券接口
// ============================================================

// ListCoupons 用户优惠券列表
// GET /api/v1/coupons?user_id=xxx&usable=true
func (h *Handler) ListCoupons(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}
	onlyUsable := c.Query("usable") == "true"

	coupons, err := h.couponService.ListByUser(c.Request.Context(), userID, onlyUsable)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": coupons})
}

// IssueCouponRequest 发券请求（管理端/活动系统）
type IssueCouponRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	CouponType    string `json:"coupon_type" binding:"required,oneof=BASIC EVENT"`
	DiscountType  string `json:"discount_type" binding:"required,oneof=AMOUNT PERCENTAGE"`
	DiscountValue int64  `json:"discount_value" binding:"required,gt=0"`
	Title         string `json:"title"`
	ValidDays     int    `json:"valid_days"`
}

// IssueCoupon 发券
// POST /api/v1/admin/coupons
func (h *Handler) IssueCoupon(c *gin.Context) {
	var req IssueCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupon, err := h.couponService.Issue(c.Request.Context(), &service.IssueCouponRequest{
		UserID:        req.UserID,
		CouponType:    req.CouponType,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		Title:         req.Title,
		ValidDays:     req.ValidDays,
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, coupon)
}

// ============================================================
// 管理端结算接口
// ============================================================

// ListSettlements 结算单列表
// GET /api/v1/admin/settlements?business_id=&status=&from=&to=&page=&page_size=
func (h *Handler) ListSettlements(c *gin.Context) {
	filter := repository.SettlementFilter{}

	if v := c.Query("business_id"); v != "" {
		businessID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.ParamError(c, "business_id 参数错误")
			return
		}
		filter.BusinessID = businessID
	}
	filter.Status = c.Query("status")

	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "from 参数错误，需要 RFC3339 格式")
			return
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.ParamError(c, "to 参数错误，需要 RFC3339 格式")
			return
		}
		filter.To = &to
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	settlements, total, err := h.settlementService.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      settlements,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ProcessSettlementRequest 审批请求
type ProcessSettlementRequest struct {
	SettlementID int64  `json:"settlement_id" binding:"required"`
	Action       string `json:"action" binding:"required,oneof=approve reject pay"`
	Reason       string `json:"reason"`
}

// ProcessSettlement 审批结算单
// POST /api/v1/admin/settlements/process
func (h *Handler) ProcessSettlement(c *gin.Context) {
	var req ProcessSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	settlement, err := h.settlementService.Process(c.Request.Context(), req.SettlementID, req.Action, req.Reason)
	if err != nil {
		serviceError(c, err)
		return
	}

	response.Success(c, settlement)
}

// ============================================================
// 维护接口
// ============================================================

// CleanupTokens 手动触发过期令牌清理
// POST /api/v1/admin/tokens/cleanup
func (h *Handler) CleanupTokens(c *gin.Context) {
	cleaned, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"cleaned": cleaned})
}

// GetPolicy 当前政策快照
// GET /api/v1/policy
func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.policyService.Current(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, policy)
}
