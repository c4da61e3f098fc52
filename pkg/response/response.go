package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码：核销/结算领域
// 1xxx 令牌，2xxx 里程，3xxx 优惠券，4xxx 结算
const (
	CodeTokenNotFound       = 1001
	CodeTokenExpired        = 1002
	CodeTokenAlreadyUsed    = 1003
	CodeTokenRevoked        = 1004
	CodeTokenTypeMismatch   = 1005
	CodeOwnerMismatch       = 1006
	CodeInvalidAmount       = 2001
	CodeInsufficientBalance = 2002
	CodeAccountNotFound     = 2003
	CodeCouponNotEligible   = 3001
	CodeCouponExpired       = 3002
	CodeCouponAlreadyUsed   = 3003
	CodeConcurrencyConflict = 4001
	CodeSettlementConflict  = 4002
	CodeSettlementNotFound  = 4003
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
