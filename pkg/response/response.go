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

// Business codes: the closed set of typed outcomes callers may branch on.
// Handlers never expose store-level error internals.
const (
	CodeInsufficientCredits = 1001
	CodeInvalidCouponTerms  = 1002
	CodeCouponNotFound      = 1003
	CodeCouponExhausted     = 1004
	CodeCouponExpired       = 1005
	CodeInvalidKey          = 1006
	CodeKeyAlreadyUsed      = 1007
	CodeKeyExpired          = 1008
	CodeKeyAccountMismatch  = 1009
	CodeRequestStateInvalid = 1010
	CodeAccountNotFound     = 1011
	CodeConflictRetry       = 1012 // transient store conflict, safe to re-issue
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
