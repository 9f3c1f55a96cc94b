package handler

import (
	"errors"
	"strconv"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/service"
	"couponmarket/internal/validate"
	"couponmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler wires all service dependencies behind the HTTP surface.
type Handler struct {
	accountService *service.AccountService
	couponService  *service.CouponService
	redeemService  *service.RedeemService
	creditService  *service.CreditService
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		accountService: service.NewAccountService(db),
		couponService:  service.NewCouponService(db, cfg),
		redeemService:  service.NewRedeemService(db, rdb, cfg),
		creditService:  service.NewCreditService(db, rdb, cfg),
	}
}

// businessError translates the orchestrator's typed outcomes to response
// codes. Anything outside the closed set is a server error; store internals
// never reach the caller.
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientCredits):
		response.BusinessError(c, response.CodeInsufficientCredits, err.Error())
	case errors.Is(err, service.ErrCouponNotFound):
		response.BusinessError(c, response.CodeCouponNotFound, err.Error())
	case errors.Is(err, service.ErrCouponExhausted):
		response.BusinessError(c, response.CodeCouponExhausted, err.Error())
	case errors.Is(err, service.ErrCouponExpired):
		response.BusinessError(c, response.CodeCouponExpired, err.Error())
	case errors.Is(err, service.ErrInvalidKey):
		response.BusinessError(c, response.CodeInvalidKey, err.Error())
	case errors.Is(err, service.ErrKeyAlreadyUsed):
		response.BusinessError(c, response.CodeKeyAlreadyUsed, err.Error())
	case errors.Is(err, service.ErrKeyExpired):
		response.BusinessError(c, response.CodeKeyExpired, err.Error())
	case errors.Is(err, service.ErrKeyAccountMismatch):
		response.BusinessError(c, response.CodeKeyAccountMismatch, err.Error())
	case errors.Is(err, service.ErrRequestStateInvalid):
		response.BusinessError(c, response.CodeRequestStateInvalid, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrConflictRetry):
		response.BusinessError(c, response.CodeConflictRetry, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// Account endpoints
// ============================================================

type RegisterRequest struct {
	UserID     int64    `json:"user_id" binding:"required"`
	Roles      []string `json:"roles"`
	ReferrerID *int64   `json:"referrer_id"`
	Country    string   `json:"country"`
	City       string   `json:"city"`
	District   string   `json:"district"`
}

// Register creates the ledger account after signup.
// POST /api/v1/account/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), &service.RegisterRequest{
		UserID:     req.UserID,
		Roles:      req.Roles,
		ReferrerID: req.ReferrerID,
		Country:    req.Country,
		City:       req.City,
		District:   req.District,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, account)
}

// GetBalance returns an account's credit balance.
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListCreditLogs returns an account's ledger trail.
// GET /api/v1/account/logs?user_id=xxx&page=1&page_size=10
func (h *Handler) ListCreditLogs(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return
	}

	page, pageSize := pagination(c)
	entries, total, err := h.accountService.ListCreditLogs(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Coupon endpoints
// ============================================================

type CreateCouponRequest struct {
	OwnerID       int64      `json:"owner_id" binding:"required"`
	Title         string     `json:"title" binding:"required"`
	Description   string     `json:"description" binding:"required"`
	DiscountType  string     `json:"discount_type" binding:"required"`
	DiscountValue int64      `json:"discount_value" binding:"required,gt=0"`
	MaxUses       *int       `json:"max_uses"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ValidDays     *int       `json:"valid_days"`
	Commission    *int64     `json:"commission"`
	Reward        *int64     `json:"reward"`
	IsGlobal      bool       `json:"is_global"`
}

// CreateCoupon publishes a coupon, charging the owner the creation fee.
// POST /api/v1/coupon/create
func (h *Handler) CreateCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	// The validate layer is pure; its errors are rejected here, before any
	// store interaction.
	input := validate.Sanitize(validate.CouponInput{
		Title:         req.Title,
		Description:   req.Description,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		ExpiresAt:     req.ExpiresAt,
		ValidDays:     req.ValidDays,
		Commission:    req.Commission,
		Reward:        req.Reward,
		IsGlobal:      req.IsGlobal,
	})
	terms, err := validate.Validate(input, time.Now())
	if err != nil {
		response.BusinessError(c, response.CodeInvalidCouponTerms, err.Error())
		return
	}

	coupon, err := h.couponService.CreateCoupon(c.Request.Context(), req.OwnerID, terms)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, coupon)
}

// GetCoupon returns one coupon.
// GET /api/v1/coupon/detail?coupon_no=xxx
func (h *Handler) GetCoupon(c *gin.Context) {
	couponNo := c.Query("coupon_no")
	if couponNo == "" {
		response.ParamError(c, "coupon_no is required")
		return
	}

	coupon, err := h.couponService.GetCoupon(c.Request.Context(), couponNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, coupon)
}

// ListCoupons lists redeemable coupons, optionally filtered by country, or
// an owner's coupons when owner_id is given.
// GET /api/v1/coupon/list?country=xx | ?owner_id=xxx
func (h *Handler) ListCoupons(c *gin.Context) {
	page, pageSize := pagination(c)

	if ownerStr := c.Query("owner_id"); ownerStr != "" {
		ownerID, err := strconv.ParseInt(ownerStr, 10, 64)
		if err != nil {
			response.ParamError(c, "invalid owner_id")
			return
		}
		coupons, total, err := h.couponService.ListOwnerCoupons(c.Request.Context(), ownerID, page, pageSize)
		if err != nil {
			businessError(c, err)
			return
		}
		response.Success(c, gin.H{"list": coupons, "total": total, "page": page, "page_size": pageSize})
		return
	}

	coupons, total, err := h.couponService.ListActiveCoupons(c.Request.Context(), c.Query("country"), page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}
	response.Success(c, gin.H{"list": coupons, "total": total, "page": page, "page_size": pageSize})
}

// TrackView records a coupon view.
// POST /api/v1/coupon/track
func (h *Handler) TrackView(c *gin.Context) {
	var req struct {
		CouponNo string `json:"coupon_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := h.couponService.TrackView(c.Request.Context(), req.CouponNo); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "tracked"})
}

type RedeemCouponRequest struct {
	CouponNo    string `json:"coupon_no" binding:"required"`
	RedeemerID  int64  `json:"redeemer_id" binding:"required"`
	AffiliateID *int64 `json:"affiliate_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// RedeemCoupon executes one redemption: inventory decrement, customer
// reward, affiliate commission, receipt, ledger entries — one atomic unit.
// POST /api/v1/coupon/redeem
func (h *Handler) RedeemCoupon(c *gin.Context) {
	var req RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	redeemReq := &service.RedeemRequest{
		CouponNo:    req.CouponNo,
		RedeemerID:  req.RedeemerID,
		AffiliateID: req.AffiliateID,
	}
	if req.Name != "" || req.Phone != "" || req.Email != "" {
		redeemReq.Contact = &service.ContactDetails{
			Name:  req.Name,
			Phone: req.Phone,
			Email: req.Email,
		}
	}

	result, err := h.redeemService.Redeem(c.Request.Context(), redeemReq)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// Credit top-up endpoints
// ============================================================

type SubmitCreditRequestRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// SubmitCreditRequest opens a pending top-up request.
// POST /api/v1/credit/request
func (h *Handler) SubmitCreditRequest(c *gin.Context) {
	var req SubmitCreditRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	request, err := h.creditService.SubmitRequest(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, request)
}

// GenerateCreditKey mints the activation code for a pending request.
// POST /api/v1/credit/generate
func (h *Handler) GenerateCreditKey(c *gin.Context) {
	var req struct {
		RequestNo string `json:"request_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	key, err := h.creditService.GenerateKey(c.Request.Context(), req.RequestNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, key)
}

type ActivateCreditKeyRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// ActivateCreditKey spends a key: marks it used and credits the account in
// one atomic unit.
// POST /api/v1/credit/activate
func (h *Handler) ActivateCreditKey(c *gin.Context) {
	var req ActivateCreditKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	entry, err := h.creditService.ActivateKey(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, entry)
}

type AdminGrantRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

// AdminGrant mints credits directly with an audit entry.
// POST /api/v1/credit/grant
func (h *Handler) AdminGrant(c *gin.Context) {
	var req AdminGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	entry, err := h.creditService.AdminGrant(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, entry)
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
