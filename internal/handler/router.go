package handler

import (
	"couponmarket/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter builds the gin engine with all routes and middleware.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.POST("/register", h.Register)
			account.GET("/balance", h.GetBalance)
			account.GET("/logs", h.ListCreditLogs)
		}

		coupon := api.Group("/coupon")
		{
			coupon.POST("/create", h.CreateCoupon)
			coupon.GET("/detail", h.GetCoupon)
			coupon.GET("/list", h.ListCoupons)
			coupon.POST("/redeem", h.RedeemCoupon)
			coupon.POST("/track", h.TrackView)
		}

		credit := api.Group("/credit")
		{
			credit.POST("/request", h.SubmitCreditRequest)
			credit.POST("/generate", h.GenerateCreditKey)
			credit.POST("/activate", h.ActivateCreditKey)
			credit.POST("/grant", h.AdminGrant)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
