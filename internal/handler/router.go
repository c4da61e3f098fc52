package handler

import (
	"buzz/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 里程相关
		mileage := api.Group("/mileage")
		{
			mileage.GET("/qr", h.GetMileageQR)
			mileage.POST("/verify-qr", h.VerifyMileageQR)
			mileage.POST("/use", h.UseMileage)
			mileage.POST("/earn", h.EarnMileage)
			mileage.GET("/history", h.MileageHistory)
			mileage.POST("/admin/adjust", h.AdminAdjust)
		}

		// 二维码签发（优惠券）
		api.GET("/qr/coupon/:coupon_id", h.GetCouponQR)

		// 优惠券相关
		coupons := api.Group("/coupons")
		{
			coupons.GET("", h.ListCoupons)
			coupons.POST("/verify", h.VerifyCoupon)
			coupons.POST("/use", h.UseCoupon)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.GET("/settlements", h.ListSettlements)
			admin.POST("/settlements/process", h.ProcessSettlement)
			admin.POST("/coupons", h.IssueCoupon)
			admin.POST("/tokens/cleanup", h.CleanupTokens)
		}

		// 政策快照
		api.GET("/policy", h.GetPolicy)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
