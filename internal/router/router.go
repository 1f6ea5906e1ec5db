package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meli_dev_v1_202609/internal/controller"
	"meli_dev_v1_202609/internal/middleware"
)

// Controllers 路由需要的全部控制器
type Controllers struct {
	User    *controller.UserController
	Auth    *controller.AuthController
	Account *controller.AccountController
	Item    *controller.ItemController
	Sync    *controller.SyncController
}

// SetupRouter 组装路由
func SetupRouter(ctls Controllers, jwtCfg middleware.JWTConfig) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	// 不需要登录的接口
	v1.POST("/users/login", ctls.User.Login)
	v1.GET("/auth/login-url", ctls.Auth.LoginURL)
	v1.GET("/auth/callback", ctls.Auth.Callback)

	// 需要登录的接口
	authed := v1.Group("")
	authed.Use(middleware.JWTAuth(jwtCfg))
	{
		authed.GET("/users/me", ctls.User.Me)

		accounts := authed.Group("/accounts")
		{
			accounts.GET("", ctls.Account.List)
			accounts.GET("/:id", ctls.Account.Get)
			accounts.DELETE("/:id", ctls.Account.Delete)
		}

		items := authed.Group("/items")
		{
			items.GET("", ctls.Item.List)
			items.GET("/accounts/:id/summary", ctls.Item.Summary)
			items.POST("/bulk-status", ctls.Item.BulkStatus)
		}

		sync := authed.Group("/sync")
		{
			sync.POST("/tick", ctls.Sync.RunTick)
			sync.POST("/accounts/:id/request",
				middleware.SyncRateLimit("account_sync", 30*time.Second),
				ctls.Sync.RequestAccountSync)
			sync.POST("/tokens/refresh",
				middleware.SyncRateLimit("token_refresh", time.Minute),
				ctls.Sync.RefreshTokens)
		}
	}

	return r
}
