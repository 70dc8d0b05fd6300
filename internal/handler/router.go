package handler

import (
	"biogenie-go/internal/middleware"
	"biogenie-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总了所有路由需要的处理器。
type Handlers struct {
	User     *UserHandler
	Auth     *AuthHandler
	Exchange *ExchangeHandler
	Session  *SessionHandler
	Search   *SearchHandler
	Health   *HealthHandler
}

// RegisterRoutes 注册所有路由。/api/v1 下除认证接口外都经过 IdentityMiddleware。
func RegisterRoutes(r *gin.Engine, h Handlers, jwtManager *token.JWTManager) {
	r.GET("/health", h.Health.Health)
	r.GET("/health/live", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", h.Auth.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", h.User.Register)
			users.POST("/login", h.User.Login)
			users.GET("/me", middleware.IdentityMiddleware(jwtManager), middleware.RequireUser(), h.User.GetProfile)
		}

		scoped := apiV1.Group("")
		scoped.Use(middleware.IdentityMiddleware(jwtManager))
		{
			scoped.GET("/features", h.Exchange.ListFeatures)
			scoped.POST("/features/:feature/ask", h.Exchange.Ask)

			sessions := scoped.Group("/sessions")
			{
				sessions.GET("", h.Session.List)
				sessions.POST("", h.Session.Create)
				sessions.GET("/watch", h.Session.Watch)
				sessions.GET("/:id", h.Session.Get)
				sessions.DELETE("/:id", h.Session.Delete)
			}

			scoped.GET("/search", h.Search.Search)
		}
	}
}
