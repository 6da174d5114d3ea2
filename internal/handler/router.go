package handler

import (
	"net/http"
	"time"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps зависимости HTTP-слоя
type RouterDeps struct {
	LinkService    service.LinkService
	AuthService    service.AuthService
	ClickProcessor service.ClickProcessor
	Tokens         auth.TokenService
	Health         map[string]Pinger

	// APILimiter общий лимит по IP, AuthLimiter для входа и регистрации,
	// UserLimiter для запросов авторизованного пользователя
	APILimiter  *middleware.RateLimiter
	AuthLimiter *middleware.RateLimiter
	UserLimiter *middleware.RateLimiter

	AllowedOrigins []string
	BaseURL        string
	RedirectStatus int
	// MetricsHandler отдаётся на /metrics, nil отключает маршрут
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	if len(deps.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader}
		corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
		corsConfig.AllowCredentials = true
		corsConfig.MaxAge = 12 * time.Hour
		router.Use(cors.New(corsConfig))
	}

	// Rate limiting для всех запросов
	if deps.APILimiter != nil {
		router.Use(deps.APILimiter.Middleware())
	}

	linkHandler := NewLinkHandler(deps.LinkService, deps.ClickProcessor, deps.BaseURL, deps.RedirectStatus, logger)
	authHandler := NewAuthHandler(deps.AuthService, logger)
	healthHandler := NewHealthHandler(deps.Health, logger)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Check)

		authGroup := v1.Group("/auth")
		if deps.AuthLimiter != nil {
			authGroup.Use(deps.AuthLimiter.Middleware())
		}
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)

		protected := v1.Group("")
		protected.Use(middleware.RequireAuth(deps.Tokens, logger))
		if deps.UserLimiter != nil {
			protected.Use(deps.UserLimiter.MiddlewareWithKey(middleware.UserKey))
		}
		protected.POST("/links", linkHandler.CreateLink)
		protected.POST("/make_link_short", linkHandler.CreateLink)
		protected.GET("/user_links", linkHandler.ListUserLinks)
		protected.DELETE("/links/:id", linkHandler.DeleteLink)
		protected.GET("/links/:code/stats", linkHandler.GetStats)
		protected.GET("/links/:code/stats/daily", linkHandler.GetDailyStats)
	}

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// Редирект по короткому коду, без аутентификации
	router.GET("/:code", linkHandler.Redirect)

	return router
}
