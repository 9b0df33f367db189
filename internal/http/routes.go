package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/moderation"
	"github.com/sujalbistaa/feedsync/internal/ws"
)

// Options configures SetupRoutes.
type Options struct {
	DB         *gorm.DB
	Hub        *ws.Hub
	Logger     *zap.Logger
	Metrics    *Metrics
	Moderator  *moderation.Rules
	CORSOrigin string
	AdminToken string
	// CreateRPS and CreateBurst limit post creation per client IP.
	CreateRPS   float64
	CreateBurst int
	HashCost    int
}

// SetupRoutes configures all routes and middleware. Background work
// started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, opts Options) *Env {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Moderator == nil {
		opts.Moderator = moderation.New()
	}
	if opts.CreateRPS <= 0 {
		opts.CreateRPS = 1.0 / 3.0
	}
	if opts.CreateBurst < 1 {
		opts.CreateBurst = 1
	}

	env := &Env{
		DB:        opts.DB,
		Hub:       opts.Hub,
		Moderator: opts.Moderator,
		Metrics:   opts.Metrics,
		Log:       opts.Logger,
		HashCost:  opts.HashCost,
	}

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(opts.Logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
	}
	router.Use(SecurityHeadersMiddleware())
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if opts.CORSOrigin == "" || opts.CORSOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{opts.CORSOrigin}
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	limiter := NewIPRateLimiter(rate.Limit(opts.CreateRPS), opts.CreateBurst)
	go limiter.RunCleanup(ctx, 10*time.Minute)

	optionalAuth := AuthMiddleware(opts.DB, false)
	requireAuth := AuthMiddleware(opts.DB, true)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", env.Register)
		auth.POST("/login", env.Login)
		auth.GET("/me", requireAuth, env.Me)
		auth.PUT("/me", requireAuth, env.UpdateMe)
		auth.GET("/me/preferences", requireAuth, env.GetPreferences)
		auth.PUT("/me/preferences", requireAuth, env.UpdatePreferences)

		posts := api.Group("/posts")
		posts.GET("/", optionalAuth, env.ListPosts)
		posts.GET("/feed", requireAuth, env.PersonalizedFeed)
		posts.POST("/", requireAuth, RateLimitMiddleware(limiter), env.CreatePost)
		posts.GET("/:id", optionalAuth, env.GetPost)
		posts.PUT("/:id", requireAuth, env.UpdatePost)
		posts.DELETE("/:id", requireAuth, env.DeletePost)
		posts.POST("/:id/like", requireAuth, env.ToggleLike)
		posts.GET("/:id/like", requireAuth, env.LikeStatus)
		posts.GET("/:id/comments", optionalAuth, env.ListComments)
		posts.POST("/:id/comments", requireAuth, env.CreateComment)
		posts.PUT("/comments/:id", requireAuth, env.UpdateComment)
		posts.DELETE("/comments/:id", requireAuth, env.DeleteComment)

		api.POST("/admin/posts/:id/hide", AdminAuthMiddleware(opts.AdminToken), env.HidePost)
	}

	if opts.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			ws.ServeWs(opts.Hub, c.Writer, c.Request)
		})
	}
	if opts.Metrics != nil {
		router.GET("/metrics", opts.Metrics.Handler())
	}
	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := opts.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return env
}
