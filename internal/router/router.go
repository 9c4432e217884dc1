package router

import (
	"context"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-agent/internal/config"
	"github.com/stemsi/exstem-agent/internal/handler"
	"github.com/stemsi/exstem-agent/internal/middleware"
	"github.com/stemsi/exstem-agent/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures the local attempt API. Every route except /health
// requires the student's access token.
func SetupRouter(ctx context.Context, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(brotli.DefaultCompression))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.RequireLocalToken(cfg.AccessToken)

	// Next reaches the exam backend; cap bursts from a stuck key or script.
	nextLimiter := middleware.NewRateLimiter(ctx, 5, time.Second)

	// ─── 1. Attempt API ────────────────────────────────────────────────
	attemptAPI := router.Group("/api/v1/attempt")
	attemptAPI.Use(auth, middleware.NoStore())
	{
		attemptAPI.GET("", handlers.Attempt.GetAttempt)
		attemptAPI.PUT("/answers/:question_id", handlers.Attempt.SaveAnswer)
		attemptAPI.POST("/next", nextLimiter.Middleware(), handlers.Attempt.Next)
		attemptAPI.GET("/events", handlers.Attempt.ListEvents)
	}

	// ─── 2. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(auth)
	{
		ws.GET("/attempt/stream", handlers.WS.AttemptStream)
	}

	return router
}
