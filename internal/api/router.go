package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(svc service.CommentService, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		router.Use(rateLimitMiddleware(cfg.RateLimit, log))
	}

	// Handlers
	commentHandler := NewCommentHandler(svc, cfg, log)
	adminHandler := NewAdminHandler(svc, cfg, log)

	// Health check
	router.GET("/health", healthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		comments := v1.Group("/comments")
		{
			comments.GET("", commentHandler.ListComments)
			comments.POST("", commentHandler.CreateComment)
			comments.POST("/like", commentHandler.LikeComment)
			comments.DELETE("", commentHandler.DeleteComment)
		}

		// Admin endpoints, guarded by the shared admin secret
		admin := v1.Group("", adminHandler.RequireAdminSecret())
		{
			admin.GET("/export", adminHandler.ExportComments)
			admin.POST("/import", adminHandler.ImportComments)
			admin.GET("/bans", adminHandler.ListBans)
			admin.POST("/ban", adminHandler.BanUser)
			admin.POST("/unban", adminHandler.UnbanUser)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "para-comments-api",
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "internal_server_error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Comment-Token, X-Admin-Secret")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
