package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)

	// Restaurant records are the public read surface.
	r.GET("/restaurants", handler.ListRestaurants)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("Operator endpoints enabled with authentication")
	} else {
		slog.Warn("Operator endpoints enabled without authentication (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/subscriptions", handler.ListSubscriptions)
		api.POST("/subscriptions", handler.AddSubscription)
		api.POST("/subscriptions/:id/pause", handler.PauseSubscription)
		api.POST("/subscriptions/:id/resume", handler.ResumeSubscription)
		api.POST("/subscriptions/:id/check", handler.CheckSubscription)
		api.POST("/subscriptions/:id/refresh", handler.RefreshSubscription)
		api.DELETE("/subscriptions/:id", handler.DeleteSubscription)

		api.GET("/pipeline/queue", handler.GetQueue)
		api.GET("/pipeline/history", handler.GetHistory)
		api.GET("/pipeline/stats", handler.GetStats)
		api.GET("/pipeline/log", handler.GetLog)
		api.POST("/pipeline/:id/retry", handler.RetryItem)
		api.POST("/pipeline/:id/skip", handler.SkipItem)
		api.POST("/pipeline/:id/prioritize", handler.PrioritizeItem)
		api.DELETE("/pipeline/:id", handler.RemoveItem)
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "TasteMap",
			"description": "YouTube restaurant extraction pipeline",
			"endpoints": map[string]string{
				"health":        "/health",
				"restaurants":   "/restaurants",
				"subscriptions": "/api/subscriptions",
				"queue":         "/api/pipeline/queue",
				"history":       "/api/pipeline/history",
				"stats":         "/api/pipeline/stats",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware guards operator endpoints with the configured access key.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
