package app

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fieldops.io/fieldops/internal/api/handlers"
	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/config"
	"fieldops.io/fieldops/internal/notification"
)

// defaultAllowedOrigins applies when server.allowed_origins names no usable origin.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig, limiter middleware.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	router.GET("/api/v1/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", middleware.JWTAuth(jwtCfg))
	api.GET("/notifications", server.ListNotifications)
	api.POST("/notifications/:id/dismiss", server.DismissNotification)

	triggers := api.Group("/notifications",
		middleware.RequireRole(notification.ManagerRoles...),
		middleware.RateLimit(limiter),
	)
	triggers.POST("/generate-manager", server.GenerateManager)
	triggers.POST("/generate-technician", server.GenerateTechnician)
	triggers.POST("/generate-all", server.GenerateAll)

	admin := api.Group("/admin", middleware.RequireRole("admin"))
	admin.PUT("/transport/email", server.PutEmailSettings)
	admin.PUT("/transport/sms", server.PutSMSSettings)

	return router
}

// buildCORSConfig never combines a wildcard origin with credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" || slices.Contains(origins, o) {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = slices.Clone(defaultAllowedOrigins)
	}
	c.AllowOrigins = origins
	return c
}
