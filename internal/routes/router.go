package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lab-device-hub/internal/config"
	"lab-device-hub/internal/delivery/http/handler"
	"lab-device-hub/internal/logger"
	"lab-device-hub/internal/middleware"
)

// Deps carries the wired handlers plus the database health probe. The
// long-lived services behind the handlers are constructed in main.
type Deps struct {
	Health       func() error
	Devices      *handler.DeviceHandler
	Commands     *handler.CommandHandler
	Sessions     *handler.SessionHandler
	Reservations *handler.ReservationHandler
	Stats        *handler.StatsHandler
}

func SetupRoutes(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware order: recovery, request ID, logging, security headers,
	// CORS, request size limit, general rate limit.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(10 << 20))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"message": "Database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Service is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.IdentityMiddleware(cfg))
		{
			deps.Devices.RegisterRoutes(protected)
			deps.Commands.RegisterRoutes(protected)
			deps.Sessions.RegisterRoutes(protected)
			deps.Reservations.RegisterRoutes(protected)
			deps.Stats.RegisterRoutes(protected)

			staff := protected.Group("")
			staff.Use(middleware.StaffOnly())
			{
				deps.Devices.RegisterStaffRoutes(staff)
				deps.Reservations.RegisterStaffRoutes(staff)
			}
		}
	}

	logger.Info("All routes initialized")
	return router
}
