package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/middleware"
	"github.com/huangang/teamsync/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(svc.cfg.CORS.AllowOrigins))

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", svc.metricsHandler.Metrics)

	// Sync transport
	r.GET("/ws", svc.syncHandler.Serve)

	api := r.Group("/api")
	{
		api.POST("/auth/login", svc.authHandler.Login)

		// SSE (public route with internal token validation)
		api.GET("/events", svc.sseHandler.StreamEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/state", svc.stateHandler.GetState)
			protected.GET("/teams/:teamId/users", svc.stateHandler.GetTeamUsers)

			assistant := protected.Group("/assistant", svc.limiter.Middleware())
			{
				assistant.POST("/paper", svc.assistantHandler.Paper)
				assistant.POST("/code", svc.assistantHandler.Code)
				assistant.POST("/meeting", svc.assistantHandler.Meeting)
				assistant.POST("/summary", svc.assistantHandler.Summary)
			}
		}
	}
}
