package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"formfiller/internal/api/handlers"
	"formfiller/internal/api/middleware"
)

func SetupRoutes(mode string, h *handlers.Handler, log *zap.Logger) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Login)
		}

		v1.GET("/health", h.HealthCheck)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(h.Tokens()))
		{
			// Browsers cannot send headers on the handshake; the token
			// travels as a query parameter.
			protected.GET("/ws/recording", h.RecordingWebSocket)

			protected.GET("/devices", h.GetDevices)

			recording := protected.Group("/recording")
			{
				recording.POST("/start", h.StartRecording)
				recording.POST("/stop", h.StopRecording)
				recording.GET("/status", h.GetRecordingStatus)
				recording.POST("/replay", h.ReplayRecording)
				recording.POST("/save", h.SaveRecording)
				recording.GET("/sessions", h.ListSessions)
				recording.DELETE("/sessions/:id", h.CloseRecording)
			}

			profiles := protected.Group("/profiles")
			{
				profiles.GET("", h.GetProfiles)
				profiles.POST("", h.CreateProfile)
				profiles.GET("/:id", h.GetProfile)
				profiles.PUT("/:id", h.UpdateProfile)
				profiles.DELETE("/:id", h.DeleteProfile)
				profiles.POST("/:id/replay", h.ReplayProfile)
				profiles.GET("/:id/runs", h.GetProfileRuns)
			}
		}
	}

	return router
}
