package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pdfbatch/internal/handlers"
)

type RouterConfig struct {
	PushHandler *handlers.PushHandler
	JobsHandler *handlers.JobsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8501",
		},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
	}))

	// Push delivery endpoint; the broker POSTs one message per request.
	router.POST("/", cfg.PushHandler.Receive)
	router.GET("/health", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/jobs", cfg.JobsHandler.List)
		api.GET("/jobs/:job_id", cfg.JobsHandler.Get)
		api.GET("/jobs/:job_id/result", cfg.JobsHandler.GetResult)
	}

	return router
}
