package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/echonote/internal/api/handlers"
	"github.com/yoockh/echonote/internal/api/middleware"
)

type Deps struct {
	Upload     *handlers.UploadHandler
	Stream     *handlers.StreamHandler
	Recording  *handlers.RecordingHandler
	Pipeline   *handlers.PipelineHandler
	Search     *handlers.SearchHandler
	ProgressWS *handlers.ProgressWSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/recordings/upload", d.Upload.Upload)
	auth.GET("/recordings/stream/:filename", d.Stream.Stream)

	auth.GET("/recordings/:id", d.Recording.Get)
	auth.DELETE("/recordings/:id", d.Recording.Delete)
	auth.POST("/recordings/:id/process", d.Pipeline.Process)

	auth.GET("/search", d.Search.Search)
	auth.GET("/tasks/recommend", d.Search.RecommendTasks)

	// WebSocket
	auth.GET("/ws/recordings/:id/progress", d.ProgressWS.ProgressWS)
}
