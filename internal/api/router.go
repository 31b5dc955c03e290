package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/portdesk/internal/api/handler"
	"github.com/timmy/portdesk/internal/api/middleware"
	"github.com/timmy/portdesk/internal/config"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Incidents *handler.IncidentHandler
	RAG       *handler.RAGHandler
	Health    *handler.HealthHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(h Handlers, server config.ServerConfig) *gin.Engine {
	switch server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(server.CORS))

	r.GET("/health", h.Health.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/incidents", h.Incidents.Submit)
		v1.GET("/incidents", h.Incidents.List)
		v1.GET("/incidents/:run_id", h.Incidents.Get)

		rag := v1.Group("/rag")
		rag.POST("/ingest", h.RAG.Ingest)
		rag.POST("/search", h.RAG.Search)
	}

	return r
}
