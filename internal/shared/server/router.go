package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/report"
	"kpieval-backend/internal/shared/config"
	"kpieval-backend/internal/shared/metrics"
	"kpieval-backend/internal/shared/server/middleware"
	"kpieval-backend/internal/shared/server/respond"
)

// RouterDeps are the wired handlers the router mounts.
type RouterDeps struct {
	Config            config.Config
	EvaluationHandler *evaluations.Handler
	ReportHandler     *report.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.RegisterRoutes(api)
	}
	if deps.ReportHandler != nil {
		deps.ReportHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
