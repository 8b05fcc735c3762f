// Package api exposes the orchestrator operations over HTTP/JSON.
package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/buildtall-systems/vendfleet/internal/orchestrator"
)

// NewRouter builds the gin engine with request logging and panic recovery
// wired to the given zap logger.
func NewRouter(orc *orchestrator.Orchestrator, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	h := &handlers{orc: orc}

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/orchestrator/start-work", h.startWork)
		apiGroup.POST("/orchestrator/choose-product", h.chooseProduct)
		apiGroup.POST("/vending-machines/:id/reset", h.resetMachine)
	}

	return router
}
