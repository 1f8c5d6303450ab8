package handlers

import (
	"facespace/config"
	"facespace/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the API under /api.
func NewRouter(cfg *config.Config, api *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger())

	maxUpload := int64(cfg.Server.MaxUploadMB) << 20
	router.MaxMultipartMemory = maxUpload

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) == 0 || (len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api", middleware.MaxUploadSize(maxUpload))
	api.RegisterRoutes(apiGroup)
	return router
}
