package app

import (
	"careermap_backend/docs"
	"careermap_backend/internal/config"
	"careermap_backend/internal/middleware"
	"careermap_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		registerAssessmentRoutes(authGroup, c)
		registerRoadmapRoutes(authGroup, c)
		registerResourceRoutes(authGroup, c)
	}
}

func registerAssessmentRoutes(group *gin.RouterGroup, c *controllers) {
	assessment := group.Group("/assessment")
	{
		assessment.POST("", c.assessment.Create)
		assessment.GET("", c.assessment.List)
		assessment.GET("/:id", c.assessment.Get)
		assessment.PUT("/:id", c.assessment.Replace)
		assessment.DELETE("/:id", c.assessment.Delete)
	}
}

func registerRoadmapRoutes(group *gin.RouterGroup, c *controllers) {
	roadmap := group.Group("/roadmap")
	{
		roadmap.GET("", c.roadmap.Get)
		roadmap.POST("/generate", c.roadmap.Generate)
		roadmap.POST("/regenerate", c.roadmap.Regenerate)
		roadmap.GET("/job/:jobId", c.roadmap.JobStatus)
		roadmap.PUT("/progress", c.roadmap.UpdateProgress)
	}
}

func registerResourceRoutes(group *gin.RouterGroup, c *controllers) {
	resources := group.Group("/resources")
	{
		resources.GET("", c.resource.Search)
		resources.GET("/by-type", c.resource.ByType)
	}
}
