package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	httpHandler "socialops/interfaces/http"
	"socialops/interfaces/middleware"
)

// RouterDeps carries everything the router mounts. Stream and Metrics are
// optional.
type RouterDeps struct {
	SecretKey     string
	InternalToken string
	CorsOrigins   []string

	Connections httpHandler.IConnectionHandler
	Publish     httpHandler.IPublishHandler
	Metrics     httpHandler.IMetricsHandler
	Health      httpHandler.IHealthHandler
	Stream      gin.HandlerFunc
	Prometheus  http.Handler
}

func InitiateRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(deps.CorsOrigins)))

	router.GET("/healthz", deps.Health.Healthz)
	if deps.Prometheus != nil {
		router.GET("/metrics", gin.WrapH(deps.Prometheus))
	}

	// OAuth connect flow. The callback is a browser redirect from the platform
	// and is authenticated by the transport cookie.
	auth := router.Group("/auth")
	auth.GET("/:platform/connect", middleware.Auth(deps.SecretKey), deps.Connections.Connect)
	auth.GET("/:platform/callback", middleware.OptionalAuth(deps.SecretKey), deps.Connections.Callback)

	api := router.Group("/api")
	api.Use(middleware.Auth(deps.SecretKey))
	{
		api.GET("/connections", deps.Connections.List)
		api.DELETE("/connections/:platform", deps.Connections.Disconnect)

		api.POST("/posts/:postId/publish", deps.Publish.Publish)
		api.POST("/threads/:threadId/publish", deps.Publish.PublishThread)
		api.POST("/publications/:targetId/repost", deps.Publish.Repost)
		api.DELETE("/publications/:targetId/repost", deps.Publish.Unrepost)

		api.POST("/posts/:postId/metrics/refresh", deps.Metrics.Refresh)
		api.GET("/posts/:postId/metrics", deps.Metrics.PostMetrics)
		api.GET("/publications/:targetId/metrics", deps.Metrics.TargetHistory)

		if deps.Stream != nil {
			api.GET("/publications/stream", deps.Stream)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalToken(deps.InternalToken))
	internal.POST("/metrics/backfill", deps.Metrics.Backfill)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
