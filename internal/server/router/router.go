package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(inventory *handlers.InventoryHandler, scan *handlers.ScanHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	drugs := r.Group("/drugs")
	drugs.GET("", inventory.List)
	drugs.POST("", inventory.Create)
	drugs.POST("/refresh", inventory.Refresh)
	drugs.GET("/:id", inventory.Get)
	drugs.PATCH("/:id", inventory.Update)
	drugs.DELETE("/:id", inventory.Delete)
	r.GET("/report", inventory.Report)

	s := r.Group("/scan")
	s.POST("", scan.Start)
	s.GET("", scan.Status)
	s.DELETE("", scan.Cancel)
	s.POST("/snapshot", scan.Snapshot)
	s.POST("/upload", scan.Upload)
	s.POST("/torch", scan.Torch)
	r.GET("/notifications", scan.Notifications)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
