package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/txconsole/common/apiutil"
	"github.com/Aidin1998/txconsole/common/auth"
	"github.com/Aidin1998/txconsole/docs"
	"github.com/Aidin1998/txconsole/internal/database"
	"github.com/Aidin1998/txconsole/internal/infrastructure/config"
	"github.com/Aidin1998/txconsole/internal/notification"
	"github.com/Aidin1998/txconsole/internal/transactions"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server represents the HTTP server
type Server struct {
	cfg          config.ServerConfig
	serviceName  string
	logger       *zap.Logger
	db           *gorm.DB
	transactions *transactions.Service
	authn        gin.HandlerFunc
	stream       *notification.StreamHub
	httpServer   *http.Server
}

// NewServer creates a new HTTP server. authn authenticates operators on
// every /api/v1 route.
func NewServer(cfg config.ServerConfig, serviceName string, logger *zap.Logger, db *gorm.DB, txs *transactions.Service, authn gin.HandlerFunc) *Server {
	return &Server{
		cfg:          cfg,
		serviceName:  serviceName,
		logger:       logger,
		db:           db,
		transactions: txs,
		authn:        authn,
	}
}

// WithStream mounts the operator notification stream at
// /api/v1/notifications/stream.
func (s *Server) WithStream(hub *notification.StreamHub) *Server {
	s.stream = hub
	return s
}

// Router creates the HTTP router
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware(s.serviceName))
	corsCfg := cors.Config{
		AllowOrigins:  s.cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", apiutil.TraceHeader},
		ExposeHeaders: []string{"Content-Disposition", "X-Total-Count", "X-Exported-Count", "X-Export-Truncated", "X-Unavailable-Sources", apiutil.TraceHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))
	router.Use(apiutil.TraceMiddleware())
	router.Use(apiutil.MetricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.cfg.EnableSwagger {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(docs.InstanceName)))
	}

	v1 := router.Group("/api/v1")
	transactions.Routes(v1, s.transactions, s.logger, s.authn)
	if s.stream != nil {
		notifications := v1.Group("/notifications")
		if s.authn != nil {
			notifications.Use(s.authn)
		}
		notifications.GET("/stream", auth.RequirePermission(auth.PermissionModerate), s.stream.ServeWS)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := database.Ping(ctx, s.db); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
