// Package httpserver assembles the gin engine, middleware chain and
// route groups.
package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/config"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/auth"
	middleware "github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
	v1 "github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/routes/v1"
)

type HTTPServer struct {
	engine    *gin.Engine
	v1Route   *v1.V1Route
	validator *auth.JWTValidator
	config    *config.Config
	logger    zerolog.Logger
}

func NewHTTPServer(
	v1Route *v1.V1Route,
	validator *auth.JWTValidator,
	cfg *config.Config,
	logger zerolog.Logger,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine:    gin.New(),
		v1Route:   v1Route,
		validator: validator,
		config:    cfg,
		logger:    logger,
	}

	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.LoggingMiddleware(logger))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware())

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Ready only once the JWKS has loaded; without keys every request
	// would 401.
	server.engine.GET("/readyz", func(c *gin.Context) {
		if !server.validator.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "jwks not loaded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return server
}

func (s *HTTPServer) Run() error {
	protected := s.engine.Group("/")
	protected.Use(middleware.AuthMiddleware(s.validator, s.logger))

	s.v1Route.RegisterRouter(protected)

	return s.engine.Run(fmt.Sprintf(":%d", s.config.HTTPPort))
}
