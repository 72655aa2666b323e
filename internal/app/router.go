package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/api/middleware"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/metrics"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// defaultDashboardOrigins are used when no dashboard origin is configured.
var defaultDashboardOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server handlers.ServerInterface, jwtCfg middleware.JWTConfig, doc *openapi3.T) (*gin.Engine, error) {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Metrics(),
		middleware.ClientIP(),
		corsByAudience(cfg),
	)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	validator, err := middleware.NewOpenAPIValidator(doc, middleware.OpenAPIOptions{
		BasePath:          cfg.Server.BasePath,
		ValidateResponses: cfg.Server.ValidateResponses,
	})
	if err != nil {
		return nil, fmt.Errorf("init openapi validator: %w", err)
	}
	// The validator wraps ErrorHandler so rendered errors land in its buffer.
	router.Use(validator, middleware.ErrorHandler())

	serviceGuard, err := middleware.ServiceToken(cfg.Security.ServiceTokenHash)
	if err != nil {
		logger.Warn("internal API disabled", zap.Error(err))
		serviceGuard = internalDisabled
	}

	handlers.RegisterHandlers(router.Group(cfg.Server.BasePath), server, handlers.RouteGuards{
		User:    []gin.HandlerFunc{middleware.JWTAuth(jwtCfg)},
		Service: []gin.HandlerFunc{serviceGuard},
	})
	return router, nil
}

func internalDisabled(c *gin.Context) {
	_ = c.Error(apperrors.Forbidden(apperrors.CodeForbidden, "internal API is disabled"))
	c.Abort()
}

// corsByAudience applies the permissive widget policy on public routes and
// the dashboard allow-list everywhere else. Preflight requests never reach a
// route, so the choice is made on the path.
func corsByAudience(cfg *config.Config) gin.HandlerFunc {
	publicPrefix := strings.TrimSuffix(cfg.Server.BasePath, "/") + "/public/"
	public := cors.New(buildPublicCORSConfig())
	dashboard := cors.New(buildCORSConfig(cfg))
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, publicPrefix) {
			public(c)
			return
		}
		dashboard(c)
	}
}

// buildPublicCORSConfig admits any embedding site. Widget calls carry no
// cookies; the bot allow-list is enforced by the access validator.
func buildPublicCORSConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	out := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			middleware.RequestIDHeader, middleware.ServiceTokenHeader,
		},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		logger.Warn("CORS allows every origin on dashboard routes; credentials disabled")
		out.AllowAllOrigins = true
		out.AllowCredentials = false
		return out
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			logger.Warn("ignoring wildcard CORS origin; set server.unsafe_allow_all_origins to allow it")
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultDashboardOrigins...)
	}
	out.AllowOrigins = origins
	out.AllowCredentials = cfg.Server.AllowCredentials
	return out
}
