// Package router assembles the operator gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/logger"
	"github.com/jwfreed/inventory-manager-sub010/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering versioned API routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RootRegistrar registers routes outside the versioned API, such as probes
type RootRegistrar interface {
	RegisterRoutes(r gin.IRoutes)
}

// Config holds engine settings
type Config struct {
	ServiceName    string
	TracingEnabled bool
	TrustedProxies []string
	Release        bool
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	roots      []RootRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewEngine builds a gin engine with the standard middleware stack:
// tracing, request logging, span enrichment, panic recovery and error marking.
func NewEngine(cfg Config, log *zap.Logger) *gin.Engine {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.RequestAttributes())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.SpanErrorMarker())
	return engine
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar mounted under /api/{version}
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// RegisterRoot adds a RootRegistrar mounted at the engine root
func (r *Router) RegisterRoot(registrar RootRegistrar) *Router {
	r.roots = append(r.roots, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() *gin.Engine {
	for _, root := range r.roots {
		root.RegisterRoutes(r.engine)
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return r.engine
}
