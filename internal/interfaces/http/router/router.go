// Package router assembles the gin engine: the middleware chain and the
// versioned ledger routes.
package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/logger"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/agrosupply/backend/internal/interfaces/http/handler"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar registers routes under the versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/{version}
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix, "v1" by default
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router over engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers every queued registrar
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one resource under a prefix
type DomainGroup struct {
	name       string
	prefix     string
	routes     []route
	middleware []gin.HandlerFunc
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates an empty group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware applied to every route of the group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: path, handlers: handlers})
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPut, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, r := range dg.routes {
		group.Handle(r.method, r.path, r.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string { return dg.name }

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string { return dg.prefix }

// Handlers are the endpoints the engine serves
type Handlers struct {
	Bills        *handler.BillHandler
	Installments *handler.InstallmentHandler
	Batches      *handler.BatchHandler
	Health       *handler.HealthHandler
}

// Config is the HTTP-facing part of the service configuration
type Config struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	RequestTimeout time.Duration
	HSTS           bool
	TrustedProxies []string
	Tracing        bool
	Profiling      bool
	IdempotencyTTL time.Duration
}

// Dependencies are the shared components the middleware chain needs
type Dependencies struct {
	Logger      *zap.Logger
	Meter       metric.Meter            // nil disables HTTP metrics
	Idempotency shared.IdempotencyStore // nil skips Idempotency-Key checks
}

// New builds the engine. Middleware order: recovery, request ID, request
// log, tracing, profiling labels, metrics, security headers, CORS, body
// limit, request deadline.
func New(cfg Config, deps Dependencies, h Handlers) (*gin.Engine, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.Tracing,
			SkipPaths:   []string{"/health"},
		}),
		middleware.SpanEnricher(),
	)
	if cfg.Profiling {
		profiling := middleware.DefaultProfilingConfig()
		profiling.Enabled = true
		engine.Use(middleware.Profiling(profiling))
	}
	if deps.Meter != nil {
		metrics, err := middleware.HTTPMetrics(deps.Meter)
		if err != nil {
			return nil, fmt.Errorf("http metrics: %w", err)
		}
		engine.Use(metrics)
	}
	engine.Use(
		middleware.Secure(cfg.HSTS),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	if cfg.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.CodeRouteNotFound, "Route not found", middleware.GetRequestID(c)))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.NewErrorResponseWithRequestID(
			dto.CodeMethodNotAllowed, "Method not allowed", middleware.GetRequestID(c)))
	})

	if h.Health != nil {
		engine.GET("/health", h.Health.Check)
	}

	idempotent := middleware.Idempotency(deps.Idempotency, cfg.IdempotencyTTL)

	r := NewRouter(engine)
	if h.Bills != nil {
		r.Register(NewDomainGroup("payment", "/payment").
			POST("/create", idempotent, h.Bills.Create).
			GET("/list", h.Bills.List).
			GET("/:id", h.Bills.Get).
			PUT("/update/:id", h.Bills.Update).
			DELETE("/delete/:id", h.Bills.Delete).
			POST("/:id/block", h.Bills.Block).
			POST("/:id/unblock", h.Bills.Unblock))
		r.Register(NewDomainGroup("payments", "/payments").
			GET("/history/:customerId", h.Bills.History))
	}
	if h.Installments != nil {
		r.Register(NewDomainGroup("installment", "/installment").
			POST("/create", idempotent, h.Installments.Create).
			POST("/all/pay", idempotent, h.Installments.PayAll).
			PUT("/update/:id", h.Installments.Update).
			DELETE("/delete/:id", h.Installments.Delete).
			GET("/bill/:billId", h.Installments.ListByBill).
			POST("/:id/block", h.Installments.Block).
			POST("/:id/unblock", h.Installments.Unblock))
	}
	if h.Batches != nil {
		r.Register(NewDomainGroup("batch", "/batch").
			POST("/create", h.Batches.Create).
			GET("/list", h.Batches.List).
			POST("/sell", h.Batches.Sell).
			POST("/sell-from-oldest", h.Batches.SellFromOldest).
			GET("/:id", h.Batches.Get).
			POST("/:id/expire", h.Batches.Expire).
			POST("/:id/block", h.Batches.Block).
			POST("/:id/unblock", h.Batches.Unblock).
			DELETE("/delete/:id", h.Batches.Delete))
	}
	r.Setup()
	return engine, nil
}
