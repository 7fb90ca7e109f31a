// Package router assembles the gin engine: the public webhook gateway, the
// JWT-protected admin API and the health probes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/interfaces/http/handler"
	"github.com/feedsync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/{version}
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithMiddleware adds middleware to the versioned API group
func WithMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
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

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one area of the API
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// Handle registers a route
func (dg *DomainGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, path, handlers...)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, path, handlers...)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPut, path, handlers...)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodDelete, path, handlers...)
}

// Group creates a sub-group within this domain
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers are the HTTP handlers served by the engine. Any of them may be
// nil, in which case its routes are not mounted.
type Handlers struct {
	System     *handler.SystemHandler
	Webhook    *handler.WebhookHandler
	Auth       *handler.AuthHandler
	Tenant     *handler.TenantHandler
	Connection *handler.ConnectionHandler
	Sync       *handler.SyncHandler
	Attribute  *handler.AttributeHandler
	People     *handler.PeopleHandler
}

// Options configures the engine built by New
type Options struct {
	HTTP          config.HTTPConfig
	Webhook       config.WebhookConfig
	Tracing       middleware.TracingConfig
	Authenticator middleware.Authenticator
	// LoginLimiter throttles the login route per client IP; nil disables it
	LoginLimiter *middleware.RateLimiter
	Logger       *zap.Logger
}

// New builds the gin engine with the global middleware chain and every route
func New(opts Options, h Handlers) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.AccessLog(opts.Logger),
		logger.Recovery(opts.Logger),
		middleware.Tracing(opts.Tracing),
		middleware.SpanStatus(),
		middleware.Secure(),
		middleware.CORS(cors),
	)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/ready", h.System.Ready)
	}

	if h.Webhook != nil {
		maxBody := opts.Webhook.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = 64 << 10
		}
		hooks := engine.Group("/webhooks", middleware.BodyLimit(maxBody))
		hooks.POST("/intercom", h.Webhook.Intercom)
		hooks.POST("/helpscout/:secret", h.Webhook.HelpScout)
		hooks.POST("/segment", h.Webhook.Segment)
	}

	maxBody := opts.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r := NewRouter(engine, WithMiddleware(middleware.BodyLimit(maxBody)))
	for _, g := range apiGroups(opts, h) {
		r.Register(g)
	}
	r.Setup()
	return engine, nil
}

func apiGroups(opts Options, h Handlers) []*DomainGroup {
	requireAuth := middleware.JWTAuth(opts.Authenticator, opts.Logger)
	var groups []*DomainGroup

	if h.Auth != nil {
		auth := NewDomainGroup("auth", "/auth")
		login := []gin.HandlerFunc{h.Auth.Login}
		if opts.LoginLimiter != nil {
			login = append([]gin.HandlerFunc{middleware.RateLimit(opts.LoginLimiter)}, login...)
		}
		auth.POST("/login", login...)
		auth.GET("/me", requireAuth, h.Auth.Me)
		groups = append(groups, auth)
	}

	if h.Sync != nil {
		sync := NewDomainGroup("sync", "/sync").Use(requireAuth)
		sync.GET("/jobs", h.Sync.Jobs)
		sync.GET("/stats", h.Sync.Stats)
		groups = append(groups, sync)
	}

	tenants := NewDomainGroup("tenants", "/tenants").Use(requireAuth)
	if h.Tenant != nil {
		tenants.GET("", h.Tenant.List)
		tenants.POST("", h.Tenant.Create)
		tenants.GET("/:tenant", h.Tenant.Get)
	}
	if h.Connection != nil {
		conns := tenants.Group("connectors", "/:tenant/connectors")
		conns.GET("", h.Connection.List)
		conns.POST("/:connector", h.Connection.Connect)
		conns.DELETE("/:connector", h.Connection.Disconnect)
		conns.POST("/:connector/oauth", h.Connection.CompleteOAuth)
		conns.POST("/:connector/sync", h.Connection.Sync)
	}
	if h.Attribute != nil {
		attrs := tenants.Group("attributes", "/:tenant/attributes")
		attrs.GET("", h.Attribute.List)
		attrs.PUT("/:id/mrr", h.Attribute.SetMRR)
		attrs.PUT("/:id/plan", h.Attribute.SetPlan)
	}
	if h.People != nil {
		tenants.Group("people", "/:tenant/people").POST("/merge", h.People.Merge)
	}
	return append(groups, tenants)
}
