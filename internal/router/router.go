package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	promhandler "github.com/jwalitptl/clinic-identity/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-identity/internal/middleware"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	session *middleware.SessionAuth
	health  Handler
	metrics *promhandler.Handler
	api     []Handler
}

type RouterConfig struct {
	RateLimit rate.Limit
	RateBurst int
}

func NewRouter(
	session *middleware.SessionAuth,
	health Handler,
	metrics *promhandler.Handler,
	log *logger.Logger,
	config RouterConfig,
	api ...Handler,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:  engine,
		session: session,
		health:  health,
		metrics: metrics,
		api:     api,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		metrics.Middleware(),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.session.Authenticate())
	for _, h := range r.api {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
