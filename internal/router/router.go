package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/handler"
	"github.com/iliyamo/ctf-arena/internal/middleware"
)

// Guard returns the access-gate middleware for a policy.
type Guard func(policy auth.Policy) echo.MiddlewareFunc

// NewGuard binds a gate and its decision metrics into a Guard.  m may be nil.
func NewGuard(gate *auth.Gate, m *middleware.Metrics) Guard {
	return func(policy auth.Policy) echo.MiddlewareFunc {
		return middleware.Authenticate(gate, policy, m)
	}
}

// RegisterRoutes registers the operational endpoints: a liveness probe and
// the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health(db))
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the account endpoints under /api.  Credential
// endpoints are rate limited and the scoreboard is served from the cache.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, guard Guard, rl *middleware.RateLimiter, cache *middleware.ResponseCache) {
	g := e.Group("/api")
	anon := guard(auth.PolicyAnonymous)

	g.POST("/signup", a.Signup, rl.Middleware(), anon)
	g.POST("/login", a.Login, rl.Middleware(), anon)
	g.POST("/logout", a.Logout, anon)

	g.GET("/current_user", a.CurrentUser, guard(auth.PolicyOptional))
	g.GET("/auth_user", a.AuthUser, guard(auth.PolicyRequired))
	g.PATCH("/users/me/password", a.ChangePassword, guard(auth.PolicyRequired))

	g.GET("/users", a.Users, anon, cache.Middleware())
}
