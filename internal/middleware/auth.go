package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ctf-arena/internal/auth"
)

// Context keys set by Authenticate.  user_id and role are kept for
// handlers and middleware that only need the id or the audience.
const (
	ContextKeyPrincipal = "principal"
	ContextKeyUserID    = "user_id"
	ContextKeyRole      = "role"
)

// Authenticate applies policy to every request of the route or group.
//
// A missing or unusable identity under the required or admin policies is
// answered with the same 401 whatever the cause, so clients cannot tell an
// expired token from a forged one.  A non-admin principal under the admin
// policy gets 403.  Store failures are passed to echo's error handler as a
// 500.
func Authenticate(gate *auth.Gate, policy auth.Policy, m *Metrics) echo.MiddlewareFunc {
	name := policy.String()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p, err := gate.Enforce(req.Context(), req, policy)
			switch {
			case errors.Is(err, auth.ErrNotAuthenticated):
				m.observeAuth(name, "unauthenticated")
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			case errors.Is(err, auth.ErrForbidden):
				m.observeAuth(name, "forbidden")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			case err != nil:
				m.observeAuth(name, "error")
				return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
			}

			if p == nil {
				m.observeAuth(name, "anonymous")
				return next(c)
			}
			m.observeAuth(name, "authenticated")
			c.Set(ContextKeyPrincipal, p)
			c.Set(ContextKeyUserID, p.Account.ID.String())
			c.Set(ContextKeyRole, p.Audience)
			return next(c)
		}
	}
}

// CurrentPrincipal returns the principal stored by Authenticate, or nil.
func CurrentPrincipal(c echo.Context) *auth.Principal {
	p, _ := c.Get(ContextKeyPrincipal).(*auth.Principal)
	return p
}
