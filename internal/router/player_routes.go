package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/handler"
	"github.com/iliyamo/ctf-arena/internal/middleware"
)

// RegisterPlayer registers the challenge endpoints.  Browsing is public and
// cached; submitting a flag requires a signed-in player.
func RegisterPlayer(e *echo.Echo, h *handler.ChallengeHandler, guard Guard, rl *middleware.RateLimiter, cache *middleware.ResponseCache) {
	g := e.Group("/api")
	g.GET("/challenges", h.List, guard(auth.PolicyAnonymous), cache.Middleware())
	// Guard first: the limiter keys on the player once the gate has run.
	g.POST("/challenge", h.SubmitFlag, guard(auth.PolicyRequired), rl.Middleware())
}
