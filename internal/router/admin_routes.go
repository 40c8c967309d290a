package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/handler"
)

// RegisterAdmin registers administrator endpoints under /api/admin.  Every
// route requires a token issued with the admin audience.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, guard Guard) {
	g := e.Group("/api/admin", guard(auth.PolicyAdmin))
	g.POST("/challenges", h.CreateChallenge)
	g.POST("/seed-challenges", h.SeedChallenges)
	g.POST("/users", h.CreateUser)
	g.PATCH("/users/:id", h.UpdateUser)
	g.DELETE("/users/:id", h.DeleteUser)
}
