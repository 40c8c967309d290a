// Package handler implements the HTTP endpoints on top of small store
// interfaces.
package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/queue"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

// Cached public routes; writes that change them invalidate the cache.
const (
	RouteScoreboard = "/api/users"
	RouteChallenges = "/api/challenges"
)

// AccountStore is the account persistence used by the handlers.
type AccountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error)
	Taken(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, a *model.Account) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateAccess(ctx context.Context, a *model.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	Scoreboard(ctx context.Context, limit uint64) ([]model.Account, error)
}

// ChallengeStore is the challenge persistence used by the handlers.
type ChallengeStore interface {
	List(ctx context.Context) ([]model.Challenge, error)
	FindByFlag(ctx context.Context, flag string) (*model.Challenge, error)
	Create(ctx context.Context, c *model.Challenge) error
}

// SolveStore records solves and awards their points.
type SolveStore interface {
	RecordSolve(ctx context.Context, accountID uuid.UUID, ch model.Challenge) (model.ChallengeSolve, int64, error)
}

// SolvePublisher announces committed solves.
type SolvePublisher interface {
	PublishChallengeSolved(ctx context.Context, ev queue.ChallengeSolvedEvent) error
}

// CacheInvalidator drops cached responses of routes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, routes ...string) error
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// accountView is how an account is shown to its owner and to admins.
type accountView struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Country   *string    `json:"country"`
	Bio       *string    `json:"profile_bio"`
	AvatarURL *string    `json:"avatar_url"`
	Score     int64      `json:"score"`
	Rank      *int       `json:"rank"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

func viewAccount(a model.Account) accountView {
	return accountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Country:   a.Country,
		Bio:       a.Bio,
		AvatarURL: a.AvatarURL,
		Score:     a.Score,
		Rank:      a.Rank,
		IsAdmin:   a.IsAdmin,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
	}
}
