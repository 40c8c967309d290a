package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/middleware"
	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/repository"
)

// stockChallenges is what SeedChallenges installs.
var stockChallenges = []model.Challenge{
	{Title: "Challenge 1", Category: "Permissions", Description: "Find the correct flag in the permissions.", Points: 100, Flag: "P3rm1551ons"},
	{Title: "Challenge 2", Category: "Sneaky", Description: "A sneaky challenge.", Points: 150, Flag: "5n34ky"},
	{Title: "Challenge 3", Category: "Configuration", Description: "Misconfiguration issue.", Points: 200, Flag: "C0nf1gur4t10n"},
	{Title: "Challenge 4", Category: "Injection", Description: "Try to inject your way in.", Points: 250, Flag: "1nj3ct10n"},
	{Title: "Challenge 5", Category: "Cron Jobs", Description: "Something about scheduled jobs.", Points: 300, Flag: "Cr0nj0b5"},
}

// AdminHandler serves administrator-only endpoints.  Every route is behind
// the admin gate, so the principal is always present.
type AdminHandler struct {
	Accounts   AccountStore
	Challenges ChallengeStore
	Hasher     *auth.Hasher
	Cache      CacheInvalidator
	Log        *zap.Logger
}

func NewAdminHandler(accounts AccountStore, challenges ChallengeStore, hasher *auth.Hasher, cache CacheInvalidator, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Accounts: accounts, Challenges: challenges, Hasher: hasher, Cache: cache, Log: log}
}

func (h *AdminHandler) invalidate(ctx context.Context, routes ...string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, routes...); err != nil {
		h.Log.Warn("invalidate cache", zap.Strings("routes", routes), zap.Error(err))
	}
}

func authorOf(c echo.Context) *uuid.UUID {
	if p := middleware.CurrentPrincipal(c); p != nil {
		id := p.Account.ID
		return &id
	}
	return nil
}

// CreateChallenge adds one challenge.  Titles and flags are both unique; a
// flag identifies exactly one challenge.
func (h *AdminHandler) CreateChallenge(c echo.Context) error {
	var req createChallengeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	// Trim the flag the same way SubmitFlag does, or it could never match.
	req.Title = strings.TrimSpace(req.Title)
	req.Category = strings.TrimSpace(req.Category)
	req.Flag = strings.TrimSpace(req.Flag)
	if err := req.Validate(); err != nil {
		return badRequest(c, "invalid challenge", err)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	ch := model.Challenge{
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		Points:      req.Points,
		Flag:        req.Flag,
		AuthorID:    authorOf(c),
	}
	if err := h.Challenges.Create(ctx, &ch); err != nil {
		// uq_challenges_title or uq_challenges_flag
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "challenge title or flag already exists"})
		}
		h.Log.Error("create challenge", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create challenge failed"})
	}
	h.invalidate(context.WithoutCancel(ctx), RouteChallenges)
	h.Log.Info("challenge created", zap.Uint64("challenge_id", ch.ID), zap.String("title", ch.Title))
	return c.JSON(http.StatusCreated, ch.Public())
}

// SeedChallenges installs the stock challenges, skipping titles that
// already exist.  Running it twice changes nothing.
func (h *AdminHandler) SeedChallenges(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	added, skipped := []string{}, []string{}
	author := authorOf(c)
	for _, stock := range stockChallenges {
		ch := stock // copy; stockChallenges is shared
		ch.AuthorID = author
		err := h.Challenges.Create(ctx, &ch)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			skipped = append(skipped, ch.Title)
		case err != nil:
			h.Log.Error("seed challenge", zap.String("title", ch.Title), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seed failed", "added": added})
		default:
			added = append(added, ch.Title)
		}
	}
	if len(added) > 0 {
		h.invalidate(context.WithoutCancel(ctx), RouteChallenges)
	}
	return c.JSON(http.StatusOK, echo.Map{"added": added, "skipped": skipped})
}

// UpdateUser toggles an account's admin and active flags and optionally
// resets its password.  Admins cannot demote or disable themselves.
//
// A flag change takes effect for new tokens; tokens already issued keep the
// audience they were signed with until they expire.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "invalid details", err)
	}
	// Guard against the last admin locking everyone out.
	if p := middleware.CurrentPrincipal(c); p != nil && p.Account.ID == id {
		if (req.IsAdmin != nil && !*req.IsAdmin) || (req.IsActive != nil && !*req.IsActive) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot demote or deactivate yourself"})
		}
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	acct, err := h.Accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		h.Log.Error("load account", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// Only fields present in the body change.
	if req.IsAdmin != nil {
		acct.IsAdmin = *req.IsAdmin
	}
	if req.IsActive != nil {
		acct.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if _, err := h.Hasher.Rotate(acct, *req.Password); err != nil {
			h.Log.Error("hash password", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
		}
	}
	if err := h.Accounts.UpdateAccess(ctx, acct); err != nil {
		h.Log.Error("update account", zap.String("account_id", id.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	h.invalidate(context.WithoutCancel(ctx), RouteScoreboard)
	h.Log.Info("account updated",
		zap.String("account_id", id.String()),
		zap.Bool("is_admin", acct.IsAdmin),
		zap.Bool("is_active", acct.IsActive))
	return c.JSON(http.StatusOK, viewAccount(*acct))
}

// CreateUser creates an account with caller-chosen flags.  Unlike signup it
// does not log the new account in, and collisions are reported plainly.
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	// Normalise before validating so " Bob@X.com " is checked as bob@x.com.
	req.Email = repository.NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Country = strings.TrimSpace(req.Country)
	if err := req.Validate(); err != nil {
		return badRequest(c, "invalid details", err)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	taken, err := h.Accounts.Taken(ctx, req.Username, req.Email)
	if err != nil {
		h.Log.Error("create user lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if taken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username or email already exists"})
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.Log.Error("hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	acct := model.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		IsActive:     true, // omitted is_active means active
	}
	if req.IsActive != nil {
		acct.IsActive = *req.IsActive
	}
	if req.Country != "" {
		acct.Country = &req.Country
	}
	if err := h.Accounts.Create(ctx, &acct); err != nil {
		// Lost a race with a signup that passed Taken at the same time.
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username or email already exists"})
		}
		h.Log.Error("create account", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	h.invalidate(context.WithoutCancel(ctx), RouteScoreboard)
	h.Log.Info("account created by admin",
		zap.String("account_id", acct.ID.String()),
		zap.Bool("is_admin", acct.IsAdmin),
		zap.Bool("is_active", acct.IsActive))
	return c.JSON(http.StatusCreated, viewAccount(acct))
}

// DeleteUser removes an account.  Its outstanding tokens are not revoked,
// but they name an account that no longer exists and so resolve to nobody.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	// Same rule as UpdateUser: admins cannot remove themselves.
	if p := middleware.CurrentPrincipal(c); p != nil && p.Account.ID == id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot delete yourself"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		h.Log.Error("delete account", zap.String("account_id", id.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	// The account may have been on the scoreboard.
	h.invalidate(context.WithoutCancel(ctx), RouteScoreboard)
	h.Log.Info("account deleted", zap.String("account_id", id.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}
