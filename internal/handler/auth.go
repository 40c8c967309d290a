package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/logger"
	"github.com/iliyamo/ctf-arena/internal/middleware"
	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/repository"
)

const (
	defaultScoreboardLimit = 100
	maxScoreboardLimit     = 500
)

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
	Accounts     AccountStore
	Hasher       *auth.Hasher
	Codec        *auth.TokenCodec
	CookieSecure bool
	Log          *zap.Logger

	// dummyHash is verified against when the identifier is unknown so a
	// miss costs as much as a wrong password.
	dummyHash string
}

// NewAuthHandler precomputes the dummy hash with the configured cost.  It
// fails rather than run without one, since an empty hash would let unknown
// identifiers return early.
func NewAuthHandler(accounts AccountStore, hasher *auth.Hasher, codec *auth.TokenCodec, cookieSecure bool, log *zap.Logger) (*AuthHandler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dummy, err := hasher.Hash("ctf-arena-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("precompute dummy hash: %w", err)
	}
	return &AuthHandler{
		Accounts:     accounts,
		Hasher:       hasher,
		Codec:        codec,
		CookieSecure: cookieSecure,
		Log:          log,
		dummyHash:    dummy,
	}, nil
}

type tokenResp struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        accountView `json:"user"`
}

// issue signs a token for acct, sets it as the auth cookie and writes the
// token response.
func (h *AuthHandler) issue(c echo.Context, status int, acct model.Account) error {
	tok, err := h.Codec.Issue(acct.ID.String(), acct.Audience())
	if err != nil {
		h.Log.Error("issue access token", zap.String("account_id", acct.ID.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	c.SetCookie(auth.NewTokenCookie(tok, h.Codec.TTL(), h.CookieSecure))
	return c.JSON(status, tokenResp{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		ExpiresAt:   tok.Exp,
		User:        viewAccount(acct),
	})
}

// Signup creates a non-admin account and logs it in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	// Emails are stored lower-cased; usernames keep their case.
	req.Email = repository.NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Country = strings.TrimSpace(req.Country)
	if err := req.Validate(); err != nil {
		return badRequest(c, errInvalidDetails, err)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	taken, err := h.Accounts.Taken(ctx, req.Username, req.Email)
	if err != nil {
		h.Log.Error("signup lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if taken {
		// Same answer as a validation failure: which field collided stays hidden.
		return c.JSON(http.StatusBadRequest, echo.Map{"error": errInvalidDetails})
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.Log.Error("hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	// Self-service accounts are never admins.
	acct := model.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if req.Country != "" {
		acct.Country = &req.Country
	}
	if err := h.Accounts.Create(ctx, &acct); err != nil {
		// A concurrent signup can win the race past Taken.
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errInvalidDetails})
		}
		h.Log.Error("create account", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	h.Log.Info("account created",
		zap.String("account_id", acct.ID.String()),
		zap.String("email", logger.MaskEmail(acct.Email)))
	return h.issue(c, http.StatusCreated, acct)
}

// Login verifies credentials.  Unknown identifiers, wrong passwords and
// disabled accounts all get the same answer.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ident := strings.TrimSpace(req.identifier())
	if ident == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	acct, err := h.Accounts.FindByUsernameOrEmail(ctx, ident)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Burn a bcrypt comparison so unknown identifiers take as long.
		h.Hasher.Verify(req.Password, h.dummyHash)
		return h.rejectLogin(c, ident)
	case err != nil:
		h.Log.Error("login lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// Check the password before the active flag so both paths cost a compare.
	if !h.Hasher.Verify(req.Password, acct.PasswordHash) || !acct.IsActive {
		return h.rejectLogin(c, ident)
	}

	// A failed last_login write does not block the login.
	now := time.Now().UTC()
	if err := h.Accounts.UpdateLastLogin(ctx, acct.ID, now); err != nil {
		h.Log.Warn("update last login", zap.String("account_id", acct.ID.String()), zap.Error(err))
	} else {
		acct.LastLogin = &now
	}
	return h.issue(c, http.StatusOK, *acct)
}

func (h *AuthHandler) rejectLogin(c echo.Context, ident string) error {
	h.Log.Info("login rejected", zap.String("identifier", logger.MaskIdentifier(ident)))
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
}

// Logout clears the auth cookie.  Issued tokens stay valid until they expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(auth.ExpiredTokenCookie(h.CookieSecure))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// CurrentUser returns the caller's account, or null for anonymous callers.
func (h *AuthHandler) CurrentUser(c echo.Context) error {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, viewAccount(p.Account))
}

func (h *AuthHandler) AuthUser(c echo.Context) error {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	return c.JSON(http.StatusOK, echo.Map{"current_user": viewAccount(p.Account)})
}

// ChangePassword rotates the caller's password after checking the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "invalid password", err)
	}
	// Work on a copy; the principal belongs to the request.
	acct := p.Account
	if !h.Hasher.Verify(req.CurrentPassword, acct.PasswordHash) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current password is incorrect"})
	}
	if _, err := h.Hasher.Rotate(&acct, req.NewPassword); err != nil {
		h.Log.Error("hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Accounts.UpdatePassword(ctx, acct.ID, acct.PasswordHash); err != nil {
		h.Log.Error("update password", zap.String("account_id", acct.ID.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Users is the public scoreboard.  ?limit= caps the number of rows.
func (h *AuthHandler) Users(c echo.Context) error {
	limit := uint64(defaultScoreboardLimit)
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = min(n, maxScoreboardLimit) // silently capped
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	accounts, err := h.Accounts.Scoreboard(ctx, limit)
	if err != nil {
		h.Log.Error("scoreboard", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]model.PublicAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Public())
	}
	return c.JSON(http.StatusOK, out)
}
