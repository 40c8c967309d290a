package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/middleware"
	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/queue"
	"github.com/iliyamo/ctf-arena/internal/repository"
)

// Solve outcomes reported to the player.
const (
	StatusSolved        = "solved"
	StatusAlreadySolved = "already_solved"
)

// ChallengeHandler serves the challenge list and flag submissions.
// Publisher and Cache are optional.
type ChallengeHandler struct {
	Challenges ChallengeStore
	Solves     SolveStore
	Publisher  SolvePublisher
	Cache      CacheInvalidator
	Log        *zap.Logger
}

func NewChallengeHandler(challenges ChallengeStore, solves SolveStore, pub SolvePublisher, cache CacheInvalidator, log *zap.Logger) *ChallengeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChallengeHandler{Challenges: challenges, Solves: solves, Publisher: pub, Cache: cache, Log: log}
}

// List returns every challenge without its flag.
func (h *ChallengeHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	list, err := h.Challenges.List(ctx)
	if err != nil {
		h.Log.Error("list challenges", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]model.PublicChallenge, 0, len(list))
	for _, ch := range list {
		out = append(out, ch.Public())
	}
	return c.JSON(http.StatusOK, out)
}

type submitFlagReq struct {
	Flag string `json:"flag"`
}

type solveResp struct {
	Status    string                `json:"status"`
	Message   string                `json:"message"`
	Challenge model.PublicChallenge `json:"challenge"`
	Points    int64                 `json:"points"`
	Score     int64                 `json:"score"`
}

// SubmitFlag credits the caller for the challenge the flag belongs to.  A
// challenge only ever scores once per account.
func (h *ChallengeHandler) SubmitFlag(c echo.Context) error {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req submitFlagReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	// Flags are matched exactly after trimming surrounding whitespace.
	flag := strings.TrimSpace(req.Flag)
	if flag == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "flag required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	// A flag belongs to at most one challenge.
	ch, err := h.Challenges.FindByFlag(ctx, flag)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flag"})
		}
		h.Log.Error("find challenge by flag", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	// Insert the solve and add the points in one transaction.
	acct := p.Account
	solve, score, err := h.Solves.RecordSolve(ctx, acct.ID, *ch)
	if errors.Is(err, repository.ErrAlreadySolved) {
		// Not an error for the player; report the unchanged score.
		return c.JSON(http.StatusOK, solveResp{
			Status:    StatusAlreadySolved,
			Message:   "You have already solved this challenge",
			Challenge: ch.Public(),
			Score:     acct.Score,
		})
	}
	if err != nil {
		h.Log.Error("record solve",
			zap.String("account_id", acct.ID.String()),
			zap.Uint64("challenge_id", ch.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submit failed"})
	}

	// The solve is committed; side effects must not see the request deadline.
	h.afterSolve(context.WithoutCancel(ctx), queue.ChallengeSolvedEvent{
		AccountID:   acct.ID.String(),
		Username:    acct.Username,
		ChallengeID: ch.ID,
		Title:       ch.Title,
		Points:      ch.Points,
		NewScore:    score,
		SolvedAt:    solve.SolvedAt,
	})
	return c.JSON(http.StatusOK, solveResp{
		Status:    StatusSolved,
		Message:   "Correct flag!",
		Challenge: ch.Public(),
		Points:    ch.Points,
		Score:     score,
	})
}

// afterSolve runs the side effects of a committed solve.  Neither can undo
// it, so failures are only logged.
func (h *ChallengeHandler) afterSolve(ctx context.Context, ev queue.ChallengeSolvedEvent) {
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, RouteScoreboard); err != nil {
			h.Log.Warn("invalidate scoreboard cache", zap.Error(err))
		}
	}
	if h.Publisher != nil {
		if err := h.Publisher.PublishChallengeSolved(ctx, ev); err != nil {
			h.Log.Warn("publish challenge solved", zap.Uint64("challenge_id", ev.ChallengeID), zap.Error(err))
		}
	}
	h.Log.Info("flag accepted",
		zap.String("account_id", ev.AccountID),
		zap.Uint64("challenge_id", ev.ChallengeID),
		zap.Int64("score", ev.NewScore))
}
