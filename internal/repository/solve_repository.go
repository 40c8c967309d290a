package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/iliyamo/ctf-arena/internal/model"
)

// ErrAlreadySolved is returned by RecordSolve when the account has solved
// the challenge before.  It matches ErrDuplicate as well.
var ErrAlreadySolved = fmt.Errorf("challenge already solved: %w", ErrDuplicate)

// SolveRepo records challenge solves and the score they award.
type SolveRepo struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

func NewSolveRepo(db *sql.DB) *SolveRepo {
	return &SolveRepo{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)}
}

// RecordSolve inserts the solve and adds the challenge's points to the
// account in one transaction, returning the stored solve and the new score.
// The unique (account_id, challenge_id) key makes a second solve fail with
// ErrAlreadySolved and leaves the score untouched.
func (r *SolveRepo) RecordSolve(ctx context.Context, accountID uuid.UUID, ch model.Challenge) (model.ChallengeSolve, int64, error) {
	solve := model.ChallengeSolve{
		AccountID:   accountID,
		ChallengeID: ch.ID,
		SolvedAt:    time.Now().UTC(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return solve, 0, wrapErr("begin solve tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, args, err := r.builder.Insert("challenge_solves").
		Columns("account_id", "challenge_id", "solved_at").
		Values(accountID.String(), ch.ID, solve.SolvedAt).
		ToSql()
	if err != nil {
		return solve, 0, fmt.Errorf("build insert solve sql: %w", err)
	}
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		err = wrapErr("insert solve", err)
		if errors.Is(err, ErrDuplicate) {
			return solve, 0, ErrAlreadySolved
		}
		return solve, 0, err
	}
	if id, err := res.LastInsertId(); err == nil {
		solve.ID = uint64(id)
	}

	stmt, args, err = r.builder.Update(accountsTable).
		Set("score", squirrel.Expr("score + ?", ch.Points)).
		Where(squirrel.Eq{"id": accountID.String()}).
		ToSql()
	if err != nil {
		return solve, 0, fmt.Errorf("build award score sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return solve, 0, wrapErr("award score", err)
	}

	stmt, args, err = r.builder.Select("score").
		From(accountsTable).
		Where(squirrel.Eq{"id": accountID.String()}).
		ToSql()
	if err != nil {
		return solve, 0, fmt.Errorf("build read score sql: %w", err)
	}
	var score int64
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&score); err != nil {
		return solve, 0, wrapErr("read score", err)
	}

	if err := tx.Commit(); err != nil {
		return solve, 0, wrapErr("commit solve", err)
	}
	return solve, score, nil
}
