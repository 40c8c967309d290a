package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/iliyamo/ctf-arena/internal/model"
)

const challengesTable = "challenges"

var challengeColumns = []string{
	"id", "title", "category", "description", "points", "flag", "author_id", "created_at",
}

// ChallengeRepo is the MySQL store behind the `challenges` table.
type ChallengeRepo struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

func NewChallengeRepo(db *sql.DB) *ChallengeRepo {
	return &ChallengeRepo{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)}
}

func scanChallenge(row squirrel.RowScanner) (*model.Challenge, error) {
	var c model.Challenge
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Category,
		&c.Description,
		&c.Points,
		&c.Flag,
		&c.AuthorID,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns every challenge ordered by points then id.
func (r *ChallengeRepo) List(ctx context.Context) ([]model.Challenge, error) {
	stmt, args, err := r.builder.Select(challengeColumns...).
		From(challengesTable).
		OrderBy("points ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list challenges sql: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, wrapErr("query challenges", err)
	}
	defer rows.Close()

	var out []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, wrapErr("scan challenge", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate challenges", err)
	}
	return out, nil
}

// FindByFlag returns the challenge whose flag equals flag, or ErrNotFound.
func (r *ChallengeRepo) FindByFlag(ctx context.Context, flag string) (*model.Challenge, error) {
	stmt, args, err := r.builder.Select(challengeColumns...).
		From(challengesTable).
		Where(squirrel.Eq{"flag": flag}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find challenge sql: %w", err)
	}
	c, err := scanChallenge(r.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, wrapErr("find challenge by flag", err)
	}
	return c, nil
}

// Create inserts c and fills in its id.  A taken title or flag yields
// ErrDuplicate.
func (r *ChallengeRepo) Create(ctx context.Context, c *model.Challenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var author any
	if c.AuthorID != nil {
		author = c.AuthorID.String()
	}
	stmt, args, err := r.builder.Insert(challengesTable).
		Columns("title", "category", "description", "points", "flag", "author_id", "created_at").
		Values(c.Title, c.Category, c.Description, c.Points, c.Flag, author, c.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert challenge sql: %w", err)
	}
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return wrapErr("insert challenge", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("insert challenge", err)
	}
	c.ID = uint64(id)
	return nil
}
