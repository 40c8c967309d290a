package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/iliyamo/ctf-arena/internal/model"
)

const accountsTable = "accounts"

var accountColumns = []string{
	"id", "username", "email", "password_hash", "created_at", "last_login",
	"is_admin", "is_active", "score", "rank_position",
	"profile_bio", "avatar_url", "country",
}

// AccountRepo is the MySQL store behind the `accounts` table.
type AccountRepo struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)}
}

// NormalizeEmail is the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanAccount(row squirrel.RowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.LastLogin,
		&a.IsAdmin,
		&a.IsActive,
		&a.Score,
		&a.Rank,
		&a.Bio,
		&a.AvatarURL,
		&a.Country,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) findOne(ctx context.Context, op string, where squirrel.Sqlizer) (*model.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From(accountsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s sql: %w", op, err)
	}
	a, err := scanAccount(r.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return a, nil
}

// FindByID returns ErrNotFound when no account has the id.
func (r *AccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.findOne(ctx, "find account by id", squirrel.Eq{"id": id.String()})
}

// FindByUsernameOrEmail looks an account up by either of its unique handles.
// Emails are matched case-insensitively.
func (r *AccountRepo) FindByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "find account by login",
		squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": NormalizeEmail(identifier)},
		})
}

// Taken reports whether the username or the email is already registered.
func (r *AccountRepo) Taken(ctx context.Context, username, email string) (bool, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From(accountsTable).
		Where(squirrel.Or{
			squirrel.Eq{"username": strings.TrimSpace(username)},
			squirrel.Eq{"email": NormalizeEmail(email)},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build taken sql: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return false, wrapErr("count accounts", err)
	}
	return n > 0, nil
}

// Create inserts a, assigning an id and creation time when unset.  A taken
// username or email yields ErrDuplicate.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Username = strings.TrimSpace(a.Username)
	a.Email = NormalizeEmail(a.Email)

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns("id", "username", "email", "password_hash", "created_at",
			"is_admin", "is_active", "score", "country").
		Values(a.ID.String(), a.Username, a.Email, a.PasswordHash, a.CreatedAt,
			a.IsAdmin, a.IsActive, a.Score, a.Country).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return wrapErr("insert account", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (r *AccountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, "update last login", id, squirrel.Eq{"last_login": at})
}

// UpdatePassword stores a new password hash.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.update(ctx, "update password", id, squirrel.Eq{"password_hash": hash})
}

// UpdateAccess writes the admin-managed fields: role, active flag and
// password hash.
func (r *AccountRepo) UpdateAccess(ctx context.Context, a *model.Account) error {
	return r.update(ctx, "update account access", a.ID, squirrel.Eq{
		"is_admin":      a.IsAdmin,
		"is_active":     a.IsActive,
		"password_hash": a.PasswordHash,
	})
}

func (r *AccountRepo) update(ctx context.Context, op string, id uuid.UUID, set squirrel.Eq) error {
	stmt, args, err := r.builder.Update(accountsTable).
		SetMap(set).
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", op, err)
	}
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// Delete removes the account.  Its solves go with it; challenges it
// authored keep existing without an author.  Tokens already issued for it
// stop resolving.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	stmt, args, err := r.builder.Delete(accountsTable).
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return wrapErr("delete account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete account", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Scoreboard lists active accounts by score, best first.  Ties go to the
// earlier signup.
func (r *AccountRepo) Scoreboard(ctx context.Context, limit uint64) ([]model.Account, error) {
	q := r.builder.Select(accountColumns...).
		From(accountsTable).
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("score DESC", "created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scoreboard sql: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, wrapErr("query scoreboard", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr("scan scoreboard", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate scoreboard", err)
	}
	return out, nil
}

// refreshRanksSQL recomputes rank_position for every active account in one
// statement; equal scores share a rank.
const refreshRanksSQL = `UPDATE accounts a
	JOIN (
		SELECT id, RANK() OVER (ORDER BY score DESC) AS pos
		FROM accounts
		WHERE is_active = 1
	) ranked ON ranked.id = a.id
	SET a.rank_position = ranked.pos`

// RefreshRanks recomputes scoreboard positions and returns the number of
// rows whose rank changed.
func (r *AccountRepo) RefreshRanks(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, refreshRanksSQL)
	if err != nil {
		return 0, wrapErr("refresh ranks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("refresh ranks", err)
	}
	return n, nil
}
