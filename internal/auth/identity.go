package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ctf-arena/internal/model"
	"github.com/iliyamo/ctf-arena/internal/repository"
)

// AccountFinder loads accounts by id.  Implementations return
// repository.ErrNotFound when no account matches.
type AccountFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

// Principal is the account resolved for a single request together with the
// role snapshot carried by its token.
type Principal struct {
	Account   model.Account
	Audience  string
	Nonce     string
	ExpiresAt time.Time
}

// IsAdmin reports whether the token was issued with the admin audience.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Audience == model.AudienceAdmin
}

// IdentityResolver turns raw tokens into principals.
type IdentityResolver struct {
	codec    *TokenCodec
	accounts AccountFinder
}

// NewIdentityResolver wires a resolver to its codec and account store.
func NewIdentityResolver(codec *TokenCodec, accounts AccountFinder) *IdentityResolver {
	return &IdentityResolver{codec: codec, accounts: accounts}
}

// ResolveAccount returns the principal referenced by token.
//
// An empty token yields (nil, nil).  A token that fails decoding yields an
// error wrapping ErrInvalidToken.  A well-formed token whose subject is not
// an account id, or whose account is gone or disabled, yields (nil, nil) so
// callers can treat it like an anonymous request.  Store failures are
// returned unchanged.
func (r *IdentityResolver) ResolveAccount(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := r.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil
	}
	acct, err := r.accounts.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.IsActive {
		return nil, nil
	}
	return &Principal{
		Account:   *acct,
		Audience:  claims.Audience,
		Nonce:     claims.Nonce,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
