package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Policy selects how a Gate treats a request's identity.
type Policy int

const (
	// PolicyAnonymous never resolves identity and always proceeds.
	PolicyAnonymous Policy = iota
	// PolicyOptional resolves identity when possible and never rejects.
	PolicyOptional
	// PolicyRequired rejects requests without a resolvable principal.
	PolicyRequired
	// PolicyAdmin additionally rejects principals without the admin audience.
	PolicyAdmin
)

func (p Policy) String() string {
	switch p {
	case PolicyAnonymous:
		return "anonymous"
	case PolicyOptional:
		return "optional"
	case PolicyRequired:
		return "required"
	case PolicyAdmin:
		return "admin"
	}
	return "unknown"
}

// Gate applies access policies to incoming requests.
type Gate struct {
	resolver *IdentityResolver
	log      *zap.Logger
}

// NewGate returns a Gate backed by resolver.  A nil logger discards output.
func NewGate(resolver *IdentityResolver, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{resolver: resolver, log: log}
}

// Enforce applies policy to r.  It returns the principal (possibly nil for
// the anonymous and optional policies), ErrNotAuthenticated, ErrForbidden,
// or a store error.
//
// Required and admin policies return the same ErrNotAuthenticated for a
// missing, malformed, expired or orphaned token.
func (g *Gate) Enforce(ctx context.Context, r *http.Request, policy Policy) (*Principal, error) {
	if policy == PolicyAnonymous {
		return nil, nil
	}

	p, err := g.resolve(ctx, r)
	if err != nil {
		return nil, err
	}

	switch policy {
	case PolicyOptional:
		return p, nil
	case PolicyRequired:
		if p == nil {
			return nil, ErrNotAuthenticated
		}
		return p, nil
	case PolicyAdmin:
		if p == nil {
			return nil, ErrNotAuthenticated
		}
		if !p.IsAdmin() {
			return nil, ErrForbidden
		}
		return p, nil
	}
	return nil, ErrNotAuthenticated
}

// resolve folds token decode failures into "no principal".
func (g *Gate) resolve(ctx context.Context, r *http.Request) (*Principal, error) {
	token, ok := ResolveToken(r)
	if !ok {
		return nil, nil
	}
	p, err := g.resolver.ResolveAccount(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		g.log.Debug("discarding unusable token",
			zap.Bool("expired", IsExpired(err)),
			zap.Error(err))
		return nil, nil
	}
	return p, err
}

// Anonymous lets every request through without looking at its identity.
func (g *Gate) Anonymous(ctx context.Context, r *http.Request) error {
	_, err := g.Enforce(ctx, r, PolicyAnonymous)
	return err
}

// Optional returns the request's principal or nil.
func (g *Gate) Optional(ctx context.Context, r *http.Request) (*Principal, error) {
	return g.Enforce(ctx, r, PolicyOptional)
}

// Required returns the request's principal or ErrNotAuthenticated.
func (g *Gate) Required(ctx context.Context, r *http.Request) (*Principal, error) {
	return g.Enforce(ctx, r, PolicyRequired)
}

// Admin returns an admin principal, ErrNotAuthenticated or ErrForbidden.
func (g *Gate) Admin(ctx context.Context, r *http.Request) (*Principal, error) {
	return g.Enforce(ctx, r, PolicyAdmin)
}
