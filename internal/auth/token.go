package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/ctf-arena/internal/model"
)

const (
	// DefaultAccessTTL is how long an access token stays valid.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultIssuer is stamped into every token and required on decode.
	DefaultIssuer = "ctf-arena/api/auth/token"
	// DefaultAlgorithm signs tokens with HMAC-SHA256.
	DefaultAlgorithm = "HS256"
	// MinSecretBytes is the shortest accepted signing key (256 bits).
	MinSecretBytes = 32
)

// AccessToken is a signed token together with its expiry.
type AccessToken struct {
	Token string    // compact JWS string
	Exp   time.Time // UTC expiration time
}

// Claims is the fixed claim set carried by every access token.
type Claims struct {
	Subject   string           `json:"subject"`
	Audience  string           `json:"audience"`
	Nonce     string           `json:"nonce"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	Issuer    string           `json:"issuer"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject, nil }

func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// Validate is called by the jwt parser once the registered claims passed.
func (c Claims) Validate() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: subject missing", ErrInvalidClaims)
	case !validAudience(c.Audience):
		return fmt.Errorf("%w: audience %q", ErrInvalidClaims, c.Audience)
	case c.Nonce == "":
		return fmt.Errorf("%w: nonce missing", ErrInvalidClaims)
	case c.IssuedAt == nil:
		return fmt.Errorf("%w: issued-at missing", ErrInvalidClaims)
	}
	return nil
}

func validAudience(aud string) bool {
	return aud == model.AudienceAdmin || aud == model.AudienceUser
}

// TokenConfig is the explicit signing configuration handed to a codec.
type TokenConfig struct {
	Secret    []byte
	Algorithm string
	TTL       time.Duration
	Issuer    string
}

// TokenCodec issues and decodes HMAC-signed access tokens.  It holds no
// mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenCodec validates cfg and fills in defaults.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretBytes)
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", alg)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenCodec{
		secret: secret,
		method: method,
		ttl:    ttl,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock returns a copy of the codec reading time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL is the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue signs a new token for subject with the given audience.  The nonce,
// issued-at, expiry and issuer claims are always set by the codec.
func (c *TokenCodec) Issue(subject, audience string) (AccessToken, error) {
	if subject == "" {
		return AccessToken{}, fmt.Errorf("%w: subject missing", ErrInvalidClaims)
	}
	if !validAudience(audience) {
		return AccessToken{}, fmt.Errorf("%w: audience %q", ErrInvalidClaims, audience)
	}
	now := c.now()
	claims := Claims{
		Subject:   subject,
		Audience:  audience,
		Nonce:     uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		Issuer:    c.issuer,
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: claims.ExpiresAt.Time.UTC()}, nil
}

// Decode verifies token and returns its claims.  Every failure, including
// expiry, wraps ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired but otherwise valid token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
