package auth

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the cookie carrying the access token for browser clients.
const CookieName = "access_token"

// ResolveToken extracts a raw token from r.  The access_token cookie wins
// over the Authorization header; the header is only accepted with the
// Bearer scheme, matched case-insensitively.  Absence is reported with
// ok == false and is never an error.
func ResolveToken(r *http.Request) (token string, ok bool) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, param, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	param = strings.TrimSpace(param)
	if param == "" {
		return "", false
	}
	return param, true
}

// NewTokenCookie builds the cookie that hands tok to a browser.  Secure is
// a deployment decision: plain-HTTP development setups must leave it off.
func NewTokenCookie(tok AccessToken, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    tok.Token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  tok.Exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredTokenCookie tells the browser to drop the token cookie.
func ExpiredTokenCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
