// Package auth implements password credentials, access token encoding and
// the request-level access policies built on top of them.
//
// The flow for an inbound request is: ResolveToken pulls a raw token from
// the cookie or the Authorization header, IdentityResolver decodes it with
// a TokenCodec and loads the referenced account, and a Gate applies one of
// the four access policies to the result.
package auth

import "errors"

var (
	// ErrInvalidToken is returned when a token is malformed, signed with a
	// different key or algorithm, carries bad claims or has expired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidClaims is wrapped into ErrInvalidToken when the signature is
	// fine but the claim set is incomplete.  Issue returns it directly.
	ErrInvalidClaims = errors.New("invalid claims")

	// ErrNotAuthenticated is signalled by the required and admin policies
	// whenever no principal could be resolved, whatever the cause.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden is signalled by the admin policy for a non-admin principal.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials covers every failed login.  Callers must not
	// reveal whether the identifier or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPasswordTooLong is returned by Hash for inputs bcrypt would truncate.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)
