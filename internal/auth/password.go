package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/ctf-arena/internal/model"
)

// MaxPasswordBytes is the longest input bcrypt hashes without truncation.
const MaxPasswordBytes = 72

// Hasher hashes and verifies account passwords with bcrypt.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher using cost, clamped to bcrypt's valid range.
// A zero cost selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns a salted bcrypt hash of plain.  Two calls with the same
// input produce different hashes.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches the stored hash.  An empty password
// or a malformed hash never matches.
func (h *Hasher) Verify(plain, hash string) bool {
	if plain == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Rotate replaces the account's password hash with a hash of plain.  An
// empty plain leaves the account untouched and reports false.
func (h *Hasher) Rotate(acct *model.Account, plain string) (bool, error) {
	if plain == "" {
		return false, nil
	}
	hash, err := h.Hash(plain)
	if err != nil {
		return false, err
	}
	acct.PasswordHash = hash
	return true, nil
}
