package model

import (
	"time"

	"github.com/google/uuid"
)

// Audience values embedded in issued access tokens.  The audience is a
// snapshot of the account's admin flag taken when the token is issued.
const (
	AudienceAdmin = "admin"
	AudienceUser  = "user"
)

// Account represents a player record as stored in the `accounts` table.
// Username and Email are each unique across all accounts and ID never
// changes once assigned.  PasswordHash only ever holds a bcrypt digest.
//
// Fields:
//
//	ID           – primary key, a random UUID.
//	Username     – unique display handle.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash of the password.
//	CreatedAt    – timestamp of signup.
//	LastLogin    – timestamp of the last successful login (null before one).
//	IsAdmin      – administrator flag; drives the token audience.
//	IsActive     – disabled accounts cannot log in or resolve from tokens.
//	Score        – sum of points from solved challenges.
//	Rank         – scoreboard position, refreshed asynchronously.
//	Bio, AvatarURL, Country – optional profile fields.
type Account struct {
	ID           uuid.UUID  // accounts.id
	Username     string     // accounts.username
	Email        string     // accounts.email
	PasswordHash string     // accounts.password_hash
	CreatedAt    time.Time  // accounts.created_at
	LastLogin    *time.Time // accounts.last_login (nullable)
	IsAdmin      bool       // accounts.is_admin
	IsActive     bool       // accounts.is_active
	Score        int64      // accounts.score
	Rank         *int       // accounts.rank_position (nullable)
	Bio          *string    // accounts.profile_bio (nullable)
	AvatarURL    *string    // accounts.avatar_url (nullable)
	Country      *string    // accounts.country (nullable)
}

// Audience returns the token audience derived from the admin flag.
func (a Account) Audience() string {
	if a.IsAdmin {
		return AudienceAdmin
	}
	return AudienceUser
}

// PublicAccount is the subset of an account that may be shown to other
// players, e.g. on the scoreboard.
type PublicAccount struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Score     int64     `json:"score"`
	Rank      *int      `json:"rank"`
	Country   *string   `json:"country"`
	AvatarURL *string   `json:"avatar_url"`
}

// Public strips private fields from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Username:  a.Username,
		Score:     a.Score,
		Rank:      a.Rank,
		Country:   a.Country,
		AvatarURL: a.AvatarURL,
	}
}
