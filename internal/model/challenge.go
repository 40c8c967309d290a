package model

import (
	"time"

	"github.com/google/uuid"
)

// Challenge represents a row in the `challenges` table.  Flag is the
// secret a player submits to solve the challenge and must never be
// returned by public endpoints.
//
// Fields:
//
//	ID          – primary key identifier.
//	Title       – unique challenge title.
//	Category    – free-form category label (e.g. Injection).
//	Description – challenge text shown to players.
//	Points      – score awarded on the first solve.
//	Flag        – expected flag value.
//	AuthorID    – account that created the challenge (nullable).
//	CreatedAt   – timestamp of creation.
type Challenge struct {
	ID          uint64     // challenges.id
	Title       string     // challenges.title
	Category    string     // challenges.category
	Description string     // challenges.description
	Points      int64      // challenges.points
	Flag        string     // challenges.flag
	AuthorID    *uuid.UUID // challenges.author_id (nullable)
	CreatedAt   time.Time  // challenges.created_at
}

// PublicChallenge is the flag-free view of a challenge.
type PublicChallenge struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Points      int64      `json:"points"`
	AuthorID    *uuid.UUID `json:"author_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Public strips the flag from the challenge.
func (c Challenge) Public() PublicChallenge {
	return PublicChallenge{
		ID:          c.ID,
		Title:       c.Title,
		Category:    c.Category,
		Description: c.Description,
		Points:      c.Points,
		AuthorID:    c.AuthorID,
		CreatedAt:   c.CreatedAt,
	}
}

// ChallengeSolve records that an account solved a challenge.  The pair
// (AccountID, ChallengeID) is unique, which is what makes a solve count
// only once.
type ChallengeSolve struct {
	ID          uint64    // challenge_solves.id
	AccountID   uuid.UUID // challenge_solves.account_id
	ChallengeID uint64    // challenge_solves.challenge_id
	SolvedAt    time.Time // challenge_solves.solved_at
}
