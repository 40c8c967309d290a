// Package queue defines the messages exchanged over RabbitMQ and the
// consumer that reacts to them.
package queue

import "time"

// ChallengeSolvedQueue is the durable queue solves are published to.
const ChallengeSolvedQueue = "challenge.solved"

// ChallengeSolvedEvent is published after a first solve has been committed.
// It carries enough for consumers to refresh derived state, such as
// scoreboard ranks, without re-reading the solve.
type ChallengeSolvedEvent struct {
	AccountID   string    `json:"account_id"`
	Username    string    `json:"username"`
	ChallengeID uint64    `json:"challenge_id"`
	Title       string    `json:"title"`
	Points      int64     `json:"points"`
	NewScore    int64     `json:"new_score"`
	SolvedAt    time.Time `json:"solved_at"`
}
