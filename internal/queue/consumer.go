package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RankRefresher recomputes scoreboard positions.
type RankRefresher interface {
	RefreshRanks(ctx context.Context) (int64, error)
}

// CacheInvalidator drops cached responses of the given routes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, routes ...string) error
}

// SolveConsumer listens on the challenge.solved queue, refreshes ranks and
// drops the cached scoreboard after every solve.
type SolveConsumer struct {
	url    string
	ranks  RankRefresher
	cache  CacheInvalidator
	routes []string
	log    *zap.Logger
}

// NewSolveConsumer returns a consumer for url.  routes lists the cached
// routes that depend on ranks; cache may be nil.
func NewSolveConsumer(url string, ranks RankRefresher, cache CacheInvalidator, log *zap.Logger, routes ...string) *SolveConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SolveConsumer{url: url, ranks: ranks, cache: cache, routes: routes, log: log.Named("solve-consumer")}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff capped at 30s.
func (sc *SolveConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(sc.url)
		if err != nil {
			sc.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = sc.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sc.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (sc *SolveConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		sc.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(ChallengeSolvedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, ChallengeSolvedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := sc.handle(ctx, d.Body); err != nil {
			sc.log.Error("handle message failed", zap.Error(err))
			// no requeue: a poison message would otherwise loop forever
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (sc *SolveConsumer) handle(ctx context.Context, body []byte) error {
	var ev ChallengeSolvedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.AccountID == "" || ev.ChallengeID == 0 {
		return fmt.Errorf("incomplete event: %+v", ev)
	}

	n, err := sc.ranks.RefreshRanks(ctx)
	if err != nil {
		return fmt.Errorf("refresh ranks: %w", err)
	}
	if sc.cache != nil {
		if err := sc.cache.Invalidate(ctx, sc.routes...); err != nil {
			sc.log.Warn("invalidate scoreboard cache failed", zap.Error(err))
		}
	}
	sc.log.Info("challenge solved",
		zap.String("account_id", ev.AccountID),
		zap.String("username", ev.Username),
		zap.Uint64("challenge_id", ev.ChallengeID),
		zap.Int64("new_score", ev.NewScore),
		zap.Int64("ranks_changed", n))
	return nil
}
