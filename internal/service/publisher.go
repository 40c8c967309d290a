// Package service holds outbound integrations used by the handlers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/queue"
)

// Publisher sends domain events to RabbitMQ.  Each publish opens its own
// connection, so a broker outage never outlives the call.
type Publisher struct {
	url  string
	log  *zap.Logger
	dial func(url string) (amqpChannel, func(), error)
}

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log, dial: dialChannel}
}

func dialChannel(url string) (amqpChannel, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, func() {
		_ = ch.Close()
		_ = conn.Close()
	}, nil
}

// PublishChallengeSolved publishes ev as a persistent JSON message to the
// challenge.solved queue.  Failures are logged and returned; callers treat
// them as non-fatal.
func (p *Publisher) PublishChallengeSolved(ctx context.Context, ev queue.ChallengeSolvedEvent) error {
	err := p.publish(ctx, queue.ChallengeSolvedQueue, ev)
	if err != nil {
		p.log.Warn("publish failed", zap.String("queue", queue.ChallengeSolvedQueue), zap.Error(err))
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, queueName string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, closeFn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
