package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feedsync/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// StoryMessage announces a story that was created or rewritten during a
// refresh.
type StoryMessage struct {
	Action    string       `json:"action"` // "create" or "update"
	Story     domain.Story `json:"story"`
	Timestamp time.Time    `json:"timestamp"`
}

// UnreadMessage announces a subscription's new unread count.
type UnreadMessage struct {
	Action      string    `json:"action"` // always "unread_count"
	UserID      int64     `json:"user_id"`
	FeedID      int64     `json:"feed_id"`
	UnreadCount int       `json:"unread_count"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r *RabbitMQ) PublishStory(ctx context.Context, story *domain.Story, isNew bool) error {
	action := "update"
	if isNew {
		action = "create"
	}

	msg := StoryMessage{
		Action:    action,
		Story:     *story,
		Timestamp: time.Now().UTC(),
	}

	if err := r.publish(ctx, msg); err != nil {
		return err
	}

	r.logger.Debug("published story",
		"story_hash", story.Hash,
		"action", action,
	)

	return nil
}

func (r *RabbitMQ) PublishUnread(ctx context.Context, userID, feedID int64, unread int) error {
	msg := UnreadMessage{
		Action:      "unread_count",
		UserID:      userID,
		FeedID:      feedID,
		UnreadCount: unread,
		Timestamp:   time.Now().UTC(),
	}

	if err := r.publish(ctx, msg); err != nil {
		return err
	}

	r.logger.Debug("published unread count",
		"user_id", userID,
		"feed_id", feedID,
		"unread", unread,
	)

	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
