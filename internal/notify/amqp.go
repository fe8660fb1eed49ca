package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes JSON events to a topic exchange and reconnects
// when the broker drops the channel.
type AMQPPublisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects with retries and declares the exchange
func NewAMQPPublisher(ctx context.Context, url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	const op = "notify.NewAMQPPublisher"
	log = log.With(slog.String("op", op))

	p := &AMQPPublisher{url: url, exchange: exchange, log: log}

	maxRetries := 5
	retryDelay := time.Second
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := p.connect()
		if err == nil {
			log.Info("connected to rabbitmq", slog.String("exchange", exchange), slog.Int("attempt", attempt))
			return p, nil
		}

		log.Warn("rabbitmq connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.String("error", err.Error()),
		)
		if attempt == maxRetries {
			return nil, fmt.Errorf("%s: connect after %d attempts: %w", op, maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}
	}
	return nil, fmt.Errorf("%s: retry loop ended without connection", op)
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()
	return nil
}

// Publish sends body with the given routing key
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := p.publish(ctx, routingKey, body)
	if err == nil || !errors.Is(err, amqp.ErrClosed) {
		return err
	}

	p.log.Warn("rabbitmq channel closed, reconnecting")
	if err := p.connect(); err != nil {
		return err
	}
	return p.publish(ctx, routingKey, body)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()

	if ch == nil {
		return amqp.ErrClosed
	}

	return ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

// Publisher is the part of AMQPPublisher the sink needs
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// AMQPSink publishes every message as a notification event for push workers
type AMQPSink struct {
	pub Publisher
}

func NewAMQPSink(pub Publisher) *AMQPSink {
	return &AMQPSink{pub: pub}
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, RoutingKey(msg.Kind), body)
}

// RoutingKey maps a notification kind to its topic routing key
func RoutingKey(kind string) string {
	return "notification." + strings.ToLower(strings.ReplaceAll(kind, "_", "."))
}
