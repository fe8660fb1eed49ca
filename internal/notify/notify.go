// Package notify delivers user notifications to one or more sinks. Delivery
// is fire-and-forget: failures are logged and counted, never returned.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yogaflow/attendance/internal/metrics"
)

// Message is one notification addressed to a user
type Message struct {
	Target string    `json:"target"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Kind   string    `json:"kind"`
	SentAt time.Time `json:"sentAt"`
}

// Sink is a delivery channel for messages
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every sink.
type Dispatcher struct {
	sinks   []Sink
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	async   bool
	wg      sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithAsync delivers in a background goroutine; Close waits for it
func WithAsync() Option {
	return func(d *Dispatcher) { d.async = true }
}

// WithTimeout bounds each sink delivery
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMetrics counts failed deliveries
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(log *slog.Logger, sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		log:     log,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers a message to every sink. It never fails and never blocks
// longer than the configured timeout per sink.
func (d *Dispatcher) Notify(ctx context.Context, target, title, body, kind string) {
	const op = "notify.Dispatcher.Notify"

	if target == "" {
		d.log.Warn("dropping notification without target", slog.String("op", op), slog.String("title", title))
		return
	}
	if title == "" {
		title = "Notification"
	}
	if kind == "" {
		kind = "INFO"
	}

	msg := Message{Target: target, Title: title, Body: body, Kind: kind, SentAt: time.Now().UTC()}
	// the caller's request may finish before delivery does
	ctx = context.WithoutCancel(ctx)

	if d.async {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ctx, msg)
		}()
		return
	}
	d.deliver(ctx, msg)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	for _, sink := range d.sinks {
		if err := d.send(ctx, sink, msg); err != nil {
			d.metrics.NotificationFailed(sink.Name())
			d.log.Warn("notification delivery failed",
				slog.String("op", "notify.Dispatcher.deliver"),
				slog.String("sink", sink.Name()),
				slog.String("target", msg.Target),
				slog.String("kind", msg.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return sink.Send(ctx, msg)
}

// Close waits for background deliveries to finish
func (d *Dispatcher) Close() {
	d.wg.Wait()
}
