// Package rabbitmq publishes committed booking changes to a durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/staygo/internal/domain"
)

const (
	DefaultQueue = "booking.events"

	// bounds a publish when the caller's context has no deadline
	publishTimeout = 5 * time.Second
)

var (
	ErrClosed       = errors.New("rabbitmq: publisher closed")
	ErrDisconnected = errors.New("rabbitmq: not connected")
)

// Dialer opens a broker connection. Only Reconnect calls it.
type Dialer func() (*amqp.Connection, error)

// EventsPublisher keeps one connection and one channel to the broker.
// Messages are persistent and routed through the default exchange to the
// queue named after the publisher.
type EventsPublisher struct {
	dial  Dialer
	queue string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewEventsPublisher(dial Dialer, queue string) *EventsPublisher {
	if queue == "" {
		queue = DefaultQueue
	}

	return &EventsPublisher{dial: dial, queue: queue}
}

func (p *EventsPublisher) Publish(ctx context.Context, ev domain.BookingEvent) error {
	const op = "rabbitmq.EventsPublisher.Publish"

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s:%w", op, ErrClosed)
	}

	// never dials, Reconnect does
	if !p.healthyLocked() {
		return fmt.Errorf("%s:%w", op, ErrDisconnected)
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID.String(),
			Type:         string(ev.Type),
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Reconnect reopens the connection if it is down. It reports whether a new
// connection was made. The dial runs without the lock, so Publish keeps
// failing fast meanwhile.
func (p *EventsPublisher) Reconnect() (bool, error) {
	const op = "rabbitmq.EventsPublisher.Reconnect"

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	if p.healthyLocked() {
		p.mu.Unlock()
		return false, nil
	}
	_ = p.resetLocked()
	p.mu.Unlock()

	conn, ch, err := p.open()
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.healthyLocked() {
		_ = ch.Close()
		_ = conn.Close()
		if p.closed {
			return false, ErrClosed
		}
		return false, nil
	}

	p.conn = conn
	p.ch = ch

	return true, nil
}

func (p *EventsPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return p.resetLocked()
}

func (p *EventsPublisher) healthyLocked() bool {
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

func (p *EventsPublisher) open() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := p.dial()
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}

	return conn, ch, nil
}

func (p *EventsPublisher) resetLocked() error {
	var errs []error

	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}

	return errors.Join(errs...)
}
