package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/streadway/amqp"
)

var ErrClosed = errors.New("rabbitmq publisher is closed")

type Config struct {
	L        *logger.Logger
	URL      string
	Exchange string
}

// Publisher relays committed reservation events to a topic exchange.
// An amqp.Channel is not safe for concurrent publishing, hence the mutex.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	l        *logger.Logger
	closed   bool
}

func Dial(conf Config) (*Publisher, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(conf.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("declare exchange %s: %w", conf.Exchange, err)
	}

	//nolint:exhaustruct
	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: conf.Exchange,
		l:        conf.L,
	}, nil
}

func RoutingKey(event *booking.Event) string {
	return "pension." + event.Type
}

func Message(event *booking.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event %s: %w", event.ID, err) //nolint:exhaustruct
	}

	//nolint:exhaustruct
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Headers: amqp.Table{
			"reservation_id": event.ReservationID,
		},
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, event *booking.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := Message(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if err := p.ch.Publish(p.exchange, RoutingKey(event), false, false, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}

	p.l.LogDebugf("Event %s published to %s with key %s", event.ID, p.exchange, RoutingKey(event))

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	return errors.Join(p.ch.Close(), p.conn.Close())
}
