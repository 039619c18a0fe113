// Package events publishes kitchen events for displays and reporting.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/aruvi/kot-gateway/pkg/logger"
)

// Publisher sends envelopes to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
func (Noop) Close() error                            { return nil }

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type dialFunc func(url string) (connection, error)

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) Channel() (channel, error) { return c.Connection.Channel() }

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange, routed by event type. A broken channel is redialled once per
// publish.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     dialFunc
	logg     *logger.Logger

	mu   sync.Mutex
	conn connection
	ch   channel
}

// NewAMQPPublisher connects and declares the exchange.
func NewAMQPPublisher(ctx context.Context, url, exchange string, logg *logger.Logger) (*AMQPPublisher, error) {
	return newAMQPPublisher(ctx, url, exchange, logg, dialAMQP)
}

func newAMQPPublisher(ctx context.Context, url, exchange string, logg *logger.Logger, dial dialFunc) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	if exchange == "" {
		return nil, fmt.Errorf("exchange required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	p := &AMQPPublisher{url: url, exchange: exchange, dial: dial, logg: logg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "exchange", exchange), "events.connected")
	return p, nil
}

// Publish sends env with its type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    env.EventID,
		Timestamp:    time.Now().UTC(),
		Type:         string(env.Type),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, string(env.Type), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.logg.Warn(ctx, "events.channel.closed")
		p.reset()
		if err = p.connect(); err != nil {
			return err
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, string(env.Type), false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// Close shuts the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset()
}

// connect dials and declares the exchange. Callers hold p.mu or own p
// exclusively.
func (p *AMQPPublisher) connect() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return multierr.Combine(fmt.Errorf("declare exchange: %w", err), ch.Close(), conn.Close())
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) reset() error {
	var err error
	if p.ch != nil {
		err = multierr.Append(err, ignoreClosed(p.ch.Close()))
		p.ch = nil
	}
	if p.conn != nil {
		err = multierr.Append(err, ignoreClosed(p.conn.Close()))
		p.conn = nil
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
