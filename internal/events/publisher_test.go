package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConnection struct {
	ch     *fakeChannel
	closed bool
}

func (c *fakeConnection) Channel() (channel, error) { return c.ch, nil }
func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeBroker struct {
	conns []*fakeConnection
	fail  error
}

func (b *fakeBroker) dial(string) (connection, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	conn := &fakeConnection{ch: &fakeChannel{}}
	b.conns = append(b.conns, conn)
	return conn, nil
}

func TestPublishRoutesByType(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(context.Background(), "amqp://localhost", "kitchen.events", nil, broker.dial)
	require.NoError(t, err)

	env, err := NewEnvelope(TypeKOTPrinted, "venue-1", "w-9", time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		KOTPrinted{KOTID: "k1", TableID: "3", Items: []KOTItem{{ProductID: "p1", ProductName: "Dosa", Quantity: 2}}, TotalQuantity: 2})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), env))

	ch := broker.conns[0].ch
	require.Equal(t, []string{"kitchen.events:topic"}, ch.declared)
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	require.Equal(t, "kitchen.events", got.exchange)
	require.Equal(t, "kot.printed", got.key)
	require.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	require.Equal(t, env.EventID, got.msg.MessageId)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	require.Equal(t, TypeKOTPrinted, decoded.Type)
	require.Equal(t, "w-9", decoded.Actor.WaiterID)

	var payload KOTPrinted
	require.NoError(t, json.Unmarshal(decoded.Data, &payload))
	require.Equal(t, "3", payload.TableID)
	require.Equal(t, 2, payload.Items[0].Quantity)
}

func TestPublishRedialsClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(context.Background(), "amqp://localhost", "kitchen.events", nil, broker.dial)
	require.NoError(t, err)
	broker.conns[0].ch.publishErr = amqp.ErrClosed

	env, err := NewEnvelope(TypeOrderCompleted, "", "", time.Now(), OrderCompleted{TableID: "5"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), env))

	require.Len(t, broker.conns, 2)
	require.True(t, broker.conns[0].closed)
	require.Len(t, broker.conns[1].ch.published, 1)
	require.Nil(t, env.Actor)
}

func TestPublishReportsOtherErrors(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(context.Background(), "amqp://localhost", "kitchen.events", nil, broker.dial)
	require.NoError(t, err)
	broker.conns[0].ch.publishErr = errors.New("boom")

	env, err := NewEnvelope(TypeOrderCompleted, "", "", time.Now(), OrderCompleted{TableID: "5"})
	require.NoError(t, err)
	require.Error(t, p.Publish(context.Background(), env))
	require.Len(t, broker.conns, 1)
}

func TestNewPublisherFailsWhenBrokerDown(t *testing.T) {
	broker := &fakeBroker{fail: errors.New("connection refused")}
	_, err := newAMQPPublisher(context.Background(), "amqp://localhost", "kitchen.events", nil, broker.dial)
	require.Error(t, err)

	_, err = newAMQPPublisher(context.Background(), "", "kitchen.events", nil, broker.dial)
	require.Error(t, err)
}

func TestCloseReleasesResources(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newAMQPPublisher(context.Background(), "amqp://localhost", "kitchen.events", nil, broker.dial)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.True(t, broker.conns[0].ch.closed)
	require.True(t, broker.conns[0].closed)
	require.NoError(t, Noop{}.Close())
}
