package services

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id        int
	declared  []string
	published []amqp.Publishing
	prefetch  int
	consumed  bool
	closed    bool
	deliver   chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	c.consumed = true
	return c.deliver, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConnection struct {
	channels []*fakeChannel
	openErr  error
	closed   bool
}

func (f *fakeConnection) open() (amqpChannel, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := &fakeChannel{id: len(f.channels) + 1, deliver: make(chan amqp.Delivery)}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeConnection) close() error {
	f.closed = true
	return nil
}

func TestAMQPBrokerPublishesAndConsumesOnSeparateChannels(t *testing.T) {
	conn := &fakeConnection{}
	b, err := newAMQPBroker(conn.open, conn.close, "notification_jobs")
	require.NoError(t, err)
	require.Len(t, conn.channels, 1)
	pub := conn.channels[0]
	assert.Equal(t, []string{"notification_jobs"}, pub.declared)

	_, err = b.Consume(10)
	require.NoError(t, err)
	require.Len(t, conn.channels, 2)
	sub := conn.channels[1]
	assert.True(t, sub.consumed)
	assert.Equal(t, 10, sub.prefetch)
	assert.False(t, pub.consumed, "the publishing channel never carries the consumer")
	assert.Zero(t, pub.prefetch)

	require.NoError(t, b.PublishJob(context.Background(), "q1"))
	require.Len(t, pub.published, 1)
	assert.Empty(t, sub.published)
	id, err := DecodeJob(pub.published[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "q1", id)
	assert.Equal(t, amqp.Persistent, pub.published[0].DeliveryMode)

	require.NoError(t, b.Close())
	assert.True(t, pub.closed)
	assert.True(t, sub.closed)
	assert.True(t, conn.closed)
}

func TestAMQPBrokerConsumeTwiceFails(t *testing.T) {
	conn := &fakeConnection{}
	b, err := newAMQPBroker(conn.open, conn.close, "jobs")
	require.NoError(t, err)

	_, err = b.Consume(1)
	require.NoError(t, err)
	_, err = b.Consume(1)
	assert.Error(t, err)
	assert.Len(t, conn.channels, 2)
}

func TestAMQPBrokerConsumeChannelOpenFailure(t *testing.T) {
	conn := &fakeConnection{}
	b, err := newAMQPBroker(conn.open, conn.close, "jobs")
	require.NoError(t, err)

	conn.openErr = errors.New("channel limit reached")
	_, err = b.Consume(1)
	assert.ErrorContains(t, err, "channel limit reached")

	// publishing keeps working on its own channel
	require.NoError(t, b.PublishJob(context.Background(), "q2"))
	assert.Len(t, conn.channels[0].published, 1)
}
