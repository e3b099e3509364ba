package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the body of a delivery job on the broker.
type JobMessage struct {
	QueueItemID string `json:"queue_item_id"`
}

func EncodeJob(id string) ([]byte, error) {
	return json.Marshal(JobMessage{QueueItemID: id})
}

func DecodeJob(body []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("failed to decode job: %w", err)
	}
	if msg.QueueItemID == "" {
		return "", errors.New("job has no queue item id")
	}
	return msg.QueueItemID, nil
}

// amqpChannel is the part of *amqp.Channel the broker uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPBroker publishes and consumes delivery jobs on one durable queue.
// Publishing and consuming use separate channels, so broker flow control on
// publishes never holds up deliveries to the consumer.
type AMQPBroker struct {
	mu        sync.Mutex // amqp channels are not safe for concurrent publishing
	open      func() (amqpChannel, error)
	closeConn func() error
	pub       amqpChannel
	sub       amqpChannel
	queue     string
}

func DialAMQP(url, queue string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	open := func() (amqpChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	b, err := newAMQPBroker(open, conn.Close, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// newAMQPBroker opens the publishing channel and declares the queue on it.
func newAMQPBroker(open func() (amqpChannel, error), closeConn func() error, queue string) (*AMQPBroker, error) {
	pub, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		pub.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQPBroker{open: open, closeConn: closeConn, pub: pub, queue: queue}, nil
}

func (b *AMQPBroker) PublishJob(ctx context.Context, id string) error {
	body, err := EncodeJob(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.pub.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", id, err)
	}
	return nil
}

// Consume opens a dedicated channel and starts a manual-ack consumer limited
// to prefetch unacked deliveries.
func (b *AMQPBroker) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil, errors.New("consumer already started")
	}
	sub, err := b.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open a consumer channel: %w", err)
	}
	if err := sub.Qos(prefetch, 0, false); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	msgs, err := sub.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	b.sub = sub
	return msgs, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errList []error
	if b.sub != nil {
		errList = append(errList, b.sub.Close())
	}
	errList = append(errList, b.pub.Close())
	if b.closeConn != nil {
		errList = append(errList, b.closeConn())
	}
	return errors.Join(errList...)
}

var _ JobPublisher = (*AMQPBroker)(nil)
