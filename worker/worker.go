package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/models"
	"l3v3l_server/services"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultDeliveryTimeout = time.Minute

// Worker delivers queue items handed to it by the job broker.
type Worker struct {
	Queue    *services.QueueService
	Profiles services.ProfileStore
	Senders  map[models.Channel]Sender
	// Timeout bounds one delivery, from claim to recorded outcome.
	Timeout time.Duration
}

func New(queue *services.QueueService, profiles services.ProfileStore, senders map[models.Channel]Sender) *Worker {
	return &Worker{Queue: queue, Profiles: profiles, Senders: senders, Timeout: defaultDeliveryTimeout}
}

func recipient(c models.Channel, contact models.ProfileContact) string {
	switch c {
	case models.ChannelEmail:
		return contact.ContactEmail
	case models.ChannelSMS:
		return contact.ContactNumber
	default:
		return contact.Username
	}
}

// Handle claims one item, sends it on every channel and records the outcome.
// Items that are no longer deliverable (cancelled, deleted, already taken or
// not yet due) are skipped without error.
func (w *Worker) Handle(ctx context.Context, id string) error {
	item, err := w.Queue.BeginDelivery(ctx, id)
	if errs.Is(err, errs.InvalidState) || errs.Is(err, errs.NotFound) {
		logger.Info("⏭️ skipping job", zap.String("id", id), zap.String("reason", errs.Message(err)))
		return nil
	}
	if err != nil {
		return err
	}

	contact, lookupErr := w.Profiles.GetContact(ctx, item.Username)
	subject, body := Render(item.Username, item.Trigger, item.TemplateData)

	outcomes := make([]models.ChannelOutcome, 0, len(item.Channels))
	for _, c := range item.Channels {
		outcomes = append(outcomes, models.ChannelOutcome{Channel: c, Err: w.send(ctx, c, contact, lookupErr, subject, body)})
	}
	if _, err := w.Queue.CompleteDelivery(ctx, id, outcomes); err != nil {
		return fmt.Errorf("failed to record delivery of %s: %w", id, err)
	}
	return nil
}

func (w *Worker) send(ctx context.Context, c models.Channel, contact models.ProfileContact, lookupErr error, subject, body string) error {
	sender, ok := w.Senders[c]
	if !ok || sender == nil {
		return fmt.Errorf("no sender configured for %s", c)
	}
	if lookupErr != nil {
		return fmt.Errorf("recipient lookup failed: %s", errs.Message(lookupErr))
	}
	to := recipient(c, contact)
	if to == "" {
		return fmt.Errorf("no %s address on file", c)
	}
	return sender.Send(ctx, Message{To: to, Subject: subject, Body: body})
}

// process acks or nacks one broker delivery. The job runs detached from
// ctx's cancellation: once an item is claimed its outcome is always recorded,
// even while the worker shuts down.
func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	id, err := services.DecodeJob(d.Body)
	if err != nil {
		logger.Error("❌ dropping malformed job", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := w.Handle(ctx, id); err != nil {
		requeue := !d.Redelivered
		logger.Error("❌ job failed", zap.String("id", id), zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Run processes deliveries concurrently until ctx is cancelled or the
// channel closes, then waits for in-flight jobs to finish. Concurrency is
// bounded by the consumer prefetch.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Warn("⚠️ delivery channel closed")
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.process(ctx, d)
			}()
		}
	}
}

// RunDispatcher promotes due scheduled items every interval.
func (w *Worker) RunDispatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Queue.DispatchDue(ctx)
			if err != nil {
				logger.Error("❌ dispatch of scheduled items failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("⏰ dispatched scheduled notifications", zap.Int("count", n))
			}
		}
	}
}
