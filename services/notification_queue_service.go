package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 500
	statsWindow       = 24 * time.Hour
)

// QueueService drives notification queue items through
// queued -> processing -> sent | failed, plus operator actions.
type QueueService struct {
	Store       QueueStore
	Publisher   JobPublisher        // optional
	Events      QueueEventSink      // optional
	Preferences *PreferencesService // optional, applied on Enqueue
	// ProcessingTimeout is how long an item may stay processing before
	// DispatchDue fails it. Zero disables the check.
	ProcessingTimeout time.Duration
	Now               func() time.Time
}

func NewQueueService(store QueueStore, publisher JobPublisher, events QueueEventSink) *QueueService {
	return &QueueService{
		Store:     store,
		Publisher: publisher,
		Events:    events,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *QueueService) emit(kind string, item models.NotificationQueueItem) {
	if s.Events == nil {
		return
	}
	ev := QueueEvent{Type: kind, ID: item.ID}
	if kind != QueueEventDeleted {
		ev.Item = &item
	}
	s.Events.PublishQueueEvent(ev)
}

// publish hands a pending item to the worker. A failed hand-off leaves the
// item failed so an operator can retry it.
func (s *QueueService) publish(ctx context.Context, item models.NotificationQueueItem) models.NotificationQueueItem {
	if s.Publisher == nil || item.Status != models.QueueStatusPending {
		return item
	}
	err := s.Publisher.PublishJob(ctx, item.ID)
	if err == nil {
		return item
	}
	logger.Error("❌ failed to publish notification job", zap.String("id", item.ID), zap.Error(err))
	failed := item
	failed.Status = models.QueueStatusFailed
	failed.ErrorMessage = "dispatch failed: " + err.Error()
	failed.UpdatedAt = s.Now()
	if swapErr := s.Store.SwapItem(ctx, failed, models.QueueStatusPending); swapErr != nil {
		logger.Warn("⚠️ could not mark undispatched item failed", zap.String("id", item.ID), zap.Error(swapErr))
		return item
	}
	return failed
}

// **Enqueue a notification**
func (s *QueueService) Enqueue(ctx context.Context, in models.QueueCreate) (models.NotificationQueueItem, error) {
	if strings.TrimSpace(in.Username) == "" {
		return models.NotificationQueueItem{}, errs.Invalidf("username is required")
	}
	if !in.Trigger.Valid() {
		return models.NotificationQueueItem{}, errs.Invalidf("unknown trigger " + string(in.Trigger))
	}
	if len(in.Channels) == 0 {
		return models.NotificationQueueItem{}, errs.Invalidf("at least one channel is required")
	}
	seen := map[models.Channel]bool{}
	channels := make([]models.Channel, 0, len(in.Channels))
	for _, c := range in.Channels {
		if !c.Valid() {
			return models.NotificationQueueItem{}, errs.Invalidf("unknown channel " + string(c))
		}
		if !seen[c] {
			seen[c] = true
			channels = append(channels, c)
		}
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return models.NotificationQueueItem{}, errs.Invalidf("unknown priority " + string(in.Priority))
	}

	now := s.Now()
	scheduledFor := in.ScheduledFor
	if s.Preferences != nil {
		admitted, at, err := s.Preferences.Admit(ctx, models.QueueCreate{
			Username:     in.Username,
			Trigger:      in.Trigger,
			Channels:     channels,
			Priority:     in.Priority,
			ScheduledFor: in.ScheduledFor,
		}, now)
		if err != nil {
			return models.NotificationQueueItem{}, err
		}
		channels, scheduledFor = admitted, at
	}

	item := models.NotificationQueueItem{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Trigger:      in.Trigger,
		Channels:     channels,
		Priority:     in.Priority,
		TemplateData: in.TemplateData,
		Status:       models.QueueStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if scheduledFor != nil {
		at := scheduledFor.UTC()
		item.ScheduledFor = &at
		if at.After(now) {
			item.Status = models.QueueStatusScheduled
		}
	}

	if err := s.Store.PutItem(ctx, item); err != nil {
		return models.NotificationQueueItem{}, fmt.Errorf("failed to enqueue notification: %w", err)
	}
	logger.Info("📥 notification enqueued", zap.String("id", item.ID), zap.String("username", item.Username),
		zap.String("trigger", string(item.Trigger)), zap.String("status", string(item.Status)))

	item = s.publish(ctx, item)
	s.emit(QueueEventCreated, item)
	return item, nil
}

// Notify enqueues an email notification on behalf of another service.
func (s *QueueService) Notify(ctx context.Context, username string, trigger models.Trigger, data map[string]string) error {
	priority := models.PriorityMedium
	if trigger == models.TriggerPIIRequest || trigger == models.TriggerSuspiciousLogin {
		priority = models.PriorityHigh
	}
	_, err := s.Enqueue(ctx, models.QueueCreate{
		Username:     username,
		Trigger:      trigger,
		Channels:     []models.Channel{models.ChannelEmail},
		Priority:     priority,
		TemplateData: data,
	})
	if errors.Is(err, ErrOptedOut) {
		logger.Info("🔕 notification suppressed by preferences", zap.String("username", username), zap.String("trigger", string(trigger)))
		return nil
	}
	return err
}

func (s *QueueService) GetItem(ctx context.Context, id string) (models.NotificationQueueItem, error) {
	return s.Store.GetItem(ctx, id)
}

// ListQueue returns matching items, newest first.
func (s *QueueService) ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.NotificationQueueItem, error) {
	for _, t := range filter.Triggers {
		if !t.Valid() {
			return nil, errs.Invalidf("unknown trigger " + string(t))
		}
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		return nil, errs.Invalidf("unknown channel " + string(filter.Channel))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultQueueLimit
	}
	if filter.Limit > maxQueueLimit {
		filter.Limit = maxQueueLimit
	}
	items, err := s.Store.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// **Retry a failed item**
func (s *QueueService) Retry(ctx context.Context, id string) (models.NotificationQueueItem, error) {
	item, err := s.Store.GetItem(ctx, id)
	if err != nil {
		return models.NotificationQueueItem{}, err
	}
	if !item.Status.Retryable() {
		return models.NotificationQueueItem{}, errs.Statef("only failed items can be retried, item is " + string(item.Status))
	}
	item.Status = models.QueueStatusPending
	item.ErrorMessage = ""
	item.SentAt = nil
	item.ScheduledFor = nil
	item.UpdatedAt = s.Now()
	if err := s.Store.SwapItem(ctx, item, models.QueueStatusFailed, models.QueueStatusError); err != nil {
		return models.NotificationQueueItem{}, fmt.Errorf("failed to retry item: %w", err)
	}
	logger.Info("🔁 notification retried", zap.String("id", id), zap.Int("attempts", item.Attempts))

	item = s.publish(ctx, item)
	s.emit(QueueEventUpdated, item)
	return item, nil
}

// Delete removes an item (hard) or cancels a queued one (soft).
func (s *QueueService) Delete(ctx context.Context, id string, hard bool) error {
	item, err := s.Store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if hard {
		if item.Status == models.QueueStatusProcessing {
			return errs.Statef("item is being delivered")
		}
		if err := s.Store.DeleteItem(ctx, id, models.QueueStatusProcessing); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		logger.Info("🗑️ notification deleted", zap.String("id", id))
		s.emit(QueueEventDeleted, item)
		return nil
	}

	if item.State() != models.QueueStateQueued {
		return errs.Statef("only queued items can be cancelled, item is " + string(item.Status))
	}
	now := s.Now()
	item.Status = models.QueueStatusCancelled
	item.ErrorMessage = "cancelled by operator"
	item.UpdatedAt = now
	if err := s.Store.SwapItem(ctx, item, models.QueueStatusPending, models.QueueStatusScheduled); err != nil {
		return fmt.Errorf("failed to cancel item: %w", err)
	}
	logs := make([]models.DeliveryLog, 0, len(item.Channels))
	for _, c := range item.Channels {
		logs = append(logs, s.newLog(item, c, models.QueueStatusCancelled, item.ErrorMessage, now))
	}
	if err := s.Store.AppendLogs(ctx, logs); err != nil {
		logger.Warn("⚠️ failed to log cancellation", zap.String("id", id), zap.Error(err))
	}
	s.emit(QueueEventUpdated, item)
	return nil
}

// BulkDelete attempts every id and reports per-item failures.
func (s *QueueService) BulkDelete(ctx context.Context, ids []string, hard bool) models.BulkDeleteResult {
	res := models.BulkDeleteResult{Requested: len(ids), Errors: map[string]string{}}
	for _, id := range ids {
		if err := s.Delete(ctx, id, hard); err != nil {
			res.Failed++
			res.Errors[id] = errs.Message(err)
			continue
		}
		res.Succeeded++
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res
}

// Stats counts live items and the distinct items that reached a terminal
// outcome in the last 24 hours. An empty username covers every user.
func (s *QueueService) Stats(ctx context.Context, username string) (models.QueueStats, error) {
	now := s.Now()
	stats := models.QueueStats{Since: now.Add(-statsWindow), Until: now}

	var err error
	stats.Queued, err = s.Store.CountItems(ctx, username, models.ExpandStatuses([]string{string(models.QueueStateQueued)})...)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to count queue: %w", err)
	}
	stats.Processing, err = s.Store.CountItems(ctx, username, models.QueueStatusProcessing)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to count queue: %w", err)
	}

	logs, err := s.Store.ListLogs(ctx, username, stats.Since, 0)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to read delivery logs: %w", err)
	}
	sent, failed := map[string]bool{}, map[string]bool{}
	for _, l := range logs {
		switch l.Status {
		case models.QueueStatusSent, models.QueueStatusDelivered:
			sent[l.QueueItemID] = true
		case models.QueueStatusFailed, models.QueueStatusError:
			failed[l.QueueItemID] = true
		}
	}
	stats.Success24h = len(sent)
	stats.Failed24h = len(failed)
	return stats, nil
}

func (s *QueueService) ListLogs(ctx context.Context, username string, limit int) ([]models.DeliveryLog, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}
	logs, err := s.Store.ListLogs(ctx, username, time.Time{}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

// BeginDelivery claims a due queued item for the worker.
func (s *QueueService) BeginDelivery(ctx context.Context, id string) (models.NotificationQueueItem, error) {
	item, err := s.Store.GetItem(ctx, id)
	if err != nil {
		return models.NotificationQueueItem{}, err
	}
	now := s.Now()
	if item.State() != models.QueueStateQueued {
		return models.NotificationQueueItem{}, errs.Statef("item is " + string(item.Status))
	}
	if !item.Due(now) {
		return models.NotificationQueueItem{}, errs.Statef("item is scheduled for later")
	}
	item.Status = models.QueueStatusProcessing
	item.Attempts++
	item.LastAttempt = &now
	item.UpdatedAt = now
	if err := s.Store.SwapItem(ctx, item, models.QueueStatusPending, models.QueueStatusScheduled); err != nil {
		return models.NotificationQueueItem{}, fmt.Errorf("failed to claim item: %w", err)
	}
	s.emit(QueueEventUpdated, item)
	return item, nil
}

// CompleteDelivery records the channel outcomes of a processing item. The
// item is sent only if every channel succeeded.
func (s *QueueService) CompleteDelivery(ctx context.Context, id string, outcomes []models.ChannelOutcome) (models.NotificationQueueItem, error) {
	item, err := s.Store.GetItem(ctx, id)
	if err != nil {
		return models.NotificationQueueItem{}, err
	}
	if item.Status != models.QueueStatusProcessing {
		return models.NotificationQueueItem{}, errs.Statef("item is " + string(item.Status))
	}

	now := s.Now()
	var failures []string
	logs := make([]models.DeliveryLog, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, string(o.Channel)+": "+o.Err.Error())
			logs = append(logs, s.newLog(item, o.Channel, models.QueueStatusFailed, o.Err.Error(), now))
			continue
		}
		logs = append(logs, s.newLog(item, o.Channel, models.QueueStatusSent, "", now))
	}

	item.UpdatedAt = now
	if len(failures) == 0 {
		item.Status = models.QueueStatusSent
		item.SentAt = &now
		item.ErrorMessage = ""
	} else {
		item.Status = models.QueueStatusFailed
		item.SentAt = nil
		item.ErrorMessage = strings.Join(failures, "; ")
	}
	if err := s.Store.SwapItem(ctx, item, models.QueueStatusProcessing); err != nil {
		return models.NotificationQueueItem{}, fmt.Errorf("failed to complete item: %w", err)
	}
	if err := s.Store.AppendLogs(ctx, logs); err != nil {
		logger.Error("❌ failed to write delivery logs", zap.String("id", id), zap.Error(err))
	}
	logger.Info("📤 notification delivery finished", zap.String("id", id), zap.String("status", string(item.Status)))
	s.emit(QueueEventUpdated, item)
	return item, nil
}

// ReapStalled fails items that have been processing for longer than
// ProcessingTimeout. Reaped items are retryable like any other failure.
func (s *QueueService) ReapStalled(ctx context.Context) (int, error) {
	if s.ProcessingTimeout <= 0 {
		return 0, nil
	}
	items, err := s.Store.ListItems(ctx, models.QueueFilter{Statuses: []string{string(models.QueueStatusProcessing)}})
	if err != nil {
		return 0, fmt.Errorf("failed to list processing items: %w", err)
	}
	now := s.Now()
	reaped := 0
	for _, item := range items {
		started := item.UpdatedAt
		if item.LastAttempt != nil {
			started = *item.LastAttempt
		}
		if now.Sub(started) < s.ProcessingTimeout {
			continue
		}
		item.Status = models.QueueStatusFailed
		item.ErrorMessage = "delivery timed out"
		item.SentAt = nil
		item.UpdatedAt = now
		if err := s.Store.SwapItem(ctx, item, models.QueueStatusProcessing); err != nil {
			if errs.Is(err, errs.InvalidState) || errs.Is(err, errs.NotFound) {
				continue
			}
			return reaped, fmt.Errorf("failed to fail stalled item %s: %w", item.ID, err)
		}
		logs := make([]models.DeliveryLog, 0, len(item.Channels))
		for _, c := range item.Channels {
			logs = append(logs, s.newLog(item, c, models.QueueStatusFailed, item.ErrorMessage, now))
		}
		if err := s.Store.AppendLogs(ctx, logs); err != nil {
			logger.Error("❌ failed to write delivery logs", zap.String("id", item.ID), zap.Error(err))
		}
		logger.Warn("⚠️ stalled delivery failed", zap.String("id", item.ID), zap.Time("lastAttempt", started))
		s.emit(QueueEventUpdated, item)
		reaped++
	}
	return reaped, nil
}

// DispatchDue fails stalled deliveries, then promotes scheduled items whose
// time has come and publishes them.
func (s *QueueService) DispatchDue(ctx context.Context) (int, error) {
	if _, err := s.ReapStalled(ctx); err != nil {
		return 0, err
	}
	items, err := s.Store.ListItems(ctx, models.QueueFilter{Statuses: []string{string(models.QueueStatusScheduled)}})
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled items: %w", err)
	}
	now := s.Now()
	dispatched := 0
	for _, item := range items {
		if !item.Due(now) {
			continue
		}
		item.Status = models.QueueStatusPending
		item.UpdatedAt = now
		if err := s.Store.SwapItem(ctx, item, models.QueueStatusScheduled); err != nil {
			if errs.Is(err, errs.InvalidState) || errs.Is(err, errs.NotFound) {
				continue
			}
			return dispatched, fmt.Errorf("failed to promote item %s: %w", item.ID, err)
		}
		item = s.publish(ctx, item)
		s.emit(QueueEventUpdated, item)
		dispatched++
	}
	return dispatched, nil
}

func (s *QueueService) newLog(item models.NotificationQueueItem, c models.Channel, status models.QueueStatus, msg string, at time.Time) models.DeliveryLog {
	l := models.DeliveryLog{
		ID:           uuid.New().String(),
		QueueItemID:  item.ID,
		Username:     item.Username,
		Trigger:      item.Trigger,
		Channel:      c,
		Status:       status,
		ErrorMessage: msg,
		CreatedAt:    at,
	}
	if status == models.QueueStatusSent {
		l.SentAt = &at
	}
	return l
}
