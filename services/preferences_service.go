package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/logger"
	"l3v3l_server/models"

	"go.uber.org/zap"
)

// ErrOptedOut marks an enqueue rejected because the user turned the trigger off.
var ErrOptedOut = errors.New("user opted out")

// PreferencesService stores notification preferences and applies them to
// notifications before they are queued.
type PreferencesService struct {
	Store PreferencesStore
	Queue QueueStore // counts recent deliveries for rate limits
	Now   func() time.Time
}

func NewPreferencesService(store PreferencesStore, queue QueueStore) *PreferencesService {
	return &PreferencesService{Store: store, Queue: queue, Now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the saved preferences, or the defaults for users without any.
func (s *PreferencesService) Get(ctx context.Context, username string) (models.NotificationPreferences, error) {
	prefs, err := s.Store.GetPreferences(ctx, username)
	if errs.Is(err, errs.NotFound) {
		return models.DefaultPreferences(username, s.Now()), nil
	}
	if err != nil {
		return models.NotificationPreferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs, nil
}

func validatePreferences(prefs models.NotificationPreferences) error {
	for t, channels := range prefs.Channels {
		if !t.Valid() {
			return errs.Invalidf("unknown trigger " + string(t))
		}
		for _, c := range channels {
			if !c.Valid() {
				return errs.Invalidf("unknown channel " + string(c))
			}
		}
	}
	for c, l := range prefs.RateLimits {
		if !c.Valid() {
			return errs.Invalidf("unknown channel " + string(c))
		}
		if l.Max <= 0 || l.Period.Duration() == 0 {
			return errs.Invalidf("rate limit for " + string(c) + " needs a positive max and an hourly, daily or weekly period")
		}
	}
	if err := prefs.QuietHours.Validate(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid quiet hours", err)
	}
	return nil
}

func (s *PreferencesService) save(ctx context.Context, prefs models.NotificationPreferences) (models.NotificationPreferences, error) {
	prefs.UpdatedAt = s.Now()
	if err := s.Store.PutPreferences(ctx, prefs); err != nil {
		return models.NotificationPreferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}

// **Update preferences** replaces each section present in the update.
func (s *PreferencesService) Update(ctx context.Context, username string, in models.PreferencesUpdate) (models.NotificationPreferences, error) {
	prefs, err := s.Get(ctx, username)
	if err != nil {
		return models.NotificationPreferences{}, err
	}
	if in.Channels != nil {
		prefs.Channels = in.Channels
	}
	if in.QuietHours != nil {
		prefs.QuietHours = *in.QuietHours
	}
	if in.RateLimits != nil {
		prefs.RateLimits = in.RateLimits
	}
	if err := validatePreferences(prefs); err != nil {
		return models.NotificationPreferences{}, err
	}
	prefs, err = s.save(ctx, prefs)
	if err != nil {
		return models.NotificationPreferences{}, err
	}
	logger.Info("⚙️ notification preferences updated", zap.String("username", username))
	return prefs, nil
}

// Reset discards saved preferences and returns the defaults.
func (s *PreferencesService) Reset(ctx context.Context, username string) (models.NotificationPreferences, error) {
	if err := s.Store.DeletePreferences(ctx, username); err != nil {
		return models.NotificationPreferences{}, fmt.Errorf("failed to reset preferences: %w", err)
	}
	return models.DefaultPreferences(username, s.Now()), nil
}

// Unsubscribe opts the user out of trigger, or out of every trigger when
// trigger is empty.
func (s *PreferencesService) Unsubscribe(ctx context.Context, username string, trigger models.Trigger) (models.NotificationPreferences, error) {
	if trigger != "" && !trigger.Valid() {
		return models.NotificationPreferences{}, errs.Invalidf("unknown trigger " + string(trigger))
	}
	prefs, err := s.Get(ctx, username)
	if err != nil {
		return models.NotificationPreferences{}, err
	}
	if prefs.Channels == nil {
		prefs.Channels = map[models.Trigger][]models.Channel{}
	}
	if trigger != "" {
		prefs.Channels[trigger] = []models.Channel{}
	} else {
		for _, t := range models.AllTriggers() {
			prefs.Channels[t] = []models.Channel{}
		}
	}
	prefs, err = s.save(ctx, prefs)
	if err != nil {
		return models.NotificationPreferences{}, err
	}
	logger.Info("🔕 unsubscribed", zap.String("username", username), zap.String("trigger", string(trigger)))
	return prefs, nil
}

// Admit applies the user's preferences to a validated notification. It keeps
// only the channels the user accepts for the trigger, refuses a channel that
// already reached its rate limit, and moves the send time out of quiet hours.
// The returned time is nil when the item can go out immediately.
func (s *PreferencesService) Admit(ctx context.Context, in models.QueueCreate, now time.Time) ([]models.Channel, *time.Time, error) {
	prefs, err := s.Get(ctx, in.Username)
	if err != nil {
		return nil, nil, err
	}

	channels := prefs.Allowed(in.Trigger, in.Channels)
	if len(channels) == 0 {
		return nil, nil, errs.Wrap(errs.InvalidArgument, "user has disabled "+string(in.Trigger)+" notifications", ErrOptedOut)
	}

	var limited []string
	for _, c := range channels {
		limit, ok := prefs.RateLimits[c]
		if !ok {
			continue
		}
		used, err := s.recentDeliveries(ctx, in.Username, c, now.Add(-limit.Period.Duration()))
		if err != nil {
			return nil, nil, err
		}
		if used >= limit.Max {
			limited = append(limited, string(c))
		}
	}
	if len(limited) > 0 {
		return nil, nil, errs.New(errs.RateLimited, "rate limit exceeded for "+strings.Join(limited, ", "))
	}

	sendAt := now
	if in.ScheduledFor != nil && in.ScheduledFor.After(now) {
		sendAt = in.ScheduledFor.UTC()
	}
	if prefs.QuietHours.Holds(in.Trigger, in.Priority) {
		sendAt = prefs.QuietHours.Defer(sendAt)
	}
	if !sendAt.After(now) {
		return channels, in.ScheduledFor, nil
	}
	return channels, &sendAt, nil
}

// recentDeliveries counts what the user got on c since since, plus what is
// still waiting to go out on c.
func (s *PreferencesService) recentDeliveries(ctx context.Context, username string, c models.Channel, since time.Time) (int, error) {
	logs, err := s.Queue.ListLogs(ctx, username, since, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent deliveries: %w", err)
	}
	n := 0
	for _, l := range logs {
		if l.Channel == c && l.Status.State() == models.QueueStateSent {
			n++
		}
	}
	live, err := s.Queue.ListItems(ctx, models.QueueFilter{
		Username: username,
		Statuses: []string{string(models.QueueStateQueued), string(models.QueueStateProcessing)},
		Channel:  c,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queued notifications: %w", err)
	}
	return n + len(live), nil
}
