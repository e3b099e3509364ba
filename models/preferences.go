package models

import (
	"fmt"
	"time"
)

// RatePeriod is the window a per-channel rate limit is counted over.
type RatePeriod string

const (
	RateHourly RatePeriod = "hourly"
	RateDaily  RatePeriod = "daily"
	RateWeekly RatePeriod = "weekly"
)

func (p RatePeriod) Duration() time.Duration {
	switch p {
	case RateHourly:
		return time.Hour
	case RateDaily:
		return 24 * time.Hour
	case RateWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

type RateLimit struct {
	Max    int        `dynamodbav:"max" json:"max"`
	Period RatePeriod `dynamodbav:"period" json:"period"`
}

// QuietHours is a daily window, in the user's timezone, during which
// non-critical notifications are held back until the window ends.
type QuietHours struct {
	Enabled    bool      `dynamodbav:"enabled" json:"enabled"`
	Start      string    `dynamodbav:"start" json:"start"` // HH:MM, 24h
	End        string    `dynamodbav:"end" json:"end"`
	Timezone   string    `dynamodbav:"timezone" json:"timezone"`
	Exceptions []Trigger `dynamodbav:"exceptions,omitempty" json:"exceptions,omitempty"`
}

func clockMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("time must be in HH:MM format: %q", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (q QuietHours) Validate() error {
	if _, err := clockMinutes(q.Start); err != nil {
		return err
	}
	if _, err := clockMinutes(q.End); err != nil {
		return err
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", q.Timezone)
	}
	for _, t := range q.Exceptions {
		if !t.Valid() {
			return fmt.Errorf("unknown trigger %q", t)
		}
	}
	return nil
}

func (q QuietHours) exempt(t Trigger) bool {
	for _, e := range q.Exceptions {
		if e == t {
			return true
		}
	}
	return false
}

// Defer returns the first instant at or after at that lies outside the quiet
// window. Windows may wrap midnight (22:00-08:00); an empty window
// (start == end) never defers.
func (q QuietHours) Defer(at time.Time) time.Time {
	if !q.Enabled {
		return at
	}
	start, err1 := clockMinutes(q.Start)
	end, err2 := clockMinutes(q.End)
	loc, err3 := time.LoadLocation(q.Timezone)
	if err1 != nil || err2 != nil || err3 != nil || start == end {
		return at
	}
	local := at.In(loc)
	m := local.Hour()*60 + local.Minute()
	inside := start <= m && m < end
	if start > end {
		inside = m >= start || m < end
	}
	if !inside {
		return at
	}
	next := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.UTC()
}

// Holds reports whether a notification with this trigger and priority is
// subject to quiet hours at all.
func (q QuietHours) Holds(t Trigger, p Priority) bool {
	return q.Enabled && p != PriorityCritical && !q.exempt(t)
}

// NotificationPreferences is a user's delivery settings.
//
// A trigger present in Channels may only use the listed channels; an empty
// list means the user opted out of it. Triggers absent from the map are
// delivered on whatever channels the sender asks for.
type NotificationPreferences struct {
	Username   string                `dynamodbav:"username" json:"username"` // PK
	Channels   map[Trigger][]Channel `dynamodbav:"channels" json:"channels"`
	QuietHours QuietHours            `dynamodbav:"quietHours" json:"quietHours"`
	RateLimits map[Channel]RateLimit `dynamodbav:"rateLimit" json:"rateLimit"`
	CreatedAt  time.Time             `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time             `dynamodbav:"updatedAt" json:"updatedAt"`
}

// DefaultPreferences are applied to users who never saved any.
func DefaultPreferences(username string, now time.Time) NotificationPreferences {
	return NotificationPreferences{
		Username: username,
		Channels: map[Trigger][]Channel{
			TriggerNewMatch:    {ChannelEmail, ChannelPush},
			TriggerNewMessage:  {ChannelSMS, ChannelPush},
			TriggerPIIRequest:  {ChannelEmail, ChannelSMS},
			TriggerProfileView: {ChannelPush},
		},
		QuietHours: QuietHours{
			Enabled:    false,
			Start:      "22:00",
			End:        "08:00",
			Timezone:   "UTC",
			Exceptions: []Trigger{TriggerPIIRequest, TriggerSuspiciousLogin},
		},
		RateLimits: map[Channel]RateLimit{
			ChannelSMS:   {Max: 5, Period: RateDaily},
			ChannelEmail: {Max: 20, Period: RateDaily},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Allowed narrows requested to the channels the user accepts for t.
func (p NotificationPreferences) Allowed(t Trigger, requested []Channel) []Channel {
	accepted, ok := p.Channels[t]
	if !ok {
		return requested
	}
	out := []Channel{}
	for _, c := range requested {
		for _, a := range accepted {
			if a == c {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// PreferencesUpdate replaces whichever sections are present.
type PreferencesUpdate struct {
	Channels   map[Trigger][]Channel `json:"channels,omitempty"`
	QuietHours *QuietHours           `json:"quietHours,omitempty"`
	RateLimits map[Channel]RateLimit `json:"rateLimit,omitempty"`
}
