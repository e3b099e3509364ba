package models

import (
	"sort"
	"strings"
	"time"
)

// Trigger is the domain event that caused a notification to be enqueued.
type Trigger string

const (
	TriggerNewProfileCreated      Trigger = "new_profile_created"
	TriggerNewMatch               Trigger = "new_match"
	TriggerMutualFavorite         Trigger = "mutual_favorite"
	TriggerShortlistAdded         Trigger = "shortlist_added"
	TriggerMatchMilestone         Trigger = "match_milestone"
	TriggerProfileView            Trigger = "profile_view"
	TriggerFavorited              Trigger = "favorited"
	TriggerProfileVisibilitySpike Trigger = "profile_visibility_spike"
	TriggerSearchAppearance       Trigger = "search_appearance"
	TriggerNewMessage             Trigger = "new_message"
	TriggerMessageRead            Trigger = "message_read"
	TriggerConversationCold       Trigger = "conversation_cold"
	TriggerPIIRequest             Trigger = "pii_request"
	TriggerPIIGranted             Trigger = "pii_granted"
	TriggerPIIDenied              Trigger = "pii_denied"
	TriggerPIIExpiring            Trigger = "pii_expiring"
	TriggerSuspiciousLogin        Trigger = "suspicious_login"
	TriggerUnreadMessages         Trigger = "unread_messages"
	TriggerNewUsersMatching       Trigger = "new_users_matching"
	TriggerProfileIncomplete      Trigger = "profile_incomplete"
	TriggerUploadPhotos           Trigger = "upload_photos"
	TriggerWeeklyDigest           Trigger = "weekly_digest"
	TriggerMonthlyDigest          Trigger = "monthly_digest"
	TriggerPollReminder           Trigger = "poll_reminder"
)

var triggers = map[Trigger]struct{}{
	TriggerNewProfileCreated: {}, TriggerNewMatch: {}, TriggerMutualFavorite: {},
	TriggerShortlistAdded: {}, TriggerMatchMilestone: {}, TriggerProfileView: {},
	TriggerFavorited: {}, TriggerProfileVisibilitySpike: {}, TriggerSearchAppearance: {},
	TriggerNewMessage: {}, TriggerMessageRead: {}, TriggerConversationCold: {},
	TriggerPIIRequest: {}, TriggerPIIGranted: {}, TriggerPIIDenied: {},
	TriggerPIIExpiring: {}, TriggerSuspiciousLogin: {}, TriggerUnreadMessages: {},
	TriggerNewUsersMatching: {}, TriggerProfileIncomplete: {}, TriggerUploadPhotos: {},
	TriggerWeeklyDigest: {}, TriggerMonthlyDigest: {}, TriggerPollReminder: {},
}

func (t Trigger) Valid() bool {
	_, ok := triggers[t]
	return ok
}

// AllTriggers lists every known trigger in name order.
func AllTriggers() []Trigger {
	out := make([]Trigger, 0, len(triggers))
	for t := range triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// QueueStatus is the raw status persisted on a queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusScheduled  QueueStatus = "scheduled"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusDelivered  QueueStatus = "delivered"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusError      QueueStatus = "error" // legacy spelling of failed
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// QueueState is the normalized view of QueueStatus shown to operators.
type QueueState string

const (
	QueueStateQueued     QueueState = "queued"
	QueueStateProcessing QueueState = "processing"
	QueueStateSent       QueueState = "sent"
	QueueStateFailed     QueueState = "failed"
)

func (s QueueStatus) State() QueueState {
	switch s {
	case QueueStatusPending, QueueStatusScheduled:
		return QueueStateQueued
	case QueueStatusProcessing:
		return QueueStateProcessing
	case QueueStatusSent, QueueStatusDelivered:
		return QueueStateSent
	default:
		return QueueStateFailed
	}
}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusScheduled, QueueStatusProcessing,
		QueueStatusSent, QueueStatusDelivered, QueueStatusFailed, QueueStatusError, QueueStatusCancelled:
		return true
	}
	return false
}

// QueueStatuses lists every raw status.
var QueueStatuses = []QueueStatus{
	QueueStatusPending, QueueStatusScheduled, QueueStatusProcessing,
	QueueStatusSent, QueueStatusDelivered, QueueStatusFailed, QueueStatusError, QueueStatusCancelled,
}

// ExpandStatuses turns raw statuses and normalized states into the raw
// statuses they cover, the same way QueueFilter.Match reads them.
func ExpandStatuses(values []string) []QueueStatus {
	var out []QueueStatus
	seen := map[QueueStatus]bool{}
	for _, v := range values {
		for _, st := range QueueStatuses {
			if (string(st) == v || string(st.State()) == v) && !seen[st] {
				seen[st] = true
				out = append(out, st)
			}
		}
	}
	return out
}

// Retryable is true only for failed deliveries; cancelled items stay cancelled.
func (s QueueStatus) Retryable() bool {
	return s == QueueStatusFailed || s == QueueStatusError
}

// Failure reports whether s is a terminal failure-equivalent state.
func (s QueueStatus) Failure() bool {
	return s == QueueStatusFailed || s == QueueStatusError || s == QueueStatusCancelled
}

// NotificationQueueItem is one scheduled or attempted notification delivery.
//
// ErrorMessage is set iff the status is a failure state, and SentAt is only
// set once the item reached sent/delivered, so the two are never both present.
type NotificationQueueItem struct {
	ID           string            `dynamodbav:"id" json:"id"` // PK
	Username     string            `dynamodbav:"username" json:"username"`
	Trigger      Trigger           `dynamodbav:"trigger" json:"trigger"`
	Channels     []Channel         `dynamodbav:"channels" json:"channels"`
	Priority     Priority          `dynamodbav:"priority" json:"priority"`
	TemplateData map[string]string `dynamodbav:"templateData,omitempty" json:"templateData,omitempty"`
	Status       QueueStatus       `dynamodbav:"status" json:"status"`
	ScheduledFor *time.Time        `dynamodbav:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`
	Attempts     int               `dynamodbav:"attempts" json:"attempts"`
	LastAttempt  *time.Time        `dynamodbav:"lastAttempt,omitempty" json:"lastAttempt,omitempty"`
	SentAt       *time.Time        `dynamodbav:"sentAt,omitempty" json:"sent_at,omitempty"`
	ErrorMessage string            `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time         `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt    time.Time         `dynamodbav:"updatedAt" json:"updated_at"`
}

// State returns the normalized status.
func (i NotificationQueueItem) State() QueueState {
	return i.Status.State()
}

// Due reports whether the item may be picked up at now.
func (i NotificationQueueItem) Due(now time.Time) bool {
	return i.ScheduledFor == nil || !i.ScheduledFor.After(now)
}

// QueueCreate is the body accepted when enqueuing a notification.
type QueueCreate struct {
	Username     string            `json:"username"`
	Trigger      Trigger           `json:"trigger"`
	Channels     []Channel         `json:"channels"`
	Priority     Priority          `json:"priority,omitempty"`
	TemplateData map[string]string `json:"templateData,omitempty"`
	ScheduledFor *time.Time        `json:"scheduledFor,omitempty"`
}

// QueueFilter narrows ListQueue results. Empty fields match everything.
type QueueFilter struct {
	Username string
	Statuses []string // raw statuses or normalized states
	Triggers []Trigger
	Channel  Channel
	Search   string
	Limit    int
}

// Match applies the filter to one item.
func (f QueueFilter) Match(item NotificationQueueItem) bool {
	if f.Username != "" && item.Username != f.Username {
		return false
	}
	if len(f.Statuses) > 0 {
		matched := false
		for _, s := range f.Statuses {
			if string(item.Status) == s || string(item.State()) == s {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.Triggers) > 0 {
		matched := false
		for _, t := range f.Triggers {
			if item.Trigger == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Channel != "" {
		matched := false
		for _, c := range item.Channels {
			if c == f.Channel {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.Username), needle) &&
			!strings.Contains(strings.ToLower(string(item.Trigger)), needle) {
			return false
		}
	}
	return true
}

// QueueStats are the operator dashboard counters. The 24h windows are rolling.
type QueueStats struct {
	Queued     int       `json:"queued"`
	Processing int       `json:"processing"`
	Success24h int       `json:"success_24h"`
	Failed24h  int       `json:"failed_24h"`
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
}

// BulkDeleteResult reports per-item outcomes of a best-effort bulk delete.
type BulkDeleteResult struct {
	Requested int               `json:"requested"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// DeliveryLog is the durable record of one channel outcome for a queue item
// that reached a terminal state.
type DeliveryLog struct {
	ID           string      `dynamodbav:"id" json:"id"` // PK
	QueueItemID  string      `dynamodbav:"queueItemId" json:"queueItemId"`
	Username     string      `dynamodbav:"username" json:"username"`
	Trigger      Trigger     `dynamodbav:"trigger" json:"trigger"`
	Channel      Channel     `dynamodbav:"channel" json:"channel"`
	Status       QueueStatus `dynamodbav:"status" json:"status"`
	ErrorMessage string      `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time   `dynamodbav:"createdAt" json:"created_at"`
	SentAt       *time.Time  `dynamodbav:"sentAt,omitempty" json:"sent_at,omitempty"`
}

// ChannelOutcome is the delivery result for one channel of a queue item.
type ChannelOutcome struct {
	Channel Channel
	Err     error
}
