package services

import (
	"context"
	"time"

	"l3v3l_server/models"
)

// PIIStore persists PII requests and the grants derived from them.
// Implementations make every multi-record change atomic.
type PIIStore interface {
	// CreateRequest fails with errs.Conflict when a pending request with the
	// same PendingKey exists.
	CreateRequest(ctx context.Context, req models.PIIRequest) error
	GetRequest(ctx context.Context, id string) (models.PIIRequest, error)
	ListByRequestee(ctx context.Context, username string) ([]models.PIIRequest, error)
	ListByRequester(ctx context.Context, username string) ([]models.PIIRequest, error)
	// ResolveRequest moves a pending request to approved or rejected. Approval
	// adds the request type to the (requestee, requester) grant in the same write.
	ResolveRequest(ctx context.Context, id string, status models.PIIRequestStatus, at time.Time) (models.PIIRequest, error)
	// DeletePendingRequest fails with errs.InvalidState when the request is no longer pending.
	DeletePendingRequest(ctx context.Context, id string) error

	GetGrant(ctx context.Context, granter, grantee string) (models.PIIAccessGrant, error)
	ListGrantsByGranter(ctx context.Context, granter string) ([]models.PIIAccessGrant, error)
	ListGrantsByGrantee(ctx context.Context, grantee string) ([]models.PIIAccessGrant, error)
	// RevokeGrant removes types from the grant (all of them when types is
	// empty), deletes the grant once empty, and marks the matching approved
	// requests revoked. It returns the requests it revoked.
	RevokeGrant(ctx context.Context, granter, grantee string, types []models.PIIRequestType, at time.Time) ([]models.PIIRequest, error)
}

// QueueStore persists notification queue items and their delivery logs.
type QueueStore interface {
	PutItem(ctx context.Context, item models.NotificationQueueItem) error
	GetItem(ctx context.Context, id string) (models.NotificationQueueItem, error)
	ListItems(ctx context.Context, filter models.QueueFilter) ([]models.NotificationQueueItem, error)
	// CountItems counts items in any of statuses, for one user or everyone.
	CountItems(ctx context.Context, username string, statuses ...models.QueueStatus) (int, error)
	// SwapItem replaces the stored item only while its status is one of
	// expected, failing with errs.InvalidState otherwise.
	SwapItem(ctx context.Context, item models.NotificationQueueItem, expected ...models.QueueStatus) error
	// DeleteItem removes the item unless its status is one of forbidden.
	DeleteItem(ctx context.Context, id string, forbidden ...models.QueueStatus) error
	AppendLogs(ctx context.Context, logs []models.DeliveryLog) error
	// ListLogs returns logs newest first. A zero since means no lower bound.
	ListLogs(ctx context.Context, username string, since time.Time, limit int) ([]models.DeliveryLog, error)
}

// PreferencesStore persists per-user notification preferences.
type PreferencesStore interface {
	// GetPreferences fails with errs.NotFound for users who never saved any.
	GetPreferences(ctx context.Context, username string) (models.NotificationPreferences, error)
	PutPreferences(ctx context.Context, prefs models.NotificationPreferences) error
	DeletePreferences(ctx context.Context, username string) error
}

// ListStore persists the curated favorites/shortlist/exclusions lists.
type ListStore interface {
	ListEntries(ctx context.Context, owner string, category models.ListCategory) ([]models.ListEntry, error)
	GetEntry(ctx context.Context, owner string, category models.ListCategory, target string) (models.ListEntry, error)
	AddEntry(ctx context.Context, entry models.ListEntry) error
	RemoveEntry(ctx context.Context, owner string, category models.ListCategory, target string) error
	SetPositions(ctx context.Context, entries []models.ListEntry) error
	// MoveEntry deletes from and inserts to as a single atomic write.
	MoveEntry(ctx context.Context, from, to models.ListEntry) error
}

type ProfileStore interface {
	GetContact(ctx context.Context, username string) (models.ProfileContact, error)
}

// Notifier enqueues a notification for a user on behalf of another domain.
type Notifier interface {
	Notify(ctx context.Context, username string, trigger models.Trigger, data map[string]string) error
}

// JobPublisher hands a queue item id to the delivery worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, id string) error
}

// QueueEvent is pushed to realtime subscribers after every queue mutation.
type QueueEvent struct {
	Type string                        `json:"type"`
	ID   string                        `json:"id"`
	Item *models.NotificationQueueItem `json:"item,omitempty"`
}

const (
	QueueEventCreated = "created"
	QueueEventUpdated = "updated"
	QueueEventDeleted = "deleted"
)

type QueueEventSink interface {
	PublishQueueEvent(ev QueueEvent)
}

// URLSigner produces time-limited read URLs for stored objects.
type URLSigner interface {
	ReadURL(ctx context.Context, key string) (string, error)
}

// PhotoSigner also issues upload URLs.
type PhotoSigner interface {
	URLSigner
	UploadURL(ctx context.Context, key, contentType string) (string, error)
}
