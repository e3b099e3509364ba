package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countingLimiter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

type testServer struct {
	t      *testing.T
	router http.Handler
	auth   *middleware.Authenticator
	store  *services.MemoryStore
}

func newTestServer(t *testing.T, perMinute int) *testServer {
	store := services.NewMemoryStore()
	store.PutContact(models.ProfileContact{
		Username:      "alice",
		ContactEmail:  "alice@example.com",
		ContactNumber: "555-123-4567",
		Location:      "Austin, TX, USA",
	})
	queue := services.NewQueueService(store, nil, nil)
	prefs := services.NewPreferencesService(store, store)
	queue.Preferences = prefs
	pii := services.NewPIIService(store, queue)
	svc := Services{
		PII:         pii,
		Queue:       queue,
		Preferences: prefs,
		Lists:       services.NewListService(store),
		Profile:     services.NewProfileService(store, pii, nil),
		Photos:      services.NewPhotoService(nil, pii),
	}
	auth := middleware.NewAuthenticator("routes-secret")
	limiter := middleware.NewRateLimiter(&countingLimiter{counts: map[string]int64{}}, perMinute, "pii")
	return &testServer{t: t, router: NewRouter(svc, auth, limiter), auth: auth, store: store}
}

func (s *testServer) do(method, path, user, role string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := s.auth.IssueToken(user, role, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthIsPublicAndAPIIsNot(t *testing.T) {
	s := newTestServer(t, 10)
	assert.Equal(t, http.StatusOK, s.do("GET", "/health", "", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/pii-requests/alice/incoming", "", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/nope", "", "", nil).Code)
}

func TestPIIRequestApprovalFlow(t *testing.T) {
	s := newTestServer(t, 10)

	rec := s.do("POST", "/api/pii-requests", "bob", models.RoleUser, models.CreatePIIRequest{
		Requester: "bob", Requestee: "alice", RequestType: models.PIITypeEmail,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Request models.PIIRequest `json:"request"`
	}
	decode(t, rec, &created)
	id := created.Request.ID

	// duplicate pending
	rec = s.do("POST", "/api/pii-requests", "bob", models.RoleUser, models.CreatePIIRequest{
		Requester: "bob", Requestee: "alice", RequestType: models.PIITypeEmail,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// only the requestee may approve
	rec = s.do("PUT", "/api/pii-requests/"+id+"/approve?username=bob", "bob", models.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	// and nobody may act as alice but alice
	rec = s.do("PUT", "/api/pii-requests/"+id+"/approve?username=alice", "bob", models.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("PUT", "/api/pii-requests/"+id+"/approve?username=alice", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("PUT", "/api/pii-requests/"+id+"/approve?username=alice", "alice", models.RoleUser, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "invalid_state", body["error"])

	rec = s.do("GET", "/api/profiles/alice/contact?viewer=bob", "bob", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.ContactView
	decode(t, rec, &view)
	assert.Equal(t, "alice@example.com", view.ContactEmail)
	assert.Equal(t, "***-***-4567", view.ContactNumber)
	assert.True(t, view.PIIMasked)

	rec = s.do("GET", "/api/pii-access/bob/received", "bob", models.RoleUser, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the requestee got a pii_request notification, the requester pii_granted
	items, err := s.store.ListItems(context.Background(), models.QueueFilter{})
	require.NoError(t, err)
	triggers := map[models.Trigger]string{}
	for _, item := range items {
		triggers[item.Trigger] = item.Username
	}
	assert.Equal(t, "alice", triggers[models.TriggerPIIRequest])
	assert.Equal(t, "bob", triggers[models.TriggerPIIGranted])

	rec = s.do("DELETE", "/api/pii-access/revoke-user/bob?granter=alice", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do("GET", "/api/profiles/alice/contact?viewer=bob", "bob", models.RoleUser, nil)
	decode(t, rec, &view)
	assert.Equal(t, "a***@example.com", view.ContactEmail)
}

func TestPathUsernameMustMatchToken(t *testing.T) {
	s := newTestServer(t, 10)
	assert.Equal(t, http.StatusForbidden, s.do("GET", "/api/pii-requests/alice/outgoing", "bob", models.RoleUser, nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/pii-requests/alice/outgoing", "root", models.RoleAdmin, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do("GET", "/api/lists/alice/favorites", "bob", models.RoleUser, nil).Code)
}

func TestCreateRequestIsRateLimited(t *testing.T) {
	s := newTestServer(t, 1)
	body := models.CreatePIIRequest{Requester: "bob", Requestee: "alice", RequestType: models.PIITypePhone}
	assert.Equal(t, http.StatusCreated, s.do("POST", "/api/pii-requests", "bob", models.RoleUser, body).Code)
	body.RequestType = models.PIITypeEmail
	assert.Equal(t, http.StatusTooManyRequests, s.do("POST", "/api/pii-requests", "bob", models.RoleUser, body).Code)
}

func TestQueueOperatorRoutes(t *testing.T) {
	s := newTestServer(t, 10)
	create := models.QueueCreate{Username: "bob", Trigger: models.TriggerNewMatch, Channels: []models.Channel{models.ChannelEmail}}

	assert.Equal(t, http.StatusForbidden, s.do("POST", "/api/notifications/queue", "bob", models.RoleUser, create).Code)

	rec := s.do("POST", "/api/notifications/queue", "root", models.RoleAdmin, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.NotificationQueueItem
	decode(t, rec, &item)

	// non-admins only see their own items
	rec = s.do("GET", "/api/notifications/queue", "carol", models.RoleUser, nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 0, list.Count)
	assert.Equal(t, http.StatusForbidden, s.do("GET", "/api/notifications/queue?username=bob", "carol", models.RoleUser, nil).Code)

	rec = s.do("GET", "/api/notifications/queue?status=queued", "bob", models.RoleUser, nil)
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/notifications/queue?status=bogus", "bob", models.RoleUser, nil).Code)

	// retry only applies to failed items
	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/notifications/queue/"+item.ID+"/retry", "root", models.RoleAdmin, nil).Code)

	rec = s.do("POST", "/api/notifications/queue/bulk-delete", "root", models.RoleAdmin, map[string]interface{}{
		"ids": []string{item.ID, "missing"}, "hard_delete": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.BulkDeleteResult
	decode(t, rec, &res)
	assert.Equal(t, 2, res.Requested)
	assert.Equal(t, 1, res.Succeeded)
	assert.Contains(t, res.Errors, "missing")

	rec = s.do("GET", "/api/notifications/analytics", "root", models.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRoutes(t *testing.T) {
	s := newTestServer(t, 10)
	for _, target := range []string{"bob", "carol"} {
		rec := s.do("POST", "/api/lists/alice/favorites", "alice", models.RoleUser, map[string]string{"target": target})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do("PUT", "/api/lists/alice/favorites/reorder", "alice", models.RoleUser, map[string][]string{"order": {"carol", "bob"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/lists/alice/move", "alice", models.RoleUser, models.MoveListEntry{
		Target: "carol", From: models.ListFavorites, To: models.ListShortlist,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("GET", "/api/lists/alice/favorites", "alice", models.RoleUser, nil)
	var got struct {
		Entries []models.ListEntry `json:"entries"`
	}
	decode(t, rec, &got)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "bob", got.Entries[0].TargetUsername)
	assert.Equal(t, 0, got.Entries[0].Position)

	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/lists/alice/favorites/carol", "alice", models.RoleUser, nil).Code)
	assert.Equal(t, http.StatusOK, s.do("DELETE", "/api/lists/alice/shortlist/carol", "alice", models.RoleUser, nil).Code)
}

func TestPhotoRoutesWithoutBucket(t *testing.T) {
	s := newTestServer(t, 10)
	rec := s.do("POST", "/api/profiles/alice/photos/upload-url", "alice", models.RoleUser,
		map[string]string{"fileName": "a.png", "fileType": "image/png"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("POST", "/api/profiles/alice/photos/upload-url", "bob", models.RoleUser,
		map[string]string{"fileName": "a.png", "fileType": "image/png"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPreferencesRoutes(t *testing.T) {
	s := newTestServer(t, 10)

	rec := s.do("GET", "/api/notifications/preferences", "bob", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prefs models.NotificationPreferences
	decode(t, rec, &prefs)
	assert.Equal(t, "bob", prefs.Username)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelPush}, prefs.Channels[models.TriggerNewMatch])

	rec = s.do("PUT", "/api/notifications/preferences", "bob", models.RoleUser, models.PreferencesUpdate{
		RateLimits: map[models.Channel]models.RateLimit{models.ChannelEmail: {Max: 1, Period: models.RateDaily}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("PUT", "/api/notifications/preferences", "bob", models.RoleUser, map[string]interface{}{
		"quietHours": map[string]interface{}{"enabled": true, "start": "nope", "end": "08:00", "timezone": "UTC"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// only admins act on someone else's preferences
	assert.Equal(t, http.StatusForbidden, s.do("GET", "/api/notifications/preferences?username=bob", "carol", models.RoleUser, nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/notifications/preferences?username=bob", "root", models.RoleAdmin, nil).Code)

	create := models.QueueCreate{Username: "bob", Trigger: models.TriggerNewMatch, Channels: []models.Channel{models.ChannelEmail}}
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/notifications/queue", "root", models.RoleAdmin, create).Code)
	rec = s.do("POST", "/api/notifications/queue", "root", models.RoleAdmin, create)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/notifications/unsubscribe/new_match", "bob", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do("POST", "/api/notifications/queue", "root", models.RoleAdmin, create)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "opted out")

	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/notifications/unsubscribe/birthday", "bob", models.RoleUser, nil).Code)

	rec = s.do("POST", "/api/notifications/preferences/reset", "bob", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset struct {
		Preferences models.NotificationPreferences `json:"preferences"`
	}
	decode(t, rec, &reset)
	assert.Equal(t, models.RateLimit{Max: 20, Period: models.RateDaily}, reset.Preferences.RateLimits[models.ChannelEmail])

	rec = s.do("POST", "/api/notifications/unsubscribe", "bob", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reset)
	assert.Empty(t, reset.Preferences.Channels[models.TriggerPIIRequest])

	// a pii request to bob is still created, its notification is dropped
	rec = s.do("POST", "/api/pii-requests", "alice", models.RoleUser, models.CreatePIIRequest{
		Requester: "alice", Requestee: "bob", RequestType: models.PIITypePhone,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	items, err := s.store.ListItems(context.Background(), models.QueueFilter{Username: "bob", Statuses: []string{"queued"}})
	require.NoError(t, err)
	assert.Len(t, items, 1, "only the item queued before the opt-out")
}
