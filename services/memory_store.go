package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/models"
)

type grantKey struct{ granter, grantee string }

// MemoryStore implements every store interface in process. It backs the
// "memory" store driver and the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]models.PIIRequest
	pending  map[string]string // PendingKey -> request id
	grants   map[grantKey]models.PIIAccessGrant
	queue    map[string]models.NotificationQueueItem
	logs     []models.DeliveryLog
	lists    map[string]map[string]models.ListEntry // ListKey -> target -> entry
	contacts map[string]models.ProfileContact
	prefs    map[string]models.NotificationPreferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: map[string]models.PIIRequest{},
		pending:  map[string]string{},
		grants:   map[grantKey]models.PIIAccessGrant{},
		queue:    map[string]models.NotificationQueueItem{},
		lists:    map[string]map[string]models.ListEntry{},
		contacts: map[string]models.ProfileContact{},
		prefs:    map[string]models.NotificationPreferences{},
	}
}

func cloneGrant(g models.PIIAccessGrant) models.PIIAccessGrant {
	g.AccessTypes = append([]models.PIIRequestType(nil), g.AccessTypes...)
	return g
}

func cloneQueueItem(i models.NotificationQueueItem) models.NotificationQueueItem {
	i.Channels = append([]models.Channel(nil), i.Channels...)
	if i.TemplateData != nil {
		data := make(map[string]string, len(i.TemplateData))
		for k, v := range i.TemplateData {
			data[k] = v
		}
		i.TemplateData = data
	}
	return i
}

// ---- PII ----

func (m *MemoryStore) CreateRequest(_ context.Context, req models.PIIRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[req.PendingKey()]; ok {
		return errs.Conflictf("a pending request already exists for this type")
	}
	if g, ok := m.grants[grantKey{req.RequesteeUsername, req.RequesterUsername}]; ok && g.Has(req.RequestType) {
		return errs.Conflictf("access to " + string(req.RequestType) + " is already granted")
	}
	if _, ok := m.requests[req.ID]; ok {
		return errs.Conflictf("request id already exists")
	}
	m.requests[req.ID] = req
	m.pending[req.PendingKey()] = req.ID
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (models.PIIRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return models.PIIRequest{}, errs.NotFoundf("pii request not found")
	}
	return req, nil
}

func (m *MemoryStore) listRequests(match func(models.PIIRequest) bool) []models.PIIRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PIIRequest{}
	for _, r := range m.requests {
		if match(r) {
			out = append(out, r)
		}
	}
	models.SortByRequestedAtDesc(out)
	return out
}

func (m *MemoryStore) ListByRequestee(_ context.Context, username string) ([]models.PIIRequest, error) {
	return m.listRequests(func(r models.PIIRequest) bool { return r.RequesteeUsername == username }), nil
}

func (m *MemoryStore) ListByRequester(_ context.Context, username string) ([]models.PIIRequest, error) {
	return m.listRequests(func(r models.PIIRequest) bool { return r.RequesterUsername == username }), nil
}

func (m *MemoryStore) ResolveRequest(_ context.Context, id string, status models.PIIRequestStatus, at time.Time) (models.PIIRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return models.PIIRequest{}, errs.NotFoundf("pii request not found")
	}
	if req.Status != models.PIIStatusPending {
		return models.PIIRequest{}, errs.Statef("request is already " + string(req.Status))
	}
	req.Status = status
	req.ResolvedAt = &at
	if status == models.PIIStatusApproved {
		key := grantKey{req.RequesteeUsername, req.RequesterUsername}
		grant, ok := m.grants[key]
		if !ok {
			grant = models.PIIAccessGrant{GranterUsername: key.granter, GranteeUsername: key.grantee, CreatedAt: at}
		}
		grant = cloneGrant(grant)
		grant.Add(req.RequestType)
		grant.UpdatedAt = at
		m.grants[key] = grant
	}
	m.requests[id] = req
	delete(m.pending, req.PendingKey())
	return req, nil
}

func (m *MemoryStore) DeletePendingRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return errs.NotFoundf("pii request not found")
	}
	if req.Status != models.PIIStatusPending {
		return errs.Statef("only pending requests can be cancelled")
	}
	delete(m.requests, id)
	delete(m.pending, req.PendingKey())
	return nil
}

func (m *MemoryStore) GetGrant(_ context.Context, granter, grantee string) (models.PIIAccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[grantKey{granter, grantee}]
	if !ok {
		return models.PIIAccessGrant{}, errs.NotFoundf("no access granted")
	}
	return cloneGrant(g), nil
}

func (m *MemoryStore) listGrants(match func(grantKey) bool) []models.PIIAccessGrant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PIIAccessGrant{}
	for k, g := range m.grants {
		if match(k) {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *MemoryStore) ListGrantsByGranter(_ context.Context, granter string) ([]models.PIIAccessGrant, error) {
	return m.listGrants(func(k grantKey) bool { return k.granter == granter }), nil
}

func (m *MemoryStore) ListGrantsByGrantee(_ context.Context, grantee string) ([]models.PIIAccessGrant, error) {
	return m.listGrants(func(k grantKey) bool { return k.grantee == grantee }), nil
}

func (m *MemoryStore) RevokeGrant(_ context.Context, granter, grantee string, types []models.PIIRequestType, at time.Time) ([]models.PIIRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := grantKey{granter, grantee}
	grant, ok := m.grants[key]
	if !ok {
		return nil, errs.NotFoundf("no access granted")
	}
	grant = cloneGrant(grant)
	removed := revokeTypes(&grant, types)
	if len(removed) == 0 {
		return nil, errs.NotFoundf("requested access types are not granted")
	}
	if grant.Empty() {
		delete(m.grants, key)
	} else {
		grant.UpdatedAt = at
		m.grants[key] = grant
	}

	var revoked []models.PIIRequest
	for id, r := range m.requests {
		if r.RequesteeUsername == granter && r.RequesterUsername == grantee &&
			r.Status == models.PIIStatusApproved && containsType(removed, r.RequestType) {
			r.Status = models.PIIStatusRevoked
			r.RevokedAt = &at
			m.requests[id] = r
			revoked = append(revoked, r)
		}
	}
	return revoked, nil
}

// revokeTypes removes types (or everything when empty) from g and returns what was removed.
func revokeTypes(g *models.PIIAccessGrant, types []models.PIIRequestType) []models.PIIRequestType {
	if len(types) == 0 {
		removed := g.AccessTypes
		g.AccessTypes = nil
		return removed
	}
	var removed []models.PIIRequestType
	for _, t := range types {
		if g.Remove(t) {
			removed = append(removed, t)
		}
	}
	return removed
}

func containsType(types []models.PIIRequestType, t models.PIIRequestType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ---- notification queue ----

func (m *MemoryStore) PutItem(_ context.Context, item models.NotificationQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[item.ID]; ok {
		return errs.Conflictf("queue item already exists")
	}
	m.queue[item.ID] = cloneQueueItem(item)
	return nil
}

func (m *MemoryStore) GetItem(_ context.Context, id string) (models.NotificationQueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.queue[id]
	if !ok {
		return models.NotificationQueueItem{}, errs.NotFoundf("queue item not found")
	}
	return cloneQueueItem(item), nil
}

func (m *MemoryStore) ListItems(_ context.Context, filter models.QueueFilter) ([]models.NotificationQueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.NotificationQueueItem{}
	for _, item := range m.queue {
		if filter.Match(item) {
			out = append(out, cloneQueueItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountItems(_ context.Context, username string, statuses ...models.QueueStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, item := range m.queue {
		if (username == "" || item.Username == username) && statusIn(item.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func statusIn(s models.QueueStatus, set []models.QueueStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func (m *MemoryStore) SwapItem(_ context.Context, item models.NotificationQueueItem, expected ...models.QueueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.queue[item.ID]
	if !ok {
		return errs.NotFoundf("queue item not found")
	}
	if !statusIn(current.Status, expected) {
		return errs.Statef("queue item is " + string(current.Status))
	}
	m.queue[item.ID] = cloneQueueItem(item)
	return nil
}

func (m *MemoryStore) DeleteItem(_ context.Context, id string, forbidden ...models.QueueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.queue[id]
	if !ok {
		return errs.NotFoundf("queue item not found")
	}
	if statusIn(current.Status, forbidden) {
		return errs.Statef("queue item is " + string(current.Status))
	}
	delete(m.queue, id)
	return nil
}

func (m *MemoryStore) AppendLogs(_ context.Context, logs []models.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *MemoryStore) ListLogs(_ context.Context, username string, since time.Time, limit int) ([]models.DeliveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.DeliveryLog{}
	for _, l := range m.logs {
		if username != "" && l.Username != username {
			continue
		}
		if !since.IsZero() && l.CreatedAt.Before(since) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- lists ----

func (m *MemoryStore) ListEntries(_ context.Context, owner string, category models.ListCategory) ([]models.ListEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.ListEntry{}
	for _, e := range m.lists[models.ListKey(owner, category)] {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].TargetUsername < out[j].TargetUsername
	})
	return out, nil
}

func (m *MemoryStore) GetEntry(_ context.Context, owner string, category models.ListCategory, target string) (models.ListEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.lists[models.ListKey(owner, category)][target]
	if !ok {
		return models.ListEntry{}, errs.NotFoundf(target + " is not in " + string(category))
	}
	return e, nil
}

func (m *MemoryStore) AddEntry(_ context.Context, entry models.ListEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addEntryLocked(entry)
}

func (m *MemoryStore) addEntryLocked(entry models.ListEntry) error {
	key := models.ListKey(entry.OwnerUsername, entry.Category)
	entry.ListKey = key
	bucket, ok := m.lists[key]
	if !ok {
		bucket = map[string]models.ListEntry{}
		m.lists[key] = bucket
	}
	if _, exists := bucket[entry.TargetUsername]; exists {
		return errs.Conflictf(entry.TargetUsername + " is already in " + string(entry.Category))
	}
	bucket[entry.TargetUsername] = entry
	return nil
}

func (m *MemoryStore) RemoveEntry(_ context.Context, owner string, category models.ListCategory, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.lists[models.ListKey(owner, category)]
	if _, ok := bucket[target]; !ok {
		return errs.NotFoundf(target + " is not in " + string(category))
	}
	delete(bucket, target)
	return nil
}

func (m *MemoryStore) SetPositions(_ context.Context, entries []models.ListEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		bucket := m.lists[models.ListKey(e.OwnerUsername, e.Category)]
		if current, ok := bucket[e.TargetUsername]; ok {
			current.Position = e.Position
			bucket[e.TargetUsername] = current
		}
	}
	return nil
}

func (m *MemoryStore) MoveEntry(_ context.Context, from, to models.ListEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.lists[models.ListKey(from.OwnerUsername, from.Category)]
	if _, ok := src[from.TargetUsername]; !ok {
		return errs.NotFoundf(from.TargetUsername + " is not in " + string(from.Category))
	}
	if err := m.addEntryLocked(to); err != nil {
		return err
	}
	delete(src, from.TargetUsername)
	return nil
}

// ---- profiles ----

func (m *MemoryStore) GetContact(_ context.Context, username string) (models.ProfileContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[username]
	if !ok {
		return models.ProfileContact{}, errs.NotFoundf("profile not found")
	}
	return c, nil
}

// ---- notification preferences ----

func clonePreferences(p models.NotificationPreferences) models.NotificationPreferences {
	channels := make(map[models.Trigger][]models.Channel, len(p.Channels))
	for t, cs := range p.Channels {
		channels[t] = append([]models.Channel{}, cs...)
	}
	p.Channels = channels
	limits := make(map[models.Channel]models.RateLimit, len(p.RateLimits))
	for c, l := range p.RateLimits {
		limits[c] = l
	}
	p.RateLimits = limits
	p.QuietHours.Exceptions = append([]models.Trigger(nil), p.QuietHours.Exceptions...)
	return p
}

func (m *MemoryStore) GetPreferences(_ context.Context, username string) (models.NotificationPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[username]
	if !ok {
		return models.NotificationPreferences{}, errs.NotFoundf("preferences not found")
	}
	return clonePreferences(p), nil
}

func (m *MemoryStore) PutPreferences(_ context.Context, prefs models.NotificationPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[prefs.Username] = clonePreferences(prefs)
	return nil
}

func (m *MemoryStore) DeletePreferences(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prefs, username)
	return nil
}

// PutContact seeds a profile.
func (m *MemoryStore) PutContact(c models.ProfileContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.Username] = c
}

var (
	_ PIIStore     = (*MemoryStore)(nil)
	_ QueueStore   = (*MemoryStore)(nil)
	_ ListStore    = (*MemoryStore)(nil)
	_ ProfileStore = (*MemoryStore)(nil)

	_ PreferencesStore = (*MemoryStore)(nil)
)
