package controllers

import (
	"net/http"
	"strings"

	"l3v3l_server/errs"
	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/services"
	"l3v3l_server/utils"

	"github.com/gorilla/mux"
)

// NotificationController exposes the notification queue to operators and users
type NotificationController struct {
	QueueService *services.QueueService
	Preferences  *services.PreferencesService
}

func NewNotificationController(queueService *services.QueueService, preferences *services.PreferencesService) *NotificationController {
	return &NotificationController{QueueService: queueService, Preferences: preferences}
}

// ListQueue handles GET /api/notifications/queue
// Query: status, trigger (repeatable or comma separated), channel, search, username, limit
func (nc *NotificationController) ListQueue(w http.ResponseWriter, r *http.Request) {
	username, err := scope(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	filter := models.QueueFilter{
		Username: username,
		Statuses: queryList(r, "status"),
		Channel:  models.Channel(r.URL.Query().Get("channel")),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:    limit,
	}
	for _, t := range queryList(r, "trigger") {
		filter.Triggers = append(filter.Triggers, models.Trigger(t))
	}
	for _, s := range filter.Statuses {
		if !models.QueueStatus(s).Valid() && !validState(s) {
			utils.WriteError(w, r, errs.Invalidf("unknown status "+s))
			return
		}
	}

	items, err := nc.QueueService.ListQueue(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func validState(s string) bool {
	switch models.QueueState(s) {
	case models.QueueStateQueued, models.QueueStateProcessing, models.QueueStateSent, models.QueueStateFailed:
		return true
	}
	return false
}

// GetItem handles GET /api/notifications/queue/{id}
func (nc *NotificationController) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := nc.QueueService.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), item.Username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, item)
}

// Enqueue handles POST /api/notifications/queue (admin only)
func (nc *NotificationController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body models.QueueCreate
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	item, err := nc.QueueService.Enqueue(r.Context(), body)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, item)
}

// Retry handles POST /api/notifications/queue/{id}/retry (admin only)
func (nc *NotificationController) Retry(w http.ResponseWriter, r *http.Request) {
	item, err := nc.QueueService.Retry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": "Notification queued for retry", "item": item})
}

// Delete handles DELETE /api/notifications/queue/{id}[?hard_delete=true].
// Owners may cancel their own items; admins may act on any.
func (nc *NotificationController) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := nc.QueueService.GetItem(r.Context(), id)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if err := middleware.Authorize(r.Context(), item.Username); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	hard := queryBool(r, "hard_delete")
	if err := nc.QueueService.Delete(r.Context(), id, hard); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	msg := "Notification cancelled"
	if hard {
		msg = "Notification deleted"
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": msg, "id": id})
}

type bulkDeleteBody struct {
	IDs        []string `json:"ids"`
	HardDelete bool     `json:"hard_delete"`
}

// BulkDelete handles POST /api/notifications/queue/bulk-delete (admin only)
func (nc *NotificationController) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var body bulkDeleteBody
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if len(body.IDs) == 0 {
		utils.WriteError(w, r, errs.Invalidf("ids must not be empty"))
		return
	}
	utils.WriteJSON(w, http.StatusOK, nc.QueueService.BulkDelete(r.Context(), body.IDs, body.HardDelete))
}

// Analytics handles GET /api/notifications/analytics
func (nc *NotificationController) Analytics(w http.ResponseWriter, r *http.Request) {
	username, err := scope(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	stats, err := nc.QueueService.Stats(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

// Logs handles GET /api/notifications/logs
func (nc *NotificationController) Logs(w http.ResponseWriter, r *http.Request) {
	username, err := scope(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	logs, err := nc.QueueService.ListLogs(r.Context(), username, limit)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

// subject is the user whose preferences a request acts on: the caller, or
// ?username= for admins.
func subject(r *http.Request) (string, error) {
	username, err := scope(r)
	if err != nil {
		return "", err
	}
	if username == "" {
		p, _ := middleware.PrincipalFrom(r.Context())
		username = p.Username
	}
	return username, nil
}

// GetPreferences handles GET /api/notifications/preferences
func (nc *NotificationController) GetPreferences(w http.ResponseWriter, r *http.Request) {
	username, err := subject(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	prefs, err := nc.Preferences.Get(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/notifications/preferences
func (nc *NotificationController) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	username, err := subject(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	var body models.PreferencesUpdate
	if err := decodeBody(r, &body); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	prefs, err := nc.Preferences.Update(r.Context(), username, body)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, prefs)
}

// ResetPreferences handles POST /api/notifications/preferences/reset
func (nc *NotificationController) ResetPreferences(w http.ResponseWriter, r *http.Request) {
	username, err := subject(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	prefs, err := nc.Preferences.Reset(r.Context(), username)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": "Preferences reset to defaults", "preferences": prefs})
}

// Unsubscribe handles POST /api/notifications/unsubscribe[/{trigger}]
func (nc *NotificationController) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	username, err := subject(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	trigger := models.Trigger(mux.Vars(r)["trigger"])
	prefs, err := nc.Preferences.Unsubscribe(r.Context(), username, trigger)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	msg := "Unsubscribed from all notifications"
	if trigger != "" {
		msg = "Unsubscribed from " + string(trigger) + " notifications"
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"message": msg, "preferences": prefs})
}
