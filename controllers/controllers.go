package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"l3v3l_server/errs"
	"l3v3l_server/middleware"
	"l3v3l_server/models"
	"l3v3l_server/utils"
)

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Server is running!"})
}

// NotFoundHandler answers unknown routes in the API error format
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, r, errs.NotFoundf("route not found"))
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.InvalidArgument, "Invalid request payload", err)
	}
	return nil
}

// queryList accepts both ?k=a&k=b and ?k=a,b.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func queryTypes(r *http.Request) ([]models.PIIRequestType, error) {
	var types []models.PIIRequestType
	for _, v := range queryList(r, "type") {
		t := models.PIIRequestType(v)
		if !t.Valid() {
			return nil, errs.Invalidf("unknown request type " + v)
		}
		types = append(types, t)
	}
	return types, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Invalidf(key + " must be a non-negative integer")
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// requireParam returns the named query parameter, erroring when blank.
func requireParam(r *http.Request, key string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return "", errs.Invalidf(key + " is required")
	}
	return v, nil
}

// scope is the username a listing is limited to. Admins may pass ?username=
// or nothing for everything; other callers only ever see their own rows.
func scope(r *http.Request) (string, error) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return "", errs.New(errs.Unauthorized, "not authenticated")
	}
	requested := r.URL.Query().Get("username")
	if p.IsAdmin() {
		return requested, nil
	}
	if requested != "" && requested != p.Username {
		return "", errs.Forbiddenf("cannot view another user's notifications")
	}
	return p.Username, nil
}
