package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAuth(now time.Time) *Authenticator {
	a := NewAuthenticator("test-secret")
	a.Now = func() time.Time { return now }
	return a
}

func whoami(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	_, _ = w.Write([]byte(p.Username + "/" + p.Role))
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := fixedAuth(now)
	token, err := a.IssueToken("alice", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(whoami)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice/admin", rec.Body.String())
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := fixedAuth(issued).IssueToken("alice", models.RoleUser, time.Minute)
	require.NoError(t, err)

	a := fixedAuth(issued.Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(whoami)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errs.AuthExpired), errorBody(t, rec)["error"])
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := fixedAuth(now)
	other, err := NewAuthenticator("other-secret").IssueToken("mallory", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"empty bearer": "Bearer ",
		"garbage":      "Bearer not.a.jwt",
		"wrong secret": "Bearer " + other,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			a.Middleware(http.HandlerFunc(whoami)).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, string(errs.Unauthorized), errorBody(t, rec)["error"])
		})
	}
}

func TestIssueTokenDefaultsRole(t *testing.T) {
	a := fixedAuth(time.Now())
	token, err := a.IssueToken("bob", "", time.Hour)
	require.NoError(t, err)
	claims, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)
	assert.Equal(t, models.RoleUser, claims.Role)

	_, err = a.IssueToken("", models.RoleUser, time.Hour)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{Username: "alice", Role: models.RoleUser})
	assert.NoError(t, Authorize(ctx, "alice"))
	assert.True(t, errs.Is(Authorize(ctx, "bob"), errs.Forbidden))

	admin := WithPrincipal(context.Background(), Principal{Username: "root", Role: models.RoleAdmin})
	assert.NoError(t, Authorize(admin, "bob"))

	assert.True(t, errs.Is(Authorize(context.Background(), "bob"), errs.Unauthorized))
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{Username: "alice", Role: models.RoleUser}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithPrincipal(req.Context(), Principal{Username: "root", Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
