package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/models"

	"github.com/stretchr/testify/assert"
)

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func limitedRequest(username string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/pii-requests", nil)
	if username != "" {
		req = req.WithContext(WithPrincipal(req.Context(), Principal{Username: username, Role: models.RoleUser}))
	}
	return req
}

func TestRateLimiterReturns429PastLimit(t *testing.T) {
	counter := &memCounter{}
	h := NewRateLimiter(counter, 2, "pii").Middleware(http.HandlerFunc(whoami))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, limitedRequest("alice"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(errs.RateLimited), errorBody(t, rec)["error"])
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other callers have their own window
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest("bob"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), counter.counts["pii:user:bob"])
}

func TestRateLimiterKeysAnonymousByIP(t *testing.T) {
	counter := &memCounter{}
	h := NewRateLimiter(counter, 5, "pii").Middleware(http.HandlerFunc(whoami))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest(""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), counter.counts["pii:ip:192.0.2.1"])
}

func TestRateLimiterCounterFailure(t *testing.T) {
	h := NewRateLimiter(&memCounter{err: errors.New("redis down")}, 5, "pii").Middleware(http.HandlerFunc(whoami))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest("alice"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorBody(t, rec)["message"])
}
