package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/renderhub/internal/api/middleware"
	"github.com/kiranshivaraju/renderhub/internal/cache"
	"github.com/kiranshivaraju/renderhub/internal/cache/cachetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}
}

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error object in body")
	return errObj
}

// windowClock sits 45 seconds into the 09:00 rate limit window.
func windowClock() *time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 45, 0, time.UTC)
	return &t
}

func reqFrom(addr string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = addr
	return req
}

type recordedRequest struct {
	ms      float64
	isError bool
}

type mockRecorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (m *mockRecorder) RecordAPIRequest(ms float64, isError bool) {
	m.mu.Lock()
	m.reqs = append(m.reqs, recordedRequest{ms: ms, isError: isError})
	m.mu.Unlock()
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	now := windowClock()
	rl := mw.NewRateLimit(cachetest.New(), 60, mw.WithRateLimitClock(func() time.Time { return *now }))
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.1:5123"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	closes := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	assert.Equal(t, strconv.FormatInt(closes.Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	now := windowClock()
	rl := mw.NewRateLimit(cachetest.New(), 2, mw.WithRateLimitClock(func() time.Time { return *now }))
	handler := rl.Limit(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, reqFrom("10.0.0.2:4000"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	*now = now.Add(200 * time.Millisecond)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.2:4001"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "15", w.Header().Get("Retry-After"), "waits only until the window closes")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	errObj := errBody(t, w)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])
	assert.Equal(t, "Request budget of 2 per minute used up", errObj["message"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, float64(2), details["limit"])
	assert.Equal(t, float64(15), details["retry_after"])
	assert.Equal(t, "2026-03-01T09:01:00Z", details["reset_at"])
}

func TestRateLimit_NewWindowResetsBudget(t *testing.T) {
	now := windowClock()
	handler := mw.NewRateLimit(cachetest.New(), 1, mw.WithRateLimitClock(func() time.Time { return *now })).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.7:1"))
	require.Equal(t, http.StatusOK, w.Code)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.7:1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	*now = now.Add(15 * time.Second)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.7:1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_KeyedPerClientIP(t *testing.T) {
	now := windowClock()
	store := cachetest.New()
	rl := mw.NewRateLimit(store, 1, mw.WithRateLimitClock(func() time.Time { return *now }))
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.3:1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.4:1"))
	assert.Equal(t, http.StatusOK, w.Code, "another client has its own budget")

	window := now.Truncate(time.Minute)
	assert.True(t, store.Has(cache.RateLimitKey("10.0.0.3", window)))
	assert.True(t, store.Has(cache.RateLimitKey("10.0.0.4", window)))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	store := cachetest.New()
	store.SetFail(true)
	handler := mw.NewRateLimit(store, 1).Limit(okHandler())

	for range 3 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, reqFrom("10.0.0.5:1"))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_DefaultBudget(t *testing.T) {
	handler := mw.NewRateLimit(cachetest.New(), 0).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, reqFrom("10.0.0.6:1"))
	assert.Equal(t, "600", w.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "192.168.1.9", mw.ClientIP(reqFrom("192.168.1.9:8080")))
	assert.Equal(t, "::1", mw.ClientIP(reqFrom("[::1]:8080")))
	assert.Equal(t, "bare-host", mw.ClientIP(reqFrom("bare-host")))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	aborting := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	})

	handler := mw.Recovery(aborting)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))
	})
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(nil)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_RecordsRequests(t *testing.T) {
	rec := &mockRecorder{}

	mw.Logger(rec)(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/a", nil))
	mw.Logger(rec)(statusHandler(http.StatusNotFound)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/b", nil))
	mw.Logger(rec)(statusHandler(http.StatusServiceUnavailable)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/c", nil))

	require.Len(t, rec.reqs, 3)
	assert.False(t, rec.reqs[0].isError)
	assert.True(t, rec.reqs[1].isError)
	assert.True(t, rec.reqs[2].isError)
	for _, r := range rec.reqs {
		assert.GreaterOrEqual(t, r.ms, 0.0)
	}
}

func TestLogger_ImplicitOK(t *testing.T) {
	rec := &mockRecorder{}
	writesBodyOnly := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("hello"))
	})

	mw.Logger(rec)(writesBodyOnly).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil).WithContext(context.Background()))

	require.Len(t, rec.reqs, 1)
	assert.False(t, rec.reqs[0].isError)
}
