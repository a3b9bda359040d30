package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/internal/cache"
)

const (
	defaultRequestsPerMinute = 600
	rateLimitWindow          = time.Minute
)

// RateLimit counts requests per client IP in fixed one-minute windows aligned
// to the wall clock. Each window has its own counter in the store, which
// expires when the window closes.
type RateLimit struct {
	cache  cache.Cache
	budget int
	now    func() time.Time
}

type RateLimitOption func(*RateLimit)

// WithRateLimitClock replaces time.Now. Intended for tests.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) {
		rl.now = now
	}
}

// NewRateLimit allows requestsPerMin requests per client and window. A
// non-positive budget falls back to 600.
func NewRateLimit(c cache.Cache, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, budget: requestsPerMin, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit answers 429 once a client has used up the budget of the current
// window. The store being unreachable lets every request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientIP(r)
		if client == "" {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		start := now.Truncate(rateLimitWindow)
		closes := start.Add(rateLimitWindow)
		left := closes.Sub(now)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(client, start), left)
		if err != nil {
			slog.Warn("rate limit check failed, allowing request", "client", client, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.budget))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.budget)-count, 0), 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(closes.Unix(), 10))

		if count <= int64(rl.budget) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Debug("rate limit exceeded", "client", client, "count", count, "budget", rl.budget)
		response.RetryAfter(w, left)
		response.Fail(w, http.StatusTooManyRequests, response.Problem{
			Code:    "RATE_LIMIT_EXCEEDED",
			Message: fmt.Sprintf("Request budget of %d per minute used up", rl.budget),
			Details: map[string]any{
				"limit":       rl.budget,
				"retry_after": int(math.Ceil(left.Seconds())),
				"reset_at":    closes.UTC().Format(time.RFC3339),
			},
		})
	})
}
