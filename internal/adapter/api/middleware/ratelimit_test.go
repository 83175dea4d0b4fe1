package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/conversion-relay/internal/adapter/identity"
)

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := identity.NewResolver(logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("burst exhaustion rejects", func(t *testing.T) {
		handler := RateLimit(1, 2, resolver, nil)(next)

		statuses := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/events/send", nil)
			req.RemoteAddr = "203.0.113.7:1234"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			statuses = append(statuses, rr.Code)
		}

		if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
			t.Errorf("requests within burst must pass: %v", statuses)
		}
		if statuses[2] != http.StatusTooManyRequests {
			t.Errorf("request beyond burst must be rejected: %v", statuses)
		}
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		handler := RateLimit(1, 1, resolver, nil)(next)

		first := httptest.NewRequest(http.MethodPost, "/events/send", nil)
		first.Header.Set("X-Forwarded-For", "198.51.100.1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, first)
		if rr.Code != http.StatusOK {
			t.Fatalf("first client rejected: %d", rr.Code)
		}

		second := httptest.NewRequest(http.MethodPost, "/events/send", nil)
		second.Header.Set("X-Forwarded-For", "198.51.100.2")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, second)
		if rr.Code != http.StatusOK {
			t.Errorf("second client must have its own bucket: %d", rr.Code)
		}
	})
}

func TestLimiterPoolSweep(t *testing.T) {
	t.Run("idle clients are reclaimed", func(t *testing.T) {
		now := time.Unix(1000, 0)
		pool := newLimiterPool(1, 1)
		pool.now = func() time.Time { return now }

		for i := 0; i < 500; i++ {
			pool.allow(fmt.Sprintf("198.51.100.%d", i))
		}
		if pool.size() != 500 {
			t.Fatalf("size = %d, want 500", pool.size())
		}

		// Advance past the idle TTL; the next request triggers a sweep and
		// only its own entry survives.
		now = now.Add(pool.idleTTL + time.Second)
		pool.allow("203.0.113.7")
		if pool.size() != 1 {
			t.Errorf("size after sweep = %d, want 1", pool.size())
		}
	})

	t.Run("active clients keep their bucket state", func(t *testing.T) {
		// Zero refill rate: an exhausted bucket stays exhausted, so a
		// client that got a fresh limiter would be detectable.
		now := time.Unix(2000, 0)
		pool := newLimiterPool(0, 2)
		pool.now = func() time.Time { return now }

		if !pool.allow("203.0.113.7") || !pool.allow("203.0.113.7") {
			t.Fatal("requests within burst must pass")
		}

		// Keep the client active just inside the TTL window, then let
		// another request trigger the sweep.
		now = now.Add(pool.idleTTL - time.Second)
		pool.allow("203.0.113.7")
		now = now.Add(2 * time.Second)
		pool.allow("198.51.100.1")

		if pool.size() != 2 {
			t.Errorf("size = %d, want both active clients retained", pool.size())
		}
		if pool.allow("203.0.113.7") {
			t.Error("sweep must not hand an active client a fresh burst")
		}
	})
}
