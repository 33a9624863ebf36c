package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestAllowWindow(t *testing.T) {
	rl, clock := newTestLimiter(t, 2)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request in the window must be refused")
	}
	if !rl.Allow("b") {
		t.Fatal("clients are limited independently")
	}

	*clock = clock.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("a new window must reset the count")
	}
	if rl.Rejected() != 1 {
		t.Errorf("Rejected() = %d", rl.Rejected())
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 5)
	rl.Allow("a")
	rl.Allow("b")
	*clock = clock.Add(2 * time.Minute)
	rl.Allow("b")
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	onlyPost := func(r *http.Request) bool { return r.Method == http.MethodPost }
	byHeader := func(r *http.Request) string { return r.Header.Get("X-User-ID") }
	h := rl.Middleware(byHeader, onlyPost, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method string) int {
		r := httptest.NewRequest(method, "/", nil)
		r.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}
	if do(http.MethodPost) != http.StatusNoContent {
		t.Fatal("first write must pass")
	}
	if code := do(http.MethodPost); code != http.StatusTooManyRequests {
		t.Fatalf("second write = %d, want 429", code)
	}
	if do(http.MethodGet) != http.StatusNoContent {
		t.Fatal("reads are not limited")
	}
}
