package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// clientKeyGenerator generates client IP keys
func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		a := rapid.IntRange(1, 254).Draw(t, "a")
		b := rapid.IntRange(0, 254).Draw(t, "b")
		return fmt.Sprintf("10.0.%d.%d", a, b)
	})
}

// =============================================================================
// Property: Requests within limit succeed
// =============================================================================

func testRateLimiter_RequestsWithinLimit(t *rapid.T) {
	config := Config{RPS: 100, Burst: 200, CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	numRequests := rapid.IntRange(1, 50).Draw(t, "numRequests")

	for i := 0; i < numRequests; i++ {
		if !rl.Allow(key) {
			t.Fatalf("Request %d of %d should have been allowed (within burst of %d)", i+1, numRequests, config.Burst)
		}
	}
}

func TestRateLimiter_RequestsWithinLimit(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinLimit)
}

func FuzzRateLimiter_RequestsWithinLimit(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinLimit))
}

// =============================================================================
// Property: Requests beyond burst are blocked, per client
// =============================================================================

func testRateLimiter_ExceedingLimitBlocked(t *rapid.T) {
	burst := rapid.IntRange(1, 20).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	other := clientKeyGenerator().Filter(func(s string) bool { return s != key }).Draw(t, "other")

	for i := 0; i < burst; i++ {
		rl.Allow(key)
	}
	if rl.Allow(key) {
		t.Fatalf("Request beyond burst limit of %d should have been blocked", burst)
	}
	if !rl.Allow(other) {
		t.Fatal("Another client's limit must be independent")
	}
}

func TestRateLimiter_ExceedingLimitBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_ExceedingLimitBlocked)
}

func FuzzRateLimiter_ExceedingLimitBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ExceedingLimitBlocked))
}

// =============================================================================
// Property: Idle limiters are cleaned up
// =============================================================================

func testRateLimiter_IdleLimiterCleanup(t *rapid.T) {
	cleanupInterval := 10 * time.Millisecond
	rl := NewRateLimiter(Config{RPS: 100, Burst: 200, CleanupInterval: cleanupInterval})
	defer rl.Stop()

	numClients := rapid.IntRange(2, 10).Draw(t, "numClients")
	for i := 0; i < numClients; i++ {
		rl.Allow(clientKeyGenerator().Draw(t, "key"))
	}
	if rl.Len() == 0 {
		t.Fatal("Expected some limiters to be created")
	}

	time.Sleep(cleanupInterval + 5*time.Millisecond)
	rl.Cleanup()

	if n := rl.Len(); n != 0 {
		t.Fatalf("Expected all idle limiters to be cleaned up, got %d remaining", n)
	}
}

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rapid.Check(t, testRateLimiter_IdleLimiterCleanup)
}

// =============================================================================
// Property: concurrent access loses no requests
// =============================================================================

func testRateLimiter_ConcurrentAccess(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 1000, Burst: 2000, CleanupInterval: time.Hour})
	defer rl.Stop()

	numClients := rapid.IntRange(5, 20).Draw(t, "numClients")
	numGoroutines := rapid.IntRange(5, 20).Draw(t, "numGoroutines")
	requestsPerGoroutine := rapid.IntRange(10, 50).Draw(t, "requestsPerGoroutine")

	keys := make([]string, numClients)
	for i := range keys {
		keys[i] = clientKeyGenerator().Draw(t, "key")
	}

	var wg sync.WaitGroup
	var successCount, failCount atomic.Int64
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for r := 0; r < requestsPerGoroutine; r++ {
				if rl.Allow(keys[(goroutineID+r)%numClients]) {
					successCount.Add(1)
				} else {
					failCount.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	total := int64(numGoroutines * requestsPerGoroutine)
	if got := successCount.Load() + failCount.Load(); got != total {
		t.Fatalf("Request count mismatch: expected %d, got %d", total, got)
	}
	if successCount.Load() == 0 {
		t.Fatal("Expected at least some requests to succeed")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rapid.Check(t, testRateLimiter_ConcurrentAccess)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1})
	rl.Stop()
	rl.Stop()
}

func TestConfig_Enabled(t *testing.T) {
	if !DefaultConfig.Enabled() {
		t.Fatal("DefaultConfig should be enabled")
	}
	for _, c := range []Config{{}, {RPS: 0, Burst: 10}, {RPS: 10, Burst: 0}, {RPS: -1, Burst: 5}} {
		if c.Enabled() {
			t.Fatalf("%+v should be disabled", c)
		}
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	var served atomic.Int64
	handler := RateLimitMiddleware(rl, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/notes", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("192.0.2.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	// Same host, different port: same client.
	rec := do("192.0.2.1:6000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON error, got %q", rec.Header().Get("Content-Type"))
	}
	if served.Load() != 2 {
		t.Fatalf("limited request reached the handler: served=%d", served.Load())
	}

	if rec := do("192.0.2.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("other client: expected 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_EmptyKeySkips(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	handler := RateLimitMiddleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rec.Code)
		}
	}
	if rl.Len() != 0 {
		t.Fatalf("empty keys should not allocate limiters, got %d", rl.Len())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientIP(req); got != "2001:db8::1" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.RemoteAddr = "unix-socket"
	if got := ClientIP(req); got != "unix-socket" {
		t.Fatalf("ClientIP fallback = %q", got)
	}
}
