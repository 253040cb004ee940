package middleware

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testLimiterConfig(generalBurst, generateBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		GenerateRate:    rate.Limit(1.0 / 60.0),
		GenerateBurst:   generateBurst,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if math.Abs(float64(cfg.GeneralRate)-2.0) > 1e-9 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 || cfg.GenerateBurst != 10 {
		t.Errorf("bursts = %d/%d, want 120/10", cfg.GeneralBurst, cfg.GenerateBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v", cfg.CleanupInterval)
	}
}

func TestGeneralMiddleware_BurstThen429(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 10))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body["code"])
	}
}

func TestGeneralMiddleware_IndependentPerUser(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 10))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for _, user := range []string{"user-a", "user-b"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(user))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", user, w.Code)
		}
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_NoUser_Returns401(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestGenerateMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(100, 1))
	defer rl.Stop()
	generate := rl.GenerateMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	generate.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first generate: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	generate.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second generate: status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general should be unaffected, status = %d", w.Code)
	}
	if rl.GenerateLimiterCount() != 1 {
		t.Errorf("GenerateLimiterCount = %d, want 1", rl.GenerateLimiterCount())
	}
}

func TestAnalyzeMiddleware_KeysOnBodyUserID(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(100, 1))
	defer rl.Stop()

	var gotBodies []string
	handler := rl.AnalyzeMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBodies = append(gotBodies, string(b))
		w.WriteHeader(http.StatusOK)
	}))

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-repo", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	alice := `{"repo_url":"https://github.com/a/b","user_id":"alice"}`
	if code := post(alice); code != http.StatusOK {
		t.Fatalf("first alice: status = %d", code)
	}
	if code := post(alice); code != http.StatusTooManyRequests {
		t.Errorf("second alice: status = %d, want 429", code)
	}
	if code := post(`{"user_id":"bob"}`); code != http.StatusOK {
		t.Errorf("bob: status = %d, want 200", code)
	}
	if code := post(`not json`); code != http.StatusOK {
		t.Errorf("unkeyed body should pass through, status = %d", code)
	}

	if len(gotBodies) != 3 || gotBodies[0] != alice {
		t.Errorf("handler should see the original body, got %q", gotBodies)
	}
	if rl.AnalyzeLimiterCount() != 2 {
		t.Errorf("AnalyzeLimiterCount = %d, want 2", rl.AnalyzeLimiterCount())
	}
}

func TestRateLimiter_Cleanup_EvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5))
	defer rl.Stop()

	rl.general.get("stale")
	rl.general.get("fresh")
	rl.general.limiters["stale"].lastAccess = time.Now().Add(-time.Hour)

	rl.cleanup()

	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}
	if _, ok := rl.general.limiters["fresh"]; !ok {
		t.Error("fresh entry should be kept")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}
