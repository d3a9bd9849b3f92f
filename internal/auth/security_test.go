package auth

import (
	"bytes"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/mrlokans/librarian/internal/config"
)

func TestRateLimiter_LocksAfterMaxAttempts(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 3, WindowDuration: time.Minute, LockoutDuration: time.Minute})
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if locked, _ := rl.RecordFailure("10.0.0.1", "desk@library.test"); locked {
			t.Fatalf("attempt %d should not lock", i+1)
		}
	}
	if allowed, _ := rl.Allow("10.0.0.1", "desk@library.test"); !allowed {
		t.Fatal("attempts under the limit should be allowed")
	}

	locked, retryAfter := rl.RecordFailure("10.0.0.1", "DESK@library.test")
	if !locked || retryAfter != time.Minute {
		t.Fatalf("third failure should lock for a minute, got %v %v", locked, retryAfter)
	}
	if allowed, _ := rl.Allow("10.0.0.1", "desk@library.test"); allowed {
		t.Error("locked pair should be rejected")
	}
	if allowed, _ := rl.Allow("10.0.0.2", "desk@library.test"); !allowed {
		t.Error("other IPs are tracked independently")
	}
}

func TestRateLimiter_SuccessResets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 2})
	defer rl.Stop()

	rl.RecordFailure("10.0.0.1", "desk@library.test")
	rl.RecordSuccess("10.0.0.1", "desk@library.test")
	if locked, _ := rl.RecordFailure("10.0.0.1", "desk@library.test"); locked {
		t.Error("success should reset the failure count")
	}
}

func TestRateLimiter_WindowAndLockoutExpire(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 2, WindowDuration: time.Minute, LockoutDuration: 10 * time.Minute})
	defer rl.Stop()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.RecordFailure("10.0.0.1", "desk@library.test")
	now = now.Add(2 * time.Minute)
	if locked, _ := rl.RecordFailure("10.0.0.1", "desk@library.test"); locked {
		t.Fatal("a failure outside the window starts a new count")
	}

	if locked, _ := rl.RecordFailure("10.0.0.1", "desk@library.test"); !locked {
		t.Fatal("second failure inside the window should lock")
	}
	now = now.Add(4 * time.Minute)
	allowed, retryAfter := rl.Allow("10.0.0.1", "desk@library.test")
	if allowed || retryAfter != 6*time.Minute {
		t.Fatalf("expected 6m of lockout left, got %v %v", allowed, retryAfter)
	}

	now = now.Add(7 * time.Minute)
	if allowed, _ := rl.Allow("10.0.0.1", "desk@library.test"); !allowed {
		t.Error("lockout should have expired")
	}
	rl.sweep()
	if len(rl.windows) != 0 {
		t.Errorf("sweep should drop expired windows, %d left", len(rl.windows))
	}
	rl.Stop()
}

func TestRateLimitMiddleware_ReadsJSONEmail(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 1})
	defer rl.Stop()
	rl.RecordFailure("192.0.2.1", "desk@library.test")

	var seen string
	router := gin.New()
	router.POST("/login", rl.RateLimitMiddleware(), func(c *gin.Context) {
		var body loginRequest
		_ = c.ShouldBindBodyWith(&body, binding.JSON)
		seen = body.Email
		c.Status(http.StatusOK)
	})

	send := func(email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"`+email+`","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("Desk@Library.test"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := send("other@library.test"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen != "other@library.test" {
		t.Errorf("handler should still read the body, got %q", seen)
	}
}

func TestRateLimitConfigFromAuth(t *testing.T) {
	cfg := RateLimitConfigFromAuth(config.Auth{MaxLoginAttempts: 7, RateLimitWindow: time.Hour})
	if cfg.MaxAttempts != 7 || cfg.WindowDuration != time.Hour {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestHSTSHeader(t *testing.T) {
	router := gin.New()
	router.Use(StrictTransportSecurityMiddleware(31536000))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set on plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("unexpected HSTS header %q", got)
	}
}
