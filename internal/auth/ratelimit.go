package auth

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/mrlokans/librarian/internal/config"
)

// RateLimitConfig configures login throttling. Zero values take the defaults.
type RateLimitConfig struct {
	MaxAttempts     int           // failures before the pair is locked, default 5
	WindowDuration  time.Duration // failures older than this are forgotten, default 15m
	LockoutDuration time.Duration // default 30m
	SweepInterval   time.Duration // default 5m
}

// RateLimitConfigFromAuth derives limiter settings from the auth config.
func RateLimitConfigFromAuth(cfg config.Auth) RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:     cfg.MaxLoginAttempts,
		WindowDuration:  cfg.RateLimitWindow,
		LockoutDuration: cfg.LockoutDuration,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = 15 * time.Minute
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	return c
}

// loginKey identifies a client trying one staff email.
type loginKey struct {
	ip    string
	email string
}

func newLoginKey(ip, email string) loginKey {
	return loginKey{ip: ip, email: strings.ToLower(strings.TrimSpace(email))}
}

type failureWindow struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

func (w *failureWindow) locked(now time.Time) bool {
	return now.Before(w.lockedUntil)
}

func (w *failureWindow) expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.windowStart) > window
}

// RateLimiter throttles failed staff logins per client IP and email. It is
// independent of the account lockout kept on the staff row: it also slows
// down guessing against emails that do not exist.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[loginKey]*failureWindow

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter and its background sweep. Call Stop when done.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		windows: make(map[loginKey]*failureWindow),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether ip may try to log in as email and, if not, how long
// until it may.
func (rl *RateLimiter) Allow(ip, email string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[newLoginKey(ip, email)]
	if !ok {
		return true, 0
	}
	if w.locked(now) {
		return false, w.lockedUntil.Sub(now)
	}
	return true, 0
}

// RecordFailure counts a failed login. It reports whether the pair is now
// locked and for how long.
func (rl *RateLimiter) RecordFailure(ip, email string) (bool, time.Duration) {
	key := newLoginKey(ip, email)
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || (w.expired(now, rl.cfg.WindowDuration) && !w.locked(now)) {
		w = &failureWindow{windowStart: now}
		rl.windows[key] = w
	}

	w.failures++
	if w.failures >= rl.cfg.MaxAttempts {
		w.lockedUntil = now.Add(rl.cfg.LockoutDuration)
		return true, rl.cfg.LockoutDuration
	}
	return false, 0
}

// RecordSuccess forgets the failures of the pair.
func (rl *RateLimiter) RecordSuccess(ip, email string) {
	rl.mu.Lock()
	delete(rl.windows, newLoginKey(ip, email))
	rl.mu.Unlock()
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

// sweep drops windows that are neither counting nor locked.
func (rl *RateLimiter) sweep() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if w.expired(now, rl.cfg.WindowDuration) && !w.locked(now) {
			delete(rl.windows, key)
		}
	}
}

// RateLimitMiddleware answers 429 for a locked IP and email pair before the
// login handler runs. The body stays readable for the handler.
func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		email := loginEmail(c)
		if email == "" {
			c.Next()
			return
		}

		if allowed, retryAfter := rl.Allow(c.ClientIP(), email); !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many login attempts",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// loginEmail peeks at the email of a JSON or form login body.
func loginEmail(c *gin.Context) string {
	var body struct {
		Email string `json:"email" form:"email"`
	}
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}
