package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stakegov/crypto"
	"stakegov/observability"
)

// RateLimit is a token bucket refilled at RequestsPerMinute. A non-positive
// rate disables the limit for the group.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client and route group. Clients are
// keyed by authenticated caller when present, otherwise by remote address.
type RateLimiter struct {
	logger *slog.Logger
	limits map[string]RateLimit

	mu        sync.Mutex
	visitors  map[string]*rateEntry
	idleTTL   time.Duration
	lastSweep time.Time
	clockNow  func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		idleTTL:  5 * time.Minute,
		clockNow: time.Now,
	}
}

// Middleware limits requests in the named group. Groups without a configured
// limit pass through. Throttled requests get 429 with a Retry-After hint.
func (r *RateLimiter) Middleware(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := r.limits[group]
		if !ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limiter := r.limiterFor(group+"|"+clientID(req), limit)
			now := r.clockNow()
			if limiter.AllowN(now, 1) {
				next.ServeHTTP(w, req)
				return
			}
			observability.API().RecordThrottle(group, "rate_limit")
			r.logger.Debug("request throttled",
				slog.String("group", group),
				slog.String("requestId", RequestIDFrom(req.Context())))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limiter, now)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","reason":"rate_limited"}` + "\n"))
		})
	}
}

// retryAfterSeconds rounds the wait for the next token up to whole seconds.
func retryAfterSeconds(limiter *rate.Limiter, now time.Time) int {
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 60
	}
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (r *RateLimiter) limiterFor(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	if now.Sub(r.lastSweep) >= r.idleTTL {
		r.sweep(now)
		r.lastSweep = now
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := rate.Limit(cfg.RequestsPerMinute / 60.0)
	if perSecond <= 0 {
		perSecond = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(perSecond, burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep drops limiters idle for longer than idleTTL. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if caller, ok := CallerFrom(r.Context()); ok {
		return crypto.AccountAddress(caller).String()
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
