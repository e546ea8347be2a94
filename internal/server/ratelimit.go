package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// Per-client token bucket defaults for POST /api/chat.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle client buckets are dropped after limiterIdleTTL; the sweep runs every
// limiterSweepEvery.
const (
	limiterIdleTTL    = 5 * time.Minute
	limiterSweepEvery = time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter starts a limiter allowing rps sustained requests and burst
// instantaneous requests per client. The returned func stops the background
// sweep.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(limiterSweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				rl.sweep(now)
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) bucket(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(rl.buckets, ip)
		}
	}
}

// middleware rejects requests over the client's budget with 429, a JSON
// error body, and a Retry-After header telling the client when its next
// token is due.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ip := clientIP(r)

		res := rl.bucket(ip, now).ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)

			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			w.Header().Set("Retry-After", retryAfter(delay, res.OK()))
			writeJSON(w, log, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter renders delay as whole seconds, at least 1. A reservation that
// can never be satisfied (burst 0) reports one minute.
func retryAfter(delay time.Duration, satisfiable bool) string {
	if !satisfiable {
		return "60"
	}
	secs := int(math.Ceil(delay.Seconds()))
	return strconv.Itoa(max(secs, 1))
}

// clientIP is the request's remote host without its port. X-Forwarded-For
// is ignored: the server binds to loopback by default and sits behind no
// proxy it could trust.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
