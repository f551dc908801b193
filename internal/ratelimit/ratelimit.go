package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jam-carter/OrderOrchestrator/internal/httpmw"
)

const (
	DefaultRate        = 5
	DefaultBurst       = 20
	DefaultTTL         = 5 * time.Minute
	DefaultMaxVisitors = 10000
)

// visitor is one client's bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is set after the first denial; reset when the entry is evicted
	logged bool
}

// ClientLimiter holds per-client buckets and evicts idle ones in the
// background.
type ClientLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	full     bool

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int // 0 = unbounded

	onFirstDenied func(client string)
	onDenied      func(client string)
	onCapacity    func()
}

type Option func(*ClientLimiter)

// WithRate sets the refill rate and bucket size: WithRate(5, 20) allows 20
// requests at once, then 5 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *ClientLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle client keeps its bucket.
func WithTTL(d time.Duration) Option {
	return func(l *ClientLimiter) { l.ttl = d }
}

// WithMaxVisitors caps tracked clients. New clients are refused once the cap
// is reached; known clients keep their buckets.
func WithMaxVisitors(n int) Option {
	return func(l *ClientLimiter) { l.maxVisitors = n }
}

// WithOnFirstDenied runs once per client when it is first limited (logging).
func WithOnFirstDenied(fn func(client string)) Option {
	return func(l *ClientLimiter) { l.onFirstDenied = fn }
}

// WithOnDenied runs on every denial (metrics).
func WithOnDenied(fn func(client string)) Option {
	return func(l *ClientLimiter) { l.onDenied = fn }
}

// WithOnCapacity runs when the visitor table fills up, once per episode.
func WithOnCapacity(fn func()) Option {
	return func(l *ClientLimiter) { l.onCapacity = fn }
}

// New builds a limiter and starts eviction, which stops when ctx ends.
func New(ctx context.Context, opts ...Option) *ClientLimiter {
	l := &ClientLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   DefaultRate,
		burst:       DefaultBurst,
		ttl:         DefaultTTL,
		maxVisitors: DefaultMaxVisitors,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// allow reports whether client may proceed and, if not, how long it should
// wait before the next token.
func (l *ClientLimiter) allow(client string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	v, ok := l.visitors[client]
	if !ok {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			first := !l.full
			l.full = true
			l.mu.Unlock()
			if first && l.onCapacity != nil {
				l.onCapacity()
			}
			if l.onDenied != nil {
				l.onDenied(client)
			}
			return false, l.refillInterval()
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		l.mu.Unlock()
		return true, 0
	}

	wait := l.waitFor(v.limiter.TokensAt(now))
	firstDenial := !v.logged
	v.logged = true
	// hooks may be slow; run them unlocked
	l.mu.Unlock()

	if firstDenial && l.onFirstDenied != nil {
		l.onFirstDenied(client)
	}
	if l.onDenied != nil {
		l.onDenied(client)
	}
	return false, wait
}

func (l *ClientLimiter) waitFor(tokens float64) time.Duration {
	if l.perSecond <= 0 {
		return l.ttl
	}
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.perSecond) * float64(time.Second))
}

func (l *ClientLimiter) refillInterval() time.Duration { return l.waitFor(0) }

// cleanup evicts clients idle for longer than the TTL, checking every TTL/2.
func (l *ClientLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *ClientLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for c, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, c)
		}
	}
	if l.maxVisitors <= 0 || len(l.visitors) < l.maxVisitors {
		l.full = false
	}
}

// Len is the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware answers 429 {"status":"error"} with Retry-After when the client
// resolved by httpmw.ClientIP is over its budget.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(httpmw.ClientIPFromContext(r.Context()), time.Now())
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter(wait))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status":"error"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// whole seconds, never less than one
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	return strconv.Itoa(max(secs, 1))
}
