package ratelimit

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Plan identifies a rate-limit tier applied to a group of endpoints.
type Plan string

const (
	// PlanAPI covers general API endpoints.
	PlanAPI Plan = "API"
	// PlanUpload covers file upload endpoints.
	PlanUpload Plan = "UPLOAD"
	// PlanAI covers endpoints that trigger AI calls.
	PlanAI Plan = "AI"
)

// PlanLimits is the request budget for one plan.
type PlanLimits struct {
	Limit  int
	Window time.Duration
}

// Config carries the limiter settings for all plans.
type Config struct {
	Enabled bool
	API     PlanLimits
	Upload  PlanLimits
	AI      PlanLimits
}

// Result is the outcome of a single token consumption attempt.
type Result struct {
	Allowed           bool
	Limit             int
	Remaining         int
	RetryAfterSeconds int
}

// Limiter applies per-key token buckets with greedy continuous refill. Buckets
// are created lazily on first use and live for the process lifetime.
type Limiter struct {
	cfg     Config
	buckets sync.Map // "key:PLAN" -> *bucket
	now     func() time.Time
	logger  zerolog.Logger
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// New constructs a limiter from the supplied configuration.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// TryConsume attempts to take one token from the bucket identified by key and
// plan. The decision is synchronous; callers are never blocked waiting for a
// token.
func (l *Limiter) TryConsume(key string, plan Plan) Result {
	if !l.cfg.Enabled {
		return Result{Allowed: true, Limit: 0, Remaining: 0}
	}

	limits := l.planLimits(plan)
	bucketKey := key + ":" + string(plan)

	value, loaded := l.buckets.Load(bucketKey)
	if !loaded {
		// LoadOrStore guarantees concurrent first requests for the same key
		// resolve to a single bucket.
		value, _ = l.buckets.LoadOrStore(bucketKey, newBucket(limits, l.now()))
	}

	b := value.(*bucket)
	allowed, remaining, retryAfter := b.consume(l.now())

	if !allowed {
		l.logger.Warn().
			Str("key", bucketKey).
			Int("retry_after_seconds", retryAfter).
			Msg("rate limit exceeded")
		return Result{Allowed: false, Limit: limits.Limit, Remaining: 0, RetryAfterSeconds: retryAfter}
	}

	return Result{Allowed: true, Limit: limits.Limit, Remaining: remaining}
}

// ResolvePlan maps a request path to the rate-limit plan that governs it.
func ResolvePlan(path string) Plan {
	switch {
	case strings.Contains(path, "/upload") || strings.Contains(path, "/submissions"):
		return PlanUpload
	case strings.Contains(path, "/ai") || strings.Contains(path, "/grading"):
		return PlanAI
	default:
		return PlanAPI
	}
}

func (l *Limiter) planLimits(plan Plan) PlanLimits {
	switch plan {
	case PlanUpload:
		return l.cfg.Upload
	case PlanAI:
		return l.cfg.AI
	default:
		return l.cfg.API
	}
}

func newBucket(limits PlanLimits, now time.Time) *bucket {
	capacity := float64(limits.Limit)
	window := limits.Window.Seconds()
	if window <= 0 {
		window = 1
	}

	return &bucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity / window,
		last:       now,
	}
}

// consume refills the bucket proportionally to elapsed time, then takes one
// token if available. Returns (allowed, remaining whole tokens, seconds until
// the next token when blocked).
func (b *bucket) consume(now time.Time) (bool, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}

	if b.refillRate <= 0 {
		return false, 0, math.MaxInt32
	}

	waitSeconds := (1 - b.tokens) / b.refillRate
	return false, 0, int(math.Ceil(waitSeconds))
}
