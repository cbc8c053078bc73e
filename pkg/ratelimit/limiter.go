package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces outbound requests. Wait blocks until the caller may proceed
// or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Jitter sleeps a uniformly random duration in [Min, Max] before every
// request, the way a human browsing a site would pause between clicks.
type Jitter struct {
	Min time.Duration
	Max time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(context.Context, time.Duration) error
}

// NewJitter creates a jitter limiter with bounds [min, max]
func NewJitter(min, max time.Duration) *Jitter {
	if max < min {
		max = min
	}
	return &Jitter{
		Min:   min,
		Max:   max,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}
}

// WithRand swaps the random source, mainly for deterministic tests
func (j *Jitter) WithRand(r *rand.Rand) *Jitter {
	j.mu.Lock()
	j.rng = r
	j.mu.Unlock()
	return j
}

// Delay draws the next pause without sleeping
func (j *Jitter) Delay() time.Duration {
	span := j.Max - j.Min
	if span <= 0 {
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Min + time.Duration(j.rng.Int63n(int64(span)+1))
}

// Wait sleeps for one random delay
func (j *Jitter) Wait(ctx context.Context) error {
	sleep := j.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, j.Delay())
}

// SlidingWindow implements a sliding window rate limiter
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
	now         func() time.Time
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// PerMinute returns a window admitting n requests per rolling minute
func PerMinute(n int) *SlidingWindow {
	return NewSlidingWindow(n, time.Minute)
}

// Allow checks if a request can proceed and records it when it can
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve()
	return ok
}

// reserve records a request if there is room, otherwise reports how long
// until the oldest one leaves the window
func (sw *SlidingWindow) reserve() (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}
	wait := sw.windowSize - now.Sub(sw.requests[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Wait blocks until a request is allowed
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.reserve()
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Chain waits on each limiter in order
type Chain []Limiter

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if l == nil {
			continue
		}
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Nop never waits
type Nop struct{}

func (Nop) Wait(ctx context.Context) error { return ctx.Err() }

// New builds the request pacer: a random jitter between min and max,
// followed by a hard per-minute ceiling when requestsPerMinute > 0.
func New(min, max time.Duration, requestsPerMinute int) Limiter {
	var chain Chain
	if max > 0 {
		chain = append(chain, NewJitter(min, max))
	}
	if requestsPerMinute > 0 {
		chain = append(chain, PerMinute(requestsPerMinute))
	}
	if len(chain) == 0 {
		return Nop{}
	}
	if len(chain) == 1 {
		return chain[0]
	}
	return chain
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
