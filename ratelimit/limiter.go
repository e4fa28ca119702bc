// Package ratelimit implements the fixed-window counter of spec.md
// §4.1: one entry per (identifier, method), reset when the wall clock
// crosses into a new window, evicted by a background sweep once idle
// past a configurable threshold.
//
// Tick precision is a type parameter (nanosecond vs millisecond ticks,
// per spec.md §4.1 and SPEC_FULL.md §C.2) so callers that already think
// in one unit or the other never have to convert.
package ratelimit

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Tick is the integer tick precision a Limiter counts windows in.
type Tick interface {
	~int64
}

// Rule is the per-method quota: capacity acquires per window.
type Rule struct {
	Capacity uint64
	Window   time.Duration
}

type entry struct {
	windowStart int64 // tick-aligned start of the current window
	count       uint64
	lastTouched int64
}

// Limiter is a fixed-window rate limiter keyed by (identifier, method).
// The zero value is not usable; construct with New.
type Limiter[T Tick] struct {
	mu      sync.Mutex
	rules   map[string]Rule
	entries map[string]*entry
	clock   clock.Clock
	toTick  func(time.Time) T

	deleteThreshold time.Duration
	cleanupTicker   ticker.Ticker
	quit            chan struct{}
	wg              sync.WaitGroup
}

// Option configures a Limiter at construction time.
type Option[T Tick] func(*Limiter[T])

// WithClock overrides the "now" source, primarily for deterministic
// tests via clock.NewTestClock.
func WithClock[T Tick](c clock.Clock) Option[T] {
	return func(l *Limiter[T]) { l.clock = c }
}

// WithDeleteThreshold overrides how long an idle entry survives before
// the cleanup sweep evicts it. Default is ten window lengths of the
// longest configured rule (taken as at least one minute), computed in New.
func WithDeleteThreshold[T Tick](d time.Duration) Option[T] {
	return func(l *Limiter[T]) { l.deleteThreshold = d }
}

// New builds a Limiter for the given per-method rules. toTick converts a
// time.Time into the caller's chosen tick precision (e.g.
// time.Time.UnixNano or a UnixMilli helper).
func New[T Tick](rules map[string]Rule, toTick func(time.Time) T, opts ...Option[T]) *Limiter[T] {
	l := &Limiter[T]{
		rules:   rules,
		entries: make(map[string]*entry),
		clock:   clock.NewDefaultClock(),
		toTick:  toTick,
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.deleteThreshold == 0 {
		longest := time.Minute
		for _, r := range rules {
			if r.Window > longest {
				longest = r.Window
			}
		}
		l.deleteThreshold = 10 * longest
	}
	return l
}

// Result is returned by TryAcquire on success, carrying the post-acquire
// counter so callers can log/export it without a second lookup.
type Result struct {
	Count    uint64
	Capacity uint64
}

// DeniedKind distinguishes the two failure modes spec.md §4.1 names.
type DeniedKind int

const (
	// BeyondCapacity: a single request asked for more than the method's
	// entire window capacity; no amount of waiting would satisfy it.
	BeyondCapacity DeniedKind = iota
	// InsufficientCapacity: the window's remaining budget is too small
	// right now; retrying after RetryAfter may succeed.
	InsufficientCapacity
)

// DeniedError is returned by TryAcquire when the request is rejected.
type DeniedError struct {
	Kind       DeniedKind
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	if e.Kind == BeyondCapacity {
		return "rate limit: request exceeds method capacity"
	}
	return "rate limit: insufficient capacity in current window"
}

func key(id, method string) string { return id + "\x00" + method }

// TryAcquire attempts to consume n units of method's quota for id at the
// instant now. It returns the post-acquire Result on success, or a
// *DeniedError identifying why it failed.
func (l *Limiter[T]) TryAcquire(id, method string, now time.Time, n uint64) (*Result, error) {
	rule, ok := l.rules[method]
	if !ok {
		// An unconfigured method has no quota to enforce.
		return &Result{Count: n, Capacity: 0}, nil
	}
	if n > rule.Capacity {
		return nil, &DeniedError{Kind: BeyondCapacity}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(id, method)
	e, ok := l.entries[k]
	nowTick := int64(l.toTick(now))
	windowTicks := rule.Window.Nanoseconds()
	alignedStart := (nowTick / windowTicks) * windowTicks

	if !ok {
		e = &entry{windowStart: alignedStart}
		l.entries[k] = e
	} else if nowTick-e.windowStart >= windowTicks || nowTick < e.windowStart {
		// now lies outside the current window: reset.
		e.windowStart = alignedStart
		e.count = 0
	}

	if e.count+n > rule.Capacity {
		windowEnd := e.windowStart + windowTicks
		retryAfter := time.Duration(windowEnd - nowTick)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return nil, &DeniedError{Kind: InsufficientCapacity, RetryAfter: retryAfter}
	}

	e.count += n
	e.lastTouched = nowTick
	return &Result{Count: e.count, Capacity: rule.Capacity}, nil
}

// StartCleanup launches the background eviction loop, ticking every
// l.deleteThreshold and dropping entries untouched since before the
// threshold. It mirrors the select-on-ticker idiom of
// htlcswitch/switch.go's logTicker loop. Call Stop to release it.
func (l *Limiter[T]) StartCleanup() {
	l.cleanupTicker = ticker.New(l.deleteThreshold)
	l.cleanupTicker.Resume()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.cleanupTicker.Ticks():
				l.cleanup()
			case <-l.quit:
				return
			}
		}
	}()
}

func (l *Limiter[T]) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := int64(l.toTick(l.clock.Now())) - l.deleteThreshold.Nanoseconds()
	for k, e := range l.entries {
		if e.lastTouched < cutoff {
			delete(l.entries, k)
		}
	}
}

// Stop halts the cleanup loop, if started.
func (l *Limiter[T]) Stop() {
	close(l.quit)
	if l.cleanupTicker != nil {
		l.cleanupTicker.Stop()
	}
	l.wg.Wait()
}
