// Package ratelimit implements a fixed-window request limiter with counters
// persisted to disk so quotas survive across process restarts, grounded on
// original_source/Agents/sheets_agent/rate_limiter.py.
package ratelimit

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/statestore"
)

// ErrLimitExceeded is returned by Acquire when max_wait elapses without a
// slot becoming available.
var ErrLimitExceeded = errors.New("ratelimit: limit exceeded")

type state struct {
	MinuteWindowStart time.Time `json:"minute_window_start"`
	MinuteCount       int       `json:"minute_count"`
	DayWindowStart    time.Time `json:"day_window_start"`
	DayCount          int       `json:"day_count"`
	LastRequest       time.Time `json:"last_request"`
}

// Remaining reports unused quota for the current windows.
type Remaining struct {
	PerMinute int
	PerDay    int
}

// Limiter enforces per-minute and per-day quotas using fixed buckets that
// reset when their window elapses — an approximation of a true sliding
// window, preserved deliberately (see the Open Question this resolves).
type Limiter struct {
	stateDir          string
	name              string
	requestsPerMinute int
	requestsPerDay    int
	backoffBase       time.Duration
	maxWait           time.Duration
	jitter            bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRequestsPerMinute overrides the default of 60.
func WithRequestsPerMinute(n int) Option { return func(l *Limiter) { l.requestsPerMinute = n } }

// WithRequestsPerDay overrides the default of 10000.
func WithRequestsPerDay(n int) Option { return func(l *Limiter) { l.requestsPerDay = n } }

// WithBackoffBase overrides the default 1s backoff base.
func WithBackoffBase(d time.Duration) Option { return func(l *Limiter) { l.backoffBase = d } }

// WithMaxWait overrides the default 60s total wait before giving up.
func WithMaxWait(d time.Duration) Option { return func(l *Limiter) { l.maxWait = d } }

// WithoutJitter disables jitter on backoff delays, useful for deterministic tests.
func WithoutJitter() Option { return func(l *Limiter) { l.jitter = false } }

// New returns a Limiter whose persisted counters live under stateDir, named
// after name (sanitized the same way lock/queue names are).
func New(stateDir, name string, opts ...Option) *Limiter {
	l := &Limiter{
		stateDir:          stateDir,
		name:              name,
		requestsPerMinute: 60,
		requestsPerDay:    10_000,
		backoffBase:       time.Second,
		maxWait:           60 * time.Second,
		jitter:            true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) statePath() string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(l.name)
	return filepath.Join(l.stateDir, fmt.Sprintf("rate_limit_%s.json", safe))
}

func emptyState(now time.Time) state {
	return state{
		MinuteWindowStart: now,
		DayWindowStart:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.UTC().Location()),
	}
}

func (l *Limiter) load() state {
	def := emptyState(time.Now().UTC())
	s, err := statestore.Load(l.statePath(), def)
	if err != nil {
		return def
	}
	return s
}

func (l *Limiter) save(s state) error {
	return statestore.Save(l.statePath(), s)
}

func rollWindows(s state, now time.Time) state {
	if now.Sub(s.MinuteWindowStart) >= time.Minute {
		s.MinuteWindowStart = now
		s.MinuteCount = 0
	}
	todayMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.UTC().Location())
	if s.DayWindowStart.Before(todayMidnight) {
		s.DayWindowStart = todayMidnight
		s.DayCount = 0
	}
	return s
}

// TryAcquire makes a single non-blocking attempt to consume a slot.
func (l *Limiter) TryAcquire() (bool, error) {
	now := time.Now().UTC()
	s := rollWindows(l.load(), now)

	if s.MinuteCount >= l.requestsPerMinute || s.DayCount >= l.requestsPerDay {
		return false, l.save(s)
	}

	s.MinuteCount++
	s.DayCount++
	s.LastRequest = now
	return true, l.save(s)
}

// Acquire blocks, retrying with exponential (optionally jittered) backoff,
// until a slot is available or maxWait elapses.
func (l *Limiter) Acquire() error {
	deadline := time.Now().Add(l.maxWait)
	attempt := 0
	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			rem := l.Remaining()
			return fmt.Errorf("%w: %q after %s — remaining per_minute=%d per_day=%d",
				ErrLimitExceeded, l.name, l.maxWait, rem.PerMinute, rem.PerDay)
		}

		shift := attempt
		if shift > 5 {
			shift = 5
		}
		delay := l.backoffBase * time.Duration(int64(1)<<uint(shift))
		if l.jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
		}
		if remaining := time.Until(deadline); delay > remaining {
			delay = remaining
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		attempt++
	}
}

// Remaining reports unused quota for the current windows.
func (l *Limiter) Remaining() Remaining {
	s := rollWindows(l.load(), time.Now().UTC())
	perMinute := l.requestsPerMinute - s.MinuteCount
	if perMinute < 0 {
		perMinute = 0
	}
	perDay := l.requestsPerDay - s.DayCount
	if perDay < 0 {
		perDay = 0
	}
	return Remaining{PerMinute: perMinute, PerDay: perDay}
}

// Reset clears all counters. Intended for tests.
func (l *Limiter) Reset() error {
	return l.save(emptyState(time.Now().UTC()))
}
