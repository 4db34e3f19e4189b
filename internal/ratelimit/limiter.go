// Package ratelimit provides in-process sliding-window rate limiting for
// completion submissions: one window per subject and one per origin
// address. Deliberately approximate: single process, no shared store.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Error reports a rejected action with the limit that tripped and how long
// until the oldest stamp falls out of the window.
type Error struct {
	Scope      string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e Error) Error() string {
	return fmt.Sprintf("rate limit: max %d per %s per %s; retry in %s",
		e.Limit, e.Window, e.Scope, e.RetryAfter.Round(time.Second))
}

type Config struct {
	SubjectLimit  int
	SubjectWindow time.Duration
	AddressLimit  int
	AddressWindow time.Duration
	SweepEvery    time.Duration
}

type Limiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	subjects  map[string][]time.Time
	addresses map[string][]time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

func New(cfg Config) *Limiter {
	if cfg.SubjectLimit <= 0 {
		cfg.SubjectLimit = 5
	}
	if cfg.SubjectWindow <= 0 {
		cfg.SubjectWindow = time.Hour
	}
	if cfg.AddressLimit <= 0 {
		cfg.AddressLimit = 3
	}
	if cfg.AddressWindow <= 0 {
		cfg.AddressWindow = 10 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	return &Limiter{
		cfg:       cfg,
		now:       time.Now,
		subjects:  make(map[string][]time.Time),
		addresses: make(map[string][]time.Time),
		stop:      make(chan struct{}),
	}
}

// SetNow injects a clock for tests.
func (l *Limiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Allow checks both windows for the guarded action. On success the current
// instant is appended to both; on rejection neither window is touched.
// address may be empty when the origin is unknown.
func (l *Limiter) Allow(subject, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	subjectStamps := evict(l.subjects[subject], now.Add(-l.cfg.SubjectWindow))
	l.subjects[subject] = subjectStamps
	if len(subjectStamps) >= l.cfg.SubjectLimit {
		return Error{
			Scope:      "account",
			Limit:      l.cfg.SubjectLimit,
			Window:     l.cfg.SubjectWindow,
			RetryAfter: subjectStamps[0].Add(l.cfg.SubjectWindow).Sub(now),
		}
	}

	var addressStamps []time.Time
	if address != "" {
		addressStamps = evict(l.addresses[address], now.Add(-l.cfg.AddressWindow))
		l.addresses[address] = addressStamps
		if len(addressStamps) >= l.cfg.AddressLimit {
			return Error{
				Scope:      "address",
				Limit:      l.cfg.AddressLimit,
				Window:     l.cfg.AddressWindow,
				RetryAfter: addressStamps[0].Add(l.cfg.AddressWindow).Sub(now),
			}
		}
	}

	l.subjects[subject] = append(subjectStamps, now)
	if address != "" {
		l.addresses[address] = append(addressStamps, now)
	}
	return nil
}

func evict(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}

// StartSweeper launches the periodic purge of fully-expired keys so idle
// subjects do not pin memory. Stop ends it.
func (l *Limiter) StartSweeper() {
	go func() {
		ticker := time.NewTicker(l.cfg.SweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Sweep drops keys whose every stamp has aged out of its window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, stamps := range l.subjects {
		if remaining := evict(stamps, now.Add(-l.cfg.SubjectWindow)); len(remaining) == 0 {
			delete(l.subjects, key)
		} else {
			l.subjects[key] = remaining
		}
	}
	for key, stamps := range l.addresses {
		if remaining := evict(stamps, now.Add(-l.cfg.AddressWindow)); len(remaining) == 0 {
			delete(l.addresses, key)
		} else {
			l.addresses[key] = remaining
		}
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
