package budget

import (
	"fmt"
	"sync"
	"time"
)

// Per-client request ceilings. These guard against a single visitor draining
// the shared budget; the cost ledger still caps aggregate spend.
const (
	perIPBurstMax  = 4
	perIPMinuteMax = 8
	perIPHourMax   = 60
	perIPDayMax    = 120
)

// LimitedError reports which per-IP window rejected a request.
type LimitedError struct {
	Window string
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("per-ip %s request limit reached", e.Window)
}

// Reason returns the fallback reason code for this rejection.
func (e *LimitedError) Reason() string {
	return "per_ip_" + e.Window
}

type countWindow struct {
	length  time.Duration
	limit   int
	entries []time.Time
}

func (w *countWindow) prune(now time.Time) {
	i := 0
	for i < len(w.entries) && now.Sub(w.entries[i]) > w.length {
		i++
	}
	w.entries = w.entries[i:]
}

func (w *countWindow) full(now time.Time) bool {
	w.prune(now)
	return len(w.entries) >= w.limit
}

type ipWindows struct {
	burst  countWindow
	minute countWindow
	hour   countWindow
	day    countWindow
}

func newIPWindows() *ipWindows {
	return &ipWindows{
		burst:  countWindow{length: time.Second, limit: perIPBurstMax},
		minute: countWindow{length: time.Minute, limit: perIPMinuteMax},
		hour:   countWindow{length: time.Hour, limit: perIPHourMax},
		day:    countWindow{length: 24 * time.Hour, limit: perIPDayMax},
	}
}

// IPLimiter enforces sliding request-count windows per client address.
type IPLimiter struct {
	mu    sync.Mutex
	perIP map[string]*ipWindows

	now func() time.Time
}

// NewIPLimiter creates an empty limiter.
func NewIPLimiter() *IPLimiter {
	return &IPLimiter{
		perIP: make(map[string]*ipWindows),
		now:   time.Now,
	}
}

// Allow records one request for ip if every window admits it, otherwise
// returns a LimitedError naming the tightest violated window.
func (l *IPLimiter) Allow(ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.perIP[ip]
	if !ok {
		w = newIPWindows()
		l.perIP[ip] = w
	}

	checks := []struct {
		name   string
		window *countWindow
	}{
		{"burst", &w.burst},
		{"minute", &w.minute},
		{"hour", &w.hour},
		{"day", &w.day},
	}
	for _, c := range checks {
		if c.window.full(now) {
			return &LimitedError{Window: c.name}
		}
	}
	for _, c := range checks {
		c.window.entries = append(c.window.entries, now)
	}
	return nil
}

// Counts reports the live per-window request counts for ip.
func (l *IPLimiter) Counts(ip string) (burst, minute, hour, day int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.perIP[ip]
	if !ok {
		return 0, 0, 0, 0
	}
	now := l.now()
	w.burst.prune(now)
	w.minute.prune(now)
	w.hour.prune(now)
	w.day.prune(now)
	return len(w.burst.entries), len(w.minute.entries), len(w.hour.entries), len(w.day.entries)
}
