package budget

import (
	"fmt"
	"sync"
	"time"
)

// Window kinds, most granular first. Rejections name the first window that
// would overflow, so ordering matters.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
	WindowMonth  = "month"
)

// The month window is a fixed 30 days; billing months are approximated the
// same way the upstream budget alerts are.
var windowLengths = map[string]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
	WindowMonth:  30 * 24 * time.Hour,
}

// costEpsilon absorbs float accumulation error when comparing against caps.
const costEpsilon = 1e-9

// ExceededError reports which window rejected a reservation.
type ExceededError struct {
	Window string
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for %s window", e.Window)
}

// Reason returns the fallback reason code for this rejection.
func (e *ExceededError) Reason() string {
	return e.Window + "_budget"
}

type window struct {
	kind   string
	length time.Duration
	cap    float64
	spent  float64
	start  time.Time
}

// rollover advances the window past now, resetting spend once per crossed
// boundary. Multiple idle periods collapse into a single jump with no drift:
// start always moves by an exact multiple of the window length.
func (w *window) rollover(now time.Time) {
	elapsed := now.Sub(w.start)
	if elapsed < w.length {
		return
	}
	periods := elapsed / w.length
	w.start = w.start.Add(periods * w.length)
	w.spent = 0
}

func (w *window) end() time.Time {
	return w.start.Add(w.length)
}

// Reservation is a provisional hold on all four windows. It must be resolved
// exactly once, by Commit or Release, after the upstream call finishes.
type Reservation struct {
	amount float64
	// starts snapshots each window's start at reservation time so a
	// rollover between reserve and resolve is detected per window.
	starts   [4]time.Time
	resolved bool
}

// Ledger tracks spend across four nested fixed windows. It is the only state
// shared across concurrent relay requests; every method takes the single
// mutex, and no method holds it across I/O.
type Ledger struct {
	mu      sync.Mutex
	windows [4]window

	// now is swappable in tests.
	now func() time.Time
}

// NewLedger creates a ledger with the given caps in currency units. All four
// windows open at the current instant; spend does not survive restarts.
func NewLedger(minuteCap, hourCap, dayCap, monthCap float64) *Ledger {
	l := &Ledger{now: time.Now}
	caps := []struct {
		kind string
		cap  float64
	}{
		{WindowMinute, minuteCap},
		{WindowHour, hourCap},
		{WindowDay, dayCap},
		{WindowMonth, monthCap},
	}
	start := l.now()
	for i, c := range caps {
		l.windows[i] = window{
			kind:   c.kind,
			length: windowLengths[c.kind],
			cap:    c.cap,
			start:  start,
		}
	}
	return l
}

// Reserve atomically checks the estimate against all four windows and, if
// every one admits it, provisionally adds it to each. Of two concurrent
// reservations competing for the last unit of budget, exactly one wins.
func (l *Ledger) Reserve(estimated float64) (*Reservation, error) {
	if estimated < 0 {
		estimated = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range l.windows {
		l.windows[i].rollover(now)
	}
	for i := range l.windows {
		if l.windows[i].spent+estimated > l.windows[i].cap+costEpsilon {
			return nil, &ExceededError{Window: l.windows[i].kind}
		}
	}

	r := &Reservation{amount: estimated}
	for i := range l.windows {
		l.windows[i].spent += estimated
		r.starts[i] = l.windows[i].start
	}
	return r, nil
}

// Commit replaces the provisional amount with the actual cost. If a window
// rolled over while the upstream call was in flight, its provisional amount
// was already wiped by the reset, so the actual cost lands in the new window;
// spend is attributed to when the call finished. Spent is clamped to
// [0, cap] so the window invariant holds even when actual exceeds the
// estimate.
func (l *Ledger) Commit(r *Reservation, actual float64) {
	if r == nil || r.resolved {
		return
	}
	if actual < 0 {
		actual = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r.resolved = true

	now := l.now()
	for i := range l.windows {
		w := &l.windows[i]
		w.rollover(now)
		if w.start.Equal(r.starts[i]) {
			w.spent += actual - r.amount
		} else {
			w.spent += actual
		}
		if w.spent < 0 {
			w.spent = 0
		}
		if w.spent > w.cap {
			w.spent = w.cap
		}
	}
}

// Release refunds the provisional amount in full. Windows that rolled over
// since the reservation already dropped it and need no adjustment.
func (l *Ledger) Release(r *Reservation) {
	if r == nil || r.resolved {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r.resolved = true

	now := l.now()
	for i := range l.windows {
		w := &l.windows[i]
		w.rollover(now)
		if w.start.Equal(r.starts[i]) {
			w.spent -= r.amount
			if w.spent < 0 {
				w.spent = 0
			}
		}
	}
}

// WindowState is a point-in-time view of one window for the usage endpoint
// and rejection logs.
type WindowState struct {
	Kind  string    `json:"kind"`
	Cap   float64   `json:"cap"`
	Spent float64   `json:"spent"`
	Start time.Time `json:"window_start"`
	End   time.Time `json:"window_end"`
}

// Snapshot reports all four windows after applying any pending rollovers.
func (l *Ledger) Snapshot() []WindowState {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]WindowState, 0, len(l.windows))
	for i := range l.windows {
		w := &l.windows[i]
		w.rollover(now)
		out = append(out, WindowState{
			Kind:  w.kind,
			Cap:   w.cap,
			Spent: w.spent,
			Start: w.start,
			End:   w.end(),
		})
	}
	return out
}
