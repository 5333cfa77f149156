// Package window provides per-key sliding-window event counts and the
// keyed most-recent-location store used by velocity features.
package window

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome describes how Add treated an event.
type Outcome int

const (
	// Appended means the event was the newest seen for its key.
	Appended Outcome = iota
	// Inserted means the event was older than the newest but within the lateness bound.
	Inserted
	// Late means the event exceeded the lateness bound; it is still counted.
	Late
	// Dropped means the event is older than the eviction horizon and is not
	// held in memory. Covers reports false for windows that reach it.
	Dropped
)

// compactMin is the dead-prefix length at which a buffer is compacted.
const compactMin = 64

// Aggregator maintains an ordered timestamp buffer per key.
// Entries older than the newest entry minus maxWindow are evicted lazily.
type Aggregator struct {
	windows       sync.Map // map[string]*keyWindow
	maxWindow     time.Duration
	latenessBound time.Duration

	// floor is the unix-nano time before which memory may be missing
	// events for any key: swept keys and history never replayed.
	floor atomic.Int64
}

type keyWindow struct {
	mu    sync.Mutex
	times []int64 // unix nanos, ascending
	head  int     // first live entry
	dead  bool    // removed by Sweep; writers must reload
}

// NewAggregator creates an aggregator that retains maxWindow of history per key.
func NewAggregator(maxWindow, latenessBound time.Duration) *Aggregator {
	if maxWindow <= 0 {
		maxWindow = 24 * time.Hour
	}
	if latenessBound < 0 {
		latenessBound = 0
	}
	a := &Aggregator{
		maxWindow:     maxWindow,
		latenessBound: latenessBound,
	}
	a.floor.Store(math.MinInt64)
	return a
}

// MaxWindow returns the retention horizon.
func (a *Aggregator) MaxWindow() time.Duration {
	return a.maxWindow
}

// Add records one event for key at the given time.
func (a *Aggregator) Add(key string, at time.Time) Outcome {
	ts := at.UnixNano()

	w := a.lockWindow(key)
	defer w.mu.Unlock()

	live := w.times[w.head:]
	if len(live) == 0 || ts >= live[len(live)-1] {
		w.times = append(w.times, ts)
		w.evict(int64(a.maxWindow))
		return Appended
	}

	newest := live[len(live)-1]
	if ts < newest-int64(a.maxWindow) {
		return Dropped
	}

	// Upper bound keeps equal timestamps in arrival order.
	idx := w.head + sort.Search(len(live), func(i int) bool { return live[i] > ts })
	w.times = append(w.times, 0)
	copy(w.times[idx+1:], w.times[idx:])
	w.times[idx] = ts

	if newest-ts > int64(a.latenessBound) {
		return Late
	}
	return Inserted
}

// Count returns the number of events for key with timestamp in (at-window, at].
func (a *Aggregator) Count(key string, window time.Duration, at time.Time) int {
	v, ok := a.windows.Load(key)
	if !ok {
		return 0
	}
	w := v.(*keyWindow)

	end := at.UnixNano()
	start := end - int64(window)

	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.times[w.head:]
	lo := sort.Search(len(live), func(i int) bool { return live[i] > start })
	hi := sort.Search(len(live), func(i int) bool { return live[i] > end })
	if hi < lo {
		return 0
	}
	return hi - lo
}

// Covers reports whether memory holds every event for key after start, so
// Count over a window starting at start is exact.
func (a *Aggregator) Covers(key string, start time.Time) bool {
	ts := start.UnixNano()
	if ts < a.floor.Load() {
		return false
	}
	v, ok := a.windows.Load(key)
	if !ok {
		return true
	}
	w := v.(*keyWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.times) == w.head {
		return true
	}
	return ts >= w.times[len(w.times)-1]-int64(a.maxWindow)
}

// Advance raises the floor below which counts may be incomplete. It never
// lowers it.
func (a *Aggregator) Advance(floor time.Time) {
	ts := floor.UnixNano()
	for {
		cur := a.floor.Load()
		if ts <= cur || a.floor.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Newest returns the latest timestamp recorded for key.
func (a *Aggregator) Newest(key string) (time.Time, bool) {
	v, ok := a.windows.Load(key)
	if !ok {
		return time.Time{}, false
	}
	w := v.(*keyWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.times) == w.head {
		return time.Time{}, false
	}
	return time.Unix(0, w.times[len(w.times)-1]).UTC(), true
}

// Sweep removes keys whose newest event is older than now minus maxWindow.
// It returns the number of keys removed.
func (a *Aggregator) Sweep(now time.Time) int {
	horizon := now.UnixNano() - int64(a.maxWindow)
	a.Advance(time.Unix(0, horizon))
	removed := 0
	a.windows.Range(func(k, v any) bool {
		w := v.(*keyWindow)
		w.mu.Lock()
		if len(w.times) == w.head || w.times[len(w.times)-1] < horizon {
			w.dead = true
			a.windows.CompareAndDelete(k, v)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// Keys returns the number of tracked keys.
func (a *Aggregator) Keys() int {
	n := 0
	a.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// lockWindow returns the live window for key with its mutex held.
func (a *Aggregator) lockWindow(key string) *keyWindow {
	for {
		v, ok := a.windows.Load(key)
		if !ok {
			v, _ = a.windows.LoadOrStore(key, &keyWindow{})
		}
		w := v.(*keyWindow)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

// evict advances head past entries that fell out of the retention horizon.
// Caller holds w.mu.
func (w *keyWindow) evict(maxWindow int64) {
	if len(w.times) == w.head {
		return
	}
	horizon := w.times[len(w.times)-1] - maxWindow
	for w.head < len(w.times) && w.times[w.head] < horizon {
		w.head++
	}
	if w.head >= compactMin && w.head*2 >= len(w.times) {
		n := copy(w.times, w.times[w.head:])
		w.times = w.times[:n]
		w.head = 0
	}
}
