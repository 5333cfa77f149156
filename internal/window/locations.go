package window

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

const locationShards = 64

// LocationStore keeps the most recent event and the most recent located
// event per key. Slots live in per-shard arenas addressed by an index map,
// and freed slots are reused.
type LocationStore struct {
	shards [locationShards]locationShard
}

type locationShard struct {
	mu    sync.RWMutex
	index map[string]int
	arena []locationSlot
	free  []int
}

type locationSlot struct {
	lastSeen time.Time
	fix      domain.LocationFix
	hasFix   bool
}

// NewLocationStore creates an empty store.
func NewLocationStore() *LocationStore {
	s := &LocationStore{}
	for i := range s.shards {
		s.shards[i].index = make(map[string]int)
	}
	return s
}

// Update records an event for key. Older events never overwrite newer state.
func (s *LocationStore) Update(key string, at time.Time, loc *domain.Location) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	idx, ok := sh.index[key]
	if !ok {
		idx = sh.alloc()
		sh.index[key] = idx
	}
	slot := &sh.arena[idx]

	if at.After(slot.lastSeen) {
		slot.lastSeen = at
	}
	if loc != nil && (!slot.hasFix || !at.Before(slot.fix.Timestamp)) {
		slot.fix = domain.LocationFix{Location: *loc, Timestamp: at}
		slot.hasFix = true
	}
}

// LastSeen returns the latest event time for key.
func (s *LocationStore) LastSeen(key string) (time.Time, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	idx, ok := sh.index[key]
	if !ok {
		return time.Time{}, false
	}
	return sh.arena[idx].lastSeen, true
}

// LastFix returns the latest located event for key, or nil.
func (s *LocationStore) LastFix(key string) *domain.LocationFix {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	idx, ok := sh.index[key]
	if !ok || !sh.arena[idx].hasFix {
		return nil
	}
	fix := sh.arena[idx].fix
	return &fix
}

// Sweep frees slots whose last event is before cutoff.
func (s *LocationStore) Sweep(cutoff time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, idx := range sh.index {
			if sh.arena[idx].lastSeen.Before(cutoff) {
				delete(sh.index, key)
				sh.arena[idx] = locationSlot{}
				sh.free = append(sh.free, idx)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *LocationStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.index)
		sh.mu.RUnlock()
	}
	return n
}

func (s *LocationStore) shard(key string) *locationShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%locationShards]
}

// alloc returns a free slot index. Caller holds sh.mu.
func (sh *locationShard) alloc() int {
	if n := len(sh.free); n > 0 {
		idx := sh.free[n-1]
		sh.free = sh.free[:n-1]
		return idx
	}
	sh.arena = append(sh.arena, locationSlot{})
	return len(sh.arena) - 1
}
