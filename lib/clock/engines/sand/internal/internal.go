package internal

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Key Handle (one word reference to the key of an entry)
// --------------------------------------------------------------------------

// Handle refers to the key of one entry through a pointer to the copy owned by that entry.
// A handle is one machine word whatever the key type, copying it never copies the key.
// Handles are not comparable with ==, use Equal or compare Key().
type Handle[K comparable] struct {
	_   [0]func() // disallow ==, it would compare pointers instead of keys
	key *K
}

// Key returns the key the handle refers to (the zero K for the zero handle)
func (h Handle[K]) Key() K {
	if h.key == nil {
		var zero K
		return zero
	}
	return *h.key
}

// Equal reports whether both handles refer to equal keys
func (h Handle[K]) Equal(other Handle[K]) bool {
	return h.Key() == other.Key()
}

// IsZero reports whether the handle refers to no key (used for the shutdown event)
func (h Handle[K]) IsZero() bool {
	return h.key == nil
}

// --------------------------------------------------------------------------
// Entry Type (timer state of one key)
// --------------------------------------------------------------------------

// expiredBit is the lowest bit of the state token
const expiredBit uint64 = 1

// Entry is the timer state of one key lifecycle.
//
// The state is a single token: lastUpdate<<1 | expired. Both halves change together with one
// CompareAndSwap, so a touch and an expiry decision can never overwrite each other unnoticed.
// lastUpdate is a monotonic timestamp in nanoseconds relative to the clock epoch.
type Entry[K comparable] struct {
	key   K // the only copy outside the map key, shared by every Handle of this entry
	state atomic.Uint64
}

// NewEntry creates a not expired entry for key that was last updated at now
func NewEntry[K comparable](key K, now uint64) *Entry[K] {
	e := &Entry[K]{key: key}
	e.state.Store(now << 1)
	return e
}

// Handle returns a reference to the key of the entry
func (e *Entry[K]) Handle() Handle[K] {
	return Handle[K]{key: &e.key}
}

// Key returns the key of the entry
func (e *Entry[K]) Key() K {
	return e.key
}

// State returns the last update timestamp and whether the entry is expired
func (e *Entry[K]) State() (lastUpdate uint64, expired bool) {
	s := e.state.Load()
	return s >> 1, s&expiredBit != 0
}

// Refresh sets the last update to now (if now is newer).
// It returns false if the entry is already expired; an expired entry is never refreshed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Entry[K]) Refresh(now uint64) bool {
	for {
		s := e.state.Load()
		if s&expiredBit != 0 {
			return false
		}
		// last_update never moves backwards (a touch with an older now lost the race)
		if s>>1 >= now {
			return true
		}
		if e.state.CompareAndSwap(s, now<<1) {
			return true
		}
	}
}

// TryExpire marks the entry as expired if it was not updated for at least timeout at now.
// The decision and the mark are one CompareAndSwap on the observed token: if a touch
// changed the entry in between, nothing is marked and false is returned.
// It returns true exactly once per entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Entry[K]) TryExpire(now, timeout uint64) bool {
	s := e.state.Load()
	if s&expiredBit != 0 {
		return false
	}
	lastUpdate := s >> 1
	if now < lastUpdate || now-lastUpdate < timeout {
		return false
	}
	return e.state.CompareAndSwap(s, s|expiredBit)
}

// --------------------------------------------------------------------------
// Table Type (concurrent map of timer entries)
// --------------------------------------------------------------------------

// Table maps keys to their timer entries.
// The underlying xsync.MapOf shards its buckets internally, so writers only
// ever contend on one bucket lock and readers are lock-free.
type Table[K comparable] struct {
	data *xsync.MapOf[K, *Entry[K]]
	live *atomic.Int64 // number of entries in data, owned by the caller
}

// NewTable creates a table that keeps live updated with the number of stored entries
func NewTable[K comparable](live *atomic.Int64) *Table[K] {
	return &Table[K]{
		data: xsync.NewMapOf[K, *Entry[K]](),
		live: live,
	}
}

// Touch refreshes the entry of key or inserts a new one.
// An expired entry is replaced by a new entry (new lifecycle).
// Returns true if the number of entries grew.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K]) Touch(key K, now uint64) bool {

	// fast path: existing, not expired entry -> lock-free refresh
	if e, ok := t.data.Load(key); ok && e.Refresh(now) {
		return false
	}

	// slow path: insert or replace under the bucket lock
	inserted := false
	t.data.Compute(key, func(old *Entry[K], loaded bool) (*Entry[K], bool) {
		if loaded && old.Refresh(now) {
			return old, false
		}
		// the replaced expired entry stays counted until now, the new one takes over its slot
		inserted = !loaded
		return NewEntry(key, now), false
	})

	if inserted {
		t.live.Add(1)
	}
	return inserted
}

// Remove deletes the entry of key. Returns false if there was none.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K]) Remove(key K) bool {
	if _, ok := t.data.LoadAndDelete(key); ok {
		t.live.Add(-1)
		return true
	}
	return false
}

// Cleanup deletes the entry of key only if it is still exactly entry.
// A newer entry for the same key (new lifecycle) is left untouched.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K]) Cleanup(key K, entry *Entry[K]) bool {
	deleted := false
	t.data.Compute(key, func(old *Entry[K], loaded bool) (*Entry[K], bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		if old != entry {
			return old, false
		}
		deleted = true
		return old, true
	})

	if deleted {
		t.live.Add(-1)
	}
	return deleted
}

// Load returns the entry of key
func (t *Table[K]) Load(key K) (*Entry[K], bool) {
	return t.data.Load(key)
}

// Range calls fn for the entries of the table until fn returns false.
// The traversal is weakly consistent: entries added or removed during Range may or may not be
// visited, entries present for the whole traversal are visited once. Writers are never blocked
// for the duration of the traversal.
func (t *Table[K]) Range(fn func(key K, entry *Entry[K]) bool) {
	t.data.Range(fn)
}

// Len returns the live entry counter
func (t *Table[K]) Len() int {
	return int(t.live.Load())
}

// Size returns the number of entries as reported by the map itself (for diagnostics)
func (t *Table[K]) Size() int {
	return t.data.Size()
}
