// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tracker implements the fixed-capacity connection tracking table.
//
// Storage is preallocated at construction: each shard owns a slab of slots
// linked into a recency list, and an index map sized to the shard capacity.
// Upsert at capacity evicts the least recently inserted or refreshed entry of
// the key's shard. With a single shard that is the global LRU entry.
package tracker

import (
	"sync/atomic"

	"grimm.is/shellwatch/internal/errors"
)

// DefaultCapacity is the reference table size.
const DefaultCapacity = 10000

// Config sizes the table.
type Config struct {
	Capacity int `json:"capacity"`
	Shards   int `json:"shards"`
}

// DefaultConfig returns the reference sizing: 10,000 entries in one shard.
func DefaultConfig() *Config {
	return &Config{
		Capacity: DefaultCapacity,
		Shards:   1,
	}
}

// Validate checks the sizing.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.Attr(errors.Errorf(errors.KindValidation, "tracker capacity must be positive, got %d", c.Capacity), "field", "tracker.capacity")
	}
	if c.Shards <= 0 || c.Shards > c.Capacity {
		return errors.Attr(errors.Errorf(errors.KindValidation, "tracker shards must be between 1 and capacity (%d), got %d", c.Capacity, c.Shards), "field", "tracker.shards")
	}
	return nil
}

// Entry is a tracked key and the time it was last inserted or refreshed.
type Entry struct {
	Key      Key
	LastSeen uint64
}

// Stats are cumulative table counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Inserts   uint64 `json:"inserts"`
	Refreshes uint64 `json:"refreshes"`
	Evictions uint64 `json:"evictions"`
	Removals  uint64 `json:"removals"`
}

// Tracker is a lock-striped, fixed-capacity LRU table. Safe for concurrent use.
type Tracker struct {
	shards   []shard
	capacity int

	inserts   atomic.Uint64
	refreshes atomic.Uint64
	evictions atomic.Uint64
	removals  atomic.Uint64
}

// New creates a tracker. A nil config selects DefaultConfig.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		shards:   make([]shard, cfg.Shards),
		capacity: cfg.Capacity,
	}
	base, extra := cfg.Capacity/cfg.Shards, cfg.Capacity%cfg.Shards
	for i := range t.shards {
		n := base
		if i < extra {
			n++
		}
		t.shards[i].init(n)
	}
	return t, nil
}

func (t *Tracker) shardFor(k Key) *shard {
	if len(t.shards) == 1 {
		return &t.shards[0]
	}
	return &t.shards[k.hash()%uint64(len(t.shards))]
}

// Lookup returns the entry for key without refreshing it.
func (t *Tracker) Lookup(key Key) (Entry, bool) {
	return t.shardFor(key).lookup(key)
}

// Upsert inserts key or refreshes its timestamp to now. When the shard is full
// and key is absent, the least recently used entry is evicted and returned.
func (t *Tracker) Upsert(key Key, now uint64) (Entry, bool) {
	evicted, refreshed, didEvict := t.shardFor(key).upsert(key, now)
	switch {
	case refreshed:
		t.refreshes.Add(1)
	case didEvict:
		t.inserts.Add(1)
		t.evictions.Add(1)
	default:
		t.inserts.Add(1)
	}
	return evicted, didEvict
}

// Evict removes key. It reports whether the key was present.
func (t *Tracker) Evict(key Key) bool {
	if t.shardFor(key).remove(key) {
		t.removals.Add(1)
		return true
	}
	return false
}

// Len returns the number of entries.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.shards {
		n += t.shards[i].len()
	}
	return n
}

// Capacity returns the fixed maximum number of entries.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Entries:   t.Len(),
		Capacity:  t.capacity,
		Inserts:   t.inserts.Load(),
		Refreshes: t.refreshes.Load(),
		Evictions: t.evictions.Load(),
		Removals:  t.removals.Load(),
	}
}
