// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tracker

import "sync"

const nilSlot = -1

type slot struct {
	entry      Entry
	prev, next int32
}

// shard is one stripe of the table. head is the most recently used slot,
// tail the least. Unused slots are chained through next starting at free.
type shard struct {
	mu    sync.RWMutex
	index map[Key]int32
	slots []slot
	head  int32
	tail  int32
	free  int32
	size  int
}

func (s *shard) init(capacity int) {
	s.index = make(map[Key]int32, capacity)
	s.slots = make([]slot, capacity)
	for i := range s.slots {
		s.slots[i].prev = nilSlot
		s.slots[i].next = int32(i + 1)
	}
	s.slots[capacity-1].next = nilSlot
	s.head, s.tail, s.free = nilSlot, nilSlot, 0
}

func (s *shard) lookup(k Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[k]
	if !ok {
		return Entry{}, false
	}
	return s.slots[i].entry, true
}

func (s *shard) upsert(k Key, now uint64) (evicted Entry, refreshed, didEvict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[k]; ok {
		s.slots[i].entry.LastSeen = now
		s.moveToFront(i)
		return Entry{}, true, false
	}

	var i int32
	if s.free != nilSlot {
		i = s.free
		s.free = s.slots[i].next
		s.size++
	} else {
		i = s.tail
		evicted = s.slots[i].entry
		didEvict = true
		delete(s.index, evicted.Key)
		s.unlink(i)
	}

	s.slots[i].entry = Entry{Key: k, LastSeen: now}
	s.pushFront(i)
	s.index[k] = i
	return evicted, false, didEvict
}

func (s *shard) remove(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[k]
	if !ok {
		return false
	}
	delete(s.index, k)
	s.unlink(i)
	s.slots[i] = slot{prev: nilSlot, next: s.free}
	s.free = i
	s.size--
	return true
}

func (s *shard) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *shard) pushFront(i int32) {
	s.slots[i].prev = nilSlot
	s.slots[i].next = s.head
	if s.head != nilSlot {
		s.slots[s.head].prev = i
	}
	s.head = i
	if s.tail == nilSlot {
		s.tail = i
	}
}

func (s *shard) unlink(i int32) {
	p, n := s.slots[i].prev, s.slots[i].next
	if p != nilSlot {
		s.slots[p].next = n
	} else {
		s.head = n
	}
	if n != nilSlot {
		s.slots[n].prev = p
	} else {
		s.tail = p
	}
	s.slots[i].prev, s.slots[i].next = nilSlot, nilSlot
}

func (s *shard) moveToFront(i int32) {
	if s.head == i {
		return
	}
	s.unlink(i)
	s.pushFront(i)
}
