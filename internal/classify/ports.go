// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classify

import (
	"math/bits"
	"sync/atomic"
)

// DefaultSuspiciousPorts are remote ports commonly used by reverse shell
// listeners and IRC-based command channels.
var DefaultSuspiciousPorts = []uint16{
	4444, 8080, 9001, 9002, 1337, 31337, 54321, 12345, 6667, 6668, 6669,
}

type portBitmap [65536 / 64]uint64

// PortSet is a set of monitored remote ports. Contains is a single atomic load
// and a bit test; Replace swaps in a new bitmap for concurrent readers.
type PortSet struct {
	bits atomic.Pointer[portBitmap]
}

// NewPortSet creates a set holding ports.
func NewPortSet(ports ...uint16) *PortSet {
	s := &PortSet{}
	s.Replace(ports)
	return s
}

// Contains reports whether port is monitored.
func (s *PortSet) Contains(port uint16) bool {
	b := s.bits.Load()
	return b[port>>6]&(1<<(port&63)) != 0
}

// Replace atomically replaces the whole set.
func (s *PortSet) Replace(ports []uint16) {
	var b portBitmap
	for _, p := range ports {
		b[p>>6] |= 1 << (p & 63)
	}
	s.bits.Store(&b)
}

// Ports returns the monitored ports in ascending order.
func (s *PortSet) Ports() []uint16 {
	b := s.bits.Load()
	var out []uint16
	for word, v := range b {
		for v != 0 {
			bit := bits.TrailingZeros64(v)
			out = append(out, uint16(word*64+bit))
			v &= v - 1
		}
	}
	return out
}

// Len returns the number of monitored ports.
func (s *PortSet) Len() int {
	n := 0
	for _, v := range s.bits.Load() {
		n += bits.OnesCount64(v)
	}
	return n
}
