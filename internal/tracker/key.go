// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tracker

import (
	"fmt"
	"net"
)

// KeyKind distinguishes flow identities from process identities.
type KeyKind uint8

const (
	KindFlow    KeyKind = 1
	KindProcess KeyKind = 2
)

// Key identifies a tracked connection or process. It is comparable and used
// directly as a map key.
type Key struct {
	Kind       KeyKind
	LocalAddr  uint32
	RemoteAddr uint32
	LocalPort  uint16
	RemotePort uint16
	PID        uint32
}

// FlowKey builds the key for a flow tuple.
func FlowKey(localAddr, remoteAddr uint32, localPort, remotePort uint16) Key {
	return Key{
		Kind:       KindFlow,
		LocalAddr:  localAddr,
		RemoteAddr: remoteAddr,
		LocalPort:  localPort,
		RemotePort: remotePort,
	}
}

// ProcessKey builds the key for a process id.
func ProcessKey(pid uint32) Key {
	return Key{Kind: KindProcess, PID: pid}
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// hash is FNV-1a over the key fields, used to pick a shard.
func (k Key) hash() uint64 {
	h := uint64(fnvOffset)
	h = fnvMix(h, uint64(k.Kind), 1)
	h = fnvMix(h, uint64(k.LocalAddr), 4)
	h = fnvMix(h, uint64(k.RemoteAddr), 4)
	h = fnvMix(h, uint64(k.LocalPort), 2)
	h = fnvMix(h, uint64(k.RemotePort), 2)
	h = fnvMix(h, uint64(k.PID), 4)
	return h
}

func fnvMix(h, v uint64, n int) uint64 {
	for i := 0; i < n; i++ {
		h ^= v & 0xff
		h *= fnvPrime
		v >>= 8
	}
	return h
}

func (k Key) String() string {
	switch k.Kind {
	case KindFlow:
		return fmt.Sprintf("flow %s:%d->%s:%d",
			int2ip(k.LocalAddr), k.LocalPort,
			int2ip(k.RemoteAddr), k.RemotePort)
	case KindProcess:
		return fmt.Sprintf("pid %d", k.PID)
	default:
		return "invalid"
	}
}

func int2ip(ip uint32) string {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String()
}
