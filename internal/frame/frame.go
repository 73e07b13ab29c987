// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package frame extracts the TCP flow tuple from a raw Ethernet frame.
//
// Every field read is preceded by a length check against the end of the
// buffer. Any failure yields the same (Flow{}, false) result; the buffer is
// never copied or retained and nothing is allocated.
package frame

import "encoding/binary"

const (
	EthHeaderLen     = 14
	IPv4MinHeaderLen = 20
	TCPMinHeaderLen  = 20

	etherTypeIPv4 = 0x0800
	protoTCP      = 6

	tcpFlagSYN = 0x02
	tcpFlagACK = 0x10

	ipFragOffsetMask = 0x1fff
)

// Flow is the connection tuple of one TCP segment. Source is local, destination
// is remote. Addresses are numeric IPv4 values decoded big-endian from the wire.
type Flow struct {
	LocalAddr  uint32
	RemoteAddr uint32
	LocalPort  uint16
	RemotePort uint16
	SYNOnly    bool
}

// Decode parses Ethernet, IPv4 and TCP headers. It returns false for anything
// that is not a complete IPv4/TCP header chain.
func Decode(buf []byte) (Flow, bool) {
	end := len(buf)

	if end < EthHeaderLen {
		return Flow{}, false
	}
	if binary.BigEndian.Uint16(buf[12:14]) != etherTypeIPv4 {
		return Flow{}, false
	}

	ip := EthHeaderLen
	if end < ip+IPv4MinHeaderLen {
		return Flow{}, false
	}
	if buf[ip+9] != protoTCP {
		return Flow{}, false
	}
	ihl := int(buf[ip]&0x0f) * 4
	if ihl < IPv4MinHeaderLen {
		return Flow{}, false
	}
	// Only the first fragment carries the TCP header.
	if binary.BigEndian.Uint16(buf[ip+6:ip+8])&ipFragOffsetMask != 0 {
		return Flow{}, false
	}

	tcp := ip + ihl
	if end < tcp+TCPMinHeaderLen {
		return Flow{}, false
	}

	flags := buf[tcp+13]
	return Flow{
		LocalAddr:  binary.BigEndian.Uint32(buf[ip+12 : ip+16]),
		RemoteAddr: binary.BigEndian.Uint32(buf[ip+16 : ip+20]),
		LocalPort:  binary.BigEndian.Uint16(buf[tcp : tcp+2]),
		RemotePort: binary.BigEndian.Uint16(buf[tcp+2 : tcp+4]),
		SYNOnly:    flags&tcpFlagSYN != 0 && flags&tcpFlagACK == 0,
	}, true
}

// Parse is Decode restricted to connection attempts: SYN set, ACK clear.
func Parse(buf []byte) (Flow, bool) {
	f, ok := Decode(buf)
	if !ok || !f.SYNOnly {
		return Flow{}, false
	}
	return f, true
}
