// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classify

import (
	"encoding/binary"
	"net"
)

// privateRanges are loopback plus the RFC 1918 blocks, as (network, mask).
var privateRanges = [...]struct{ network, mask uint32 }{
	{0x7F000000, 0xFF000000}, // 127.0.0.0/8
	{0x0A000000, 0xFF000000}, // 10.0.0.0/8
	{0xAC100000, 0xFFF00000}, // 172.16.0.0/12
	{0xC0A80000, 0xFFFF0000}, // 192.168.0.0/16
}

// IsPrivate reports whether addr lies in a loopback or RFC 1918 range. addr is
// the numeric IPv4 value, first octet in the high byte.
func IsPrivate(addr uint32) bool {
	for _, r := range privateRanges {
		if addr&r.mask == r.network {
			return true
		}
	}
	return false
}

// IsPrivateIP is IsPrivate for a net.IP. Non-IPv4 addresses are not private.
func IsPrivateIP(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return IsPrivate(binary.BigEndian.Uint32(v4))
}
