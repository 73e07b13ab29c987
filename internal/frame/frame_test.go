// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/frame/frametest"
)

func TestParse_SYN(t *testing.T) {
	buf := frametest.SYN(t, "10.0.0.5", 40000, "8.8.4.4", 4444)

	f, ok := Parse(buf)
	require.True(t, ok)
	assert.Equal(t, uint32(0x0A000005), f.LocalAddr)
	assert.Equal(t, uint32(0x08080404), f.RemoteAddr)
	assert.Equal(t, uint16(40000), f.LocalPort)
	assert.Equal(t, uint16(4444), f.RemotePort)
	assert.True(t, f.SYNOnly)
}

func TestParse_FlagCombinations(t *testing.T) {
	cases := []struct {
		name     string
		syn, ack bool
		rst      bool
		want     bool
	}{
		{"syn", true, false, false, true},
		{"syn-ack", true, true, false, false},
		{"ack", false, true, false, false},
		{"none", false, false, false, false},
		{"syn-rst", true, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := frametest.TCP(t, frametest.TCPSpec{
				Src: "192.168.1.10", Dst: "1.1.1.1", SrcPort: 5555, DstPort: 443,
				SYN: tc.syn, ACK: tc.ack, RST: tc.rst,
			})

			decoded, ok := Decode(buf)
			require.True(t, ok, "every case is a complete TCP header")
			assert.Equal(t, tc.want, decoded.SYNOnly)

			_, ok = Parse(buf)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestParse_IPOptionsShiftTCPHeader(t *testing.T) {
	buf := frametest.TCP(t, frametest.TCPSpec{
		Src: "172.16.0.1", Dst: "203.0.113.9", SrcPort: 1234, DstPort: 31337,
		SYN: true, IPOptions: 2,
	})
	require.Equal(t, byte(0x47), buf[EthHeaderLen], "IHL of 7 words")

	f, ok := Parse(buf)
	require.True(t, ok)
	assert.Equal(t, uint16(1234), f.LocalPort)
	assert.Equal(t, uint16(31337), f.RemotePort)
}

func TestParse_NotApplicable(t *testing.T) {
	t.Run("udp", func(t *testing.T) {
		_, ok := Decode(frametest.UDP(t, "10.0.0.1", 53, "10.0.0.2", 5353))
		assert.False(t, ok)
	})
	t.Run("ipv6", func(t *testing.T) {
		_, ok := Decode(frametest.TCPv6(t, "2001:db8::1", 40000, "2001:db8::2", 4444))
		assert.False(t, ok)
	})
	t.Run("nil", func(t *testing.T) {
		_, ok := Decode(nil)
		assert.False(t, ok)
	})
	t.Run("ihl below minimum", func(t *testing.T) {
		buf := frametest.SYN(t, "10.0.0.1", 1, "8.8.8.8", 2)
		buf[EthHeaderLen] = 0x44
		_, ok := Decode(buf)
		assert.False(t, ok)
	})
	t.Run("non-first fragment", func(t *testing.T) {
		buf := frametest.SYN(t, "10.0.0.1", 1, "8.8.8.8", 2)
		binary.BigEndian.PutUint16(buf[EthHeaderLen+6:], 0x0010)
		_, ok := Decode(buf)
		assert.False(t, ok)
	})
	t.Run("first fragment with more-fragments bit", func(t *testing.T) {
		buf := frametest.SYN(t, "10.0.0.1", 1, "8.8.8.8", 2)
		binary.BigEndian.PutUint16(buf[EthHeaderLen+6:], 0x2000)
		_, ok := Parse(buf)
		assert.True(t, ok)
	})
}

// Every truncation of a valid SYN short of the full header chain must be
// rejected; slicing to len bounds any read the parser could make.
func TestParse_Truncation(t *testing.T) {
	buf := frametest.SYN(t, "10.1.2.3", 50000, "93.184.216.34", 4444)
	full := EthHeaderLen + IPv4MinHeaderLen + TCPMinHeaderLen

	for n := 0; n < full; n++ {
		_, ok := Decode(buf[:n:n])
		assert.False(t, ok, "length %d", n)
	}
	_, ok := Parse(buf[:full:full])
	assert.True(t, ok)
}

func TestParse_TruncationWithOptions(t *testing.T) {
	buf := frametest.TCP(t, frametest.TCPSpec{
		Src: "10.0.0.1", Dst: "8.8.8.8", SrcPort: 1, DstPort: 2, SYN: true, IPOptions: 1,
	})
	full := EthHeaderLen + IPv4MinHeaderLen + 4 + TCPMinHeaderLen

	_, ok := Decode(buf[: full-1 : full-1])
	assert.False(t, ok)
	_, ok = Decode(buf[:full:full])
	assert.True(t, ok)
}

func FuzzDecode(f *testing.F) {
	f.Add(frametest.SYN(f, "10.0.0.1", 1000, "8.8.8.8", 4444))
	f.Add([]byte{})
	f.Add(make([]byte, EthHeaderLen))

	f.Fuzz(func(t *testing.T, data []byte) {
		flow, ok := Decode(data)
		if !ok {
			assert.Equal(t, Flow{}, flow)
			return
		}
		assert.GreaterOrEqual(t, len(data), EthHeaderLen+IPv4MinHeaderLen+TCPMinHeaderLen)
	})
}

func TestDecode_DoesNotAllocate(t *testing.T) {
	buf := frametest.SYN(t, "10.0.0.1", 1000, "8.8.8.8", 4444)
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = Parse(buf)
	})
	assert.Zero(t, allocs)
}
