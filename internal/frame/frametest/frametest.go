// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package frametest builds Ethernet frames for tests with gopacket.
package frametest

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// TCPSpec describes a TCP segment to serialize.
type TCPSpec struct {
	Src, Dst         string
	SrcPort, DstPort uint16
	SYN, ACK, RST    bool
	// IPOptions pads the IPv4 header with NOP options, in 4-byte words.
	IPOptions int
}

// TCP serializes an Ethernet/IPv4/TCP frame.
func TCP(tb testing.TB, s TCPSpec) []byte {
	tb.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(s.Src).To4(),
		DstIP:    net.ParseIP(s.Dst).To4(),
	}
	for i := 0; i < s.IPOptions*4; i++ {
		ip.Options = append(ip.Options, layers.IPv4Option{OptionType: 1})
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		SYN:     s.SYN,
		ACK:     s.ACK,
		RST:     s.RST,
		Window:  64240,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("set network layer: %v", err)
	}

	return serialize(tb, ethernet(layers.EthernetTypeIPv4), ip, tcp)
}

// SYN serializes a connection attempt from src:sport to dst:dport.
func SYN(tb testing.TB, src string, sport uint16, dst string, dport uint16) []byte {
	tb.Helper()
	return TCP(tb, TCPSpec{Src: src, Dst: dst, SrcPort: sport, DstPort: dport, SYN: true})
}

// UDP serializes an Ethernet/IPv4/UDP frame.
func UDP(tb testing.TB, src string, sport uint16, dst string, dport uint16) []byte {
	tb.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("set network layer: %v", err)
	}
	return serialize(tb, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte("ping")))
}

// TCPv6 serializes an Ethernet/IPv6/TCP SYN.
func TCPv6(tb testing.TB, src string, sport uint16, dst string, dport uint16) []byte {
	tb.Helper()

	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), SYN: true, Window: 64240}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("set network layer: %v", err)
	}
	return serialize(tb, ethernet(layers.EthernetTypeIPv6), ip, tcp)
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		tb.Fatalf("serialize frame: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}
